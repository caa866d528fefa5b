package models

import "time"

// BlockTier is the escalation level of an address in the blocklist.
// Tiers only move upward, except that a temporary block expires back to
// TierNone once blocked_until has passed. TierPermanent is terminal.
type BlockTier string

const (
	TierNone      BlockTier = "none"
	TierWarned    BlockTier = "warned"
	TierTemporary BlockTier = "temporary"
	TierPermanent BlockTier = "permanent"
)

// Rank orders tiers for monotonic escalation checks.
func (t BlockTier) Rank() int {
	switch t {
	case TierWarned:
		return 1
	case TierTemporary:
		return 2
	case TierPermanent:
		return 3
	default:
		return 0
	}
}

// BlockRecord is the per-address blocklist row. failure_count is cumulative
// over the address's entire history and is never reset, including when a
// temporary block expires or an attempt eventually succeeds.
type BlockRecord struct {
	Address       string     `db:"address"`
	FailureCount  int        `db:"failure_count"`
	Tier          BlockTier  `db:"tier"`
	BlockedUntil  *time.Time `db:"blocked_until"`
	LastFailureAt *time.Time `db:"last_failure_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// TemporaryBlockExpired reports whether a temporary block has lapsed.
func (b *BlockRecord) TemporaryBlockExpired(now time.Time) bool {
	return b.Tier == TierTemporary && b.BlockedUntil != nil && !now.Before(*b.BlockedUntil)
}
