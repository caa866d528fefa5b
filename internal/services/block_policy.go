package services

import (
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
)

// Escalation thresholds. Counting is cumulative over an address's entire
// history, never a rolling window: an address that eventually succeeds
// keeps its failure history, matching the dashboard's 3+/5+/10+ tiers.
const (
	WarnThreshold      = 3
	TempBlockThreshold = 5
	PermBlockThreshold = 10
)

// BlockPolicy is the pure mapping from an address's cumulative failure
// count to a block tier. The temporary-block duration is the only
// configurable part.
type BlockPolicy struct {
	tempBlockDuration time.Duration
}

// NewBlockPolicy creates a BlockPolicy with the given temporary-block
// duration.
func NewBlockPolicy(tempBlockDuration time.Duration) *BlockPolicy {
	return &BlockPolicy{tempBlockDuration: tempBlockDuration}
}

// TierForFailureCount returns the tier an address with the given
// cumulative failure count belongs in.
func (p *BlockPolicy) TierForFailureCount(count int) models.BlockTier {
	switch {
	case count >= PermBlockThreshold:
		return models.TierPermanent
	case count >= TempBlockThreshold:
		return models.TierTemporary
	case count >= WarnThreshold:
		return models.TierWarned
	default:
		return models.TierNone
	}
}

// BlockedUntil returns the expiry for a tier reached at the given instant:
// a horizon for temporary blocks, nil for everything else (permanent
// blocks have no expiry).
func (p *BlockPolicy) BlockedUntil(tier models.BlockTier, now time.Time) *time.Time {
	if tier != models.TierTemporary {
		return nil
	}
	until := now.Add(p.tempBlockDuration)
	return &until
}

// AttemptsRemaining reports how many more failures the address can record
// before a temporary block, floored at zero.
func (p *BlockPolicy) AttemptsRemaining(count int) int {
	remaining := TempBlockThreshold - count
	if remaining < 0 {
		return 0
	}
	return remaining
}
