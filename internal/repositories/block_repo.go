package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// BlockRepository maintains one blocklist row per address. All mutations
// are written so that concurrent instances agree on the outcome: failure
// counting is a transactional increment and tier changes are guarded to
// never move a tier downward (except the explicit temporary-block expiry).
type BlockRepository struct {
	db *database.DB
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(db *database.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// GetByAddress returns the block record for an address, or nil when the
// address has no history yet.
func (r *BlockRepository) GetByAddress(ctx context.Context, address string) (*models.BlockRecord, error) {
	query := `
		SELECT address, failure_count, tier, blocked_until, last_failure_at, created_at, updated_at
		FROM block_records
		WHERE address = $1
	`

	rec, err := scanBlockRow(r.db.Pool.QueryRow(ctx, query, address))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordFailure increments the address's cumulative failure count as a
// single conditional upsert and returns the resulting row. Two concurrent
// failures each observe a distinct count, so exactly one of them crosses
// any given threshold.
func (r *BlockRepository) RecordFailure(ctx context.Context, address string) (*models.BlockRecord, error) {
	query := `
		INSERT INTO block_records (address, failure_count, tier, last_failure_at)
		VALUES ($1, 1, 'none', NOW())
		ON CONFLICT (address) DO UPDATE
		SET failure_count = block_records.failure_count + 1,
		    last_failure_at = NOW(),
		    updated_at = NOW()
		RETURNING address, failure_count, tier, blocked_until, last_failure_at, created_at, updated_at
	`

	return scanBlockRow(r.db.Pool.QueryRow(ctx, query, address))
}

// Escalate raises the address to the given tier. The update is guarded so
// a tier never decreases and a permanent tier is never overwritten; it
// reports whether this call performed the transition.
func (r *BlockRepository) Escalate(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error) {
	query := `
		UPDATE block_records
		SET tier = $2, blocked_until = $3, updated_at = NOW()
		WHERE address = $1
		  AND tier <> $2
		  AND CASE tier WHEN 'warned' THEN 1 WHEN 'temporary' THEN 2 WHEN 'permanent' THEN 3 ELSE 0 END
		    < CASE $2::text WHEN 'warned' THEN 1 WHEN 'temporary' THEN 2 WHEN 'permanent' THEN 3 ELSE 0 END
	`

	tag, err := r.db.Pool.Exec(ctx, query, address, tier, blockedUntil)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetExpiredTemporary lapses an expired temporary block back to tier
// none. The cumulative failure count is deliberately preserved.
func (r *BlockRepository) ResetExpiredTemporary(ctx context.Context, address string) (bool, error) {
	query := `
		UPDATE block_records
		SET tier = 'none', blocked_until = NULL, updated_at = NOW()
		WHERE address = $1 AND tier = 'temporary' AND blocked_until <= NOW()
	`

	tag, err := r.db.Pool.Exec(ctx, query, address)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns block records ordered by most recent failure.
func (r *BlockRepository) List(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error) {
	query := `
		SELECT address, failure_count, tier, blocked_until, last_failure_at, created_at, updated_at
		FROM block_records
		ORDER BY last_failure_at DESC NULLS LAST
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	records := make([]*models.BlockRecord, 0)
	for rows.Next() {
		rec, err := scanBlockRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return records, nil
}

// Delete removes an address's block record entirely. This is the manual
// intervention path for permanent blocks; the attempt history remains.
func (r *BlockRepository) Delete(ctx context.Context, address string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM block_records WHERE address = $1`, address)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlockRow(row rowScanner) (*models.BlockRecord, error) {
	var rec models.BlockRecord

	err := row.Scan(
		&rec.Address, &rec.FailureCount, &rec.Tier, &rec.BlockedUntil,
		&rec.LastFailureAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan block record: %w", err)
	}

	return &rec, nil
}
