package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// CodeRepository stores one-time 2FA codes. Only the bcrypt hash is ever
// persisted.
type CodeRepository struct {
	db *database.DB
}

// NewCodeRepository creates a new CodeRepository
func NewCodeRepository(db *database.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// Create inserts a new code row for an approver.
func (r *CodeRepository) Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	query := `
		INSERT INTO one_time_codes (approver_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		code.ApproverID, code.CodeHash, code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return code, nil
}

// GetActiveByApprover returns the approver's newest unconsumed, unexpired
// code, or ErrNotFound when none exists.
func (r *CodeRepository) GetActiveByApprover(ctx context.Context, approverID string) (*models.OneTimeCode, error) {
	query := `
		SELECT id, approver_id, code_hash, created_at, expires_at, consumed_at
		FROM one_time_codes
		WHERE approver_id = $1 AND consumed_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`

	var code models.OneTimeCode
	err := r.db.Pool.QueryRow(ctx, query, approverID).Scan(
		&code.ID, &code.ApproverID, &code.CodeHash, &code.CreatedAt, &code.ExpiresAt, &code.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan one-time code: %w", err)
	}

	return &code, nil
}

// MarkConsumed consumes a code. The guard keeps a code single-use even
// under concurrent redemption; it reports whether this call consumed it.
func (r *CodeRepository) MarkConsumed(ctx context.Context, codeID string) (bool, error) {
	query := `
		UPDATE one_time_codes
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, codeID)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteStale removes consumed or long-expired codes.
func (r *CodeRepository) DeleteStale(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM one_time_codes
		WHERE consumed_at IS NOT NULL OR expires_at <= NOW() - INTERVAL '1 day'
	`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
