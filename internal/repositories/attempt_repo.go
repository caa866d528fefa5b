package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// AttemptRepository persists access attempts. The table is append-only:
// rows are never updated or deleted, so the full history stays available
// to the security dashboards.
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record appends a single access attempt.
func (r *AttemptRepository) Record(ctx context.Context, attempt *models.AccessAttempt) error {
	query := `
		INSERT INTO access_attempts (address, credential_identifier, credential_kind, outcome, target_entity_id, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Address,
		attempt.CredentialIdentifier,
		attempt.CredentialKind,
		attempt.Outcome,
		attempt.TargetEntityID,
		attempt.AttemptedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// ListByAddress returns the most recent attempts for an address, newest first.
func (r *AttemptRepository) ListByAddress(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error) {
	query := `
		SELECT id, address, credential_identifier, credential_kind, outcome, target_entity_id, attempted_at
		FROM access_attempts
		WHERE address = $1
		ORDER BY attempted_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, address, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanAttemptRows(rows)
}

// ListRecent returns the most recent attempts across all addresses.
func (r *AttemptRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.AccessAttempt, error) {
	query := `
		SELECT id, address, credential_identifier, credential_kind, outcome, target_entity_id, attempted_at
		FROM access_attempts
		ORDER BY attempted_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanAttemptRows(rows)
}

// CountFailuresByAddress returns the total recorded failures for an address.
func (r *AttemptRepository) CountFailuresByAddress(ctx context.Context, address string) (int, error) {
	query := `
		SELECT COUNT(*) FROM access_attempts
		WHERE address = $1 AND outcome <> 'success'
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, address).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.AccessAttempt, error) {
	defer rows.Close()

	attempts := make([]*models.AccessAttempt, 0)

	for rows.Next() {
		var a models.AccessAttempt
		err := rows.Scan(
			&a.ID, &a.Address, &a.CredentialIdentifier, &a.CredentialKind,
			&a.Outcome, &a.TargetEntityID, &a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return attempts, nil
}
