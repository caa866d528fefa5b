package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// ApproverRepository reads approver records. Approvers are managed by
// the main application; this service only resolves them.
type ApproverRepository struct {
	db *database.DB
}

// NewApproverRepository creates a new ApproverRepository
func NewApproverRepository(db *database.DB) *ApproverRepository {
	return &ApproverRepository{db: db}
}

// GetApproverByEmail resolves an approver within a client by email.
func (r *ApproverRepository) GetApproverByEmail(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
	query := `
		SELECT a.id, a.client_id, a.name, a.email, a.is_primary, a.created_at
		FROM approvers a
		JOIN clients c ON c.id = a.client_id
		WHERE c.slug = $1 AND LOWER(a.email) = LOWER($2)
	`

	var approver models.Approver
	err := r.db.Pool.QueryRow(ctx, query, clientSlug, email).Scan(
		&approver.ID, &approver.ClientID, &approver.Name, &approver.Email, &approver.IsPrimary, &approver.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan approver: %w", err)
	}

	return &approver, nil
}
