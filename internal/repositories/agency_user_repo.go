package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// AgencyUserRepository reads agency (platform) users for the authenticated
// API plane. User management itself lives in the main application; the
// gate only needs identity and role.
type AgencyUserRepository struct {
	db *database.DB
}

// NewAgencyUserRepository creates a new AgencyUserRepository
func NewAgencyUserRepository(db *database.DB) *AgencyUserRepository {
	return &AgencyUserRepository{db: db}
}

// GetByID loads an agency user by id.
func (r *AgencyUserRepository) GetByID(ctx context.Context, id string) (*models.AgencyUser, error) {
	query := `
		SELECT id, email, name, role, created_at
		FROM agency_users
		WHERE id = $1
	`

	var user models.AgencyUser
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agency user: %w", err)
	}

	return &user, nil
}
