package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// TokenRepository stores approval tokens, one row per issued token.
type TokenRepository struct {
	db *database.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create issues a new approval token row.
func (r *TokenRepository) Create(ctx context.Context, token *models.ApprovalToken) (*models.ApprovalToken, error) {
	query := `
		INSERT INTO approval_tokens (token, client_id, valid_month, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		token.Token, token.ClientID, token.ValidMonth, token.IssuedAt, token.ExpiresAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return token, nil
}

// GetByToken loads a token together with its client. Expiry is not applied
// here; the validator decides validity so the attempt outcome can
// distinguish expired from unknown.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
	query := `
		SELECT t.id, t.token, t.client_id, t.valid_month, t.issued_at, t.expires_at,
		       c.id, c.agency_id, c.name, c.slug, c.logo_url, c.created_at
		FROM approval_tokens t
		JOIN clients c ON c.id = t.client_id
		WHERE t.token = $1
	`

	var tok models.ApprovalToken
	var client models.Client

	err := r.db.Pool.QueryRow(ctx, query, token).Scan(
		&tok.ID, &tok.Token, &tok.ClientID, &tok.ValidMonth, &tok.IssuedAt, &tok.ExpiresAt,
		&client.ID, &client.AgencyID, &client.Name, &client.Slug, &client.LogoURL, &client.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan approval token: %w", err)
	}

	return &tok, &client, nil
}

// DeleteExpired removes tokens whose validity window has long passed.
// A grace margin keeps recently expired tokens queryable for support.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM approval_tokens WHERE expires_at <= NOW() - INTERVAL '30 days'`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
