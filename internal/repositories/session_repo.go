package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// SessionRepository stores client approver sessions, one row per session.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClientSession) (*models.ClientSession, error) {
	query := `
		INSERT INTO client_sessions (session_token, client_id, approver_id, is_primary, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.SessionToken, session.ClientID, session.ApproverID, session.IsPrimary, session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return session, nil
}

// GetByToken loads a session with its client and approver. Expiry is the
// validator's decision, not the repository's.
func (r *SessionRepository) GetByToken(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error) {
	query := `
		SELECT s.id, s.session_token, s.client_id, s.approver_id, s.is_primary, s.created_at, s.expires_at,
		       c.id, c.agency_id, c.name, c.slug, c.logo_url, c.created_at,
		       a.id, a.client_id, a.name, a.email, a.is_primary, a.created_at
		FROM client_sessions s
		JOIN clients c ON c.id = s.client_id
		JOIN approvers a ON a.id = s.approver_id
		WHERE s.session_token = $1
	`

	var session models.ClientSession
	var client models.Client
	var approver models.Approver

	err := r.db.Pool.QueryRow(ctx, query, sessionToken).Scan(
		&session.ID, &session.SessionToken, &session.ClientID, &session.ApproverID,
		&session.IsPrimary, &session.CreatedAt, &session.ExpiresAt,
		&client.ID, &client.AgencyID, &client.Name, &client.Slug, &client.LogoURL, &client.CreatedAt,
		&approver.ID, &approver.ClientID, &approver.Name, &approver.Email, &approver.IsPrimary, &approver.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to scan client session: %w", err)
	}

	return &session, &client, &approver, nil
}

// Expire forces a session's expiry into the past (logout). Idempotent.
func (r *SessionRepository) Expire(ctx context.Context, sessionToken string) error {
	query := `
		UPDATE client_sessions
		SET expires_at = NOW() - INTERVAL '1 second'
		WHERE session_token = $1 AND expires_at > NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, sessionToken)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteExpired removes sessions that have been expired for over a day.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM client_sessions WHERE expires_at <= NOW() - INTERVAL '1 day'`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
