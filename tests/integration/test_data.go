package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/pkg/auth"
)

// TestClient generates a unique client name and slug using a timestamp
func TestClient(suffix string) (name, slug string) {
	ts := time.Now().UnixNano()
	name = fmt.Sprintf("Test Client %s", suffix)
	slug = fmt.Sprintf("test-client-%d-%s", ts, suffix)
	return
}

// SeedClient inserts a client row and returns it
func SeedClient(ctx context.Context, pool *pgxpool.Pool, name, slug string) (*models.Client, error) {
	query := `
		INSERT INTO clients (agency_id, name, slug)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, agency_id, name, slug, logo_url, created_at
	`

	var client models.Client
	err := pool.QueryRow(ctx, query, name, slug).Scan(
		&client.ID, &client.AgencyID, &client.Name, &client.Slug, &client.LogoURL, &client.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}

	return &client, nil
}

// SeedApprover inserts an approver for a client
func SeedApprover(ctx context.Context, pool *pgxpool.Pool, clientID, name, email string, isPrimary bool) (*models.Approver, error) {
	query := `
		INSERT INTO approvers (client_id, name, email, is_primary)
		VALUES ($1, $2, $3, $4)
		RETURNING id, client_id, name, email, is_primary, created_at
	`

	var approver models.Approver
	err := pool.QueryRow(ctx, query, clientID, name, email, isPrimary).Scan(
		&approver.ID, &approver.ClientID, &approver.Name, &approver.Email, &approver.IsPrimary, &approver.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert approver: %w", err)
	}

	return &approver, nil
}

// SeedApprovalToken inserts an approval token for a client, valid for the
// given month and expiring at the given time.
func SeedApprovalToken(ctx context.Context, pool *pgxpool.Pool, clientID, month string, expiresAt time.Time) (string, error) {
	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	query := `
		INSERT INTO approval_tokens (token, client_id, valid_month, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := pool.Exec(ctx, query, token, clientID, month, expiresAt); err != nil {
		return "", fmt.Errorf("failed to insert approval token: %w", err)
	}

	return token, nil
}

// SeedAgencyUser inserts an agency user with the given role
func SeedAgencyUser(ctx context.Context, pool *pgxpool.Pool, email, name, role string) (*models.AgencyUser, error) {
	query := `
		INSERT INTO agency_users (email, name, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, role, created_at
	`

	var user models.AgencyUser
	err := pool.QueryRow(ctx, query, email, name, role).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agency user: %w", err)
	}

	return &user, nil
}

// SeedSubscriptionProfile inserts a subscription profile for a user
func SeedSubscriptionProfile(ctx context.Context, pool *pgxpool.Pool, profile *models.SubscriptionProfile) error {
	query := `
		INSERT INTO subscription_profiles
			(user_id, plan, subscription_status, is_pro, delinquent, grace_period_end, skip_subscription_check)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := pool.Exec(ctx, query,
		profile.UserID, profile.Plan, profile.Status, profile.IsPro,
		profile.Delinquent, profile.GracePeriodEnd, profile.SkipSubscriptionCheck,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription profile: %w", err)
	}

	return nil
}

// ExtractCodeFromEmail extracts the one-time code from a captured email
func ExtractCodeFromEmail(email *SentEmail) string {
	if email == nil {
		return ""
	}
	return email.Code
}
