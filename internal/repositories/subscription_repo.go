package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// SubscriptionRepository reads subscription profiles and the per-plan
// entitlement table. This service never writes either: profiles are owned
// by the billing webhook pipeline, entitlement rows by plan management.
type SubscriptionRepository struct {
	db *database.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetProfileByUserID loads a user's subscription profile.
func (r *SubscriptionRepository) GetProfileByUserID(ctx context.Context, userID string) (*models.SubscriptionProfile, error) {
	query := `
		SELECT user_id, plan, COALESCE(subscription_status, ''), is_pro, delinquent,
		       grace_period_end, skip_subscription_check, updated_at
		FROM subscription_profiles
		WHERE user_id = $1
	`

	var profile models.SubscriptionProfile
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.Plan, &profile.Status, &profile.IsPro,
		&profile.Delinquent, &profile.GracePeriodEnd, &profile.SkipSubscriptionCheck,
		&profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription profile: %w", err)
	}

	return &profile, nil
}

// GetEntitlementsByPlan loads the limit/feature row for a plan.
// Nullable limit columns come back as nil pointers, meaning unlimited.
func (r *SubscriptionRepository) GetEntitlementsByPlan(ctx context.Context, plan models.Plan) (*models.EntitlementSet, error) {
	query := `
		SELECT plan, posts_limit, creatives_limit, team_members_limit, history_days, features
		FROM plan_entitlements
		WHERE plan = $1
	`

	var set models.EntitlementSet
	err := r.db.Pool.QueryRow(ctx, query, plan).Scan(
		&set.Plan, &set.PostsLimit, &set.CreativesLimit, &set.TeamMembersLimit,
		&set.HistoryDays, pq.Array(&set.Features),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan entitlements: %w", err)
	}

	return &set, nil
}
