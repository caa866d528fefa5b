package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
)

// SubscriptionReader defines the interface for subscription lookups
type SubscriptionReader interface {
	GetProfileByUserID(ctx context.Context, userID string) (*models.SubscriptionProfile, error)
	GetEntitlementsByPlan(ctx context.Context, plan models.Plan) (*models.EntitlementSet, error)
}

// LimitCheck is the result of checking a numeric ceiling.
type LimitCheck struct {
	Allowed   bool
	Unlimited bool
	Limit     *int
	Remaining *int
}

// ProActionCheck is the result of a pro-action check. Reason is set
// whenever the action is denied, so a blocked account and a free-tier
// account produce distinguishable answers.
type ProActionCheck struct {
	Allowed bool
	Reason  string
}

// EntitlementService derives a user's subscription standing on every call.
// Nothing is cached: billing webhooks mutate the profile out of band and
// the next resolution must see it. Enforcement paths fail closed on lookup
// errors; the informational status view fails open with nil entitlements.
type EntitlementService struct {
	subscriptions SubscriptionReader
	logger        *slog.Logger
}

// NewEntitlementService creates a new EntitlementService
func NewEntitlementService(subscriptions SubscriptionReader, logger *slog.Logger) *EntitlementService {
	return &EntitlementService{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// ResolveStatus computes the point-in-time subscription status for a user.
// The skip_subscription_check override dominates everything else; blocking
// is driven solely by an expired grace period. A missing profile resolves
// to an inactive free-plan account, not an error.
func (s *EntitlementService) ResolveStatus(ctx context.Context, userID string) (*models.SubscriptionStatus, error) {
	profile, err := s.subscriptions.GetProfileByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		profile = &models.SubscriptionProfile{
			UserID: userID,
			Plan:   models.PlanCreator,
			Status: models.BillingStatusNone,
		}
	} else if err != nil {
		return nil, models.ErrEntitlementUnresolvable
	}

	status := s.derive(profile, time.Now())

	// Entitlement lookup failure degrades the informational view only;
	// enforcement helpers treat a nil set as unresolvable.
	entitlements, err := s.subscriptions.GetEntitlementsByPlan(ctx, profile.Plan)
	if err != nil {
		s.logger.Error("failed to load plan entitlements",
			slog.String("user_id", userID),
			slog.String("plan", string(profile.Plan)),
			slog.Any("error", err))
	} else {
		status.Entitlements = entitlements
	}

	return status, nil
}

func (s *EntitlementService) derive(profile *models.SubscriptionProfile, now time.Time) *models.SubscriptionStatus {
	if profile.SkipSubscriptionCheck {
		return &models.SubscriptionStatus{
			State:    models.SubscriptionState{Kind: models.StateInternal},
			Plan:     profile.Plan,
			IsActive: true,
			IsPro:    true,
		}
	}

	inGrace := profile.Delinquent &&
		profile.GracePeriodEnd != nil &&
		profile.GracePeriodEnd.After(now)
	blocked := profile.Delinquent &&
		profile.GracePeriodEnd != nil &&
		!profile.GracePeriodEnd.After(now)

	active := profile.Status == models.BillingStatusActive ||
		profile.Status == models.BillingStatusTrialing ||
		inGrace

	state := models.SubscriptionState{Kind: models.StateInactive}
	switch {
	case blocked:
		state = models.SubscriptionState{
			Kind:        models.StateBlocked,
			BlockReason: models.BlockReasonGracePeriodExpired,
		}
	case inGrace:
		state = models.SubscriptionState{
			Kind:       models.StateInGrace,
			GraceUntil: profile.GracePeriodEnd,
		}
	case profile.Status == models.BillingStatusTrialing:
		state = models.SubscriptionState{Kind: models.StateTrialing}
	case profile.Status == models.BillingStatusActive:
		state = models.SubscriptionState{Kind: models.StateActive}
	}

	return &models.SubscriptionStatus{
		State:           state,
		Plan:            profile.Plan,
		IsActive:        active,
		IsBlocked:       blocked,
		IsPro:           profile.IsPro,
		IsInGracePeriod: inGrace,
		BlockReason:     state.BlockReason,
		GracePeriodEnd:  profile.GracePeriodEnd,
	}
}

// CanPerformProAction reports whether the user may run a pro-gated
// operation right now, and why not when they may not. Resolution failure
// denies.
func (s *EntitlementService) CanPerformProAction(ctx context.Context, userID string) (*ProActionCheck, error) {
	status, err := s.ResolveStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	if status.IsBlocked {
		reason := status.BlockReason
		if reason == "" {
			reason = models.DenialReasonAccountBlocked
		}
		return &ProActionCheck{Reason: reason}, nil
	}
	if !status.IsPro || !status.IsActive {
		return &ProActionCheck{Reason: models.DenialReasonRequiresPaidPlan}, nil
	}
	return &ProActionCheck{Allowed: true}, nil
}

// CheckLimit compares a current usage count against the plan's ceiling for
// the limit type. A nil ceiling means unlimited; otherwise the count must
// be strictly below the limit, so count == limit already fails.
func (s *EntitlementService) CheckLimit(ctx context.Context, userID string, limitType models.LimitType, currentCount int) (*LimitCheck, error) {
	status, err := s.ResolveStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status.IsBlocked {
		return nil, models.ErrAccountBlocked
	}
	if status.Entitlements == nil {
		return nil, models.ErrEntitlementUnresolvable
	}

	limit := status.Entitlements.Limit(limitType)
	if limit == nil {
		return &LimitCheck{Allowed: true, Unlimited: true}, nil
	}

	remaining := *limit - currentCount
	if remaining < 0 {
		remaining = 0
	}

	return &LimitCheck{
		Allowed:   currentCount < *limit,
		Limit:     limit,
		Remaining: &remaining,
	}, nil
}

// HasFeatureAccess reports whether the user's plan carries a feature flag.
// Blocked accounts lose feature access; the internal override grants it.
func (s *EntitlementService) HasFeatureAccess(ctx context.Context, userID string, feature models.Feature) (bool, error) {
	status, err := s.ResolveStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	if status.State.Kind == models.StateInternal {
		return true, nil
	}
	if status.IsBlocked {
		return false, nil
	}
	if status.Entitlements == nil {
		return false, models.ErrEntitlementUnresolvable
	}
	return status.Entitlements.HasFeature(feature), nil
}
