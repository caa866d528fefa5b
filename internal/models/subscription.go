package models

import "time"

// Plan is the subscription plan identifier.
type Plan string

const (
	PlanCreator Plan = "creator" // free tier
	PlanStudio  Plan = "studio"
	PlanAgency  Plan = "agency"
)

// BillingStatus mirrors the billing provider's subscription status.
// Empty string means no subscription record exists.
type BillingStatus string

const (
	BillingStatusActive   BillingStatus = "active"
	BillingStatusTrialing BillingStatus = "trialing"
	BillingStatusPastDue  BillingStatus = "past_due"
	BillingStatusCanceled BillingStatus = "canceled"
	BillingStatusNone     BillingStatus = ""
)

// SubscriptionProfile is the persisted source of truth for a user's
// subscription. It is mutated only by billing-provider webhooks, which are
// outside this service; the gate only ever reads it.
type SubscriptionProfile struct {
	UserID                string        `db:"user_id"`
	Plan                  Plan          `db:"plan"`
	Status                BillingStatus `db:"subscription_status"`
	IsPro                 bool          `db:"is_pro"`
	Delinquent            bool          `db:"delinquent"`
	GracePeriodEnd        *time.Time    `db:"grace_period_end"`
	SkipSubscriptionCheck bool          `db:"skip_subscription_check"`
	UpdatedAt             time.Time     `db:"updated_at"`
}

// LimitType is the closed set of numeric ceilings a plan can carry.
type LimitType string

const (
	LimitPosts       LimitType = "posts"
	LimitCreatives   LimitType = "creatives"
	LimitTeamMembers LimitType = "team_members"
	LimitHistoryDays LimitType = "history_days"
)

// Feature is the closed set of plan feature flags.
type Feature string

const (
	FeatureClientPortal    Feature = "client_portal"
	FeatureWhiteLabel      Feature = "white_label"
	FeatureAnalytics       Feature = "analytics"
	FeatureContentCalendar Feature = "content_calendar"
)

// EntitlementSet is the per-plan limit and feature table. A nil limit
// means unlimited.
type EntitlementSet struct {
	Plan             Plan     `db:"plan"`
	PostsLimit       *int     `db:"posts_limit"`
	CreativesLimit   *int     `db:"creatives_limit"`
	TeamMembersLimit *int     `db:"team_members_limit"`
	HistoryDays      *int     `db:"history_days"`
	Features         []string `db:"features"`
}

// Limit returns the ceiling for a limit type, nil meaning unlimited.
func (e *EntitlementSet) Limit(t LimitType) *int {
	switch t {
	case LimitPosts:
		return e.PostsLimit
	case LimitCreatives:
		return e.CreativesLimit
	case LimitTeamMembers:
		return e.TeamMembersLimit
	case LimitHistoryDays:
		return e.HistoryDays
	default:
		return nil
	}
}

// HasFeature reports whether the plan carries the given feature flag.
func (e *EntitlementSet) HasFeature(f Feature) bool {
	for _, name := range e.Features {
		if name == string(f) {
			return true
		}
	}
	return false
}

// SubscriptionStateKind tags the resolved subscription lifecycle state.
type SubscriptionStateKind string

const (
	StateInternal SubscriptionStateKind = "internal" // skip_subscription_check override
	StateActive   SubscriptionStateKind = "active"
	StateTrialing SubscriptionStateKind = "trialing"
	StateInGrace  SubscriptionStateKind = "in_grace"
	StateBlocked  SubscriptionStateKind = "blocked"
	StateInactive SubscriptionStateKind = "inactive"
)

// BlockReasonGracePeriodExpired is the only block reason the resolver
// produces: blocking is driven exclusively by an expired grace period.
const BlockReasonGracePeriodExpired = "grace_period_expired"

// Denial reasons for entitlement checks that come back allowed=false.
const (
	DenialReasonAccountBlocked   = "account_blocked"
	DenialReasonRequiresPaidPlan = "requires_paid_plan"
)

// SubscriptionState is the tagged variant computed once per resolution so
// every call site reads one unambiguous value instead of re-deriving
// booleans from the profile.
type SubscriptionState struct {
	Kind        SubscriptionStateKind
	GraceUntil  *time.Time // set for StateInGrace
	BlockReason string     // set for StateBlocked
}

// SubscriptionStatus is the point-in-time view derived from a profile and
// its plan's entitlement set. It is computed per request, never persisted.
type SubscriptionStatus struct {
	State           SubscriptionState
	Plan            Plan
	IsActive        bool
	IsBlocked       bool
	IsPro           bool
	IsInGracePeriod bool
	BlockReason     string
	GracePeriodEnd  *time.Time
	Entitlements    *EntitlementSet // nil when the lookup failed
}
