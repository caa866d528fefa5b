package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
)

// EntitlementServiceInterface defines the interface for entitlement resolution
type EntitlementServiceInterface interface {
	ResolveStatus(ctx context.Context, userID string) (*models.SubscriptionStatus, error)
	CanPerformProAction(ctx context.Context, userID string) (*services.ProActionCheck, error)
	CheckLimit(ctx context.Context, userID string, limitType models.LimitType, currentCount int) (*services.LimitCheck, error)
	HasFeatureAccess(ctx context.Context, userID string, feature models.Feature) (bool, error)
}

// AccountHandler serves subscription standing and entitlement checks for
// authenticated agency users.
type AccountHandler struct {
	entitlements EntitlementServiceInterface
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(entitlements EntitlementServiceInterface) *AccountHandler {
	return &AccountHandler{entitlements: entitlements}
}

// SubscriptionResponse represents the subscription status view
type SubscriptionResponse struct {
	State           string     `json:"state"`
	Plan            string     `json:"plan,omitempty"`
	IsActive        bool       `json:"is_active"`
	IsBlocked       bool       `json:"is_blocked"`
	IsPro           bool       `json:"is_pro"`
	IsInGracePeriod bool       `json:"is_in_grace_period"`
	BlockReason     string     `json:"block_reason,omitempty"`
	GracePeriodEnd  *time.Time `json:"grace_period_end,omitempty"`
}

// EntitlementsResponse represents the plan's limits and features
type EntitlementsResponse struct {
	Plan     string         `json:"plan"`
	Limits   map[string]*int `json:"limits"`
	Features []string       `json:"features"`
}

// CheckEntitlementRequest represents the request body for an entitlement check
type CheckEntitlementRequest struct {
	Check        string `json:"check" validate:"required,oneof=pro_action limit feature"`
	LimitType    string `json:"limit_type,omitempty" validate:"omitempty,oneof=posts creatives team_members history_days"`
	CurrentCount int    `json:"current_count,omitempty" validate:"gte=0"`
	Feature      string `json:"feature,omitempty" validate:"omitempty,oneof=client_portal white_label analytics content_calendar"`
}

// CheckEntitlementResponse represents the result of an entitlement check
type CheckEntitlementResponse struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Unlimited bool   `json:"unlimited,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

// GetSubscription handles GET /v1/account/subscription. Display is fail
// open: if the resolver cannot answer, the state reads unknown instead of
// erroring the whole dashboard.
func (h *AccountHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.entitlements.ResolveStatus(r.Context(), claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusOK, SubscriptionResponse{State: "unknown"})
		return
	}

	writeJSON(w, http.StatusOK, SubscriptionResponse{
		State:           string(status.State.Kind),
		Plan:            string(status.Plan),
		IsActive:        status.IsActive,
		IsBlocked:       status.IsBlocked,
		IsPro:           status.IsPro,
		IsInGracePeriod: status.IsInGracePeriod,
		BlockReason:     status.BlockReason,
		GracePeriodEnd:  status.GracePeriodEnd,
	})
}

// GetEntitlements handles GET /v1/account/entitlements
func (h *AccountHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.entitlements.ResolveStatus(r.Context(), claims.UserID)
	if err != nil || status.Entitlements == nil {
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "entitlements_unavailable", "Entitlements could not be resolved")
		return
	}

	set := status.Entitlements
	writeJSON(w, http.StatusOK, EntitlementsResponse{
		Plan: string(status.Plan),
		Limits: map[string]*int{
			string(models.LimitPosts):       set.PostsLimit,
			string(models.LimitCreatives):   set.CreativesLimit,
			string(models.LimitTeamMembers): set.TeamMembersLimit,
			string(models.LimitHistoryDays): set.HistoryDays,
		},
		Features: set.Features,
	})
}

// CheckEntitlement handles POST /v1/account/entitlements/check. These are
// enforcement checks, so unresolvable entitlements deny.
func (h *AccountHandler) CheckEntitlement(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CheckEntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	switch req.Check {
	case "pro_action":
		check, err := h.entitlements.CanPerformProAction(r.Context(), claims.UserID)
		if err != nil {
			h.writeCheckError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CheckEntitlementResponse{Allowed: check.Allowed, Reason: check.Reason})

	case "limit":
		if req.LimitType == "" {
			pkghttp.WriteBadRequest(w, "limit_type is required for limit checks")
			return
		}
		check, err := h.entitlements.CheckLimit(r.Context(), claims.UserID, models.LimitType(req.LimitType), req.CurrentCount)
		if err != nil {
			h.writeCheckError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CheckEntitlementResponse{
			Allowed:   check.Allowed,
			Unlimited: check.Unlimited,
			Limit:     check.Limit,
			Remaining: check.Remaining,
		})

	case "feature":
		if req.Feature == "" {
			pkghttp.WriteBadRequest(w, "feature is required for feature checks")
			return
		}
		allowed, err := h.entitlements.HasFeatureAccess(r.Context(), claims.UserID, models.Feature(req.Feature))
		if err != nil {
			h.writeCheckError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CheckEntitlementResponse{Allowed: allowed})
	}
}

func (h *AccountHandler) writeCheckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountBlocked):
		pkghttp.WriteErrorWithDetails(w, http.StatusForbidden, "account_blocked",
			"Account access is blocked", models.BlockReasonGracePeriodExpired)
	case errors.Is(err, models.ErrEntitlementUnresolvable):
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "entitlements_unavailable",
			"Entitlements could not be resolved")
	default:
		pkghttp.WriteInternalError(w, "Entitlement check failed")
	}
}
