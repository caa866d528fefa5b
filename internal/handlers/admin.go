package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/models"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
	pkglogger "github.com/clearproof/gatekeeper/pkg/logger"
)

// SecurityDashboardInterface defines the interface for security dashboard queries
type SecurityDashboardInterface interface {
	ListAttempts(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error)
	CountAttemptFailures(ctx context.Context, address string) (int, error)
	ListBlocks(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error)
	Unblock(ctx context.Context, address string) error
}

// AlertListerInterface defines the interface for listing security alerts
type AlertListerInterface interface {
	ListAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
}

// ApprovalLinkIssuerInterface defines the interface for issuing approval links
type ApprovalLinkIssuerInterface interface {
	IssueToken(ctx context.Context, clientID, month string) (*models.ApprovalToken, error)
}

// AdminHandler serves the operator security dashboard and approval-link
// issuance. Everything here sits behind JWT auth plus the admin role.
type AdminHandler struct {
	dashboard SecurityDashboardInterface
	alerts    AlertListerInterface
	links     ApprovalLinkIssuerInterface
	audit     *pkglogger.AuditLogger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(dashboard SecurityDashboardInterface, alerts AlertListerInterface, links ApprovalLinkIssuerInterface, audit *pkglogger.AuditLogger) *AdminHandler {
	return &AdminHandler{
		dashboard: dashboard,
		alerts:    alerts,
		links:     links,
		audit:     audit,
	}
}

func (h *AdminHandler) auditAction(r *http.Request, eventType string, metadata map[string]string) {
	if h.audit == nil {
		return
	}
	userID := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		userID = claims.UserID
	}
	h.audit.LogAdminAction(eventType, userID, r.RemoteAddr, metadata)
}

// IssueApprovalLinkRequest represents the request body for issuing an approval link
type IssueApprovalLinkRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Month    string `json:"month" validate:"required"`
}

// IssueApprovalLinkResponse represents a newly issued approval link
type IssueApprovalLinkResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Month     string    `json:"month"`
	ExpiresAt time.Time `json:"expires_at"`
}

func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// ListAttempts handles GET /v1/admin/security/attempts
func (h *AdminHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	address := r.URL.Query().Get("address")

	attempts, err := h.dashboard.ListAttempts(r.Context(), address, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list attempts")
		return
	}

	resp := map[string]interface{}{"attempts": attempts}
	if address != "" {
		// Cumulative failure total for the filtered address; best effort,
		// the page itself still renders if the count query fails.
		if count, err := h.dashboard.CountAttemptFailures(r.Context(), address); err == nil {
			resp["failed_attempts"] = count
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListBlocks handles GET /v1/admin/security/blocks
func (h *AdminHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	blocks, err := h.dashboard.ListBlocks(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list blocks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": blocks})
}

// ListAlerts handles GET /v1/admin/security/alerts
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	alerts, err := h.alerts.ListAlerts(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// DeleteBlock handles DELETE /v1/admin/security/blocks/{address}. This is
// the manual way out of a permanent block.
func (h *AdminHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		pkghttp.WriteBadRequest(w, "address is required")
		return
	}

	if err := h.dashboard.Unblock(r.Context(), address); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No block record for that address")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to remove block")
		return
	}

	h.auditAction(r, "block_removed", map[string]string{"address": address})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// IssueApprovalLink handles POST /v1/admin/approval-links
func (h *AdminHandler) IssueApprovalLink(w http.ResponseWriter, r *http.Request) {
	var req IssueApprovalLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token, err := h.links.IssueToken(r.Context(), req.ClientID, req.Month)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "month must be in YYYY-MM format")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to issue approval link")
		return
	}

	h.auditAction(r, "approval_link_issued", map[string]string{
		"client_id": token.ClientID,
		"month":     token.ValidMonth,
	})
	writeJSON(w, http.StatusCreated, IssueApprovalLinkResponse{
		Token:     token.Token,
		ClientID:  token.ClientID,
		Month:     token.ValidMonth,
		ExpiresAt: token.ExpiresAt,
	})
}
