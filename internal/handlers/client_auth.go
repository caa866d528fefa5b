package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
)

// SessionServiceInterface defines the interface for approver session logic
type SessionServiceInterface interface {
	ResolveApprover(ctx context.Context, clientSlug, email string) (*models.Approver, error)
	RequestCode(ctx context.Context, clientSlug, email string) error
	EstablishSession(ctx context.Context, approver *models.Approver) (*models.ClientSession, error)
	Logout(ctx context.Context, sessionToken string) error
}

// ClientAuthHandler handles the approver login flow: one-time codes in,
// sessions out.
type ClientAuthHandler struct {
	gate        GateInterface
	credentials CredentialValidatorInterface
	sessions    SessionServiceInterface
	timing      *auth.TimingDelay
	ipConfig    *pkghttp.IPConfig
	cookieCfg   auth.CookieConfig
}

// NewClientAuthHandler creates a new ClientAuthHandler
func NewClientAuthHandler(gate GateInterface, credentials CredentialValidatorInterface, sessions SessionServiceInterface, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, cookieCfg auth.CookieConfig) *ClientAuthHandler {
	return &ClientAuthHandler{
		gate:        gate,
		credentials: credentials,
		sessions:    sessions,
		timing:      timing,
		ipConfig:    ipConfig,
		cookieCfg:   cookieCfg,
	}
}

// Request DTOs

// RequestCodeRequest represents the request body for requesting a login code
type RequestCodeRequest struct {
	ClientSlug string `json:"client_slug" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

// VerifyCodeRequest represents the request body for redeeming a login code
type VerifyCodeRequest struct {
	ClientSlug string `json:"client_slug" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// ValidateSessionRequest represents the request body for session validation
type ValidateSessionRequest struct {
	SessionToken string `json:"session_token"`
}

type sessionClientView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	LogoURL *string `json:"logo_url"`
}

type sessionApproverView struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsPrimary bool   `json:"is_primary"`
}

// ValidateSessionResponse represents the session validation result
type ValidateSessionResponse struct {
	Valid    bool                 `json:"valid"`
	Error    string               `json:"error,omitempty"`
	Client   *sessionClientView   `json:"client,omitempty"`
	Approver *sessionApproverView `json:"approver,omitempty"`
}

// VerifyCodeResponse represents a successful code redemption
type VerifyCodeResponse struct {
	Success      bool      `json:"success"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RequestCode handles POST /v1/client-auth/request-code.
// The response never reveals whether the approver exists, and the timing
// delay keeps "unknown email" indistinguishable from "code sent".
func (h *ClientAuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.sessions.RequestCode(r.Context(), req.ClientSlug, req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		h.timing.WaitFrom(start)
		pkghttp.WriteInternalError(w, "Failed to send login code")
		return
	}

	h.timing.WaitFrom(start)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If that email is registered, a login code has been sent.",
	})
}

// VerifyCode handles POST /v1/client-auth/verify-code. The code runs
// through the gate like any other credential; an unknown email burns a
// failure the same way a wrong code does.
func (h *ClientAuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	address := pkghttp.ExtractClientIP(r, h.ipConfig)

	var approver *models.Approver
	decision := h.gate.Evaluate(r.Context(), address, req.Email, models.CredentialKindCode,
		func(ctx context.Context) (models.AttemptOutcome, *string, error) {
			a, err := h.sessions.ResolveApprover(ctx, req.ClientSlug, req.Email)
			if errors.Is(err, models.ErrNotFound) {
				return models.AttemptOutcomeFailure, nil, models.ErrInvalidCredential
			}
			if err != nil {
				return "", nil, err
			}

			outcome, err := h.credentials.VerifyCode(ctx, a.ID, req.Code)
			if err != nil {
				return outcome, &a.ClientID, err
			}
			approver = a
			return outcome, &a.ClientID, nil
		})

	if decision.Outcome != services.DecisionAllow {
		writeGateDenial(w, decision, address, codeInvalidCode)
		return
	}

	session, err := h.sessions.EstablishSession(r.Context(), approver)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to establish session")
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	auth.SetSessionCookie(w, session.SessionToken, maxAge, h.cookieCfg)

	writeJSON(w, http.StatusOK, VerifyCodeResponse{
		Success:      true,
		SessionToken: session.SessionToken,
		ExpiresAt:    session.ExpiresAt,
	})
}

// ValidateSession handles POST /v1/client-auth/validate-session. Failures
// collapse to a simple valid=false body; the gate still counts them.
func (h *ClientAuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	sessionToken := req.SessionToken
	if sessionToken == "" {
		if fromCookie, err := auth.GetSessionCookie(r); err == nil {
			sessionToken = fromCookie
		}
	}
	if sessionToken == "" {
		writeJSON(w, http.StatusUnauthorized, ValidateSessionResponse{
			Valid: false,
			Error: "missing session token",
		})
		return
	}

	address := pkghttp.ExtractClientIP(r, h.ipConfig)

	var grant *services.SessionGrant
	decision := h.gate.Evaluate(r.Context(), address, sessionToken, models.CredentialKindSession,
		func(ctx context.Context) (models.AttemptOutcome, *string, error) {
			g, outcome, err := h.credentials.ValidateSession(ctx, sessionToken)
			if err != nil {
				return outcome, nil, err
			}
			grant = g
			return outcome, &g.Client.ID, nil
		})

	if decision.Outcome != services.DecisionAllow {
		writeJSON(w, http.StatusUnauthorized, ValidateSessionResponse{
			Valid: false,
			Error: "invalid or expired session",
		})
		return
	}

	writeJSON(w, http.StatusOK, ValidateSessionResponse{
		Valid: true,
		Client: &sessionClientView{
			ID:      grant.Client.ID,
			Name:    grant.Client.Name,
			Slug:    grant.Client.Slug,
			LogoURL: grant.Client.LogoURL,
		},
		Approver: &sessionApproverView{
			Name:      grant.Approver.Name,
			Email:     grant.Approver.Email,
			IsPrimary: grant.Approver.IsPrimary,
		},
	})
}

// Logout handles POST /v1/client-auth/logout
func (h *ClientAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	// Body is optional; the cookie alone is enough.
	_ = json.NewDecoder(r.Body).Decode(&req)

	sessionToken := req.SessionToken
	if sessionToken == "" {
		if fromCookie, err := auth.GetSessionCookie(r); err == nil {
			sessionToken = fromCookie
		}
	}

	if sessionToken != "" {
		if err := h.sessions.Logout(r.Context(), sessionToken); err != nil {
			pkghttp.WriteInternalError(w, "Failed to log out")
			return
		}
	}

	auth.ClearSessionCookie(w, h.cookieCfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
