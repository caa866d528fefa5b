package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
)

// GateInterface defines the interface for the rate-limited gate
type GateInterface interface {
	Evaluate(ctx context.Context, address, credentialID string, kind models.CredentialKind, check services.CredentialCheck) *services.Decision
}

// CredentialValidatorInterface defines the interface for credential validation
type CredentialValidatorInterface interface {
	ValidateApprovalToken(ctx context.Context, token string) (*services.TokenGrant, models.AttemptOutcome, error)
	ValidateSession(ctx context.Context, sessionToken string) (*services.SessionGrant, models.AttemptOutcome, error)
	VerifyCode(ctx context.Context, approverID, code string) (models.AttemptOutcome, error)
}

// ApprovalHandler handles approval-token validation requests
type ApprovalHandler struct {
	gate        GateInterface
	credentials CredentialValidatorInterface
	ipConfig    *pkghttp.IPConfig
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(gate GateInterface, credentials CredentialValidatorInterface, ipConfig *pkghttp.IPConfig) *ApprovalHandler {
	return &ApprovalHandler{
		gate:        gate,
		credentials: credentials,
		ipConfig:    ipConfig,
	}
}

// ValidateTokenRequest represents the request body for token validation
type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// ValidateTokenResponse represents a successful token validation
type ValidateTokenResponse struct {
	Success    bool   `json:"success"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	ClientSlug string `json:"client_slug"`
	Month      string `json:"month"`
}

// ValidateToken handles POST /v1/approval/validate-token
func (h *ApprovalHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	address := pkghttp.ExtractClientIP(r, h.ipConfig)

	var grant *services.TokenGrant
	decision := h.gate.Evaluate(r.Context(), address, req.Token, models.CredentialKindToken,
		func(ctx context.Context) (models.AttemptOutcome, *string, error) {
			g, outcome, err := h.credentials.ValidateApprovalToken(ctx, req.Token)
			if err != nil {
				return outcome, nil, err
			}
			grant = g
			return outcome, &g.Client.ID, nil
		})

	if decision.Outcome != services.DecisionAllow {
		writeGateDenial(w, decision, address, codeInvalidToken)
		return
	}

	writeJSON(w, http.StatusOK, ValidateTokenResponse{
		Success:    true,
		ClientID:   grant.Client.ID,
		ClientName: grant.Client.Name,
		ClientSlug: grant.Client.Slug,
		Month:      grant.Token.ValidMonth,
	})
}
