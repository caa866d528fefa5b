package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
)

// Failure codes surfaced to approval-portal callers. The shapes carry
// enough structure for the portal to render countdowns and
// remaining-attempts warnings.
const (
	codeInvalidToken     = "INVALID_TOKEN"
	codeInvalidCode      = "INVALID_CODE"
	codeRateLimited      = "RATE_LIMIT_EXCEEDED"
	codeBlockedTemporary = "IP_BLOCKED_TEMPORARY"
	codeBlockedPermanent = "IP_BLOCKED_PERMANENT"
)

type invalidCredentialResponse struct {
	Error             string `json:"error"`
	FailedAttempts    int    `json:"failed_attempts"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

type rateLimitedResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	RetryAfter        int    `json:"retry_after"`
}

type blockedResponse struct {
	Error          string     `json:"error"`
	Message        string     `json:"message"`
	BlockedUntil   *time.Time `json:"blocked_until"`
	IPAddress      string     `json:"ip_address"`
	FailedAttempts int        `json:"failed_attempts"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeGateDenial maps a non-allow gate decision onto the wire. The
// invalidCode parameter picks which credential-rejection code to use so
// token and one-time-code endpoints share everything else.
func writeGateDenial(w http.ResponseWriter, decision *services.Decision, address, invalidCode string) {
	switch decision.Outcome {
	case services.DecisionRetryAfter:
		writeJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
			Error:             codeRateLimited,
			Message:           "Too many attempts. Please slow down and try again.",
			AttemptsRemaining: decision.AttemptsRemaining,
			RetryAfter:        int(decision.RetryAfter.Seconds()),
		})
	case services.DecisionBlocked:
		code := codeBlockedTemporary
		message := "This address is temporarily blocked due to repeated failed attempts."
		if decision.Tier == models.TierPermanent {
			code = codeBlockedPermanent
			message = "This address has been permanently blocked. Contact support to restore access."
		}
		writeJSON(w, http.StatusForbidden, blockedResponse{
			Error:          code,
			Message:        message,
			BlockedUntil:   decision.BlockedUntil,
			IPAddress:      address,
			FailedAttempts: decision.FailedAttempts,
		})
	default:
		writeJSON(w, http.StatusUnauthorized, invalidCredentialResponse{
			Error:             invalidCode,
			FailedAttempts:    decision.FailedAttempts,
			AttemptsRemaining: decision.AttemptsRemaining,
		})
	}
}
