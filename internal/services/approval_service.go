package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/pkg/auth"
)

// TokenWriter defines the interface for issuing approval tokens
type TokenWriter interface {
	Create(ctx context.Context, token *models.ApprovalToken) (*models.ApprovalToken, error)
}

// ApprovalLinkService issues the shareable approval links agencies send to
// their clients. Tokens are multi-use for seven days from issuance.
type ApprovalLinkService struct {
	tokens        TokenWriter
	tokenValidity time.Duration
	logger        *slog.Logger
}

// NewApprovalLinkService creates a new ApprovalLinkService
func NewApprovalLinkService(tokens TokenWriter, tokenValidity time.Duration, logger *slog.Logger) *ApprovalLinkService {
	return &ApprovalLinkService{
		tokens:        tokens,
		tokenValidity: tokenValidity,
		logger:        logger,
	}
}

// IssueToken creates a fresh approval token for a client and month.
// Issuing again for the same client and month yields a second independent
// token; old links keep working until they expire.
func (s *ApprovalLinkService) IssueToken(ctx context.Context, clientID, month string) (*models.ApprovalToken, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("%w: month must be YYYY-MM", models.ErrBadRequest)
	}

	value, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	token := &models.ApprovalToken{
		Token:      value,
		ClientID:   clientID,
		ValidMonth: month,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.tokenValidity),
	}

	created, err := s.tokens.Create(ctx, token)
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval token issued",
		slog.String("client_id", clientID),
		slog.String("month", month))

	return created, nil
}
