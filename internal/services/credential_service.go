package services

import (
	"context"
	"errors"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/pkg/auth"
)

// TokenReader defines the interface for approval token lookups
type TokenReader interface {
	GetByToken(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error)
}

// SessionReader defines the interface for client session lookups
type SessionReader interface {
	GetByToken(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error)
}

// CodeReader defines the interface for one-time code lookups
type CodeReader interface {
	GetActiveByApprover(ctx context.Context, approverID string) (*models.OneTimeCode, error)
	MarkConsumed(ctx context.Context, codeID string) (bool, error)
}

// TokenGrant is what a valid approval token resolves to.
type TokenGrant struct {
	Token  *models.ApprovalToken
	Client *models.Client
}

// SessionGrant is what a valid session token resolves to.
type SessionGrant struct {
	Session  *models.ClientSession
	Client   *models.Client
	Approver *models.Approver
}

// CredentialService validates the three credential kinds the gate accepts.
// Every check re-reads the store; validity is never cached between calls.
// Callers get the attempt outcome alongside the error so the audit trail
// can distinguish an expired credential from an unknown one.
type CredentialService struct {
	tokens   TokenReader
	sessions SessionReader
	codes    CodeReader
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(tokens TokenReader, sessions SessionReader, codes CodeReader) *CredentialService {
	return &CredentialService{
		tokens:   tokens,
		sessions: sessions,
		codes:    codes,
	}
}

// ValidateApprovalToken resolves an approval token to its client. Unknown
// and expired tokens both come back as ErrInvalidCredential; the outcome
// tells them apart.
func (s *CredentialService) ValidateApprovalToken(ctx context.Context, token string) (*TokenGrant, models.AttemptOutcome, error) {
	tok, client, err := s.tokens.GetByToken(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.AttemptOutcomeFailure, models.ErrInvalidCredential
	}
	if err != nil {
		return nil, "", err
	}

	if !tok.Valid(time.Now()) {
		return nil, models.AttemptOutcomeExpired, models.ErrInvalidCredential
	}

	return &TokenGrant{Token: tok, Client: client}, models.AttemptOutcomeSuccess, nil
}

// ValidateSession resolves a session token to its client and approver.
func (s *CredentialService) ValidateSession(ctx context.Context, sessionToken string) (*SessionGrant, models.AttemptOutcome, error) {
	session, client, approver, err := s.sessions.GetByToken(ctx, sessionToken)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.AttemptOutcomeFailure, models.ErrInvalidCredential
	}
	if err != nil {
		return nil, "", err
	}

	if !session.Valid(time.Now()) {
		return nil, models.AttemptOutcomeExpired, models.ErrInvalidCredential
	}

	return &SessionGrant{Session: session, Client: client, Approver: approver}, models.AttemptOutcomeSuccess, nil
}

// VerifyCode checks a submitted one-time code against the approver's active
// code and consumes it. A code that loses a concurrent redemption race is
// treated the same as a wrong code.
func (s *CredentialService) VerifyCode(ctx context.Context, approverID, code string) (models.AttemptOutcome, error) {
	active, err := s.codes.GetActiveByApprover(ctx, approverID)
	if errors.Is(err, models.ErrNotFound) {
		return models.AttemptOutcomeExpired, models.ErrInvalidCredential
	}
	if err != nil {
		return "", err
	}

	if auth.CompareCode(active.CodeHash, code) != nil {
		return models.AttemptOutcomeFailure, models.ErrInvalidCredential
	}

	consumed, err := s.codes.MarkConsumed(ctx, active.ID)
	if err != nil {
		return "", err
	}
	if !consumed {
		return models.AttemptOutcomeFailure, models.ErrInvalidCredential
	}

	return models.AttemptOutcomeSuccess, nil
}
