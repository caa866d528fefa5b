package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/pkg/auth"
	pkglogger "github.com/clearproof/gatekeeper/pkg/logger"
)

// ApproverDirectory defines the interface for approver lookups
type ApproverDirectory interface {
	GetApproverByEmail(ctx context.Context, clientSlug, email string) (*models.Approver, error)
}

// CodeWriter defines the interface for issuing one-time codes
type CodeWriter interface {
	Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error)
}

// SessionWriter defines the interface for session persistence
type SessionWriter interface {
	Create(ctx context.Context, session *models.ClientSession) (*models.ClientSession, error)
	Expire(ctx context.Context, sessionToken string) error
}

// SessionService owns the approver login lifecycle: emailing one-time
// codes, establishing sessions after a successful redemption, and logout.
// Code verification itself lives in CredentialService so it runs through
// the gate like every other credential.
type SessionService struct {
	approvers       ApproverDirectory
	codes           CodeWriter
	sessions        SessionWriter
	email           EmailService
	codeValidity    time.Duration
	sessionValidity time.Duration
	logger          *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(approvers ApproverDirectory, codes CodeWriter, sessions SessionWriter, email EmailService, codeValidity, sessionValidity time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		approvers:       approvers,
		codes:           codes,
		sessions:        sessions,
		email:           email,
		codeValidity:    codeValidity,
		sessionValidity: sessionValidity,
		logger:          logger,
	}
}

// ResolveApprover finds the approver for a client slug and email.
func (s *SessionService) ResolveApprover(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
	return s.approvers.GetApproverByEmail(ctx, clientSlug, email)
}

// RequestCode issues a fresh one-time code to an approver and emails it.
// Only the bcrypt hash is stored; the plaintext exists for the duration of
// this call. Issuing a new code does not invalidate earlier unexpired ones;
// they lapse on their own short expiry.
func (s *SessionService) RequestCode(ctx context.Context, clientSlug, email string) error {
	approver, err := s.approvers.GetApproverByEmail(ctx, clientSlug, email)
	if err != nil {
		return err
	}

	plaintext, err := auth.GenerateNumericCode()
	if err != nil {
		return err
	}

	hash, err := auth.HashCode(plaintext)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.codeValidity)
	code := &models.OneTimeCode{
		ApproverID: approver.ID,
		CodeHash:   hash,
		ExpiresAt:  expiresAt,
	}

	if _, err := s.codes.Create(ctx, code); err != nil {
		return err
	}

	if err := s.email.SendOneTimeCode(ctx, approver.Email, approver.Name, plaintext, expiresAt); err != nil {
		return err
	}

	s.logger.Info("one-time code issued",
		slog.String("approver_id", approver.ID),
		slog.String("email", pkglogger.SanitizedEmail(approver.Email)),
		slog.String("client_slug", clientSlug))

	return nil
}

// EstablishSession creates a session for an approver whose code just
// passed the gate.
func (s *SessionService) EstablishSession(ctx context.Context, approver *models.Approver) (*models.ClientSession, error) {
	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	session := &models.ClientSession{
		SessionToken: token,
		ClientID:     approver.ClientID,
		ApproverID:   approver.ID,
		IsPrimary:    approver.IsPrimary,
		ExpiresAt:    time.Now().Add(s.sessionValidity),
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	s.logger.Info("client session established",
		slog.String("approver_id", approver.ID),
		slog.String("client_id", approver.ClientID))

	return created, nil
}

// Logout expires the session immediately. Unknown tokens are a no-op so
// logout never leaks whether a session existed.
func (s *SessionService) Logout(ctx context.Context, sessionToken string) error {
	return s.sessions.Expire(ctx, sessionToken)
}
