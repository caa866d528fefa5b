package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/pkg/auth"
)

func testApprover() *models.Approver {
	return &models.Approver{
		ID:        "appr-1",
		ClientID:  "client-1",
		Name:      "Jo Harper",
		Email:     "jo@acme.test",
		IsPrimary: true,
	}
}

func newTestSessionService(approvers *MockApproverDirectory, codes *MockCodeWriter, sessions *MockSessionWriter, email *MockEmailService) *SessionService {
	if approvers == nil {
		approvers = &MockApproverDirectory{}
	}
	if codes == nil {
		codes = &MockCodeWriter{}
	}
	if sessions == nil {
		sessions = &MockSessionWriter{}
	}
	if email == nil {
		email = &MockEmailService{}
	}
	return NewSessionService(approvers, codes, sessions, email, 10*time.Minute, 24*time.Hour, testLogger())
}

func TestRequestCodeStoresHashAndEmailsPlaintext(t *testing.T) {
	approvers := &MockApproverDirectory{
		GetApproverByEmailFunc: func(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
			return testApprover(), nil
		},
	}
	codes := &MockCodeWriter{}
	email := &MockEmailService{}
	svc := newTestSessionService(approvers, codes, nil, email)

	err := svc.RequestCode(context.Background(), "acme-studio", "jo@acme.test")
	require.NoError(t, err)

	require.Len(t, codes.Created, 1)
	require.Len(t, email.CodesSent, 1)

	stored := codes.Created[0]
	assert.Equal(t, "appr-1", stored.ApproverID)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored.ExpiresAt, 5*time.Second)

	// Only the hash is persisted, and it must match what was emailed.
	plaintext := email.CodesSent[0]
	assert.NotEqual(t, plaintext, stored.CodeHash)
	assert.NoError(t, auth.CompareCode(stored.CodeHash, plaintext))
}

func TestRequestCodeUnknownApprover(t *testing.T) {
	svc := newTestSessionService(nil, nil, nil, nil)

	err := svc.RequestCode(context.Background(), "acme-studio", "nobody@acme.test")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequestCodeEmailFailurePropagates(t *testing.T) {
	approvers := &MockApproverDirectory{
		GetApproverByEmailFunc: func(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
			return testApprover(), nil
		},
	}
	email := &MockEmailService{
		SendOneTimeCodeFunc: func(ctx context.Context, to, name, code string, expiresAt time.Time) error {
			return errors.New("ses unavailable")
		},
	}
	svc := newTestSessionService(approvers, nil, nil, email)

	err := svc.RequestCode(context.Background(), "acme-studio", "jo@acme.test")
	assert.Error(t, err)
}

func TestEstablishSessionCarriesApproverIdentity(t *testing.T) {
	sessions := &MockSessionWriter{}
	svc := newTestSessionService(nil, nil, sessions, nil)

	session, err := svc.EstablishSession(context.Background(), testApprover())
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionToken)
	assert.Equal(t, "client-1", session.ClientID)
	assert.Equal(t, "appr-1", session.ApproverID)
	assert.True(t, session.IsPrimary)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), session.ExpiresAt, 5*time.Second)

	require.Len(t, sessions.Created, 1)
}

func TestEstablishSessionTokensAreUnique(t *testing.T) {
	svc := newTestSessionService(nil, nil, nil, nil)

	first, err := svc.EstablishSession(context.Background(), testApprover())
	require.NoError(t, err)
	second, err := svc.EstablishSession(context.Background(), testApprover())
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionToken, second.SessionToken)
}

func TestLogoutExpiresSession(t *testing.T) {
	sessions := &MockSessionWriter{}
	svc := newTestSessionService(nil, nil, sessions, nil)

	require.NoError(t, svc.Logout(context.Background(), "sess-token-1"))
	assert.Equal(t, []string{"sess-token-1"}, sessions.Expired)
}

func TestLogoutUnknownTokenIsNoOp(t *testing.T) {
	sessions := &MockSessionWriter{
		ExpireFunc: func(ctx context.Context, sessionToken string) error {
			return nil
		},
	}
	svc := newTestSessionService(nil, nil, sessions, nil)

	assert.NoError(t, svc.Logout(context.Background(), "never-issued"))
}
