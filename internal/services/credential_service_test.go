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

func tokenFixture(expiresAt time.Time) (*models.ApprovalToken, *models.Client) {
	return &models.ApprovalToken{
			ID:         "tok-id-1",
			Token:      "tok-value-1",
			ClientID:   "client-1",
			ValidMonth: "2026-08",
			IssuedAt:   expiresAt.Add(-7 * 24 * time.Hour),
			ExpiresAt:  expiresAt,
		}, &models.Client{
			ID:   "client-1",
			Name: "Acme Studio",
			Slug: "acme-studio",
		}
}

func TestValidateApprovalTokenSuccess(t *testing.T) {
	tok, client := tokenFixture(time.Now().Add(48 * time.Hour))
	svc := NewCredentialService(&MockTokenReader{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
			return tok, client, nil
		},
	}, &MockSessionReader{}, &MockCodeReader{})

	grant, outcome, err := svc.ValidateApprovalToken(context.Background(), "tok-value-1")
	require.NoError(t, err)

	assert.Equal(t, models.AttemptOutcomeSuccess, outcome)
	require.NotNil(t, grant)
	assert.Equal(t, "client-1", grant.Client.ID)
	assert.Equal(t, "2026-08", grant.Token.ValidMonth)
}

func TestValidateApprovalTokenUnknown(t *testing.T) {
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{})

	grant, outcome, err := svc.ValidateApprovalToken(context.Background(), "no-such-token")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeFailure, outcome)
	assert.Nil(t, grant)
}

func TestValidateApprovalTokenExpiryBoundary(t *testing.T) {
	// A token is usable strictly before expires_at, so one second either
	// side of now flips the result.
	t.Run("expires one second from now", func(t *testing.T) {
		tok, client := tokenFixture(time.Now().Add(time.Second))
		svc := NewCredentialService(&MockTokenReader{
			GetByTokenFunc: func(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
				return tok, client, nil
			},
		}, &MockSessionReader{}, &MockCodeReader{})

		grant, outcome, err := svc.ValidateApprovalToken(context.Background(), tok.Token)
		require.NoError(t, err)
		assert.Equal(t, models.AttemptOutcomeSuccess, outcome)
		assert.NotNil(t, grant)
	})

	t.Run("expired one second ago", func(t *testing.T) {
		tok, client := tokenFixture(time.Now().Add(-time.Second))
		svc := NewCredentialService(&MockTokenReader{
			GetByTokenFunc: func(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
				return tok, client, nil
			},
		}, &MockSessionReader{}, &MockCodeReader{})

		grant, outcome, err := svc.ValidateApprovalToken(context.Background(), tok.Token)
		assert.ErrorIs(t, err, models.ErrInvalidCredential)
		assert.Equal(t, models.AttemptOutcomeExpired, outcome)
		assert.Nil(t, grant)
	})
}

func TestValidateApprovalTokenStoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	svc := NewCredentialService(&MockTokenReader{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
			return nil, nil, storeErr
		},
	}, &MockSessionReader{}, &MockCodeReader{})

	_, _, err := svc.ValidateApprovalToken(context.Background(), "tok-value-1")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, models.ErrInvalidCredential)
}

func TestValidateSessionSuccess(t *testing.T) {
	session := &models.ClientSession{
		ID:           "sess-1",
		SessionToken: "sess-token-1",
		ClientID:     "client-1",
		ApproverID:   "appr-1",
		IsPrimary:    true,
		ExpiresAt:    time.Now().Add(12 * time.Hour),
	}
	client := &models.Client{ID: "client-1", Name: "Acme Studio", Slug: "acme-studio"}
	approver := &models.Approver{ID: "appr-1", ClientID: "client-1", Name: "Jo Harper", Email: "jo@acme.test", IsPrimary: true}

	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{
		GetByTokenFunc: func(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error) {
			return session, client, approver, nil
		},
	}, &MockCodeReader{})

	grant, outcome, err := svc.ValidateSession(context.Background(), "sess-token-1")
	require.NoError(t, err)

	assert.Equal(t, models.AttemptOutcomeSuccess, outcome)
	assert.Equal(t, "jo@acme.test", grant.Approver.Email)
	assert.Equal(t, "acme-studio", grant.Client.Slug)
}

func TestValidateSessionExpired(t *testing.T) {
	session := &models.ClientSession{
		SessionToken: "sess-token-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{
		GetByTokenFunc: func(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error) {
			return session, &models.Client{}, &models.Approver{}, nil
		},
	}, &MockCodeReader{})

	grant, outcome, err := svc.ValidateSession(context.Background(), "sess-token-1")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeExpired, outcome)
	assert.Nil(t, grant)
}

func TestValidateSessionUnknown(t *testing.T) {
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{})

	_, outcome, err := svc.ValidateSession(context.Background(), "no-such-session")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeFailure, outcome)
}

func TestVerifyCodeSuccessConsumesCode(t *testing.T) {
	hash, err := auth.HashCode("482917")
	require.NoError(t, err)

	consumed := ""
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{
		GetActiveByApproverFunc: func(ctx context.Context, approverID string) (*models.OneTimeCode, error) {
			return &models.OneTimeCode{ID: "code-1", ApproverID: approverID, CodeHash: hash, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
		},
		MarkConsumedFunc: func(ctx context.Context, codeID string) (bool, error) {
			consumed = codeID
			return true, nil
		},
	})

	outcome, err := svc.VerifyCode(context.Background(), "appr-1", "482917")
	require.NoError(t, err)

	assert.Equal(t, models.AttemptOutcomeSuccess, outcome)
	assert.Equal(t, "code-1", consumed)
}

func TestVerifyCodeWrongCode(t *testing.T) {
	hash, err := auth.HashCode("482917")
	require.NoError(t, err)

	markCalled := false
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{
		GetActiveByApproverFunc: func(ctx context.Context, approverID string) (*models.OneTimeCode, error) {
			return &models.OneTimeCode{ID: "code-1", CodeHash: hash, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
		},
		MarkConsumedFunc: func(ctx context.Context, codeID string) (bool, error) {
			markCalled = true
			return true, nil
		},
	})

	outcome, err := svc.VerifyCode(context.Background(), "appr-1", "000000")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeFailure, outcome)
	// A wrong guess must not burn the real code.
	assert.False(t, markCalled)
}

func TestVerifyCodeNoActiveCode(t *testing.T) {
	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{})

	outcome, err := svc.VerifyCode(context.Background(), "appr-1", "482917")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeExpired, outcome)
}

func TestVerifyCodeLostConsumptionRace(t *testing.T) {
	hash, err := auth.HashCode("482917")
	require.NoError(t, err)

	svc := NewCredentialService(&MockTokenReader{}, &MockSessionReader{}, &MockCodeReader{
		GetActiveByApproverFunc: func(ctx context.Context, approverID string) (*models.OneTimeCode, error) {
			return &models.OneTimeCode{ID: "code-1", CodeHash: hash, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
		},
		MarkConsumedFunc: func(ctx context.Context, codeID string) (bool, error) {
			return false, nil
		},
	})

	outcome, err := svc.VerifyCode(context.Background(), "appr-1", "482917")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.Equal(t, models.AttemptOutcomeFailure, outcome)
}
