package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
)

func newClientAuthHandler(gate GateInterface, credentials CredentialValidatorInterface, sessions SessionServiceInterface) *ClientAuthHandler {
	if gate == nil {
		gate = &MockGate{}
	}
	if credentials == nil {
		credentials = &MockCredentialValidator{}
	}
	if sessions == nil {
		sessions = &MockSessionService{}
	}
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	return NewClientAuthHandler(gate, credentials, sessions, timing, nil, auth.CookieConfig{})
}

func testApproverFixture() *models.Approver {
	return &models.Approver{
		ID:        "appr-1",
		ClientID:  "client-1",
		Name:      "Jo Harper",
		Email:     "jo@acme.test",
		IsPrimary: true,
	}
}

func TestRequestCodeAlwaysGeneric(t *testing.T) {
	t.Run("known approver", func(t *testing.T) {
		sessions := &MockSessionService{
			RequestCodeFunc: func(ctx context.Context, clientSlug, email string) error {
				return nil
			},
		}
		handler := newClientAuthHandler(nil, nil, sessions)

		req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/request-code",
			map[string]string{"client_slug": "acme-studio", "email": "jo@acme.test"})
		w := httptest.NewRecorder()
		handler.RequestCode(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown approver gets the same response", func(t *testing.T) {
		sessions := &MockSessionService{
			RequestCodeFunc: func(ctx context.Context, clientSlug, email string) error {
				return models.ErrNotFound
			},
		}
		handler := newClientAuthHandler(nil, nil, sessions)

		req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/request-code",
			map[string]string{"client_slug": "acme-studio", "email": "nobody@acme.test"})
		w := httptest.NewRecorder()
		handler.RequestCode(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequestCodeRejectsInvalidEmail(t *testing.T) {
	handler := newClientAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/request-code",
		map[string]string{"client_slug": "acme-studio", "email": "not-an-email"})
	w := httptest.NewRecorder()
	handler.RequestCode(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyCodeSuccessSetsSessionCookie(t *testing.T) {
	sessions := &MockSessionService{
		ResolveApproverFunc: func(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
			return testApproverFixture(), nil
		},
	}
	credentials := &MockCredentialValidator{
		VerifyCodeFunc: func(ctx context.Context, approverID, code string) (models.AttemptOutcome, error) {
			return models.AttemptOutcomeSuccess, nil
		},
	}
	handler := newClientAuthHandler(nil, credentials, sessions)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/verify-code",
		map[string]string{"client_slug": "acme-studio", "email": "jo@acme.test", "code": "482917"})
	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	var resp VerifyCodeResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)

	assert.True(t, resp.Success)
	assert.Equal(t, "test-session-token", resp.SessionToken)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "test-session-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestVerifyCodeWrongCode(t *testing.T) {
	sessions := &MockSessionService{
		ResolveApproverFunc: func(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
			return testApproverFixture(), nil
		},
	}
	handler := newClientAuthHandler(nil, nil, sessions)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/verify-code",
		map[string]string{"client_slug": "acme-studio", "email": "jo@acme.test", "code": "000000"})
	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	var resp invalidCredentialResponse
	AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.Equal(t, "INVALID_CODE", resp.Error)
}

func TestVerifyCodeUnknownEmailCountsAsFailure(t *testing.T) {
	var checkedOutcome models.AttemptOutcome
	gate := &MockGate{
		EvaluateFunc: func(ctx context.Context, address, credentialID string, kind models.CredentialKind, check services.CredentialCheck) *services.Decision {
			outcome, _, _ := check(ctx)
			checkedOutcome = outcome
			return &services.Decision{Outcome: services.DecisionDenied, AttemptOutcome: outcome, FailedAttempts: 1, AttemptsRemaining: 4}
		},
	}
	handler := newClientAuthHandler(gate, nil, &MockSessionService{})

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/verify-code",
		map[string]string{"client_slug": "acme-studio", "email": "nobody@acme.test", "code": "482917"})
	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.AttemptOutcomeFailure, checkedOutcome)
}

func TestVerifyCodeRejectsMalformedCode(t *testing.T) {
	handler := newClientAuthHandler(nil, nil, nil)

	for _, code := range []string{"12345", "1234567", "abc123", ""} {
		req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/verify-code",
			map[string]string{"client_slug": "acme-studio", "email": "jo@acme.test", "code": code})
		w := httptest.NewRecorder()
		handler.VerifyCode(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "code %q", code)
	}
}

func TestValidateSessionSuccessShape(t *testing.T) {
	logo := "https://cdn.example.com/acme.png"
	credentials := &MockCredentialValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionToken string) (*services.SessionGrant, models.AttemptOutcome, error) {
			return &services.SessionGrant{
				Session:  &models.ClientSession{SessionToken: sessionToken, ExpiresAt: time.Now().Add(time.Hour)},
				Client:   &models.Client{ID: "client-1", Name: "Acme Studio", Slug: "acme-studio", LogoURL: &logo},
				Approver: testApproverFixture(),
			}, models.AttemptOutcomeSuccess, nil
		},
	}
	handler := newClientAuthHandler(nil, credentials, nil)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/validate-session",
		map[string]string{"session_token": "sess-token-1"})
	w := httptest.NewRecorder()
	handler.ValidateSession(w, req)

	var resp ValidateSessionResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)

	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Client)
	assert.Equal(t, "client-1", resp.Client.ID)
	assert.Equal(t, "acme-studio", resp.Client.Slug)
	require.NotNil(t, resp.Client.LogoURL)
	assert.Equal(t, logo, *resp.Client.LogoURL)
	require.NotNil(t, resp.Approver)
	assert.Equal(t, "jo@acme.test", resp.Approver.Email)
	assert.True(t, resp.Approver.IsPrimary)
}

func TestValidateSessionFailureShape(t *testing.T) {
	handler := newClientAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/validate-session",
		map[string]string{"session_token": "expired-or-unknown"})
	w := httptest.NewRecorder()
	handler.ValidateSession(w, req)

	var resp ValidateSessionResponse
	AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)

	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Client)
	assert.Nil(t, resp.Approver)
}

func TestValidateSessionBlockedAddressStillSimpleShape(t *testing.T) {
	until := time.Now().Add(time.Hour)
	gate := &MockGate{
		EvaluateFunc: func(ctx context.Context, address, credentialID string, kind models.CredentialKind, check services.CredentialCheck) *services.Decision {
			return &services.Decision{Outcome: services.DecisionBlocked, Tier: models.TierTemporary, BlockedUntil: &until}
		},
	}
	handler := newClientAuthHandler(gate, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/validate-session",
		map[string]string{"session_token": "sess-token-1"})
	w := httptest.NewRecorder()
	handler.ValidateSession(w, req)

	var resp ValidateSessionResponse
	AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)
}

func TestValidateSessionFallsBackToCookie(t *testing.T) {
	var seenToken string
	credentials := &MockCredentialValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionToken string) (*services.SessionGrant, models.AttemptOutcome, error) {
			seenToken = sessionToken
			return &services.SessionGrant{
				Session:  &models.ClientSession{SessionToken: sessionToken, ExpiresAt: time.Now().Add(time.Hour)},
				Client:   &models.Client{ID: "client-1"},
				Approver: testApproverFixture(),
			}, models.AttemptOutcomeSuccess, nil
		},
	}
	handler := newClientAuthHandler(nil, credentials, nil)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/validate-session", map[string]string{})
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-session-token"})
	w := httptest.NewRecorder()
	handler.ValidateSession(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cookie-session-token", seenToken)
}

func TestLogoutClearsCookie(t *testing.T) {
	loggedOut := ""
	sessions := &MockSessionService{
		LogoutFunc: func(ctx context.Context, sessionToken string) error {
			loggedOut = sessionToken
			return nil
		},
	}
	handler := newClientAuthHandler(nil, nil, sessions)

	req := NewTestRequest(t, http.MethodPost, "/v1/client-auth/logout", map[string]string{})
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "sess-token-1"})
	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-token-1", loggedOut)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
