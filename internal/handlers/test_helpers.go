package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/services"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		Type:   "access",
		UserID: userID,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// MockGate implements GateInterface for testing. With no EvaluateFunc it
// behaves like an unblocked address: runs the check and maps the outcome.
type MockGate struct {
	EvaluateFunc func(ctx context.Context, address, credentialID string, kind models.CredentialKind, check services.CredentialCheck) *services.Decision
}

func (m *MockGate) Evaluate(ctx context.Context, address, credentialID string, kind models.CredentialKind, check services.CredentialCheck) *services.Decision {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, address, credentialID, kind, check)
	}

	outcome, _, err := check(ctx)
	if err == nil && outcome == models.AttemptOutcomeSuccess {
		return &services.Decision{Outcome: services.DecisionAllow, AttemptOutcome: outcome}
	}
	return &services.Decision{
		Outcome:           services.DecisionDenied,
		AttemptOutcome:    outcome,
		FailedAttempts:    1,
		AttemptsRemaining: 4,
	}
}

// MockCredentialValidator implements CredentialValidatorInterface for testing
type MockCredentialValidator struct {
	ValidateApprovalTokenFunc func(ctx context.Context, token string) (*services.TokenGrant, models.AttemptOutcome, error)
	ValidateSessionFunc       func(ctx context.Context, sessionToken string) (*services.SessionGrant, models.AttemptOutcome, error)
	VerifyCodeFunc            func(ctx context.Context, approverID, code string) (models.AttemptOutcome, error)
}

func (m *MockCredentialValidator) ValidateApprovalToken(ctx context.Context, token string) (*services.TokenGrant, models.AttemptOutcome, error) {
	if m.ValidateApprovalTokenFunc != nil {
		return m.ValidateApprovalTokenFunc(ctx, token)
	}
	return nil, models.AttemptOutcomeFailure, models.ErrInvalidCredential
}

func (m *MockCredentialValidator) ValidateSession(ctx context.Context, sessionToken string) (*services.SessionGrant, models.AttemptOutcome, error) {
	if m.ValidateSessionFunc != nil {
		return m.ValidateSessionFunc(ctx, sessionToken)
	}
	return nil, models.AttemptOutcomeFailure, models.ErrInvalidCredential
}

func (m *MockCredentialValidator) VerifyCode(ctx context.Context, approverID, code string) (models.AttemptOutcome, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, approverID, code)
	}
	return models.AttemptOutcomeFailure, models.ErrInvalidCredential
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	ResolveApproverFunc  func(ctx context.Context, clientSlug, email string) (*models.Approver, error)
	RequestCodeFunc      func(ctx context.Context, clientSlug, email string) error
	EstablishSessionFunc func(ctx context.Context, approver *models.Approver) (*models.ClientSession, error)
	LogoutFunc           func(ctx context.Context, sessionToken string) error
}

func (m *MockSessionService) ResolveApprover(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
	if m.ResolveApproverFunc != nil {
		return m.ResolveApproverFunc(ctx, clientSlug, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionService) RequestCode(ctx context.Context, clientSlug, email string) error {
	if m.RequestCodeFunc != nil {
		return m.RequestCodeFunc(ctx, clientSlug, email)
	}
	return nil
}

func (m *MockSessionService) EstablishSession(ctx context.Context, approver *models.Approver) (*models.ClientSession, error) {
	if m.EstablishSessionFunc != nil {
		return m.EstablishSessionFunc(ctx, approver)
	}
	return &models.ClientSession{
		SessionToken: "test-session-token",
		ClientID:     approver.ClientID,
		ApproverID:   approver.ID,
		IsPrimary:    approver.IsPrimary,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}, nil
}

func (m *MockSessionService) Logout(ctx context.Context, sessionToken string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionToken)
	}
	return nil
}

// MockEntitlementService implements EntitlementServiceInterface for testing
type MockEntitlementService struct {
	ResolveStatusFunc       func(ctx context.Context, userID string) (*models.SubscriptionStatus, error)
	CanPerformProActionFunc func(ctx context.Context, userID string) (*services.ProActionCheck, error)
	CheckLimitFunc          func(ctx context.Context, userID string, limitType models.LimitType, currentCount int) (*services.LimitCheck, error)
	HasFeatureAccessFunc    func(ctx context.Context, userID string, feature models.Feature) (bool, error)
}

func (m *MockEntitlementService) ResolveStatus(ctx context.Context, userID string) (*models.SubscriptionStatus, error) {
	if m.ResolveStatusFunc != nil {
		return m.ResolveStatusFunc(ctx, userID)
	}
	return nil, errors.New("not configured")
}

func (m *MockEntitlementService) CanPerformProAction(ctx context.Context, userID string) (*services.ProActionCheck, error) {
	if m.CanPerformProActionFunc != nil {
		return m.CanPerformProActionFunc(ctx, userID)
	}
	return &services.ProActionCheck{Reason: models.DenialReasonRequiresPaidPlan}, nil
}

func (m *MockEntitlementService) CheckLimit(ctx context.Context, userID string, limitType models.LimitType, currentCount int) (*services.LimitCheck, error) {
	if m.CheckLimitFunc != nil {
		return m.CheckLimitFunc(ctx, userID, limitType, currentCount)
	}
	return &services.LimitCheck{Allowed: true, Unlimited: true}, nil
}

func (m *MockEntitlementService) HasFeatureAccess(ctx context.Context, userID string, feature models.Feature) (bool, error) {
	if m.HasFeatureAccessFunc != nil {
		return m.HasFeatureAccessFunc(ctx, userID, feature)
	}
	return false, nil
}

// MockSecurityDashboard implements SecurityDashboardInterface for testing
type MockSecurityDashboard struct {
	ListAttemptsFunc         func(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error)
	CountAttemptFailuresFunc func(ctx context.Context, address string) (int, error)
	ListBlocksFunc           func(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error)
	UnblockFunc              func(ctx context.Context, address string) error
}

func (m *MockSecurityDashboard) ListAttempts(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error) {
	if m.ListAttemptsFunc != nil {
		return m.ListAttemptsFunc(ctx, address, limit, offset)
	}
	return nil, nil
}

func (m *MockSecurityDashboard) CountAttemptFailures(ctx context.Context, address string) (int, error) {
	if m.CountAttemptFailuresFunc != nil {
		return m.CountAttemptFailuresFunc(ctx, address)
	}
	return 0, nil
}

func (m *MockSecurityDashboard) ListBlocks(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error) {
	if m.ListBlocksFunc != nil {
		return m.ListBlocksFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *MockSecurityDashboard) Unblock(ctx context.Context, address string) error {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, address)
	}
	return nil
}

// MockAlertLister implements AlertListerInterface for testing
type MockAlertLister struct {
	ListAlertsFunc func(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
}

func (m *MockAlertLister) ListAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListAlertsFunc != nil {
		return m.ListAlertsFunc(ctx, limit, offset)
	}
	return nil, nil
}

// MockApprovalLinkIssuer implements ApprovalLinkIssuerInterface for testing
type MockApprovalLinkIssuer struct {
	IssueTokenFunc func(ctx context.Context, clientID, month string) (*models.ApprovalToken, error)
}

func (m *MockApprovalLinkIssuer) IssueToken(ctx context.Context, clientID, month string) (*models.ApprovalToken, error) {
	if m.IssueTokenFunc != nil {
		return m.IssueTokenFunc(ctx, clientID, month)
	}
	return &models.ApprovalToken{
		Token:      "issued-token",
		ClientID:   clientID,
		ValidMonth: month,
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(7 * 24 * time.Hour),
	}, nil
}
