package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockBlockStore implements BlockStore for testing
type MockBlockStore struct {
	GetByAddressFunc          func(ctx context.Context, address string) (*models.BlockRecord, error)
	RecordFailureFunc         func(ctx context.Context, address string) (*models.BlockRecord, error)
	EscalateFunc              func(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error)
	ResetExpiredTemporaryFunc func(ctx context.Context, address string) (bool, error)
	ListFunc                  func(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error)
	DeleteFunc                func(ctx context.Context, address string) error
}

func (m *MockBlockStore) GetByAddress(ctx context.Context, address string) (*models.BlockRecord, error) {
	if m.GetByAddressFunc != nil {
		return m.GetByAddressFunc(ctx, address)
	}
	return nil, nil
}

func (m *MockBlockStore) RecordFailure(ctx context.Context, address string) (*models.BlockRecord, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, address)
	}
	return &models.BlockRecord{Address: address, FailureCount: 1, Tier: models.TierNone}, nil
}

func (m *MockBlockStore) Escalate(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error) {
	if m.EscalateFunc != nil {
		return m.EscalateFunc(ctx, address, tier, blockedUntil)
	}
	return true, nil
}

func (m *MockBlockStore) ResetExpiredTemporary(ctx context.Context, address string) (bool, error) {
	if m.ResetExpiredTemporaryFunc != nil {
		return m.ResetExpiredTemporaryFunc(ctx, address)
	}
	return true, nil
}

func (m *MockBlockStore) List(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *MockBlockStore) Delete(ctx context.Context, address string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, address)
	}
	return nil
}

// MockAttemptStore implements AttemptStore for testing
type MockAttemptStore struct {
	RecordFunc                 func(ctx context.Context, attempt *models.AccessAttempt) error
	ListByAddressFunc          func(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error)
	ListRecentFunc             func(ctx context.Context, limit, offset int) ([]*models.AccessAttempt, error)
	CountFailuresByAddressFunc func(ctx context.Context, address string) (int, error)

	Recorded []*models.AccessAttempt
}

func (m *MockAttemptStore) Record(ctx context.Context, attempt *models.AccessAttempt) error {
	m.Recorded = append(m.Recorded, attempt)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

func (m *MockAttemptStore) ListByAddress(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error) {
	if m.ListByAddressFunc != nil {
		return m.ListByAddressFunc(ctx, address, limit, offset)
	}
	return nil, nil
}

func (m *MockAttemptStore) ListRecent(ctx context.Context, limit, offset int) ([]*models.AccessAttempt, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *MockAttemptStore) CountFailuresByAddress(ctx context.Context, address string) (int, error) {
	if m.CountFailuresByAddressFunc != nil {
		return m.CountFailuresByAddressFunc(ctx, address)
	}
	return 0, nil
}

// MockThrottle implements BurstThrottle for testing
type MockThrottle struct {
	AllowFunc func(ctx context.Context, address string) (bool, time.Duration)
}

func (m *MockThrottle) Allow(ctx context.Context, address string) (bool, time.Duration) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, address)
	}
	return true, 0
}

// MockAlertDispatcher implements AlertDispatcher for testing
type MockAlertDispatcher struct {
	Dispatched []models.BlockTier
}

func (m *MockAlertDispatcher) DispatchTierTransition(ctx context.Context, address string, tier models.BlockTier, failureCount int) {
	m.Dispatched = append(m.Dispatched, tier)
}

// MockAlertRepository implements AlertRepository for testing
type MockAlertRepository struct {
	CreateOnceFunc func(ctx context.Context, alert *models.SecurityAlert) (bool, error)
	ListFunc       func(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)

	Created []*models.SecurityAlert
}

func (m *MockAlertRepository) CreateOnce(ctx context.Context, alert *models.SecurityAlert) (bool, error) {
	m.Created = append(m.Created, alert)
	if m.CreateOnceFunc != nil {
		return m.CreateOnceFunc(ctx, alert)
	}
	return true, nil
}

func (m *MockAlertRepository) List(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return nil, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendSecurityAlertFunc func(ctx context.Context, alert *models.SecurityAlert) error
	SendOneTimeCodeFunc   func(ctx context.Context, email, name, code string, expiresAt time.Time) error

	AlertsSent []*models.SecurityAlert
	CodesSent  []string
}

func (m *MockEmailService) SendSecurityAlert(ctx context.Context, alert *models.SecurityAlert) error {
	m.AlertsSent = append(m.AlertsSent, alert)
	if m.SendSecurityAlertFunc != nil {
		return m.SendSecurityAlertFunc(ctx, alert)
	}
	return nil
}

func (m *MockEmailService) SendOneTimeCode(ctx context.Context, email, name, code string, expiresAt time.Time) error {
	m.CodesSent = append(m.CodesSent, code)
	if m.SendOneTimeCodeFunc != nil {
		return m.SendOneTimeCodeFunc(ctx, email, name, code, expiresAt)
	}
	return nil
}

// MockTokenReader implements TokenReader for testing
type MockTokenReader struct {
	GetByTokenFunc func(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error)
}

func (m *MockTokenReader) GetByToken(ctx context.Context, token string) (*models.ApprovalToken, *models.Client, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, nil, models.ErrNotFound
}

// MockSessionReader implements SessionReader for testing
type MockSessionReader struct {
	GetByTokenFunc func(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error)
}

func (m *MockSessionReader) GetByToken(ctx context.Context, sessionToken string) (*models.ClientSession, *models.Client, *models.Approver, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, sessionToken)
	}
	return nil, nil, nil, models.ErrNotFound
}

// MockCodeReader implements CodeReader for testing
type MockCodeReader struct {
	GetActiveByApproverFunc func(ctx context.Context, approverID string) (*models.OneTimeCode, error)
	MarkConsumedFunc        func(ctx context.Context, codeID string) (bool, error)
}

func (m *MockCodeReader) GetActiveByApprover(ctx context.Context, approverID string) (*models.OneTimeCode, error) {
	if m.GetActiveByApproverFunc != nil {
		return m.GetActiveByApproverFunc(ctx, approverID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCodeReader) MarkConsumed(ctx context.Context, codeID string) (bool, error) {
	if m.MarkConsumedFunc != nil {
		return m.MarkConsumedFunc(ctx, codeID)
	}
	return true, nil
}

// MockApproverDirectory implements ApproverDirectory for testing
type MockApproverDirectory struct {
	GetApproverByEmailFunc func(ctx context.Context, clientSlug, email string) (*models.Approver, error)
}

func (m *MockApproverDirectory) GetApproverByEmail(ctx context.Context, clientSlug, email string) (*models.Approver, error) {
	if m.GetApproverByEmailFunc != nil {
		return m.GetApproverByEmailFunc(ctx, clientSlug, email)
	}
	return nil, models.ErrNotFound
}

// MockCodeWriter implements CodeWriter for testing
type MockCodeWriter struct {
	CreateFunc func(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error)

	Created []*models.OneTimeCode
}

func (m *MockCodeWriter) Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	m.Created = append(m.Created, code)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code)
	}
	return code, nil
}

// MockSessionWriter implements SessionWriter for testing
type MockSessionWriter struct {
	CreateFunc func(ctx context.Context, session *models.ClientSession) (*models.ClientSession, error)
	ExpireFunc func(ctx context.Context, sessionToken string) error

	Created []*models.ClientSession
	Expired []string
}

func (m *MockSessionWriter) Create(ctx context.Context, session *models.ClientSession) (*models.ClientSession, error) {
	m.Created = append(m.Created, session)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return session, nil
}

func (m *MockSessionWriter) Expire(ctx context.Context, sessionToken string) error {
	m.Expired = append(m.Expired, sessionToken)
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, sessionToken)
	}
	return nil
}

// MockSubscriptionReader implements SubscriptionReader for testing
type MockSubscriptionReader struct {
	GetProfileByUserIDFunc    func(ctx context.Context, userID string) (*models.SubscriptionProfile, error)
	GetEntitlementsByPlanFunc func(ctx context.Context, plan models.Plan) (*models.EntitlementSet, error)
}

func (m *MockSubscriptionReader) GetProfileByUserID(ctx context.Context, userID string) (*models.SubscriptionProfile, error) {
	if m.GetProfileByUserIDFunc != nil {
		return m.GetProfileByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSubscriptionReader) GetEntitlementsByPlan(ctx context.Context, plan models.Plan) (*models.EntitlementSet, error) {
	if m.GetEntitlementsByPlanFunc != nil {
		return m.GetEntitlementsByPlanFunc(ctx, plan)
	}
	return &models.EntitlementSet{Plan: plan}, nil
}

// MockTokenWriter implements TokenWriter for testing
type MockTokenWriter struct {
	CreateFunc func(ctx context.Context, token *models.ApprovalToken) (*models.ApprovalToken, error)

	Created []*models.ApprovalToken
}

func (m *MockTokenWriter) Create(ctx context.Context, token *models.ApprovalToken) (*models.ApprovalToken, error) {
	m.Created = append(m.Created, token)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return token, nil
}
