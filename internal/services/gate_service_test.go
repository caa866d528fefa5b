package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/gatekeeper/internal/models"
)

const testAddr = "203.0.113.7"

func newTestGate(blocks *MockBlockStore, attempts *MockAttemptStore, throttle *MockThrottle, alerts *MockAlertDispatcher) *GateService {
	if blocks == nil {
		blocks = &MockBlockStore{}
	}
	if attempts == nil {
		attempts = &MockAttemptStore{}
	}
	if throttle == nil {
		throttle = &MockThrottle{}
	}
	if alerts == nil {
		alerts = &MockAlertDispatcher{}
	}
	return NewGateService(blocks, attempts, throttle, alerts, NewBlockPolicy(time.Hour), 3*time.Second, testLogger())
}

func passingCheck(targetID string) CredentialCheck {
	return func(ctx context.Context) (models.AttemptOutcome, *string, error) {
		return models.AttemptOutcomeSuccess, &targetID, nil
	}
}

func failingCheck(outcome models.AttemptOutcome) CredentialCheck {
	return func(ctx context.Context) (models.AttemptOutcome, *string, error) {
		return outcome, nil, models.ErrInvalidCredential
	}
}

func TestEvaluateAllowsValidCredential(t *testing.T) {
	attempts := &MockAttemptStore{}
	gate := newTestGate(nil, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionAllow, decision.Outcome)
	assert.Equal(t, 0, decision.FailedAttempts)

	require.Len(t, attempts.Recorded, 1)
	assert.Equal(t, models.AttemptOutcomeSuccess, attempts.Recorded[0].Outcome)
	assert.Equal(t, models.CredentialKindToken, attempts.Recorded[0].CredentialKind)
	require.NotNil(t, attempts.Recorded[0].TargetEntityID)
	assert.Equal(t, "client-1", *attempts.Recorded[0].TargetEntityID)
}

func TestEvaluateDeniesInvalidCredentialBelowWarnThreshold(t *testing.T) {
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 1, Tier: models.TierNone}, nil
		},
	}
	attempts := &MockAttemptStore{}
	gate := newTestGate(blocks, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-bad", models.CredentialKindToken, failingCheck(models.AttemptOutcomeFailure))

	assert.Equal(t, DecisionDenied, decision.Outcome)
	assert.Equal(t, 1, decision.FailedAttempts)
	assert.Equal(t, 4, decision.AttemptsRemaining)

	require.Len(t, attempts.Recorded, 1)
	assert.Equal(t, models.AttemptOutcomeFailure, attempts.Recorded[0].Outcome)
}

func TestEvaluateThirdFailureRaisesWarnedAlert(t *testing.T) {
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 3, Tier: models.TierNone}, nil
		},
	}
	alerts := &MockAlertDispatcher{}
	gate := newTestGate(blocks, nil, nil, alerts)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-bad", models.CredentialKindToken, failingCheck(models.AttemptOutcomeFailure))

	// Warned does not yet block the attempt.
	assert.Equal(t, DecisionDenied, decision.Outcome)
	assert.Equal(t, 2, decision.AttemptsRemaining)
	require.Len(t, alerts.Dispatched, 1)
	assert.Equal(t, models.TierWarned, alerts.Dispatched[0])
}

func TestEvaluateFifthFailureBecomesTemporaryBlock(t *testing.T) {
	var escalatedTo models.BlockTier
	var escalatedUntil *time.Time
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 5, Tier: models.TierWarned}, nil
		},
		EscalateFunc: func(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error) {
			escalatedTo = tier
			escalatedUntil = blockedUntil
			return true, nil
		},
	}
	alerts := &MockAlertDispatcher{}
	gate := newTestGate(blocks, nil, nil, alerts)

	before := time.Now()
	decision := gate.Evaluate(context.Background(), testAddr, "tok-bad", models.CredentialKindToken, failingCheck(models.AttemptOutcomeFailure))

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierTemporary, decision.Tier)
	assert.Equal(t, 5, decision.FailedAttempts)

	assert.Equal(t, models.TierTemporary, escalatedTo)
	require.NotNil(t, escalatedUntil)
	assert.WithinDuration(t, before.Add(time.Hour), *escalatedUntil, 5*time.Second)

	require.Len(t, alerts.Dispatched, 1)
	assert.Equal(t, models.TierTemporary, alerts.Dispatched[0])
}

func TestEvaluateTenthFailureBecomesPermanentBlock(t *testing.T) {
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 10, Tier: models.TierTemporary}, nil
		},
	}
	alerts := &MockAlertDispatcher{}
	gate := newTestGate(blocks, nil, nil, alerts)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-bad", models.CredentialKindToken, failingCheck(models.AttemptOutcomeFailure))

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierPermanent, decision.Tier)
	assert.Nil(t, decision.BlockedUntil)
	require.Len(t, alerts.Dispatched, 1)
	assert.Equal(t, models.TierPermanent, alerts.Dispatched[0])
}

func TestEvaluatePermanentBlockShortCircuits(t *testing.T) {
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 12, Tier: models.TierPermanent}, nil
		},
	}
	attempts := &MockAttemptStore{}
	checkCalled := false
	gate := newTestGate(blocks, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken,
		func(ctx context.Context) (models.AttemptOutcome, *string, error) {
			checkCalled = true
			return models.AttemptOutcomeSuccess, nil, nil
		})

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierPermanent, decision.Tier)
	assert.Nil(t, decision.BlockedUntil)
	assert.Equal(t, 12, decision.FailedAttempts)

	// Permanent is terminal: no validation, no new attempt row.
	assert.False(t, checkCalled)
	assert.Empty(t, attempts.Recorded)
}

func TestEvaluateActiveTemporaryBlockShortCircuits(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 6, Tier: models.TierTemporary, BlockedUntil: &until}, nil
		},
	}
	attempts := &MockAttemptStore{}
	gate := newTestGate(blocks, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierTemporary, decision.Tier)
	require.NotNil(t, decision.BlockedUntil)
	assert.Equal(t, until, *decision.BlockedUntil)
	assert.Empty(t, attempts.Recorded)
}

func TestEvaluateExpiredTemporaryBlockLapsesAndProceeds(t *testing.T) {
	until := time.Now().Add(-time.Minute)
	resetCalled := false
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 5, Tier: models.TierTemporary, BlockedUntil: &until}, nil
		},
		ResetExpiredTemporaryFunc: func(ctx context.Context, address string) (bool, error) {
			resetCalled = true
			return true, nil
		},
	}
	gate := newTestGate(blocks, nil, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionAllow, decision.Outcome)
	assert.True(t, resetCalled)
	// The cumulative count survives the lapse.
	assert.Equal(t, 5, decision.FailedAttempts)
}

func TestEvaluateSuccessDoesNotResetFailureCount(t *testing.T) {
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 4, Tier: models.TierWarned}, nil
		},
	}
	gate := newTestGate(blocks, nil, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionAllow, decision.Outcome)
	assert.Equal(t, 4, decision.FailedAttempts)
}

func TestEvaluateBurstThrottleReturnsRetryAfter(t *testing.T) {
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 2, Tier: models.TierNone}, nil
		},
	}
	throttle := &MockThrottle{
		AllowFunc: func(ctx context.Context, address string) (bool, time.Duration) {
			return false, 42 * time.Second
		},
	}
	attempts := &MockAttemptStore{}
	recordFailureCalled := false
	blocks.RecordFailureFunc = func(ctx context.Context, address string) (*models.BlockRecord, error) {
		recordFailureCalled = true
		return nil, nil
	}
	gate := newTestGate(blocks, attempts, throttle, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionRetryAfter, decision.Outcome)
	assert.Equal(t, 42*time.Second, decision.RetryAfter)
	assert.Equal(t, 3, decision.AttemptsRemaining)

	// Throttled attempts never reach the credential or the counters.
	assert.Empty(t, attempts.Recorded)
	assert.False(t, recordFailureCalled)
}

func TestEvaluateFailsClosedWhenBlocklistUnavailable(t *testing.T) {
	blocks := &MockBlockStore{
		GetByAddressFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	gate := newTestGate(blocks, nil, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierTemporary, decision.Tier)
	require.NotNil(t, decision.BlockedUntil)
	assert.WithinDuration(t, time.Now().Add(failClosedHorizon), *decision.BlockedUntil, 5*time.Second)
}

func TestEvaluateFailsClosedWhenCredentialStoreUnavailable(t *testing.T) {
	gate := newTestGate(nil, nil, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken,
		func(ctx context.Context) (models.AttemptOutcome, *string, error) {
			return "", nil, errors.New("query timeout")
		})

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Equal(t, models.TierTemporary, decision.Tier)
}

func TestEvaluateLostEscalationRaceStaysSilent(t *testing.T) {
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			return &models.BlockRecord{Address: address, FailureCount: 5, Tier: models.TierWarned}, nil
		},
		EscalateFunc: func(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error) {
			// Another instance already performed this transition.
			return false, nil
		},
	}
	alerts := &MockAlertDispatcher{}
	gate := newTestGate(blocks, nil, nil, alerts)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-bad", models.CredentialKindToken, failingCheck(models.AttemptOutcomeFailure))

	assert.Equal(t, DecisionBlocked, decision.Outcome)
	assert.Empty(t, alerts.Dispatched)
}

func TestEvaluateAttemptWriteFailureDoesNotChangeDecision(t *testing.T) {
	attempts := &MockAttemptStore{
		RecordFunc: func(ctx context.Context, attempt *models.AccessAttempt) error {
			return errors.New("insert failed")
		},
	}
	gate := newTestGate(nil, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-1", models.CredentialKindToken, passingCheck("client-1"))

	assert.Equal(t, DecisionAllow, decision.Outcome)
}

func TestEvaluateExpiredCredentialCountsAsFailure(t *testing.T) {
	var recorded bool
	blocks := &MockBlockStore{
		RecordFailureFunc: func(ctx context.Context, address string) (*models.BlockRecord, error) {
			recorded = true
			return &models.BlockRecord{Address: address, FailureCount: 1, Tier: models.TierNone}, nil
		},
	}
	attempts := &MockAttemptStore{}
	gate := newTestGate(blocks, attempts, nil, nil)

	decision := gate.Evaluate(context.Background(), testAddr, "tok-old", models.CredentialKindToken, failingCheck(models.AttemptOutcomeExpired))

	assert.Equal(t, DecisionDenied, decision.Outcome)
	assert.True(t, recorded)
	require.Len(t, attempts.Recorded, 1)
	assert.Equal(t, models.AttemptOutcomeExpired, attempts.Recorded[0].Outcome)
}

func TestUnblockDelegatesToStore(t *testing.T) {
	deleted := ""
	blocks := &MockBlockStore{
		DeleteFunc: func(ctx context.Context, address string) error {
			deleted = address
			return nil
		},
	}
	gate := newTestGate(blocks, nil, nil, nil)

	require.NoError(t, gate.Unblock(context.Background(), testAddr))
	assert.Equal(t, testAddr, deleted)
}

func TestUnblockUnknownAddressReturnsNotFound(t *testing.T) {
	blocks := &MockBlockStore{
		DeleteFunc: func(ctx context.Context, address string) error {
			return models.ErrNotFound
		},
	}
	gate := newTestGate(blocks, nil, nil, nil)

	err := gate.Unblock(context.Background(), "198.51.100.9")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
