package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clearproof/gatekeeper/internal/models"
)

// BlockStore defines the interface for blocklist persistence
type BlockStore interface {
	GetByAddress(ctx context.Context, address string) (*models.BlockRecord, error)
	RecordFailure(ctx context.Context, address string) (*models.BlockRecord, error)
	Escalate(ctx context.Context, address string, tier models.BlockTier, blockedUntil *time.Time) (bool, error)
	ResetExpiredTemporary(ctx context.Context, address string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error)
	Delete(ctx context.Context, address string) error
}

// AttemptStore defines the interface for attempt persistence
type AttemptStore interface {
	Record(ctx context.Context, attempt *models.AccessAttempt) error
	ListByAddress(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.AccessAttempt, error)
	CountFailuresByAddress(ctx context.Context, address string) (int, error)
}

// BurstThrottle defines the interface for the short-window throttle
type BurstThrottle interface {
	Allow(ctx context.Context, address string) (bool, time.Duration)
}

// AlertDispatcher defines the interface for tier-transition alerting
type AlertDispatcher interface {
	DispatchTierTransition(ctx context.Context, address string, tier models.BlockTier, failureCount int)
}

// DecisionOutcome classifies a gate decision.
type DecisionOutcome string

const (
	DecisionAllow      DecisionOutcome = "allow"
	DecisionDenied     DecisionOutcome = "denied"
	DecisionRetryAfter DecisionOutcome = "retry_after"
	DecisionBlocked    DecisionOutcome = "blocked"
)

// Decision is the gate's answer for one attempt. Denied means the
// credential was rejected but the address is still below the temporary
// threshold; Blocked carries the tier that stopped the attempt.
type Decision struct {
	Outcome           DecisionOutcome
	AttemptOutcome    models.AttemptOutcome
	RetryAfter        time.Duration
	Tier              models.BlockTier
	BlockedUntil      *time.Time
	FailedAttempts    int
	AttemptsRemaining int
}

// CredentialCheck validates the presented credential once the gate has
// decided the address may attempt. It returns the attempt outcome, an
// optional target entity for the audit row, and ErrInvalidCredential on
// rejection. Any other error means the store misbehaved.
type CredentialCheck func(ctx context.Context) (models.AttemptOutcome, *string, error)

// When the blocklist store cannot answer, the gate refuses rather than
// waving traffic through. The horizon is short so a store blip does not
// read as a real temporary block.
const failClosedHorizon = time.Minute

// GateService is the rate-limited gate every client-facing credential
// passes through. It layers a durable, cumulative blocklist (warned at 3
// failures, temporary at 5, permanent at 10) over a short Redis burst
// window, records every attempt for audit, and raises each tier
// transition as an exactly-once security alert.
type GateService struct {
	blocks       BlockStore
	attempts     AttemptStore
	throttle     BurstThrottle
	alerts       AlertDispatcher
	policy       *BlockPolicy
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewGateService creates a new GateService
func NewGateService(blocks BlockStore, attempts AttemptStore, throttle BurstThrottle, alerts AlertDispatcher, policy *BlockPolicy, storeTimeout time.Duration, logger *slog.Logger) *GateService {
	return &GateService{
		blocks:       blocks,
		attempts:     attempts,
		throttle:     throttle,
		alerts:       alerts,
		policy:       policy,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Evaluate runs one attempt through the gate: blocklist check, burst
// throttle, credential validation, audit write, then failure counting and
// escalation. The blocklist is always read fresh; nothing is cached
// between requests, so an escalation on one instance takes effect
// everywhere on the next attempt.
func (s *GateService) Evaluate(ctx context.Context, address, credentialID string, kind models.CredentialKind, check CredentialCheck) *Decision {
	now := time.Now()

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rec, err := s.blocks.GetByAddress(sctx, address)
	if err != nil {
		s.logger.Error("blocklist unavailable, failing closed",
			slog.String("address", address),
			slog.Any("error", err))
		return s.failClosed(now)
	}

	failureCount := 0
	if rec != nil {
		failureCount = rec.FailureCount

		switch rec.Tier {
		case models.TierPermanent:
			// Terminal: no attempt row, no counting, nothing left to record.
			return &Decision{
				Outcome:        DecisionBlocked,
				Tier:           models.TierPermanent,
				FailedAttempts: rec.FailureCount,
			}
		case models.TierTemporary:
			if !rec.TemporaryBlockExpired(now) {
				return &Decision{
					Outcome:        DecisionBlocked,
					Tier:           models.TierTemporary,
					BlockedUntil:   rec.BlockedUntil,
					FailedAttempts: rec.FailureCount,
				}
			}
			// Lapse the block but keep the cumulative count.
			if _, err := s.blocks.ResetExpiredTemporary(sctx, address); err != nil {
				s.logger.Error("failed to lapse expired temporary block",
					slog.String("address", address),
					slog.Any("error", err))
			}
		}
	}

	if allowed, retryAfter := s.throttle.Allow(ctx, address); !allowed {
		// Throttled attempts never reach the credential and are not
		// counted as failures.
		return &Decision{
			Outcome:           DecisionRetryAfter,
			RetryAfter:        retryAfter,
			FailedAttempts:    failureCount,
			AttemptsRemaining: s.policy.AttemptsRemaining(failureCount),
		}
	}

	outcome, targetID, err := check(sctx)
	if err != nil && !errors.Is(err, models.ErrInvalidCredential) {
		s.logger.Error("credential store unavailable, failing closed",
			slog.String("address", address),
			slog.String("credential_kind", string(kind)),
			slog.Any("error", err))
		return s.failClosed(now)
	}

	s.recordAttempt(ctx, address, credentialID, kind, outcome, targetID)

	if outcome == models.AttemptOutcomeSuccess {
		// Success does not reset the cumulative failure count.
		return &Decision{
			Outcome:        DecisionAllow,
			AttemptOutcome: outcome,
			FailedAttempts: failureCount,
		}
	}

	return s.recordFailureAndEscalate(sctx, ctx, address, outcome, failureCount, now)
}

func (s *GateService) recordFailureAndEscalate(sctx, ctx context.Context, address string, outcome models.AttemptOutcome, priorCount int, now time.Time) *Decision {
	rec, err := s.blocks.RecordFailure(sctx, address)
	if err != nil {
		s.logger.Error("failed to record failure against blocklist",
			slog.String("address", address),
			slog.Any("error", err))
		// The credential was already rejected; deny with the best count
		// we have rather than inventing a block.
		count := priorCount + 1
		return &Decision{
			Outcome:           DecisionDenied,
			AttemptOutcome:    outcome,
			FailedAttempts:    count,
			AttemptsRemaining: s.policy.AttemptsRemaining(count),
		}
	}

	target := s.policy.TierForFailureCount(rec.FailureCount)
	if target.Rank() > rec.Tier.Rank() {
		until := s.policy.BlockedUntil(target, now)
		escalated, err := s.blocks.Escalate(sctx, address, target, until)
		if err != nil {
			s.logger.Error("failed to escalate block tier",
				slog.String("address", address),
				slog.String("tier", string(target)),
				slog.Any("error", err))
		}
		if escalated {
			s.alerts.DispatchTierTransition(ctx, address, target, rec.FailureCount)
		}
		rec.Tier = target
		rec.BlockedUntil = until
	}

	if rec.Tier == models.TierTemporary || rec.Tier == models.TierPermanent {
		return &Decision{
			Outcome:        DecisionBlocked,
			AttemptOutcome: outcome,
			Tier:           rec.Tier,
			BlockedUntil:   rec.BlockedUntil,
			FailedAttempts: rec.FailureCount,
		}
	}

	return &Decision{
		Outcome:           DecisionDenied,
		AttemptOutcome:    outcome,
		Tier:              rec.Tier,
		FailedAttempts:    rec.FailureCount,
		AttemptsRemaining: s.policy.AttemptsRemaining(rec.FailureCount),
	}
}

// recordAttempt appends the audit row. Best effort: a failed write is
// logged and the decision stands.
func (s *GateService) recordAttempt(ctx context.Context, address, credentialID string, kind models.CredentialKind, outcome models.AttemptOutcome, targetID *string) {
	attempt := &models.AccessAttempt{
		Address:              address,
		CredentialIdentifier: credentialID,
		CredentialKind:       kind,
		Outcome:              outcome,
		TargetEntityID:       targetID,
		AttemptedAt:          time.Now(),
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record access attempt",
			slog.String("address", address),
			slog.String("credential_kind", string(kind)),
			slog.Any("error", err))
	}
}

func (s *GateService) failClosed(now time.Time) *Decision {
	until := now.Add(failClosedHorizon)
	return &Decision{
		Outcome:      DecisionBlocked,
		Tier:         models.TierTemporary,
		BlockedUntil: &until,
	}
}

// ListAttempts returns recent attempts for the security dashboard,
// optionally filtered to one address.
func (s *GateService) ListAttempts(ctx context.Context, address string, limit, offset int) ([]*models.AccessAttempt, error) {
	limit, offset = clampPage(limit, offset)
	if address != "" {
		return s.attempts.ListByAddress(ctx, address, limit, offset)
	}
	return s.attempts.ListRecent(ctx, limit, offset)
}

// CountAttemptFailures returns the total recorded failures for an
// address, across all tiers and including attempts that predate any
// current block record.
func (s *GateService) CountAttemptFailures(ctx context.Context, address string) (int, error) {
	return s.attempts.CountFailuresByAddress(ctx, address)
}

// ListBlocks returns blocklist rows for the security dashboard.
func (s *GateService) ListBlocks(ctx context.Context, limit, offset int) ([]*models.BlockRecord, error) {
	limit, offset = clampPage(limit, offset)
	return s.blocks.List(ctx, limit, offset)
}

// Unblock removes an address's block record entirely. This is the only
// way out of a permanent block; the attempt history is untouched.
func (s *GateService) Unblock(ctx context.Context, address string) error {
	if err := s.blocks.Delete(ctx, address); err != nil {
		return err
	}

	s.logger.Info("address unblocked by administrator",
		slog.String("address", address))
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
