package services

import (
	"context"
	"log/slog"

	"github.com/clearproof/gatekeeper/internal/models"
)

// AlertRepository defines the interface for alert persistence
type AlertRepository interface {
	CreateOnce(ctx context.Context, alert *models.SecurityAlert) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
}

// AlertService turns tier transitions into security alerts: persist the
// transition exactly once, then notify. Nothing here ever propagates an
// error back into the access decision.
type AlertService struct {
	repo   AlertRepository
	email  EmailService
	logger *slog.Logger
}

// NewAlertService creates a new AlertService
func NewAlertService(repo AlertRepository, email EmailService, logger *slog.Logger) *AlertService {
	return &AlertService{
		repo:   repo,
		email:  email,
		logger: logger,
	}
}

// DispatchTierTransition records and announces that an address has reached
// a new tier. Duplicate transitions (instances racing, or a re-entered
// temporary tier) are deduplicated by the repository and stay silent.
func (s *AlertService) DispatchTierTransition(ctx context.Context, address string, tier models.BlockTier, failureCount int) {
	alertType, ok := models.AlertTypeForTier(tier)
	if !ok {
		return
	}

	alert := &models.SecurityAlert{
		Address:         address,
		AlertType:       alertType,
		TriggeringCount: failureCount,
	}

	created, err := s.repo.CreateOnce(ctx, alert)
	if err != nil {
		s.logger.Error("failed to persist security alert",
			slog.String("address", address),
			slog.String("alert_type", string(alertType)),
			slog.Any("error", err))
		return
	}
	if !created {
		return
	}

	s.logger.Warn("security alert",
		slog.String("address", address),
		slog.String("alert_type", string(alertType)),
		slog.Int("failed_attempts", failureCount))

	// Delivery is synchronous but failure only logs; the access decision
	// was already made.
	if err := s.email.SendSecurityAlert(ctx, alert); err != nil {
		s.logger.Error("failed to deliver security alert",
			slog.String("address", address),
			slog.String("alert_type", string(alertType)),
			slog.Any("error", err))
	}
}

// ListAlerts returns alerts for the security dashboard.
func (s *AlertService) ListAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.List(ctx, limit, offset)
}
