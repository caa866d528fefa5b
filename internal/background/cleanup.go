package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter removes rows past their useful life and reports how many
// were deleted.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// StaleDeleter removes consumed or expired one-time codes.
type StaleDeleter interface {
	DeleteStale(ctx context.Context) (int64, error)
}

// CleanupManager periodically purges expired approval tokens, expired client
// sessions, and stale one-time codes. Access attempts, block records, and
// security alerts are never purged; they are the audit trail.
type CleanupManager struct {
	tokens   ExpiredDeleter
	sessions ExpiredDeleter
	codes    StaleDeleter
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	tokens ExpiredDeleter,
	sessions ExpiredDeleter,
	codes StaleDeleter,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		tokens:   tokens,
		sessions: sessions,
		codes:    codes,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup purges each credential table in turn. A failure in one table
// does not stop the others.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cm.purge(cleanupCtx, "approval_tokens", cm.tokens.DeleteExpired)
	cm.purge(cleanupCtx, "client_sessions", cm.sessions.DeleteExpired)
	cm.purge(cleanupCtx, "one_time_codes", cm.codes.DeleteStale)
}

func (cm *CleanupManager) purge(ctx context.Context, table string, fn func(context.Context) (int64, error)) {
	rowsDeleted, err := fn(ctx)
	if err != nil {
		cm.logger.Error("cleanup failed",
			slog.String("table", table),
			slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("cleanup completed",
			slog.String("table", table),
			slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
