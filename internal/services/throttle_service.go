package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const burstKeyPrefix = "gate:burst:"

// ThrottleService is the short-window burst throttle below the warned
// tier. Counters live in Redis so horizontally scaled instances agree on
// the count; throttled attempts never touch the durable failure history.
type ThrottleService struct {
	rdb         *redis.Client
	window      time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewThrottleService creates a new ThrottleService
func NewThrottleService(rdb *redis.Client, window time.Duration, maxAttempts int, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		rdb:         rdb,
		window:      window,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Allow counts one attempt for the address and reports whether it may
// proceed. When throttled, retryAfter is the remaining window. Redis
// outages fail open: burst throttling is a convenience tier, the durable
// blocklist still applies.
func (s *ThrottleService) Allow(ctx context.Context, address string) (bool, time.Duration) {
	key := burstKeyPrefix + address

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error("burst counter unavailable, failing open",
			slog.String("address", address),
			slog.Any("error", err))
		return true, 0
	}

	if count == 1 {
		if err := s.rdb.Expire(ctx, key, s.window).Err(); err != nil {
			s.logger.Error("failed to set burst window expiry",
				slog.String("address", address),
				slog.Any("error", err))
		}
	}

	if count <= int64(s.maxAttempts) {
		return true, 0
	}

	retryAfter, err := s.rdb.TTL(ctx, key).Result()
	if err != nil || retryAfter <= 0 {
		retryAfter = s.window
	}

	s.logger.Warn("address burst throttled",
		slog.String("address", address),
		slog.Int64("attempts_in_window", count),
		slog.Duration("retry_after", retryAfter))

	return false, retryAfter
}
