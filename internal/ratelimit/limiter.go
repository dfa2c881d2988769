package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rentpay-engine/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "ratelimit:"

// Limiter is a sliding-window rate limiter keyed by (user, origin). Each
// event lands in a redis sorted set scored by its timestamp; the count
// inside the window decides admission. The trim and count run in one
// pipeline so concurrent requests on the same key cannot undercount.
type Limiter struct {
	redisClient *redis.Client
	cfg         *config.RateLimitConfig
	logger      *zap.Logger

	now func() time.Time
}

// NewLimiter creates the sliding-window limiter.
func NewLimiter(redisClient *redis.Client, cfg *config.RateLimitConfig, logger *zap.Logger) *Limiter {
	return &Limiter{
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

func limiterKey(userID, origin string) string {
	return keyPrefix + userID + ":" + origin
}

// Allow records one event for the key and reports whether it fits the
// window. The event is recorded even when denied, so a client hammering the
// endpoint keeps pushing its own window out.
func (l *Limiter) Allow(ctx context.Context, userID, origin string) (bool, error) {
	key := limiterKey(userID, origin)
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)

	pipe := l.redisClient.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit window: %w", err)
	}

	allowed := count.Val() <= int64(l.cfg.MaxEvents)
	if !allowed {
		l.logger.Warn("Rate limit exceeded",
			zap.String("user_id", userID),
			zap.String("origin", origin),
			zap.Int64("events_in_window", count.Val()),
		)
	}
	return allowed, nil
}

// GC removes entries older than the retention window across all limiter
// keys. Keys expire on their own; this sweep trims members inside keys that
// stay hot.
func (l *Limiter) GC(ctx context.Context) (int64, error) {
	cutoff := strconv.FormatInt(l.now().Add(-l.cfg.Retention).UnixNano(), 10)

	var removed int64
	var cursor uint64
	for {
		keys, next, err := l.redisClient.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan rate limit keys: %w", err)
		}
		for _, key := range keys {
			n, err := l.redisClient.ZRemRangeByScore(ctx, key, "0", cutoff).Result()
			if err != nil {
				l.logger.Warn("Rate limit GC failed for key",
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if removed > 0 {
		l.logger.Info("Rate limit GC completed", zap.Int64("removed", removed))
	}
	return removed, nil
}
