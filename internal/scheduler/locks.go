package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantLock is a redis lease granting one holder per (scope, tenant) at a
// time. Batch sweeps take it so concurrent runs cannot double-create
// reminders or double-attempt a charge for the same tenant.
type TenantLock struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewTenantLock creates the lease manager.
func NewTenantLock(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *TenantLock {
	return &TenantLock{redisClient: redisClient, ttl: ttl, logger: logger}
}

// Acquire takes the lease. Returns ok=false when another holder has it. The
// release func only deletes the key if this holder still owns it; an expired
// lease taken over by someone else is left alone.
func (l *TenantLock) Acquire(ctx context.Context, scope, tenantID string) (release func(), ok bool, err error) {
	key := fmt.Sprintf("lease:%s:%s", scope, tenantID)
	holder := uuid.New().String()

	ok, err = l.redisClient.SetNX(ctx, key, holder, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire tenant lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		current, err := l.redisClient.Get(ctx, key).Result()
		if err != nil || current != holder {
			return
		}
		if err := l.redisClient.Del(ctx, key).Err(); err != nil {
			l.logger.Warn("Failed to release tenant lease",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}
