package redisx

import (
	"context"

	"rentpay-engine/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client alias so callers don't import go-redis directly.
type Client = redis.Client

// NewClient creates a redis client from config.
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping verifies connectivity.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client.
func Close(client *redis.Client) error {
	return client.Close()
}
