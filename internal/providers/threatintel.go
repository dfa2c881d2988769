package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentpay-engine/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const intelCachePrefix = "intel:origin:"

// ThreatIntelClient looks up the threat rating of a network origin. Lookups
// are cached in redis with a TTL because the upstream feed refreshes slowly
// and the scorer consults it on every payment attempt.
type ThreatIntelClient struct {
	httpClient  *resty.Client
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewThreatIntelClient creates the threat-intelligence client.
func NewThreatIntelClient(baseURL string, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *ThreatIntelClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &ThreatIntelClient{
		httpClient:  client,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Lookup returns the threat rating for an origin, serving from cache when a
// fresh entry exists.
func (c *ThreatIntelClient) Lookup(ctx context.Context, origin string) (*models.ThreatIntel, error) {
	if cached, err := c.redisClient.Get(ctx, intelCachePrefix+origin).Result(); err == nil {
		var intel models.ThreatIntel
		if err := json.Unmarshal([]byte(cached), &intel); err == nil {
			return &intel, nil
		}
		// Corrupt cache entry falls through to a fresh lookup.
	} else if err != redis.Nil {
		c.logger.Warn("Threat intel cache read failed", zap.Error(err))
	}

	var intel models.ThreatIntel
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&intel).
		Get("/v1/origins/" + origin)
	if err != nil {
		return nil, fmt.Errorf("failed to call threat intel source: %w", err)
	}
	if resp.StatusCode() == 404 {
		// Unknown origin: cache the benign answer too.
		intel = models.ThreatIntel{Origin: origin, RiskLevel: "none"}
	} else if resp.IsError() {
		return nil, fmt.Errorf("threat intel source error: http %d", resp.StatusCode())
	}

	if encoded, err := json.Marshal(intel); err == nil {
		if err := c.redisClient.Set(ctx, intelCachePrefix+origin, encoded, c.cacheTTL).Err(); err != nil {
			c.logger.Warn("Threat intel cache write failed", zap.Error(err))
		}
	}

	return &intel, nil
}
