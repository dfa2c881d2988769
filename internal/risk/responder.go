package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	denyKeyPrefix  = "risk:deny:"
	blockListKey   = "risk:blocklist"
	reviewQueueKey = "risk:review-queue"
)

// StepUpNotifier emits the step-up-authentication prompt for a challenged
// transaction.
type StepUpNotifier interface {
	NotifyStepUp(ctx context.Context, tenantID, paymentID string) error
}

// Responder executes the automated response for a completed assessment:
// block denies the origin and raises a critical alert, review enqueues a
// manual-review entry, challenge prompts step-up auth, allow only logs.
// Denying the same origin twice is a no-op beyond refreshing the entry.
type Responder struct {
	cfg         *config.RiskConfig
	redisClient *redis.Client
	notifier    StepUpNotifier
	logger      *zap.Logger
}

// NewResponder creates the automated response handler.
func NewResponder(cfg *config.RiskConfig, redisClient *redis.Client, notifier StepUpNotifier, logger *zap.Logger) *Responder {
	return &Responder{
		cfg:         cfg,
		redisClient: redisClient,
		notifier:    notifier,
		logger:      logger,
	}
}

type reviewEntry struct {
	PaymentID string    `json:"payment_id"`
	TenantID  string    `json:"tenant_id"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Respond executes the action side effects for one assessment.
func (r *Responder) Respond(ctx context.Context, a *models.RiskAssessment, reqCtx *models.RequestContext) error {
	switch a.Action {
	case models.RiskActionBlock:
		if err := r.DenyOrigin(ctx, reqCtx.OriginAddress); err != nil {
			return err
		}
		r.logger.Error("CRITICAL: transaction blocked by risk policy",
			zap.String("payment_id", a.PaymentID),
			zap.String("tenant_id", a.TenantID),
			zap.String("origin", reqCtx.OriginAddress),
			zap.Int("score", a.Score),
			zap.Strings("reasons", a.Reasons),
		)
		return r.EnqueueReview(ctx, a)

	case models.RiskActionReview:
		return r.EnqueueReview(ctx, a)

	case models.RiskActionChallenge:
		if r.notifier == nil {
			return nil
		}
		if err := r.notifier.NotifyStepUp(ctx, a.TenantID, a.PaymentID); err != nil {
			return fmt.Errorf("failed to send step-up prompt: %w", err)
		}
		return nil

	default:
		r.logger.Debug("Transaction allowed",
			zap.String("payment_id", a.PaymentID),
			zap.Int("score", a.Score),
		)
		return nil
	}
}

// DenyOrigin puts the origin on the temporary deny list. Idempotent at the
// origin level: an existing entry just has its TTL refreshed.
func (r *Responder) DenyOrigin(ctx context.Context, origin string) error {
	if origin == "" {
		return nil
	}
	if err := r.redisClient.Set(ctx, denyKeyPrefix+origin, time.Now().Format(time.RFC3339), r.cfg.DenyListTTL).Err(); err != nil {
		return fmt.Errorf("failed to deny origin: %w", err)
	}
	return nil
}

// OnBlockList reports whether the origin is currently denied, either on the
// temporary deny list or the operator-managed block list.
func (r *Responder) OnBlockList(ctx context.Context, origin string) (bool, error) {
	exists, err := r.redisClient.Exists(ctx, denyKeyPrefix+origin).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check deny list: %w", err)
	}
	if exists > 0 {
		return true, nil
	}

	member, err := r.redisClient.SIsMember(ctx, blockListKey, origin).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	return member, nil
}

// EnqueueReview appends the assessment to the manual-review queue.
func (r *Responder) EnqueueReview(ctx context.Context, a *models.RiskAssessment) error {
	entry, err := json.Marshal(reviewEntry{
		PaymentID: a.PaymentID,
		TenantID:  a.TenantID,
		Score:     a.Score,
		Reasons:   a.Reasons,
		QueuedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review entry: %w", err)
	}

	if err := r.redisClient.LPush(ctx, reviewQueueKey, entry).Err(); err != nil {
		return fmt.Errorf("failed to enqueue review entry: %w", err)
	}
	return nil
}
