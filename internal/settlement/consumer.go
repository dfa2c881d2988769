package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentpay-engine/internal/ledger"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/notify"
	"rentpay-engine/internal/redisx"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// Stream carries the out-of-band terminal statuses from the transfer
	// processor.
	Stream        = "settlement:events"
	consumerGroup = "rentpay-settlement"
)

// Event is one settlement outcome delivered by the processor's webhook
// relay.
type Event struct {
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
	TenantID      string `json:"tenant_id"`
	Status        string `json:"status"` // settled, returned
	Reason        string `json:"reason,omitempty"`
}

// Consumer drains the settlement stream and applies terminal transitions to
// the ledger. Payments stay `processing` until their event arrives, which
// may be days after submission.
type Consumer struct {
	redisClient *redis.Client
	ledger      *ledger.Ledger
	notifier    *notify.Notifier
	consumerID  string
	logger      *zap.Logger
}

// NewConsumer creates the settlement consumer and ensures the group exists.
func NewConsumer(ctx context.Context, redisClient *redis.Client, lgr *ledger.Ledger, notifier *notify.Notifier, consumerID string, logger *zap.Logger) (*Consumer, error) {
	if err := redisx.EnsureGroup(ctx, redisClient, Stream, consumerGroup); err != nil {
		return nil, fmt.Errorf("failed to create settlement consumer group: %w", err)
	}
	return &Consumer{
		redisClient: redisClient,
		ledger:      lgr,
		notifier:    notifier,
		consumerID:  consumerID,
		logger:      logger,
	}, nil
}

// Run drains the stream until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("Settlement consumer started", zap.String("consumer_id", c.consumerID))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Settlement consumer stopped")
			return
		default:
		}

		messages, err := redisx.ReadGroup(ctx, c.redisClient, Stream, consumerGroup, c.consumerID, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read settlement stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			if err := c.handleMessage(ctx, msg); err != nil {
				// Leave unacked for redelivery.
				c.logger.Error("Failed to process settlement event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				continue
			}
			if err := redisx.Ack(ctx, c.redisClient, Stream, consumerGroup, msg.ID); err != nil {
				c.logger.Warn("Failed to ack settlement event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redisx.StreamMessage) error {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("settlement message %s has no data field", msg.ID)
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("failed to unmarshal settlement event: %w", err)
	}

	return c.Apply(ctx, &event)
}

// Apply resolves one settlement event against the ledger. Events for
// payments already terminal are dropped; redelivery after a crash between
// transition and ack makes duplicates normal.
func (c *Consumer) Apply(ctx context.Context, event *Event) error {
	p, err := c.ledger.Get(ctx, event.TenantID, event.PaymentID)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		c.logger.Debug("Settlement event for terminal payment dropped",
			zap.String("payment_id", p.PaymentID),
			zap.String("status", string(p.Status)),
		)
		return nil
	}

	switch event.Status {
	case "settled":
		if err := c.ledger.Complete(ctx, p); err != nil {
			return err
		}
		if err := c.notifier.Deliver(ctx, models.ReminderSuccess, models.DeliveryEmail, p.TenantID, p); err != nil {
			// Receipt delivery must not undo the settlement.
			c.logger.Warn("Failed to deliver payment receipt",
				zap.String("payment_id", p.PaymentID),
				zap.Error(err),
			)
		}
		return nil

	case "returned":
		reason := event.Reason
		if reason == "" {
			reason = "returned by the receiving bank"
		}
		return c.ledger.Fail(ctx, p, reason)

	default:
		return fmt.Errorf("unknown settlement status %q for payment %s", event.Status, event.PaymentID)
	}
}
