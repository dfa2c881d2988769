package settlement

import (
	"context"
	"fmt"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/repository"
	"rentpay-engine/internal/risk"

	"go.uber.org/zap"
)

// Watchdog flags payments stuck in processing beyond the settlement SLA.
// The processor never confirmed or returned them, so they go to the
// manual-review queue for an operator to reconcile with the bank.
type Watchdog struct {
	payments  repository.PaymentsRepo
	responder *risk.Responder
	cfg       *config.SchedulerConfig
	logger    *zap.Logger

	now func() time.Time
}

// NewWatchdog creates the settlement SLA watchdog.
func NewWatchdog(payments repository.PaymentsRepo, responder *risk.Responder, cfg *config.SchedulerConfig, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		payments:  payments,
		responder: responder,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep enqueues every over-SLA processing payment for manual review and
// returns how many were flagged. Repeat flagging of the same payment on
// consecutive sweeps is accepted; the review queue consumer deduplicates.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.cfg.SettlementSLA)
	stuck, err := w.payments.ListProcessingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list over-SLA payments: %w", err)
	}

	flagged := 0
	for i := range stuck {
		p := &stuck[i]
		entry := &models.RiskAssessment{
			PaymentID: p.PaymentID,
			TenantID:  p.TenantID,
			Action:    models.RiskActionReview,
			Reasons: []string{
				fmt.Sprintf("settlement unresolved since %s, past the %s SLA",
					p.UpdatedAt.Format(time.RFC3339), w.cfg.SettlementSLA),
			},
			ManualReview: true,
			AssessedAt:   w.now(),
		}
		if err := w.responder.EnqueueReview(ctx, entry); err != nil {
			w.logger.Error("Failed to flag stuck payment",
				zap.String("payment_id", p.PaymentID),
				zap.Error(err),
			)
			continue
		}
		flagged++
		w.logger.Warn("Payment exceeded settlement SLA",
			zap.String("payment_id", p.PaymentID),
			zap.String("tenant_id", p.TenantID),
			zap.Time("submitted_at", p.UpdatedAt),
		)
	}

	return flagged, nil
}
