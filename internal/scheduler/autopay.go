package scheduler

import (
	"context"
	"fmt"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/notify"
	"rentpay-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChargeFunc submits a payment through the full processing pipeline with
// the given instrument. The scheduler stays out of routing and risk; the
// engine wires its own pipeline in here.
type ChargeFunc func(ctx context.Context, p *models.Payment, instrumentID string) error

// AutoPayProcessor runs the unattended charge sweep: pending past-due
// payments whose tenant has an enabled configuration are charged on the
// configured day offsets, and failures run the tenant's failure actions.
type AutoPayProcessor struct {
	payments  repository.PaymentsRepo
	autopay   repository.AutoPayRepo
	reminders repository.RemindersRepo
	notifier  *notify.Notifier
	charge    ChargeFunc
	locks     *TenantLock
	cfg       *config.SchedulerConfig
	logger    *zap.Logger

	now func() time.Time
}

// NewAutoPayProcessor creates the auto-pay sweep processor.
func NewAutoPayProcessor(
	payments repository.PaymentsRepo,
	autopay repository.AutoPayRepo,
	reminders repository.RemindersRepo,
	notifier *notify.Notifier,
	charge ChargeFunc,
	locks *TenantLock,
	cfg *config.SchedulerConfig,
	logger *zap.Logger,
) *AutoPayProcessor {
	return &AutoPayProcessor{
		payments:  payments,
		autopay:   autopay,
		reminders: reminders,
		notifier:  notifier,
		charge:    charge,
		locks:     locks,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetupAutoPay activates a new configuration for the tenant, replacing any
// prior one.
func (a *AutoPayProcessor) SetupAutoPay(ctx context.Context, cfg *models.AutoPayConfiguration) (*models.AutoPayConfiguration, error) {
	if cfg.TenantID == "" || cfg.InstrumentID == "" {
		return nil, fmt.Errorf("tenant id and instrument id are required")
	}

	now := a.now()
	cfg.ConfigID = uuid.New().String()
	cfg.IsEnabled = true
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := a.autopay.CreateConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create autopay configuration: %w", err)
	}

	a.logger.Info("Auto-pay configured",
		zap.String("tenant_id", cfg.TenantID),
		zap.String("instrument_id", cfg.InstrumentID),
		zap.Ints("retry_days", cfg.RetryDays),
	)
	return cfg, nil
}

// ProcessAutoPayments runs one sweep over the given payments. A payment is
// attempted when it is pending, past due, and the days past due match one of
// the configuration's charge-day offsets (day zero is the due date itself).
// One failing payment never aborts the sweep.
func (a *AutoPayProcessor) ProcessAutoPayments(ctx context.Context, payments []models.Payment) (*models.AutoPaySweepResult, error) {
	now := a.now()
	result := &models.AutoPaySweepResult{}

	for i := range payments {
		p := &payments[i]
		if p.Status != models.PaymentStatusPending {
			continue
		}
		daysPast := -p.DaysUntilDue(now)
		if daysPast < 0 {
			continue
		}

		cfg, err := a.autopay.GetEnabledConfig(ctx, p.TenantID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: %v", p.PaymentID, err))
			continue
		}
		if cfg == nil || !chargeDay(cfg, daysPast) {
			continue
		}

		release, ok, err := a.locks.Acquire(ctx, "autopay", p.TenantID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: %v", p.PaymentID, err))
			continue
		}
		if !ok {
			continue
		}

		result.Processed++
		if err := a.charge(ctx, p, cfg.InstrumentID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("payment %s: %v", p.PaymentID, err))
			a.runFailureActions(ctx, p, cfg, daysPast)
		} else {
			result.Successful++
		}
		release()
	}

	a.logger.Info("Auto-pay sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// chargeDay reports whether this many days past due is a configured charge
// day. Day zero (the due date) is always one.
func chargeDay(cfg *models.AutoPayConfiguration, daysPast int) bool {
	if daysPast == 0 {
		return true
	}
	for _, d := range cfg.RetryDays {
		if d == daysPast {
			return true
		}
	}
	return false
}

// runFailureActions executes every configured action for a failed attempt.
// Actions are independent; one failing action never blocks the rest.
func (a *AutoPayProcessor) runFailureActions(ctx context.Context, p *models.Payment, cfg *models.AutoPayConfiguration, daysPast int) {
	for _, action := range cfg.FailureActions {
		var err error
		switch action {
		case models.FailureNotifyEmail:
			err = a.notifier.Deliver(ctx, models.ReminderFailed, models.DeliveryEmail, p.TenantID, p)
		case models.FailureNotifySMS:
			err = a.notifier.Deliver(ctx, models.ReminderFailed, models.DeliverySMS, p.TenantID, p)
		case models.FailureDisableAutoPay:
			err = a.autopay.DisableConfig(ctx, p.TenantID, cfg.ConfigID)
		case models.FailureManualReminder:
			err = a.reminders.CreateReminder(ctx, &models.Reminder{
				ReminderID: uuid.New().String(),
				TenantID:   p.TenantID,
				PaymentID:  p.PaymentID,
				Type:       models.ReminderFailed,
				OffsetDays: daysPast,
				Method:     models.DeliveryEmail,
				CreatedAt:  a.now(),
			})
		default:
			a.logger.Warn("Unknown failure action",
				zap.String("action", string(action)),
			)
			continue
		}
		if err != nil {
			a.logger.Warn("Failure action errored",
				zap.String("payment_id", p.PaymentID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
	}
}
