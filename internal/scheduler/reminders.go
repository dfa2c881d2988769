package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/notify"
	"rentpay-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReminderScheduler generates due-date reminders from each tenant's active
// notification schedule and dispatches unsent ones in bounded batches.
type ReminderScheduler struct {
	payments  repository.PaymentsRepo
	reminders repository.RemindersRepo
	notifier  *notify.Notifier
	locks     *TenantLock
	cfg       *config.SchedulerConfig
	logger    *zap.Logger

	now func() time.Time
}

// NewReminderScheduler creates the reminder scheduler.
func NewReminderScheduler(
	payments repository.PaymentsRepo,
	reminders repository.RemindersRepo,
	notifier *notify.Notifier,
	locks *TenantLock,
	cfg *config.SchedulerConfig,
	logger *zap.Logger,
) *ReminderScheduler {
	return &ReminderScheduler{
		payments:  payments,
		reminders: reminders,
		notifier:  notifier,
		locks:     locks,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateUpcomingReminders walks the pending payments and creates one
// reminder per configured delivery method for every schedule offset that
// matches today exactly. The (payment, type, offset) existence check is the
// idempotency guard; a tenant with no active schedule is skipped.
func (s *ReminderScheduler) GenerateUpcomingReminders(ctx context.Context, payments []models.Payment) ([]models.Reminder, error) {
	now := s.now()
	var created []models.Reminder

	byTenant := map[string][]models.Payment{}
	for _, p := range payments {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		byTenant[p.TenantID] = append(byTenant[p.TenantID], p)
	}

	for tenantID, tenantPayments := range byTenant {
		release, ok, err := s.locks.Acquire(ctx, "reminders", tenantID)
		if err != nil {
			return created, err
		}
		if !ok {
			s.logger.Debug("Reminder generation already running for tenant",
				zap.String("tenant_id", tenantID),
			)
			continue
		}

		schedule, err := s.reminders.GetActiveSchedule(ctx, tenantID)
		if err != nil {
			release()
			return created, err
		}
		if schedule == nil || !schedule.IsActive {
			release()
			continue
		}

		for i := range tenantPayments {
			p := &tenantPayments[i]
			days := p.DaysUntilDue(now)

			if days >= 0 {
				for _, offset := range schedule.DaysBeforeDue {
					if offset != days {
						continue
					}
					batch, err := s.createForOffset(ctx, p, models.ReminderUpcoming, offset, schedule.Methods, now)
					if err != nil {
						release()
						return created, err
					}
					created = append(created, batch...)
				}
			} else {
				daysPast := -days
				for _, offset := range schedule.DaysAfterDue {
					if offset != daysPast {
						continue
					}
					batch, err := s.createForOffset(ctx, p, models.ReminderOverdue, offset, schedule.Methods, now)
					if err != nil {
						release()
						return created, err
					}
					created = append(created, batch...)
				}
			}
		}
		release()
	}

	s.logger.Info("Reminder generation completed",
		zap.Int("tenants", len(byTenant)),
		zap.Int("created", len(created)),
	)
	return created, nil
}

func (s *ReminderScheduler) createForOffset(ctx context.Context, p *models.Payment, rtype models.ReminderType, offset int, methods []models.DeliveryMethod, now time.Time) ([]models.Reminder, error) {
	exists, err := s.reminders.ReminderExists(ctx, p.PaymentID, rtype, offset)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	var created []models.Reminder
	for _, method := range methods {
		rem := models.Reminder{
			ReminderID: uuid.New().String(),
			TenantID:   p.TenantID,
			PaymentID:  p.PaymentID,
			Type:       rtype,
			OffsetDays: offset,
			Method:     method,
			CreatedAt:  now,
		}
		if err := s.reminders.CreateReminder(ctx, &rem); err != nil {
			return created, fmt.Errorf("failed to create reminder: %w", err)
		}
		created = append(created, rem)
	}
	return created, nil
}

// ProcessPendingReminders dispatches one batch of unsent reminders with
// bounded concurrency, tracking counters on a BulkReminderJob. A failed
// dispatch is recorded per item and never aborts its siblings; the reminder
// stays unsent for the next sweep.
func (s *ReminderScheduler) ProcessPendingReminders(ctx context.Context) (*models.BulkReminderJob, error) {
	batch, err := s.reminders.ListUnsent(ctx, s.cfg.DispatchBatchSize)
	if err != nil {
		return nil, err
	}

	job := &models.BulkReminderJob{
		JobID:     uuid.New().String(),
		Status:    models.BulkJobProcessing,
		Total:     len(batch),
		StartedAt: s.now(),
	}
	if err := s.reminders.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create bulk job: %w", err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.DispatchWorkers)

	for i := range batch {
		rem := batch[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.dispatchOne(ctx, &rem)

			mu.Lock()
			defer mu.Unlock()
			job.Processed++
			if err != nil {
				job.Failed++
				job.Errors = append(job.Errors, fmt.Sprintf("reminder %s: %v", rem.ReminderID, err))
				s.logger.Warn("Reminder dispatch failed",
					zap.String("reminder_id", rem.ReminderID),
					zap.Error(err),
				)
			} else {
				job.Succeeded++
			}
		}()
	}
	wg.Wait()

	completed := s.now()
	job.Status = models.BulkJobCompleted
	job.CompletedAt = &completed
	if err := s.reminders.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("failed to update bulk job: %w", err)
	}

	s.logger.Info("Reminder batch completed",
		zap.String("job_id", job.JobID),
		zap.Int("total", job.Total),
		zap.Int("succeeded", job.Succeeded),
		zap.Int("failed", job.Failed),
	)
	return job, nil
}

func (s *ReminderScheduler) dispatchOne(ctx context.Context, rem *models.Reminder) error {
	p, err := s.payments.GetPayment(ctx, rem.TenantID, rem.PaymentID)
	if err != nil {
		return err
	}
	if err := s.notifier.Deliver(ctx, rem.Type, rem.Method, rem.TenantID, p); err != nil {
		return err
	}
	return s.reminders.MarkSent(ctx, rem.ReminderID)
}
