package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rentpay-engine/internal/models"

	"go.uber.org/zap"
)

// RemindersRepo persistence boundary for reminders, notification schedules
// and bulk dispatch jobs.
type RemindersRepo interface {
	ReminderExists(ctx context.Context, paymentID string, rtype models.ReminderType, offsetDays int) (bool, error)
	CreateReminder(ctx context.Context, rem *models.Reminder) error
	ListUnsent(ctx context.Context, limit int) ([]models.Reminder, error)
	MarkSent(ctx context.Context, reminderID string) error
	GetActiveSchedule(ctx context.Context, tenantID string) (*models.NotificationSchedule, error)
	CreateSchedule(ctx context.Context, sched *models.NotificationSchedule) error
	CreateJob(ctx context.Context, job *models.BulkReminderJob) error
	UpdateJob(ctx context.Context, job *models.BulkReminderJob) error
}

// PostgresRemindersRepo reminders, notification_schedules and
// bulk_reminder_jobs table access.
type PostgresRemindersRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRemindersRepo creates the postgres-backed reminders repository.
func NewPostgresRemindersRepo(db *sql.DB, logger *zap.Logger) *PostgresRemindersRepo {
	return &PostgresRemindersRepo{db: db, logger: logger}
}

// ReminderExists reports whether a reminder with the same (payment, type,
// offset) already exists. This is the sole duplicate-send guard.
func (r *PostgresRemindersRepo) ReminderExists(ctx context.Context, paymentID string, rtype models.ReminderType, offsetDays int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM reminders WHERE payment_id = $1 AND type = $2 AND offset_days = $3)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, paymentID, rtype, offsetDays).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reminder existence: %w", err)
	}

	return exists, nil
}

// CreateReminder inserts a new unsent reminder.
func (r *PostgresRemindersRepo) CreateReminder(ctx context.Context, rem *models.Reminder) error {
	query := `
		INSERT INTO reminders (reminder_id, tenant_id, payment_id, type, offset_days, method, sent, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		rem.ReminderID, rem.TenantID, rem.PaymentID, rem.Type, rem.OffsetDays,
		rem.Method, rem.Sent, rem.SentAt, rem.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}

	return nil
}

// ListUnsent returns up to limit unsent reminders, oldest first.
func (r *PostgresRemindersRepo) ListUnsent(ctx context.Context, limit int) ([]models.Reminder, error) {
	query := `
		SELECT reminder_id, tenant_id, payment_id, type, offset_days, method, sent, sent_at, created_at
		FROM reminders
		WHERE sent = false
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsent reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var rem models.Reminder
		if err := rows.Scan(
			&rem.ReminderID, &rem.TenantID, &rem.PaymentID, &rem.Type, &rem.OffsetDays,
			&rem.Method, &rem.Sent, &rem.SentAt, &rem.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		reminders = append(reminders, rem)
	}

	return reminders, rows.Err()
}

// MarkSent flips the sent flag false->true. The WHERE sent = false guard
// makes a second dispatch attempt on the same reminder fail.
func (r *PostgresRemindersRepo) MarkSent(ctx context.Context, reminderID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET sent = true, sent_at = $1 WHERE reminder_id = $2 AND sent = false`,
		time.Now(), reminderID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reminder already sent or not found: %s", reminderID)
	}

	return nil
}

// GetActiveSchedule returns the tenant's single active notification schedule,
// or nil when none is configured.
func (r *PostgresRemindersRepo) GetActiveSchedule(ctx context.Context, tenantID string) (*models.NotificationSchedule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT schedule_id, tenant_id, days_before_due, days_after_due, methods, is_active, created_at
		FROM notification_schedules
		WHERE tenant_id = $1 AND is_active = true`

	var sched models.NotificationSchedule
	var beforeJSON, afterJSON, methodsJSON []byte

	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&sched.ScheduleID, &sched.TenantID, &beforeJSON, &afterJSON, &methodsJSON,
		&sched.IsActive, &sched.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification schedule: %w", err)
	}

	if err := json.Unmarshal(beforeJSON, &sched.DaysBeforeDue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal days_before_due: %w", err)
	}
	if err := json.Unmarshal(afterJSON, &sched.DaysAfterDue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal days_after_due: %w", err)
	}
	if err := json.Unmarshal(methodsJSON, &sched.Methods); err != nil {
		return nil, fmt.Errorf("failed to unmarshal methods: %w", err)
	}

	return &sched, nil
}

// CreateSchedule inserts a new schedule and deactivates the tenant's prior
// one in the same transaction.
func (r *PostgresRemindersRepo) CreateSchedule(ctx context.Context, sched *models.NotificationSchedule) error {
	beforeJSON, err := json.Marshal(sched.DaysBeforeDue)
	if err != nil {
		return fmt.Errorf("failed to marshal days_before_due: %w", err)
	}
	afterJSON, err := json.Marshal(sched.DaysAfterDue)
	if err != nil {
		return fmt.Errorf("failed to marshal days_after_due: %w", err)
	}
	methodsJSON, err := json.Marshal(sched.Methods)
	if err != nil {
		return fmt.Errorf("failed to marshal methods: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE notification_schedules SET is_active = false WHERE tenant_id = $1`,
		sched.TenantID,
	); err != nil {
		return fmt.Errorf("failed to deactivate prior schedules: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notification_schedules (schedule_id, tenant_id, days_before_due, days_after_due, methods, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sched.ScheduleID, sched.TenantID, beforeJSON, afterJSON, methodsJSON, sched.IsActive, sched.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create notification schedule: %w", err)
	}

	return tx.Commit()
}

// CreateJob inserts a bulk job record.
func (r *PostgresRemindersRepo) CreateJob(ctx context.Context, job *models.BulkReminderJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bulk_reminder_jobs (job_id, status, total, processed, succeeded, failed, errors, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.JobID, job.Status, job.Total, job.Processed, job.Succeeded, job.Failed,
		errorsJSON, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}

	return nil
}

// UpdateJob persists a bulk job's counters and status.
func (r *PostgresRemindersRepo) UpdateJob(ctx context.Context, job *models.BulkReminderJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE bulk_reminder_jobs
		 SET status = $1, total = $2, processed = $3, succeeded = $4, failed = $5, errors = $6, completed_at = $7
		 WHERE job_id = $8`,
		job.Status, job.Total, job.Processed, job.Succeeded, job.Failed,
		errorsJSON, job.CompletedAt, job.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bulk job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("bulk job not found: %s", job.JobID)
	}

	return nil
}
