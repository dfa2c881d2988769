package models

import (
	"time"
)

// ReminderType categories of payment notifications.
type ReminderType string

const (
	ReminderUpcoming ReminderType = "upcoming"
	ReminderOverdue  ReminderType = "overdue"
	ReminderFailed   ReminderType = "failed"
	ReminderSuccess  ReminderType = "success"
)

// DeliveryMethod notification transport kinds.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySMS   DeliveryMethod = "sms"
	DeliveryPush  DeliveryMethod = "push"
	DeliveryMail  DeliveryMethod = "mail"
)

// Reminder is one scheduled notification tied to a payment's due date
// (reminders table). Sent transitions false->true exactly once.
type Reminder struct {
	ReminderID string         `json:"reminder_id" db:"reminder_id"`
	TenantID   string         `json:"tenant_id" db:"tenant_id"`
	PaymentID  string         `json:"payment_id" db:"payment_id"`
	Type       ReminderType   `json:"type" db:"type"`
	OffsetDays int            `json:"offset_days" db:"offset_days"` // days before (upcoming) or after (overdue) due date
	Method     DeliveryMethod `json:"method" db:"method"`
	Sent       bool           `json:"sent" db:"sent"`
	SentAt     *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// NotificationSchedule per-tenant reminder cadence (notification_schedules
// table). Exactly one active schedule per tenant; creating a new one
// deactivates the prior.
type NotificationSchedule struct {
	ScheduleID    string           `json:"schedule_id" db:"schedule_id"`
	TenantID      string           `json:"tenant_id" db:"tenant_id"`
	DaysBeforeDue []int            `json:"days_before_due" db:"-"` // JSONB
	DaysAfterDue  []int            `json:"days_after_due" db:"-"`  // JSONB
	Methods       []DeliveryMethod `json:"methods" db:"-"`         // JSONB
	IsActive      bool             `json:"is_active" db:"is_active"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// BulkJobStatus batch run states.
type BulkJobStatus string

const (
	BulkJobPending    BulkJobStatus = "pending"
	BulkJobProcessing BulkJobStatus = "processing"
	BulkJobCompleted  BulkJobStatus = "completed"
)

// BulkReminderJob is the record of one reminder dispatch batch
// (bulk_reminder_jobs table).
type BulkReminderJob struct {
	JobID       string        `json:"job_id" db:"job_id"`
	Status      BulkJobStatus `json:"status" db:"status"`
	Total       int           `json:"total" db:"total"`
	Processed   int           `json:"processed" db:"processed"`
	Succeeded   int           `json:"succeeded" db:"succeeded"`
	Failed      int           `json:"failed" db:"failed"`
	Errors      []string      `json:"errors,omitempty" db:"-"` // JSONB
	StartedAt   time.Time     `json:"started_at" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// MessageTemplate renders one (type, method) notification. Body supports
// {{amount}}, {{due_date}}, {{property}} placeholders.
type MessageTemplate struct {
	TemplateID string         `json:"template_id"`
	Type       ReminderType   `json:"type"`
	Method     DeliveryMethod `json:"method"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	IsDefault  bool           `json:"is_default"`
}
