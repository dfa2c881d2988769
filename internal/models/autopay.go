package models

import (
	"time"
)

// FailureAction one configured reaction to a failed auto-pay attempt. All
// configured actions run independently; this is not a first-match choice.
type FailureAction string

const (
	FailureNotifyEmail    FailureAction = "notify_email"
	FailureNotifySMS      FailureAction = "notify_sms"
	FailureDisableAutoPay FailureAction = "disable_autopay"
	FailureManualReminder FailureAction = "manual_reminder"
)

// AutoPayConfiguration per-tenant unattended charge setup (autopay_configs
// table). One active configuration per tenant.
type AutoPayConfiguration struct {
	ConfigID       string          `json:"config_id" db:"config_id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	InstrumentID   string          `json:"instrument_id" db:"instrument_id"`
	MaxRetries     int             `json:"max_retries" db:"max_retries"`
	RetryDays      []int           `json:"retry_days" db:"-"` // day offsets past due, JSONB
	FailureActions []FailureAction `json:"failure_actions" db:"-"` // JSONB, ordered
	IsEnabled      bool            `json:"is_enabled" db:"is_enabled"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// AutoPaySweepResult counters for one auto-pay batch run.
type AutoPaySweepResult struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}
