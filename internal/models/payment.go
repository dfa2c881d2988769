package models

import (
	"time"
)

// PaymentStatus lifecycle states for a payment record.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusDisputed   PaymentStatus = "disputed"
)

// Payment is the lifecycle record of one rent obligation (payments table).
// Amounts are integer minor-currency units (cents), never floating point.
type Payment struct {
	PaymentID     string        `json:"payment_id" db:"payment_id"`
	TenantID      string        `json:"tenant_id" db:"tenant_id"`
	PropertyID    string        `json:"property_id" db:"property_id"`
	PropertyType  string        `json:"property_type,omitempty" db:"property_type"` // residential, commercial
	Amount        int64         `json:"amount" db:"amount"`
	DueDate       time.Time     `json:"due_date" db:"due_date"`
	Status        PaymentStatus `json:"status" db:"status"`
	PaidDate      *time.Time    `json:"paid_date,omitempty" db:"paid_date"` // set iff status=completed
	InstrumentID  *string       `json:"instrument_id,omitempty" db:"instrument_id"`
	TransactionID *string       `json:"transaction_id,omitempty" db:"transaction_id"`
	FailureReason *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	Confirmation  *string       `json:"confirmation_code,omitempty" db:"confirmation_code"`
	Fees          []Fee         `json:"fees,omitempty" db:"-"` // stored as JSONB
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Fee is one fee annotation on a payment (processing fee, late fee).
type Fee struct {
	FeeType   string    `json:"fee_type"` // processing, late
	Amount    int64     `json:"amount"`
	AppliedAt time.Time `json:"applied_at"`
}

// IsTerminal reports whether no further settlement transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusDisputed
}

// TotalFees sums all fee annotations.
func (p *Payment) TotalFees() int64 {
	var total int64
	for _, f := range p.Fees {
		total += f.Amount
	}
	return total
}

// DaysUntilDue returns whole days from now until the due date (negative when
// past due). The comparison is calendar-day based, not clock based.
func (p *Payment) DaysUntilDue(now time.Time) int {
	due := time.Date(p.DueDate.Year(), p.DueDate.Month(), p.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(due.Sub(today).Hours() / 24)
}
