package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentpay-engine/internal/models"
	"rentpay-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransitionError rejects a payment state change outside the allowed
// machine: pending -> processing -> {completed, failed}, completed -> disputed.
type TransitionError struct {
	PaymentID string
	From      models.PaymentStatus
	To        models.PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payment %s: invalid transition %s -> %s", e.PaymentID, e.From, e.To)
}

// LimitError rejects a charge that would exceed an instrument limit.
type LimitError struct {
	InstrumentID string
	Window       string // per_transaction, daily, monthly
	Limit        int64
	Attempted    int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("instrument %s: %s limit %d exceeded by attempted %d", e.InstrumentID, e.Window, e.Limit, e.Attempted)
}

// CreateSpec is the caller-supplied shape of a new payment obligation.
type CreateSpec struct {
	TenantID     string
	PropertyID   string
	PropertyType string
	Amount       int64
	DueDate      time.Time
}

// Ledger owns the lifecycle record of each payment. Every mutation goes
// through a named transition; anything else is rejected.
type Ledger struct {
	payments    repository.PaymentsRepo
	instruments repository.InstrumentsRepo
	logger      *zap.Logger

	now func() time.Time
}

// New creates the payment ledger.
func New(payments repository.PaymentsRepo, instruments repository.InstrumentsRepo, logger *zap.Logger) *Ledger {
	return &Ledger{
		payments:    payments,
		instruments: instruments,
		logger:      logger,
		now:         time.Now,
	}
}

// Create records a new pending payment obligation.
func (l *Ledger) Create(ctx context.Context, spec CreateSpec) (*models.Payment, error) {
	if spec.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount: %d", spec.Amount)
	}
	if spec.TenantID == "" || spec.PropertyID == "" {
		return nil, fmt.Errorf("tenant id and property id are required")
	}

	now := l.now()
	p := &models.Payment{
		PaymentID:    uuid.New().String(),
		TenantID:     spec.TenantID,
		PropertyID:   spec.PropertyID,
		PropertyType: spec.PropertyType,
		Amount:       spec.Amount,
		DueDate:      spec.DueDate,
		Status:       models.PaymentStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := l.payments.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	l.logger.Info("Payment created",
		zap.String("payment_id", p.PaymentID),
		zap.String("tenant_id", p.TenantID),
		zap.Int64("amount", p.Amount),
	)
	return p, nil
}

// Get fetches one payment within the tenant scope.
func (l *Ledger) Get(ctx context.Context, tenantID, paymentID string) (*models.Payment, error) {
	return l.payments.GetPayment(ctx, tenantID, paymentID)
}

// MarkProcessing moves a pending payment into processing once an instrument
// and a provider transaction id have been assigned. The processing fee is
// annotated at the same time so the cost is fixed at submission.
func (l *Ledger) MarkProcessing(ctx context.Context, p *models.Payment, instrumentID, transactionID string, processingFee int64) error {
	if p.Status != models.PaymentStatusPending {
		return &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: models.PaymentStatusProcessing}
	}
	if instrumentID == "" || transactionID == "" {
		return fmt.Errorf("payment %s: instrument and transaction id are required to start processing", p.PaymentID)
	}

	now := l.now()
	p.Status = models.PaymentStatusProcessing
	p.InstrumentID = &instrumentID
	p.TransactionID = &transactionID
	if processingFee > 0 {
		p.Fees = append(p.Fees, models.Fee{FeeType: "processing", Amount: processingFee, AppliedAt: now})
	}
	p.UpdatedAt = now

	if err := l.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to mark payment processing: %w", err)
	}

	l.logger.Info("Payment submitted for processing",
		zap.String("payment_id", p.PaymentID),
		zap.String("instrument_id", instrumentID),
		zap.String("transaction_id", transactionID),
		zap.Int64("processing_fee", processingFee),
	)
	return nil
}

// Complete settles a processing payment: paid date is stamped and a
// confirmation code generated.
func (l *Ledger) Complete(ctx context.Context, p *models.Payment) error {
	if p.Status != models.PaymentStatusProcessing {
		return &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: models.PaymentStatusCompleted}
	}

	now := l.now()
	confirmation := confirmationCode()
	p.Status = models.PaymentStatusCompleted
	p.PaidDate = &now
	p.Confirmation = &confirmation
	p.FailureReason = nil
	p.UpdatedAt = now

	if err := l.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}

	l.logger.Info("Payment completed",
		zap.String("payment_id", p.PaymentID),
		zap.String("confirmation", confirmation),
	)
	return nil
}

// Fail records a settlement failure with the provider's reason.
func (l *Ledger) Fail(ctx context.Context, p *models.Payment, reason string) error {
	if p.Status != models.PaymentStatusProcessing {
		return &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: models.PaymentStatusFailed}
	}

	now := l.now()
	p.Status = models.PaymentStatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = now

	if err := l.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}

	l.logger.Warn("Payment failed",
		zap.String("payment_id", p.PaymentID),
		zap.String("reason", reason),
	)
	return nil
}

// Dispute flags a completed payment as disputed. Reversal handling itself
// happens downstream.
func (l *Ledger) Dispute(ctx context.Context, p *models.Payment) error {
	if p.Status != models.PaymentStatusCompleted {
		return &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: models.PaymentStatusDisputed}
	}

	p.Status = models.PaymentStatusDisputed
	p.UpdatedAt = l.now()

	if err := l.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to dispute payment: %w", err)
	}

	l.logger.Warn("Payment disputed", zap.String("payment_id", p.PaymentID))
	return nil
}

// CheckInstrument verifies the instrument may carry the charge: it must be
// active and verified, and the amount must fit the per-transaction, daily
// and monthly limits. A zero limit means the window is uncapped.
func (l *Ledger) CheckInstrument(ctx context.Context, tenantID, instrumentID string, amount int64) (*models.PaymentInstrument, error) {
	inst, err := l.instruments.GetInstrument(ctx, tenantID, instrumentID)
	if err != nil {
		return nil, err
	}
	if !inst.IsActive {
		return nil, fmt.Errorf("instrument %s is inactive", instrumentID)
	}
	if !inst.Verified {
		return nil, fmt.Errorf("instrument %s is not verified", instrumentID)
	}

	if lim := inst.Limits.PerTransaction; lim > 0 && amount > lim {
		return nil, &LimitError{InstrumentID: instrumentID, Window: "per_transaction", Limit: lim, Attempted: amount}
	}

	now := l.now()
	if lim := inst.Limits.Daily; lim > 0 {
		spent, err := l.payments.SumByInstrumentSince(ctx, instrumentID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("failed to check daily spend: %w", err)
		}
		if spent+amount > lim {
			return nil, &LimitError{InstrumentID: instrumentID, Window: "daily", Limit: lim, Attempted: spent + amount}
		}
	}
	if lim := inst.Limits.Monthly; lim > 0 {
		spent, err := l.payments.SumByInstrumentSince(ctx, instrumentID, now.AddDate(0, -1, 0))
		if err != nil {
			return nil, fmt.Errorf("failed to check monthly spend: %w", err)
		}
		if spent+amount > lim {
			return nil, &LimitError{InstrumentID: instrumentID, Window: "monthly", Limit: lim, Attempted: spent + amount}
		}
	}

	return inst, nil
}

// AddLateFee annotates a late fee on a pending past-due payment.
func (l *Ledger) AddLateFee(ctx context.Context, p *models.Payment, amount int64) error {
	if p.Status != models.PaymentStatusPending {
		return fmt.Errorf("payment %s: late fee only applies while pending", p.PaymentID)
	}
	if amount <= 0 {
		return fmt.Errorf("invalid late fee amount: %d", amount)
	}

	now := l.now()
	p.Fees = append(p.Fees, models.Fee{FeeType: "late", Amount: amount, AppliedAt: now})
	p.UpdatedAt = now
	if err := l.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to add late fee: %w", err)
	}
	return nil
}

func confirmationCode() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}
