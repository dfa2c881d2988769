package service

import (
	"context"
	"fmt"
	"time"

	"rentpay-engine/internal/ledger"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/providers"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessResult is the synchronous outcome of a payment submission. Accepted
// means the charge was handed to the processor; the terminal state arrives
// later on the settlement stream.
type ProcessResult struct {
	Accepted      bool   `json:"accepted"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// GetPaymentMethods lists the tenant's stored instruments.
func (e *Engine) GetPaymentMethods(ctx context.Context, tenantID string) ([]models.PaymentInstrument, error) {
	return e.instruments.ListByTenant(ctx, tenantID)
}

// LinkBankInstrument exchanges a bank-linking handshake token for a verified
// connection and stores it as a payment instrument. The first instrument a
// tenant links becomes their default.
func (e *Engine) LinkBankInstrument(ctx context.Context, tenantID, publicToken string) (*models.PaymentInstrument, error) {
	conn, err := e.bankLink.ExchangeToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	existing, err := e.instruments.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inst := &models.PaymentInstrument{
		InstrumentID: uuid.New().String(),
		TenantID:     tenantID,
		Type:         models.InstrumentBankTransfer,
		ConnectionID: &conn.ConnectionID,
		Mask:         conn.AccountMask,
		Institution:  conn.Institution,
		Limits:       conn.Limits,
		Verified:     conn.Verified,
		IsDefault:    len(existing) == 0,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.instruments.CreateInstrument(ctx, inst); err != nil {
		return nil, err
	}

	e.logger.Info("linked bank instrument",
		zap.String("tenant_id", tenantID),
		zap.String("instrument_id", inst.InstrumentID),
		zap.String("institution", inst.Institution))
	return inst, nil
}

// SetDefaultInstrument marks the given instrument as the tenant's default.
func (e *Engine) SetDefaultInstrument(ctx context.Context, tenantID, instrumentID string) error {
	inst, err := e.instruments.GetInstrument(ctx, tenantID, instrumentID)
	if err != nil {
		return err
	}
	if !inst.IsActive {
		return fmt.Errorf("instrument %s is inactive", instrumentID)
	}
	return e.instruments.SetDefault(ctx, tenantID, instrumentID)
}

// CreatePayment records a new pending obligation.
func (e *Engine) CreatePayment(ctx context.Context, spec ledger.CreateSpec) (*models.Payment, error) {
	return e.ledger.Create(ctx, spec)
}

// DetermineRoute picks the destination account, fee and settlement estimate
// for a payment using its assigned instrument, or the tenant default when
// none is assigned yet.
func (e *Engine) DetermineRoute(ctx context.Context, p *models.Payment) (*models.RoutingResult, error) {
	inst, err := e.resolveInstrument(ctx, p)
	if err != nil {
		return nil, err
	}
	return e.router.Route(ctx, p, inst.Type, "low")
}

// AssessRisk scores a payment attempt, loading the tenant's recent history.
func (e *Engine) AssessRisk(ctx context.Context, p *models.Payment, reqCtx *models.RequestContext) (*models.RiskAssessment, error) {
	history, err := e.payments.RecentHistory(ctx, p.TenantID, e.historyWindow())
	if err != nil {
		return nil, err
	}
	assessment, err := e.scorer.Assess(ctx, p, reqCtx, history)
	if err != nil {
		return nil, err
	}
	if err := e.audit.RecordRiskAssessment(ctx, assessment); err != nil {
		e.logger.Warn("Failed to record risk assessment", zap.Error(err))
	}
	return assessment, nil
}

// ValidateCompliance runs the data-protection gate and records the outcome.
func (e *Engine) ValidateCompliance(ctx context.Context, tenantID, paymentID string, data *models.PaymentData, reqCtx *models.RequestContext) (*models.ComplianceResult, error) {
	result := e.gate.Validate(data, reqCtx)
	if err := e.audit.RecordComplianceResult(ctx, tenantID, paymentID, result); err != nil {
		e.logger.Warn("Failed to record compliance result", zap.Error(err))
	}
	return result, nil
}

// ProcessPayment runs the full submission pipeline for one pending payment:
// rate limit, instrument limits, compliance, risk, routing, then the charge.
// On acceptance the payment moves to processing and settles asynchronously.
func (e *Engine) ProcessPayment(ctx context.Context, tenantID, paymentID, instrumentID string, reqCtx *models.RequestContext) (*ProcessResult, error) {
	allowed, err := e.limiter.Allow(ctx, reqCtx.UserID, reqCtx.OriginAddress)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &ProcessResult{Error: "too many payment attempts, retry later"}, nil
	}

	p, err := e.ledger.Get(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return &ProcessResult{Error: fmt.Sprintf("payment is %s, not pending", p.Status)}, nil
	}

	total := p.Amount + p.TotalFees()
	inst, err := e.ledger.CheckInstrument(ctx, tenantID, instrumentID, total)
	if err != nil {
		return &ProcessResult{Error: err.Error()}, nil
	}

	complianceResult, err := e.ValidateCompliance(ctx, tenantID, paymentID, storedDataFor(inst), reqCtx)
	if err != nil {
		return nil, err
	}
	if !complianceResult.Compliant {
		return &ProcessResult{Error: fmt.Sprintf("compliance check failed with %d violations", len(complianceResult.Violations))}, nil
	}

	assessment, err := e.AssessRisk(ctx, p, reqCtx)
	if err != nil {
		return nil, err
	}
	switch assessment.Action {
	case models.RiskActionBlock:
		return &ProcessResult{Error: "transaction blocked by risk policy"}, nil
	case models.RiskActionReview:
		return &ProcessResult{Error: "transaction held for manual review"}, nil
	case models.RiskActionChallenge:
		return &ProcessResult{Error: "additional verification required"}, nil
	}

	route, err := e.router.Route(ctx, p, inst.Type, riskBand(assessment.Score))
	if err != nil {
		return nil, err
	}

	charge, err := e.charger.SubmitCharge(ctx, providers.ChargeRequest{
		InstrumentID: instrumentID,
		Amount:       total + route.Fee,
		Memo:         fmt.Sprintf("rent payment %s", p.PaymentID),
		AccountID:    route.Account.AccountID,
	})
	if err != nil {
		return nil, err
	}
	if charge.Status != "accepted" {
		return &ProcessResult{Error: fmt.Sprintf("charge rejected: %s", charge.Reason)}, nil
	}

	if err := e.ledger.MarkProcessing(ctx, p, instrumentID, charge.TransactionID, route.Fee); err != nil {
		return nil, err
	}

	e.logger.Info("Payment accepted for processing",
		zap.String("payment_id", p.PaymentID),
		zap.String("transaction_id", charge.TransactionID),
		zap.String("account_id", route.Account.AccountID),
		zap.Int64("fee", route.Fee),
		zap.Time("estimated_settlement", route.EstimatedSettlement),
	)
	return &ProcessResult{Accepted: true, TransactionID: charge.TransactionID}, nil
}

// GenerateUpcomingReminders delegates to the reminder scheduler.
func (e *Engine) GenerateUpcomingReminders(ctx context.Context, payments []models.Payment) ([]models.Reminder, error) {
	return e.reminderSched.GenerateUpcomingReminders(ctx, payments)
}

// ProcessPendingReminders dispatches one batch of unsent reminders.
func (e *Engine) ProcessPendingReminders(ctx context.Context) (*models.BulkReminderJob, error) {
	return e.reminderSched.ProcessPendingReminders(ctx)
}

// SetupAutoPay activates a new auto-pay configuration after verifying the
// chosen instrument belongs to the tenant and is usable.
func (e *Engine) SetupAutoPay(ctx context.Context, cfg *models.AutoPayConfiguration) (*models.AutoPayConfiguration, error) {
	inst, err := e.instruments.GetInstrument(ctx, cfg.TenantID, cfg.InstrumentID)
	if err != nil {
		return nil, err
	}
	if !inst.IsActive || !inst.Verified {
		return nil, fmt.Errorf("instrument %s is not usable for auto-pay", cfg.InstrumentID)
	}
	return e.autopayProc.SetupAutoPay(ctx, cfg)
}

// ProcessAutoPayments runs one unattended charge sweep.
func (e *Engine) ProcessAutoPayments(ctx context.Context, payments []models.Payment) (*models.AutoPaySweepResult, error) {
	return e.autopayProc.ProcessAutoPayments(ctx, payments)
}

// submitForAutoPay is the charge pipeline handed to the auto-pay processor.
// Unattended charges skip the rate limiter and use a synthetic request
// context representing the scheduler itself.
func (e *Engine) submitForAutoPay(ctx context.Context, p *models.Payment, instrumentID string) error {
	total := p.Amount + p.TotalFees()
	inst, err := e.ledger.CheckInstrument(ctx, p.TenantID, instrumentID, total)
	if err != nil {
		return err
	}

	route, err := e.router.Route(ctx, p, inst.Type, "low")
	if err != nil {
		return err
	}

	charge, err := e.charger.SubmitCharge(ctx, providers.ChargeRequest{
		InstrumentID: instrumentID,
		Amount:       total + route.Fee,
		Memo:         fmt.Sprintf("auto-pay %s", p.PaymentID),
		AccountID:    route.Account.AccountID,
	})
	if err != nil {
		return err
	}
	if charge.Status != "accepted" {
		return fmt.Errorf("charge rejected: %s", charge.Reason)
	}

	return e.ledger.MarkProcessing(ctx, p, instrumentID, charge.TransactionID, route.Fee)
}

// resolveInstrument returns the payment's assigned instrument, or the
// tenant's default active one.
func (e *Engine) resolveInstrument(ctx context.Context, p *models.Payment) (*models.PaymentInstrument, error) {
	if p.InstrumentID != nil {
		return e.instruments.GetInstrument(ctx, p.TenantID, *p.InstrumentID)
	}

	all, err := e.instruments.ListByTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].IsDefault && all[i].IsActive {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("tenant %s has no default payment instrument", p.TenantID)
}

// storedDataFor builds the structured stored representation of an instrument
// for the compliance gate. References are the provider vault tokens.
func storedDataFor(inst *models.PaymentInstrument) *models.PaymentData {
	switch inst.Type {
	case models.InstrumentCard:
		token := ""
		if inst.CardToken != nil {
			token = *inst.CardToken
		}
		return &models.PaymentData{
			Type: models.InstrumentCard,
			Card: &models.StoredCardData{
				CardToken:        token,
				LastFour:         inst.Mask,
				EncryptionScheme: "aes-256-gcm",
			},
		}
	default:
		connID := ""
		if inst.ConnectionID != nil {
			connID = *inst.ConnectionID
		}
		return &models.PaymentData{
			Type: models.InstrumentBankTransfer,
			Bank: &models.StoredBankData{
				ConnectionID:     connID,
				AccountReference: "ref-acct-" + inst.Mask,
				RoutingReference: "ref-rtn-" + connID,
				EncryptionScheme: "aes-256-gcm",
			},
		}
	}
}

// riskBand maps a score to the coarse band routing rules may condition on.
func riskBand(score int) string {
	switch {
	case score > 60:
		return "high"
	case score > 40:
		return "medium"
	default:
		return "low"
	}
}

// historyWindow bounds how far back risk scoring looks.
func (e *Engine) historyWindow() time.Time {
	return time.Now().Add(-30 * 24 * time.Hour)
}
