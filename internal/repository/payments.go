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

// PaymentsRepo is the persistence boundary for payment lifecycle records.
// Engine logic depends only on this contract, never on a concrete store.
type PaymentsRepo interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, tenantID, paymentID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
	ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]models.Payment, error)
	RecentHistory(ctx context.Context, tenantID string, since time.Time) ([]models.TransactionRecord, error)
	SumByInstrumentSince(ctx context.Context, instrumentID string, since time.Time) (int64, error)
}

// PostgresPaymentsRepo payments table access.
type PostgresPaymentsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPaymentsRepo creates the postgres-backed payments repository.
func NewPostgresPaymentsRepo(db *sql.DB, logger *zap.Logger) *PostgresPaymentsRepo {
	return &PostgresPaymentsRepo{db: db, logger: logger}
}

const paymentColumns = `payment_id, tenant_id, property_id, property_type, amount, due_date,
	status, paid_date, instrument_id, transaction_id, failure_reason,
	confirmation_code, fees, created_at, updated_at`

// CreatePayment inserts a new payment record.
func (r *PostgresPaymentsRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	feesJSON, err := json.Marshal(p.Fees)
	if err != nil {
		return fmt.Errorf("failed to marshal fees: %w", err)
	}

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.ExecContext(ctx, query,
		p.PaymentID, p.TenantID, p.PropertyID, p.PropertyType, p.Amount, p.DueDate,
		p.Status, p.PaidDate, p.InstrumentID, p.TransactionID, p.FailureReason,
		p.Confirmation, feesJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetPayment fetches one payment scoped by tenant.
func (r *PostgresPaymentsRepo) GetPayment(ctx context.Context, tenantID, paymentID string) (*models.Payment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1 AND tenant_id = $2`

	row := r.db.QueryRowContext(ctx, query, paymentID, tenantID)
	p, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment not found: %s", paymentID)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// UpdatePayment persists mutable payment fields. The ledger is the only
// caller; state transition legality is enforced there.
func (r *PostgresPaymentsRepo) UpdatePayment(ctx context.Context, p *models.Payment) error {
	feesJSON, err := json.Marshal(p.Fees)
	if err != nil {
		return fmt.Errorf("failed to marshal fees: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $1, paid_date = $2, instrument_id = $3, transaction_id = $4,
		    failure_reason = $5, confirmation_code = $6, fees = $7, updated_at = $8
		WHERE payment_id = $9 AND tenant_id = $10`

	result, err := r.db.ExecContext(ctx, query,
		p.Status, p.PaidDate, p.InstrumentID, p.TransactionID,
		p.FailureReason, p.Confirmation, feesJSON, time.Now(),
		p.PaymentID, p.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("payment not found: %s", p.PaymentID)
	}

	return nil
}

// ListByStatus returns all payments in the given status across tenants.
// Used by the scheduler sweeps.
func (r *PostgresPaymentsRepo) ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 ORDER BY due_date ASC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// ListProcessingBefore returns payments stuck in processing since before
// cutoff. Used by the settlement SLA watchdog.
func (r *PostgresPaymentsRepo) ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'processing' AND updated_at < $1`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale processing payments: %w", err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// RecentHistory returns the tenant's charged transactions since the given
// time, newest first. Feeds the risk sub-scorers.
func (r *PostgresPaymentsRepo) RecentHistory(ctx context.Context, tenantID string, since time.Time) ([]models.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT payment_id, tenant_id, COALESCE(instrument_id, ''), amount, updated_at
		FROM payments
		WHERE tenant_id = $1 AND status IN ('processing', 'completed') AND updated_at >= $2
		ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		if err := rows.Scan(&rec.PaymentID, &rec.TenantID, &rec.InstrumentID, &rec.Amount, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SumByInstrumentSince totals the amounts charged through one instrument
// since the given time. Used for daily/monthly limit checks.
func (r *PostgresPaymentsRepo) SumByInstrumentSince(ctx context.Context, instrumentID string, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE instrument_id = $1 AND status IN ('processing', 'completed') AND updated_at >= $2`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, instrumentID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum instrument charges: %w", err)
	}

	return total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var feesJSON []byte

	err := row.Scan(
		&p.PaymentID, &p.TenantID, &p.PropertyID, &p.PropertyType, &p.Amount, &p.DueDate,
		&p.Status, &p.PaidDate, &p.InstrumentID, &p.TransactionID, &p.FailureReason,
		&p.Confirmation, &feesJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(feesJSON) > 0 {
		if err := json.Unmarshal(feesJSON, &p.Fees); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fees: %w", err)
		}
	}

	return &p, nil
}

func scanPayments(rows *sql.Rows) ([]models.Payment, error) {
	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
