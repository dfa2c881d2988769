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

// InstrumentsRepo persistence boundary for tenant payment instruments.
type InstrumentsRepo interface {
	ListByTenant(ctx context.Context, tenantID string) ([]models.PaymentInstrument, error)
	GetInstrument(ctx context.Context, tenantID, instrumentID string) (*models.PaymentInstrument, error)
	CreateInstrument(ctx context.Context, inst *models.PaymentInstrument) error
	SetDefault(ctx context.Context, tenantID, instrumentID string) error
	SetActive(ctx context.Context, tenantID, instrumentID string, active bool) error
}

// PostgresInstrumentsRepo payment_instruments table access.
type PostgresInstrumentsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresInstrumentsRepo creates the postgres-backed instruments repository.
func NewPostgresInstrumentsRepo(db *sql.DB, logger *zap.Logger) *PostgresInstrumentsRepo {
	return &PostgresInstrumentsRepo{db: db, logger: logger}
}

const instrumentColumns = `instrument_id, tenant_id, type, connection_id, card_token, mask,
	institution, limits, verified, is_default, is_active, created_at, updated_at`

// ListByTenant returns the tenant's active instruments, default first.
func (r *PostgresInstrumentsRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.PaymentInstrument, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT ` + instrumentColumns + `
		FROM payment_instruments
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY is_default DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []models.PaymentInstrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument row: %w", err)
		}
		instruments = append(instruments, *inst)
	}

	return instruments, rows.Err()
}

// GetInstrument fetches one instrument scoped by tenant.
func (r *PostgresInstrumentsRepo) GetInstrument(ctx context.Context, tenantID, instrumentID string) (*models.PaymentInstrument, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + instrumentColumns + ` FROM payment_instruments WHERE instrument_id = $1 AND tenant_id = $2`

	inst, err := scanInstrument(r.db.QueryRowContext(ctx, query, instrumentID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("instrument not found: %s", instrumentID)
		}
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}

	return inst, nil
}

// CreateInstrument inserts a new instrument.
func (r *PostgresInstrumentsRepo) CreateInstrument(ctx context.Context, inst *models.PaymentInstrument) error {
	limitsJSON, err := json.Marshal(inst.Limits)
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	query := `
		INSERT INTO payment_instruments (` + instrumentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		inst.InstrumentID, inst.TenantID, inst.Type, inst.ConnectionID, inst.CardToken,
		inst.Mask, inst.Institution, limitsJSON, inst.Verified, inst.IsDefault,
		inst.IsActive, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create instrument: %w", err)
	}

	return nil
}

// SetDefault marks one instrument as default and clears the flag on the
// tenant's others, in a single transaction.
func (r *PostgresInstrumentsRepo) SetDefault(ctx context.Context, tenantID, instrumentID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_instruments SET is_default = false, updated_at = $1 WHERE tenant_id = $2`,
		time.Now(), tenantID,
	); err != nil {
		return fmt.Errorf("failed to clear default flags: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE payment_instruments SET is_default = true, updated_at = $1 WHERE instrument_id = $2 AND tenant_id = $3`,
		time.Now(), instrumentID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("instrument not found: %s", instrumentID)
	}

	return tx.Commit()
}

// SetActive toggles the active flag.
func (r *PostgresInstrumentsRepo) SetActive(ctx context.Context, tenantID, instrumentID string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_instruments SET is_active = $1, updated_at = $2 WHERE instrument_id = $3 AND tenant_id = $4`,
		active, time.Now(), instrumentID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("instrument not found: %s", instrumentID)
	}

	return nil
}

func scanInstrument(row rowScanner) (*models.PaymentInstrument, error) {
	var inst models.PaymentInstrument
	var limitsJSON []byte

	err := row.Scan(
		&inst.InstrumentID, &inst.TenantID, &inst.Type, &inst.ConnectionID, &inst.CardToken,
		&inst.Mask, &inst.Institution, &limitsJSON, &inst.Verified, &inst.IsDefault,
		&inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &inst.Limits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
		}
	}

	return &inst, nil
}
