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

// AutoPayRepo persistence boundary for auto-pay configurations.
type AutoPayRepo interface {
	GetEnabledConfig(ctx context.Context, tenantID string) (*models.AutoPayConfiguration, error)
	CreateConfig(ctx context.Context, cfg *models.AutoPayConfiguration) error
	DisableConfig(ctx context.Context, tenantID, configID string) error
}

// PostgresAutoPayRepo autopay_configs table access.
type PostgresAutoPayRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAutoPayRepo creates the postgres-backed auto-pay repository.
func NewPostgresAutoPayRepo(db *sql.DB, logger *zap.Logger) *PostgresAutoPayRepo {
	return &PostgresAutoPayRepo{db: db, logger: logger}
}

// GetEnabledConfig returns the tenant's enabled configuration, or nil when
// auto-pay is not set up.
func (r *PostgresAutoPayRepo) GetEnabledConfig(ctx context.Context, tenantID string) (*models.AutoPayConfiguration, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT config_id, tenant_id, instrument_id, max_retries, retry_days, failure_actions, is_enabled, created_at, updated_at
		FROM autopay_configs
		WHERE tenant_id = $1 AND is_enabled = true`

	var cfg models.AutoPayConfiguration
	var retryJSON, actionsJSON []byte

	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cfg.ConfigID, &cfg.TenantID, &cfg.InstrumentID, &cfg.MaxRetries,
		&retryJSON, &actionsJSON, &cfg.IsEnabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get autopay config: %w", err)
	}

	if err := json.Unmarshal(retryJSON, &cfg.RetryDays); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry_days: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &cfg.FailureActions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure_actions: %w", err)
	}

	return &cfg, nil
}

// CreateConfig inserts a new configuration, disabling the tenant's prior one
// in the same transaction.
func (r *PostgresAutoPayRepo) CreateConfig(ctx context.Context, cfg *models.AutoPayConfiguration) error {
	retryJSON, err := json.Marshal(cfg.RetryDays)
	if err != nil {
		return fmt.Errorf("failed to marshal retry_days: %w", err)
	}
	actionsJSON, err := json.Marshal(cfg.FailureActions)
	if err != nil {
		return fmt.Errorf("failed to marshal failure_actions: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE autopay_configs SET is_enabled = false, updated_at = $1 WHERE tenant_id = $2`,
		time.Now(), cfg.TenantID,
	); err != nil {
		return fmt.Errorf("failed to disable prior configs: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO autopay_configs (config_id, tenant_id, instrument_id, max_retries, retry_days, failure_actions, is_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cfg.ConfigID, cfg.TenantID, cfg.InstrumentID, cfg.MaxRetries,
		retryJSON, actionsJSON, cfg.IsEnabled, cfg.CreatedAt, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create autopay config: %w", err)
	}

	return tx.Commit()
}

// DisableConfig flips is_enabled off. Used by the disable_autopay failure action.
func (r *PostgresAutoPayRepo) DisableConfig(ctx context.Context, tenantID, configID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE autopay_configs SET is_enabled = false, updated_at = $1 WHERE config_id = $2 AND tenant_id = $3`,
		time.Now(), configID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to disable autopay config: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("autopay config not found: %s", configID)
	}

	return nil
}
