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

// AuditRepo append-only trail for risk assessments and compliance results.
type AuditRepo interface {
	RecordRiskAssessment(ctx context.Context, a *models.RiskAssessment) error
	RecordComplianceResult(ctx context.Context, tenantID, paymentID string, res *models.ComplianceResult) error
}

// PostgresAuditRepo audit_trail table access.
type PostgresAuditRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAuditRepo creates the postgres-backed audit repository.
func NewPostgresAuditRepo(db *sql.DB, logger *zap.Logger) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db, logger: logger}
}

// RecordRiskAssessment appends one assessment to the trail.
func (r *PostgresAuditRepo) RecordRiskAssessment(ctx context.Context, a *models.RiskAssessment) error {
	detail, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_trail (entry_id, tenant_id, payment_id, entry_type, detail, created_at)
		 VALUES ($1, $2, $3, 'risk_assessment', $4, $5)`,
		a.AssessmentID, a.TenantID, a.PaymentID, detail, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}

	return nil
}

// RecordComplianceResult appends one gate result to the trail.
func (r *PostgresAuditRepo) RecordComplianceResult(ctx context.Context, tenantID, paymentID string, res *models.ComplianceResult) error {
	detail, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal compliance result: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_trail (entry_id, tenant_id, payment_id, entry_type, detail, created_at)
		 VALUES (gen_random_uuid(), $1, $2, 'compliance_result', $3, $4)`,
		tenantID, paymentID, detail, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record compliance result: %w", err)
	}

	return nil
}
