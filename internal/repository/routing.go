package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rentpay-engine/internal/models"

	"go.uber.org/zap"
)

// RoutingRepo persistence boundary for routing rules and business accounts.
type RoutingRepo interface {
	ListActiveRules(ctx context.Context, orgID string) ([]models.RoutingRule, error)
	GetAccount(ctx context.Context, accountID string) (*models.BusinessAccount, error)
	GetPrimaryAccount(ctx context.Context, orgID string) (*models.BusinessAccount, error)
}

// PostgresRoutingRepo routing_rules and business_accounts table access.
type PostgresRoutingRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRoutingRepo creates the postgres-backed routing repository.
func NewPostgresRoutingRepo(db *sql.DB, logger *zap.Logger) *PostgresRoutingRepo {
	return &PostgresRoutingRepo{db: db, logger: logger}
}

// ListActiveRules returns the org's active rules ordered by ascending
// priority. The routing engine evaluates them first-match-wins.
func (r *PostgresRoutingRepo) ListActiveRules(ctx context.Context, orgID string) ([]models.RoutingRule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("org_id is required")
	}

	query := `
		SELECT rule_id, org_id, name, priority, conditions, COALESCE(expression, ''),
		       account_id, is_default, is_active, created_at
		FROM routing_rules
		WHERE org_id = $1 AND is_active = true
		ORDER BY priority ASC`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}
	defer rows.Close()

	var rules []models.RoutingRule
	for rows.Next() {
		var rule models.RoutingRule
		var condJSON []byte
		if err := rows.Scan(
			&rule.RuleID, &rule.OrgID, &rule.Name, &rule.Priority, &condJSON, &rule.Expression,
			&rule.AccountID, &rule.IsDefault, &rule.IsActive, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		if len(condJSON) > 0 {
			if err := json.Unmarshal(condJSON, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rule conditions: %w", err)
			}
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

const accountColumns = `account_id, org_id, name, account_mask, is_primary, is_active, processing_days, created_at`

// GetAccount fetches one business account.
func (r *PostgresRoutingRepo) GetAccount(ctx context.Context, accountID string) (*models.BusinessAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM business_accounts WHERE account_id = $1`

	acct, err := scanAccount(r.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("business account not found: %s", accountID)
		}
		return nil, fmt.Errorf("failed to get business account: %w", err)
	}

	return acct, nil
}

// GetPrimaryAccount fetches the org's primary settlement account. Exactly one
// primary exists per org by schema constraint.
func (r *PostgresRoutingRepo) GetPrimaryAccount(ctx context.Context, orgID string) (*models.BusinessAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM business_accounts WHERE org_id = $1 AND is_primary = true AND is_active = true`

	acct, err := scanAccount(r.db.QueryRowContext(ctx, query, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no primary business account for org: %s", orgID)
		}
		return nil, fmt.Errorf("failed to get primary business account: %w", err)
	}

	return acct, nil
}

func scanAccount(row rowScanner) (*models.BusinessAccount, error) {
	var acct models.BusinessAccount
	var daysJSON []byte

	err := row.Scan(
		&acct.AccountID, &acct.OrgID, &acct.Name, &acct.AccountMask,
		&acct.IsPrimary, &acct.IsActive, &daysJSON, &acct.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(daysJSON) > 0 {
		if err := json.Unmarshal(daysJSON, &acct.ProcessingDays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processing days: %w", err)
		}
	}

	return &acct, nil
}
