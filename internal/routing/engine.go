package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentpay-engine/internal/fees"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/repository"

	"github.com/Knetic/govaluate"
	"go.uber.org/zap"
)

// RoutingError is fatal for the payment attempt: it means operator
// configuration is broken (no default rule, missing account), not a
// transient condition. It is never retried automatically.
type RoutingError struct {
	Reason string
}

func (e *RoutingError) Error() string {
	return "routing failed: " + e.Reason
}

// Engine selects the destination business account and settlement path for a
// payment. Rules are evaluated in ascending priority order; the first rule
// whose conditions all hold wins, else the default rule applies. Routing has
// no side effects; the caller persists the chosen route.
type Engine struct {
	orgID      string
	repo       repository.RoutingRepo
	calculator *fees.Calculator
	logger     *zap.Logger
}

// NewEngine creates a routing engine for one organization.
func NewEngine(orgID string, repo repository.RoutingRepo, calculator *fees.Calculator, logger *zap.Logger) *Engine {
	return &Engine{
		orgID:      orgID,
		repo:       repo,
		calculator: calculator,
		logger:     logger,
	}
}

// Route decides the destination account, fee and estimated settlement for
// the payment. riskBand is the caller's coarse risk classification of the
// tenant (low/medium/high), available to rule conditions.
func (e *Engine) Route(ctx context.Context, p *models.Payment, instrumentType models.InstrumentType, riskBand string) (*models.RoutingResult, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", p.Amount)
	}

	rules, err := e.repo.ListActiveRules(ctx, e.orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}

	attrs := paymentAttributes(p, instrumentType, riskBand, time.Now())

	var defaultRule *models.RoutingRule
	var matched *models.RoutingRule
	for i := range rules {
		rule := &rules[i]
		if rule.IsDefault && defaultRule == nil {
			defaultRule = rule
		}
		if matched != nil {
			continue
		}
		ok, err := e.ruleMatches(rule, attrs)
		if err != nil {
			// A broken rule must not block payments; skip it and keep going.
			e.logger.Warn("Skipping unevaluable routing rule",
				zap.String("rule_id", rule.RuleID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			matched = rule
		}
	}

	if matched == nil {
		if defaultRule == nil {
			return nil, &RoutingError{Reason: "no matching rule and no default rule configured"}
		}
		matched = defaultRule
	}

	account, err := e.repo.GetAccount(ctx, matched.AccountID)
	if err != nil {
		return nil, &RoutingError{Reason: fmt.Sprintf("business account %s for rule %s: %v", matched.AccountID, matched.RuleID, err)}
	}

	fee, err := e.calculator.ProcessingFee(p.Amount, instrumentType)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fee: %w", err)
	}

	result := &models.RoutingResult{
		Rule:                matched,
		Account:             account,
		Fee:                 fee,
		EstimatedSettlement: e.calculator.SettlementDate(time.Now(), instrumentType),
	}

	e.logger.Debug("Route selected",
		zap.String("payment_id", p.PaymentID),
		zap.String("rule_id", matched.RuleID),
		zap.String("account_id", account.AccountID),
		zap.Int64("fee", fee),
	)

	return result, nil
}

// ruleMatches reports whether all of the rule's atomic conditions hold, ANDed
// with its optional expression.
func (e *Engine) ruleMatches(rule *models.RoutingRule, attrs map[string]interface{}) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := conditionHolds(cond, attrs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if rule.Expression != "" {
		expr, err := govaluate.NewEvaluableExpression(rule.Expression)
		if err != nil {
			return false, fmt.Errorf("invalid rule expression: %w", err)
		}
		result, err := expr.Evaluate(attrs)
		if err != nil {
			return false, fmt.Errorf("failed to evaluate rule expression: %w", err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return false, fmt.Errorf("rule expression did not yield a boolean")
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func conditionHolds(cond models.RuleCondition, attrs map[string]interface{}) (bool, error) {
	value, ok := attrs[cond.Field]
	if !ok {
		return false, fmt.Errorf("unknown rule field: %s", cond.Field)
	}

	switch cond.Operator {
	case models.OpGreaterThan, models.OpLessThan:
		actual, ok := value.(float64)
		if !ok {
			return false, fmt.Errorf("field %s is not numeric", cond.Field)
		}
		expected, err := strconv.ParseFloat(cond.Value, 64)
		if err != nil {
			return false, fmt.Errorf("condition value %q is not numeric: %w", cond.Value, err)
		}
		if cond.Operator == models.OpGreaterThan {
			return actual > expected, nil
		}
		return actual < expected, nil

	case models.OpEquals:
		return fmt.Sprintf("%v", value) == cond.Value, nil

	case models.OpContains:
		s, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("field %s is not a string", cond.Field)
		}
		return strings.Contains(s, cond.Value), nil

	default:
		return false, fmt.Errorf("unknown operator: %s", cond.Operator)
	}
}

// paymentAttributes flattens the payment into the fields rule conditions and
// expressions can reference.
func paymentAttributes(p *models.Payment, instrumentType models.InstrumentType, riskBand string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"amount":          float64(p.Amount),
		"instrument_type": string(instrumentType),
		"hour":            float64(now.Hour()),
		"property_type":   p.PropertyType,
		"risk_band":       riskBand,
	}
}
