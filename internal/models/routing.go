package models

import (
	"time"
)

// BusinessAccount is a destination settlement account (business_accounts
// table). Exactly one primary account exists per organization.
type BusinessAccount struct {
	AccountID      string    `json:"account_id" db:"account_id"`
	OrgID          string    `json:"org_id" db:"org_id"`
	Name           string    `json:"name" db:"name"`
	AccountMask    string    `json:"account_mask" db:"account_mask"`
	IsPrimary      bool      `json:"is_primary" db:"is_primary"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	ProcessingDays []string  `json:"processing_days" db:"-"` // JSONB, e.g. ["mon","tue",...]
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ConditionOperator atomic comparison operators for routing conditions.
type ConditionOperator string

const (
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpEquals      ConditionOperator = "equals"
	OpContains    ConditionOperator = "contains"
)

// RuleCondition is one atomic comparison on a payment attribute. A rule
// matches only when all of its conditions hold.
type RuleCondition struct {
	Field    string            `json:"field"`    // amount, instrument_type, hour, property_type, risk_band
	Operator ConditionOperator `json:"operator"` //
	Value    string            `json:"value"`
}

// RoutingRule maps matching payments to one business account (routing_rules
// table). Evaluation is first-match-wins by ascending priority; the rule
// flagged IsDefault is the mandatory fallback.
type RoutingRule struct {
	RuleID     string          `json:"rule_id" db:"rule_id"`
	OrgID      string          `json:"org_id" db:"org_id"`
	Name       string          `json:"name" db:"name"`
	Priority   int             `json:"priority" db:"priority"`
	Conditions []RuleCondition `json:"conditions" db:"-"` // JSONB
	Expression string          `json:"expression,omitempty" db:"expression"` // optional formula, ANDed with conditions
	AccountID  string          `json:"account_id" db:"account_id"`
	IsDefault  bool            `json:"is_default" db:"is_default"`
	IsActive   bool            `json:"is_active" db:"is_active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// RoutingResult is the outcome of one routing decision. The caller persists
// the chosen route onto the payment; routing itself has no side effects.
type RoutingResult struct {
	Rule                *RoutingRule     `json:"rule"`
	Account             *BusinessAccount `json:"account"`
	Fee                 int64            `json:"fee"`
	EstimatedSettlement time.Time        `json:"estimated_settlement"`
}
