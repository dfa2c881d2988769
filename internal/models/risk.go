package models

import (
	"time"
)

// RiskAction recommended handling for an assessed transaction.
type RiskAction string

const (
	RiskActionAllow     RiskAction = "allow"
	RiskActionChallenge RiskAction = "challenge"
	RiskActionReview    RiskAction = "review"
	RiskActionBlock     RiskAction = "block"
)

// RiskAssessment is the composite, explainable result of one risk evaluation.
// Ephemeral per attempt; persisted only to the audit trail.
type RiskAssessment struct {
	AssessmentID    string     `json:"assessment_id"`
	PaymentID       string     `json:"payment_id"`
	TenantID        string     `json:"tenant_id"`
	Score           int        `json:"score"` // sum of sub-scores, clamped >= 0
	Action          RiskAction `json:"action"`
	Reasons         []string   `json:"reasons"`
	Recommendations []string   `json:"recommendations"`
	ManualReview    bool       `json:"requires_manual_review"`
	AssessedAt      time.Time  `json:"assessed_at"`
}

// RequestContext carries the network/device/auth facts of the inbound request
// that risk scoring and compliance validation evaluate.
type RequestContext struct {
	UserID        string `json:"user_id"`
	OriginAddress string `json:"origin_address"` // client IP
	UserAgent     string `json:"user_agent"`
	Fingerprint   string `json:"fingerprint"` // device fingerprint hash
	Protocol      string `json:"protocol"`    // e.g. "TLS"
	TLSVersion    string `json:"tls_version"` // e.g. "1.2"
	Role          string `json:"role"`
	Permissions   []string `json:"permissions"`
	Authenticated bool   `json:"authenticated"`
	MFAVerified   bool   `json:"mfa_verified"`
	AuditLogging  bool   `json:"audit_logging"`
}

// TransactionRecord is one historical transaction used by velocity and
// pattern sub-scorers.
type TransactionRecord struct {
	PaymentID    string    `json:"payment_id"`
	TenantID     string    `json:"tenant_id"`
	InstrumentID string    `json:"instrument_id"`
	Amount       int64     `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ThreatIntel is the external feed's verdict for one network origin.
type ThreatIntel struct {
	Origin           string `json:"origin"`
	RiskLevel        string `json:"risk_level"` // critical, high, medium, low, none
	AnonymizingProxy bool   `json:"is_anonymizing_proxy"`
	Country          string `json:"country"`
}
