package models

// ViolationSeverity ranks a compliance violation.
type ViolationSeverity string

const (
	SeverityCritical ViolationSeverity = "critical"
	SeverityHigh     ViolationSeverity = "high"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityLow      ViolationSeverity = "low"
)

// Violation is one failed data-protection requirement.
type Violation struct {
	Requirement string            `json:"requirement"`
	Severity    ViolationSeverity `json:"severity"`
	Category    string            `json:"category"` // storage, transmission, access, authentication, logging
}

// ComplianceResult is the outcome of the pre-submission compliance gate.
// Compliant iff zero violations and SecurityScore >= the configured floor.
type ComplianceResult struct {
	Compliant       bool        `json:"compliant"`
	SecurityScore   int         `json:"security_score"` // 100 minus deductions, floored at 0
	Violations      []Violation `json:"violations"`
	Recommendations []string    `json:"recommendations"`
}

// StoredBankData typed stored representation for a bank-transfer instrument.
// Account identifiers must be references to provider-side encrypted tokens,
// never raw numbers.
type StoredBankData struct {
	ConnectionID     string `json:"connection_id"`
	AccountReference string `json:"account_reference"` // provider token, not the account number
	RoutingReference string `json:"routing_reference"`
	EncryptionScheme string `json:"encryption_scheme"` // e.g. "aes-256-gcm"
}

// StoredCardData typed stored representation for a card instrument. PAN, CVV
// and PIN must never be present; only the vault token and display fields.
type StoredCardData struct {
	CardToken        string `json:"card_token"`
	LastFour         string `json:"last_four"`
	ExpiryMonth      int    `json:"expiry_month"`
	ExpiryYear       int    `json:"expiry_year"`
	PAN              string `json:"-"` // prohibited; non-empty means a retention violation
	CVV              string `json:"-"` // prohibited
	PIN              string `json:"-"` // prohibited
	EncryptionScheme string `json:"encryption_scheme"`
}

// PaymentData is the tagged per-instrument variant the compliance gate
// validates field by field. Exactly one of Bank/Card is set, per Type.
type PaymentData struct {
	Type InstrumentType  `json:"type"`
	Bank *StoredBankData `json:"bank,omitempty"`
	Card *StoredCardData `json:"card,omitempty"`
}
