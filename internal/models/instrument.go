package models

import (
	"time"
)

// InstrumentType supported payment instrument kinds.
type InstrumentType string

const (
	InstrumentBankTransfer InstrumentType = "bank_transfer"
	InstrumentCard         InstrumentType = "card"
)

// InstrumentLimits per-instrument spending caps in minor units. Zero means
// no limit for that window.
type InstrumentLimits struct {
	PerTransaction int64 `json:"per_transaction"`
	Daily          int64 `json:"daily"`
	Monthly        int64 `json:"monthly"`
}

// PaymentInstrument is a tenant's stored means of payment (payment_instruments
// table). Immutable once verified except for the default/active flags.
type PaymentInstrument struct {
	InstrumentID string           `json:"instrument_id" db:"instrument_id"`
	TenantID     string           `json:"tenant_id" db:"tenant_id"`
	Type         InstrumentType   `json:"type" db:"type"`
	ConnectionID *string          `json:"connection_id,omitempty" db:"connection_id"` // bank-linking provider record
	CardToken    *string          `json:"card_token,omitempty" db:"card_token"`
	Mask         string           `json:"mask" db:"mask"` // last four of the account/card
	Institution  string           `json:"institution,omitempty" db:"institution"`
	Limits       InstrumentLimits `json:"limits" db:"-"` // stored as JSONB
	Verified     bool             `json:"verified" db:"verified"`
	IsDefault    bool             `json:"is_default" db:"is_default"`
	IsActive     bool             `json:"is_active" db:"is_active"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// BankConnection is the verified record returned by the bank-linking provider.
type BankConnection struct {
	ConnectionID  string           `json:"connection_id"`
	Institution   string           `json:"institution"`
	AccountMask   string           `json:"account_mask"`
	RoutingNumber string           `json:"routing_number"`
	AccountNumber string           `json:"account_number"`
	Verified      bool             `json:"verified"`
	Limits        InstrumentLimits `json:"limits"`
}
