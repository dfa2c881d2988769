package compliance

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"

	"go.uber.org/zap"
)

// Violation categories.
const (
	CategoryStorage        = "storage"
	CategoryTransmission   = "transmission"
	CategoryAccess         = "access"
	CategoryAuthentication = "authentication"
	CategoryLogging        = "logging"
)

// panShaped matches an unbroken run of card/account-number digits. Stored
// references must be provider tokens, which always carry non-digit
// characters.
var panShaped = regexp.MustCompile(`\b\d{13,19}\b`)

var strongEncryptionSchemes = map[string]bool{
	"aes-256-gcm": true,
	"aes-256-cbc": true,
	"chacha20-poly1305": true,
}

// Gate validates stored payment data and the request context against the
// data-protection rules every transaction must satisfy before submission.
// Each check runs independently and deducts from a starting score of 100;
// the result is compliant only when no check produced a violation and the
// score stays at or above the configured floor.
type Gate struct {
	cfg    *config.ComplianceConfig
	logger *zap.Logger
}

// NewGate creates the compliance gate.
func NewGate(cfg *config.ComplianceConfig, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

// Validate runs every check against the payment data and request context.
func (g *Gate) Validate(data *models.PaymentData, reqCtx *models.RequestContext) *models.ComplianceResult {
	score := 100
	var violations []models.Violation

	record := func(v models.Violation, deduction int) {
		violations = append(violations, v)
		score -= deduction
	}

	g.checkStorage(data, record)
	g.checkTransmission(data, reqCtx, record)
	g.checkAccess(reqCtx, record)
	g.checkAuthentication(reqCtx, record)
	g.checkLogging(reqCtx, record)

	if score < 0 {
		score = 0
	}

	result := &models.ComplianceResult{
		Compliant:       len(violations) == 0 && score >= g.cfg.CompliantFloor,
		SecurityScore:   score,
		Violations:      violations,
		Recommendations: recommendationsFor(violations),
	}

	if !result.Compliant {
		g.logger.Warn("Compliance validation failed",
			zap.Int("security_score", score),
			zap.Int("violation_count", len(violations)),
		)
	}

	return result
}

type recorder func(v models.Violation, deduction int)

func (g *Gate) checkStorage(data *models.PaymentData, record recorder) {
	if data == nil {
		return
	}

	switch data.Type {
	case models.InstrumentBankTransfer:
		if data.Bank == nil {
			return
		}
		if panShaped.MatchString(data.Bank.AccountReference) || panShaped.MatchString(data.Bank.RoutingReference) {
			record(models.Violation{
				Requirement: "account identifiers must be stored as provider tokens, not raw numbers",
				Severity:    models.SeverityCritical,
				Category:    CategoryStorage,
			}, g.cfg.StorageDeduction)
		}
		if !strongEncryptionSchemes[strings.ToLower(data.Bank.EncryptionScheme)] {
			record(models.Violation{
				Requirement: "stored bank data must use a strong encryption scheme",
				Severity:    models.SeverityHigh,
				Category:    CategoryStorage,
			}, g.cfg.StorageDeduction)
		}

	case models.InstrumentCard:
		if data.Card == nil {
			return
		}
		if data.Card.PAN != "" || panShaped.MatchString(data.Card.CardToken) {
			record(models.Violation{
				Requirement: "primary account number must never be stored; use the vault token",
				Severity:    models.SeverityCritical,
				Category:    CategoryStorage,
			}, g.cfg.StorageDeduction)
		}
		if data.Card.CVV != "" || data.Card.PIN != "" {
			record(models.Violation{
				Requirement: "sensitive authentication data (CVV, PIN) must never be retained",
				Severity:    models.SeverityCritical,
				Category:    CategoryStorage,
			}, g.cfg.StorageDeduction)
		}
		if !strongEncryptionSchemes[strings.ToLower(data.Card.EncryptionScheme)] {
			record(models.Violation{
				Requirement: "stored card data must use a strong encryption scheme",
				Severity:    models.SeverityHigh,
				Category:    CategoryStorage,
			}, g.cfg.StorageDeduction)
		}
	}
}

func (g *Gate) checkTransmission(data *models.PaymentData, reqCtx *models.RequestContext, record recorder) {
	if !strings.EqualFold(reqCtx.Protocol, "TLS") || tlsVersionBelow(reqCtx.TLSVersion, g.cfg.MinTLSVersion) {
		record(models.Violation{
			Requirement: "payment data must travel over TLS " + g.cfg.MinTLSVersion + " or newer",
			Severity:    models.SeverityCritical,
			Category:    CategoryTransmission,
		}, g.cfg.TransmissionDeduction)
	}

	// The wire form of the stored data must not leak number-shaped values.
	if data != nil {
		if encoded, err := json.Marshal(data); err == nil && panShaped.Match(encoded) {
			record(models.Violation{
				Requirement: "serialized payment data contains plaintext sensitive values",
				Severity:    models.SeverityHigh,
				Category:    CategoryTransmission,
			}, g.cfg.TransmissionDeduction)
		}
	}
}

func (g *Gate) checkAccess(reqCtx *models.RequestContext, record recorder) {
	if reqCtx.Role == "" || len(reqCtx.Permissions) == 0 {
		record(models.Violation{
			Requirement: "caller must present a role and a non-empty permission set",
			Severity:    models.SeverityHigh,
			Category:    CategoryAccess,
		}, g.cfg.AccessDeduction)
	}
}

func (g *Gate) checkAuthentication(reqCtx *models.RequestContext, record recorder) {
	if !reqCtx.Authenticated || !reqCtx.MFAVerified {
		record(models.Violation{
			Requirement: "caller must be authenticated with a multi-factor method",
			Severity:    models.SeverityHigh,
			Category:    CategoryAuthentication,
		}, g.cfg.AuthDeduction)
	}
}

func (g *Gate) checkLogging(reqCtx *models.RequestContext, record recorder) {
	if !reqCtx.AuditLogging {
		record(models.Violation{
			Requirement: "audit logging must be enabled for payment operations",
			Severity:    models.SeverityMedium,
			Category:    CategoryLogging,
		}, g.cfg.LoggingDeduction)
	}
}

// tlsVersionBelow compares dotted versions like "1.2" numerically.
func tlsVersionBelow(version, minimum string) bool {
	return parseVersion(version) < parseVersion(minimum)
}

func parseVersion(v string) int {
	parts := strings.SplitN(v, ".", 2)
	major, _ := strconv.Atoi(parts[0])
	minor := 0
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major*100 + minor
}

var categoryRecommendations = map[string]string{
	CategoryStorage:        "replace raw identifiers with provider vault tokens and enable strong encryption at rest",
	CategoryTransmission:   "terminate all payment traffic on TLS 1.2+ and strip sensitive fields from serialized payloads",
	CategoryAccess:         "assign the caller a role with an explicit permission set before retrying",
	CategoryAuthentication: "require multi-factor authentication for payment submission",
	CategoryLogging:        "enable audit logging on the payment path",
}

func recommendationsFor(violations []models.Violation) []string {
	seen := map[string]bool{}
	var recs []string
	for _, v := range violations {
		if seen[v.Category] {
			continue
		}
		seen[v.Category] = true
		if rec, ok := categoryRecommendations[v.Category]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}
