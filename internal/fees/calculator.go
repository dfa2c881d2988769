package fees

import (
	"fmt"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"
)

// Calculator computes processing fees and expected settlement dates. Pure: no
// side effects, no stored state beyond the configured schedule.
type Calculator struct {
	cfg *config.FeeConfig
}

// NewCalculator creates a fee calculator from the configured schedule.
func NewCalculator(cfg *config.FeeConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// ProcessingFee returns the fee in minor units for charging amount through
// the given instrument type. Amount must be positive; the caller rejects
// invalid amounts before routing.
func (c *Calculator) ProcessingFee(amount int64, instrumentType models.InstrumentType) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("invalid amount: %d", amount)
	}

	switch instrumentType {
	case models.InstrumentBankTransfer:
		// clamp(max(flat, amount*rate), flat, cap)
		fee := int64(float64(amount) * c.cfg.BankPercentRate)
		if fee < c.cfg.BankFlatFee {
			fee = c.cfg.BankFlatFee
		}
		if fee > c.cfg.BankFeeCap {
			fee = c.cfg.BankFeeCap
		}
		return fee, nil
	case models.InstrumentCard:
		return int64(float64(amount)*c.cfg.CardPercentRate) + c.cfg.CardFixedFee, nil
	default:
		return 0, fmt.Errorf("unknown instrument type: %s", instrumentType)
	}
}

// SettlementDate returns the expected settlement date for a submission at
// submitted: the next business day plus the instrument's business-day offset,
// skipping weekends.
func (c *Calculator) SettlementDate(submitted time.Time, instrumentType models.InstrumentType) time.Time {
	days := c.cfg.BankSettlementDays
	if instrumentType == models.InstrumentCard {
		days = c.cfg.CardSettlementDays
	}

	date := nextBusinessDay(submitted)
	for i := 0; i < days; i++ {
		date = nextBusinessDay(date)
	}
	return date
}

func nextBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
