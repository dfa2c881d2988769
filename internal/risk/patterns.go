package risk

import (
	"fmt"
	"time"

	"rentpay-engine/internal/models"
)

// amountPatternScore flags structuring-shaped amounts: suspiciously round
// figures, amounts sitting just under the reporting threshold, and a
// strictly escalating run of recent transactions.
func (s *Scorer) amountPatternScore(p *models.Payment, history []models.TransactionRecord) (int, []string) {
	var score int
	var reasons []string

	// Round figure: whole major-currency hundreds above the floor.
	if p.Amount >= s.cfg.RoundAmountFloor && p.Amount%10000 == 0 {
		score += s.cfg.RoundAmountWeight
		reasons = append(reasons, fmt.Sprintf("amount: round figure %d above the attention floor", p.Amount))
	}

	gap := s.cfg.ReportingThreshold - p.Amount
	if gap > 0 && gap <= s.cfg.ReportingMargin {
		score += s.cfg.StructuringWeight
		reasons = append(reasons, fmt.Sprintf("amount: %d sits just under the reporting threshold", p.Amount))
	}

	// Escalation: the three most recent amounts strictly increasing in time
	// order, with the current amount larger still. History is newest first.
	if len(history) >= 3 {
		a, b, c := history[2].Amount, history[1].Amount, history[0].Amount
		if a < b && b < c && c < p.Amount {
			score += s.cfg.EscalationWeight
			reasons = append(reasons, "amount: strictly escalating transaction sequence")
		}
	}

	return score, reasons
}

// timePatternScore flags weekend late-night activity and a large deviation
// from the tenant's usual transaction hour.
func (s *Scorer) timePatternScore(history []models.TransactionRecord, now time.Time) (int, []string) {
	var score int
	var reasons []string

	weekday := now.Weekday()
	hour := now.Hour()
	if (weekday == time.Saturday || weekday == time.Sunday) && (hour >= 23 || hour < 5) {
		score += s.cfg.LateNightWeight
		reasons = append(reasons, "time: weekend late-night transaction")
	}

	if len(history) > 0 {
		var sum int
		for _, tx := range history {
			sum += tx.OccurredAt.Hour()
		}
		avg := sum / len(history)
		dev := hour - avg
		if dev < 0 {
			dev = -dev
		}
		if dev > s.cfg.HourDeviationLimit {
			score += s.cfg.HourDeviationWeight
			reasons = append(reasons, fmt.Sprintf("time: hour %02d deviates %dh from the tenant's usual hour", hour, dev))
		}
	}

	return score, reasons
}
