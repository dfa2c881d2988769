package risk

import (
	"fmt"
	"time"

	"rentpay-engine/internal/models"
)

// behaviorScore compares the attempt against the tenant's own habits:
// time of day, historical average amount, and instrument churn.
func (s *Scorer) behaviorScore(p *models.Payment, reqCtx *models.RequestContext, history []models.TransactionRecord, now time.Time) (int, []string) {
	var score int
	var reasons []string

	hour := now.Hour()
	if hour >= s.cfg.OffHoursStart || hour < s.cfg.OffHoursEnd {
		score += s.cfg.OffHoursWeight
		reasons = append(reasons, fmt.Sprintf("behavior: transaction at %02d:00 is outside normal hours", hour))
	}

	if len(history) > 0 {
		var sum int64
		for _, tx := range history {
			sum += tx.Amount
		}
		avg := float64(sum) / float64(len(history))
		if avg > 0 && float64(p.Amount) > avg*s.cfg.AvgAmountMultiple {
			score += s.cfg.AvgAmountWeight
			reasons = append(reasons, fmt.Sprintf("behavior: amount %d is more than %.0fx the tenant average", p.Amount, s.cfg.AvgAmountMultiple))
		}
	}

	dayAgo := now.Add(-24 * time.Hour)
	instruments := map[string]struct{}{}
	for _, tx := range history {
		if tx.OccurredAt.After(dayAgo) && tx.InstrumentID != "" {
			instruments[tx.InstrumentID] = struct{}{}
		}
	}
	if len(instruments) > s.cfg.InstrumentLimit24h {
		score += s.cfg.InstrumentWeight
		reasons = append(reasons, fmt.Sprintf("behavior: %d distinct instruments used in 24h", len(instruments)))
	}

	return score, reasons
}
