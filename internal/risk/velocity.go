package risk

import (
	"fmt"
	"time"

	"rentpay-engine/internal/models"
)

// velocityScore flags bursts of transactions and unusual volume in the
// trailing hour and day.
func (s *Scorer) velocityScore(p *models.Payment, history []models.TransactionRecord, now time.Time) (int, []string) {
	var score int
	var reasons []string

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	var hourCount int
	var hourSum, daySum int64
	for _, tx := range history {
		if tx.OccurredAt.After(dayAgo) {
			daySum += tx.Amount
		}
		if tx.OccurredAt.After(hourAgo) {
			hourCount++
			hourSum += tx.Amount
		}
	}

	if hourCount > s.cfg.HourlyTxLimit {
		score += s.cfg.HourlyTxWeight
		reasons = append(reasons, fmt.Sprintf("velocity: %d transactions in the past hour exceeds %d", hourCount, s.cfg.HourlyTxLimit))
	}
	if hourSum > s.cfg.HourlyVolumeLimit {
		score += s.cfg.HourlyVolWeight
		reasons = append(reasons, fmt.Sprintf("velocity: hourly volume %d exceeds %d", hourSum, s.cfg.HourlyVolumeLimit))
	}
	if daySum > s.cfg.DailyVolumeLimit {
		score += s.cfg.DailyVolWeight
		reasons = append(reasons, fmt.Sprintf("velocity: daily volume %d exceeds %d", daySum, s.cfg.DailyVolumeLimit))
	}

	return score, reasons
}
