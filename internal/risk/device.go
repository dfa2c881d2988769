package risk

import (
	"fmt"
	"strings"

	"rentpay-engine/internal/models"
)

var suspiciousAgentMarkers = []string{"curl", "wget", "python", "bot", "headless", "scrapy", "httpclient"}

// deviceScore inspects the user agent and device fingerprint.
func (s *Scorer) deviceScore(reqCtx *models.RequestContext) (int, []string) {
	var score int
	var reasons []string

	agent := strings.ToLower(reqCtx.UserAgent)
	for _, marker := range suspiciousAgentMarkers {
		if strings.Contains(agent, marker) {
			score += s.cfg.SuspiciousAgentWeight
			reasons = append(reasons, fmt.Sprintf("device: suspicious user agent matches %q", marker))
			break
		}
	}

	switch {
	case reqCtx.Fingerprint == "":
		score += s.cfg.MissingPrintWeight
		reasons = append(reasons, "device: missing device fingerprint")
	case len(reqCtx.Fingerprint) < s.cfg.MinFingerprintLen:
		score += s.cfg.MalformedPrintWeight
		reasons = append(reasons, "device: malformed device fingerprint")
	}

	return score, reasons
}
