package risk

import (
	"context"
	"fmt"

	"rentpay-engine/internal/models"
)

// networkScore consults the threat-intelligence source for the request
// origin and the explicit block-list.
func (s *Scorer) networkScore(ctx context.Context, reqCtx *models.RequestContext) (int, []string, error) {
	var score int
	var reasons []string

	if reqCtx.OriginAddress == "" {
		return 0, nil, nil
	}

	if s.responder != nil {
		blocked, err := s.responder.OnBlockList(ctx, reqCtx.OriginAddress)
		if err != nil {
			return score, reasons, err
		}
		if blocked {
			score += s.cfg.BlocklistWeight
			reasons = append(reasons, fmt.Sprintf("network: origin %s is on the block list", reqCtx.OriginAddress))
		}
	}

	if s.intel == nil {
		return score, reasons, nil
	}

	intel, err := s.intel.Lookup(ctx, reqCtx.OriginAddress)
	if err != nil {
		return score, reasons, err
	}
	if intel == nil {
		return score, reasons, nil
	}

	switch intel.RiskLevel {
	case "critical":
		score += s.cfg.CriticalOriginWeight
		reasons = append(reasons, fmt.Sprintf("network: origin %s has critical threat rating", reqCtx.OriginAddress))
	case "high":
		score += s.cfg.HighOriginWeight
		reasons = append(reasons, fmt.Sprintf("network: origin %s has high threat rating", reqCtx.OriginAddress))
	case "medium":
		score += s.cfg.MediumOriginWeight
		reasons = append(reasons, fmt.Sprintf("network: origin %s has medium threat rating", reqCtx.OriginAddress))
	}

	if intel.AnonymizingProxy {
		score += s.cfg.ProxyWeight
		reasons = append(reasons, "network: origin is an anonymizing proxy or VPN exit")
	}

	return score, reasons, nil
}
