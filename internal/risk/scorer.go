package risk

import (
	"context"
	"time"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntelSource answers threat-intelligence lookups for a network origin.
type IntelSource interface {
	Lookup(ctx context.Context, origin string) (*models.ThreatIntel, error)
}

// Scorer computes a composite, explainable risk score for one payment
// attempt. Every sub-score is additive with a configured weight; given
// identical inputs the result is identical. Not a model: reasons enumerate
// exactly which checks fired.
type Scorer struct {
	cfg       *config.RiskConfig
	intel     IntelSource
	responder *Responder
	logger    *zap.Logger

	now func() time.Time // injectable for tests
}

// NewScorer creates a risk scorer.
func NewScorer(cfg *config.RiskConfig, intel IntelSource, responder *Responder, logger *zap.Logger) *Scorer {
	return &Scorer{
		cfg:       cfg,
		intel:     intel,
		responder: responder,
		logger:    logger,
		now:       time.Now,
	}
}

// Assess evaluates the payment attempt and triggers the automated response
// for the resulting action. History is the tenant's recent transactions,
// newest first.
func (s *Scorer) Assess(ctx context.Context, p *models.Payment, reqCtx *models.RequestContext, history []models.TransactionRecord) (*models.RiskAssessment, error) {
	now := s.now()

	var score int
	var reasons []string

	add := func(sub int, subReasons []string) {
		score += sub
		reasons = append(reasons, subReasons...)
	}

	add(s.velocityScore(p, history, now))
	add(s.behaviorScore(p, reqCtx, history, now))

	netScore, netReasons, err := s.networkScore(ctx, reqCtx)
	if err != nil {
		// Intel outage must not block payments; score what we can see.
		s.logger.Warn("Threat intel lookup failed",
			zap.String("origin", reqCtx.OriginAddress),
			zap.Error(err),
		)
	}
	add(netScore, netReasons)

	add(s.deviceScore(reqCtx))
	add(s.amountPatternScore(p, history))
	add(s.timePatternScore(history, now))

	if score < 0 {
		score = 0
	}

	assessment := &models.RiskAssessment{
		AssessmentID: uuid.New().String(),
		PaymentID:    p.PaymentID,
		TenantID:     p.TenantID,
		Score:        score,
		Action:       s.actionFor(score),
		Reasons:      reasons,
		ManualReview: score > s.cfg.ManualReviewScore,
		AssessedAt:   now,
	}
	assessment.Recommendations = recommendationsFor(assessment)

	if s.responder != nil {
		if err := s.responder.Respond(ctx, assessment, reqCtx); err != nil {
			s.logger.Error("Automated risk response failed",
				zap.String("payment_id", p.PaymentID),
				zap.String("action", string(assessment.Action)),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Risk assessment completed",
		zap.String("payment_id", p.PaymentID),
		zap.String("tenant_id", p.TenantID),
		zap.Int("score", score),
		zap.String("action", string(assessment.Action)),
		zap.Int("reason_count", len(reasons)),
	)

	return assessment, nil
}

func (s *Scorer) actionFor(score int) models.RiskAction {
	switch {
	case score > s.cfg.BlockThreshold:
		return models.RiskActionBlock
	case score > s.cfg.ReviewThreshold:
		return models.RiskActionReview
	case score > s.cfg.ChallengeThreshold:
		return models.RiskActionChallenge
	default:
		return models.RiskActionAllow
	}
}

func recommendationsFor(a *models.RiskAssessment) []string {
	var recs []string
	switch a.Action {
	case models.RiskActionBlock:
		recs = append(recs, "block the transaction and deny the origin")
	case models.RiskActionReview:
		recs = append(recs, "hold the transaction for manual review")
	case models.RiskActionChallenge:
		recs = append(recs, "require step-up authentication before submission")
	}
	if a.ManualReview {
		recs = append(recs, "escalate to the fraud operations queue")
	}
	return recs
}
