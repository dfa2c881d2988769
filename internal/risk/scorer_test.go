package risk

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/models"
)

type fakeIntel struct {
	byOrigin map[string]*models.ThreatIntel
}

func (f *fakeIntel) Lookup(_ context.Context, origin string) (*models.ThreatIntel, error) {
	if intel, ok := f.byOrigin[origin]; ok {
		return intel, nil
	}
	return &models.ThreatIntel{Origin: origin, RiskLevel: "none"}, nil
}

func testRiskConfig() *config.RiskConfig {
	return &config.RiskConfig{
		HourlyTxLimit: 5, HourlyTxWeight: 30,
		HourlyVolumeLimit: 500000, HourlyVolWeight: 25,
		DailyVolumeLimit: 2000000, DailyVolWeight: 20,
		OffHoursStart: 22, OffHoursEnd: 6, OffHoursWeight: 10,
		AvgAmountMultiple: 5.0, AvgAmountWeight: 25,
		InstrumentLimit24h: 3, InstrumentWeight: 20,
		CriticalOriginWeight: 50, HighOriginWeight: 35, MediumOriginWeight: 20,
		ProxyWeight: 15, BlocklistWeight: 100,
		SuspiciousAgentWeight: 40, MissingPrintWeight: 15, MalformedPrintWeight: 25,
		MinFingerprintLen: 16,
		RoundAmountFloor:  100000, RoundAmountWeight: 15,
		ReportingThreshold: 1000000, ReportingMargin: 50000, StructuringWeight: 20,
		EscalationWeight: 15,
		LateNightWeight:  15, HourDeviationLimit: 8, HourDeviationWeight: 10,
		BlockThreshold: 80, ReviewThreshold: 60, ChallengeThreshold: 40,
		ManualReviewScore: 70,
		DenyListTTL:       time.Hour,
	}
}

func setupScorer(t *testing.T, intel IntelSource) (*Scorer, *Responder, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testRiskConfig()
	responder := NewResponder(cfg, client, nil, zap.NewNop())
	scorer := NewScorer(cfg, intel, responder, zap.NewNop())
	// Tuesday 10:00 UTC: inside normal hours, not a weekend.
	scorer.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return scorer, responder, mr
}

func cleanContext() *models.RequestContext {
	return &models.RequestContext{
		UserID:        "user-1",
		OriginAddress: "203.0.113.10",
		UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X)",
		Fingerprint:   "fp-a1b2c3d4e5f60718",
		Protocol:      "TLS",
		TLSVersion:    "1.3",
		Authenticated: true,
		MFAVerified:   true,
	}
}

func scorerPayment(amount int64) *models.Payment {
	return &models.Payment{
		PaymentID: "pay-1",
		TenantID:  "tenant-1",
		Amount:    amount,
		DueDate:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestAssess_CleanTransactionAllowed(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.RiskActionAllow, a.Action)
	assert.Equal(t, 0, a.Score)
	assert.Empty(t, a.Reasons)
	assert.False(t, a.ManualReview)
}

func TestAssess_Deterministic(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	base := scorer.now()
	history := []models.TransactionRecord{
		{PaymentID: "h1", Amount: 90000, InstrumentID: "inst-1", OccurredAt: base.Add(-10 * time.Minute)},
		{PaymentID: "h2", Amount: 80000, InstrumentID: "inst-1", OccurredAt: base.Add(-30 * time.Minute)},
	}

	first, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), history)
	require.NoError(t, err)
	second, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), history)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.Reasons, second.Reasons)
}

func TestAssess_VelocityBurst(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	// Six transactions in the trailing hour trips the velocity check.
	base := scorer.now()
	var history []models.TransactionRecord
	for i := 0; i < 6; i++ {
		history = append(history, models.TransactionRecord{
			PaymentID:    "h",
			Amount:       10000,
			InstrumentID: "inst-1",
			OccurredAt:   base.Add(-time.Duration(i+1) * time.Minute),
		})
	}

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), history)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, a.Score, 30)
	found := false
	for _, r := range a.Reasons {
		if len(r) >= 8 && r[:8] == "velocity" {
			found = true
		}
	}
	assert.True(t, found, "expected a velocity reason, got %v", a.Reasons)
}

func TestAssess_VelocityPlusDevicePushesToReview(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	base := scorer.now()
	var history []models.TransactionRecord
	for i := 0; i < 6; i++ {
		history = append(history, models.TransactionRecord{
			PaymentID: "h", Amount: 10000, InstrumentID: "inst-1",
			OccurredAt: base.Add(-time.Duration(i+1) * time.Minute),
		})
	}

	reqCtx := cleanContext()
	reqCtx.UserAgent = "python-requests/2.31" // +40

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), reqCtx, history)
	require.NoError(t, err)

	assert.Greater(t, a.Score, 60)
	assert.Contains(t, []models.RiskAction{models.RiskActionReview, models.RiskActionBlock}, a.Action)
}

func TestAssess_BlockedOriginScoresHundred(t *testing.T) {
	scorer, responder, _ := setupScorer(t, &fakeIntel{})

	ctx := context.Background()
	reqCtx := cleanContext()
	require.NoError(t, responder.DenyOrigin(ctx, reqCtx.OriginAddress))

	a, err := scorer.Assess(ctx, scorerPayment(125050), reqCtx, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, a.Score, 100)
	assert.Equal(t, models.RiskActionBlock, a.Action)
	assert.True(t, a.ManualReview)
}

func TestAssess_CriticalOriginWithProxy(t *testing.T) {
	intel := &fakeIntel{byOrigin: map[string]*models.ThreatIntel{
		"203.0.113.10": {Origin: "203.0.113.10", RiskLevel: "critical", AnonymizingProxy: true},
	}}
	scorer, _, _ := setupScorer(t, intel)

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), nil)
	require.NoError(t, err)

	// 50 critical + 15 proxy
	assert.Equal(t, 65, a.Score)
	assert.Equal(t, models.RiskActionReview, a.Action)
}

func TestAssess_StructuringJustUnderThreshold(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	// 9,800.00 sits within the margin under the 10,000.00 reporting threshold
	// and is a round figure above the floor.
	a, err := scorer.Assess(context.Background(), scorerPayment(980000), cleanContext(), nil)
	require.NoError(t, err)

	assert.Equal(t, 35, a.Score)
	assert.Len(t, a.Reasons, 2)
}

func TestAssess_EscalatingAmounts(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	base := scorer.now()
	history := []models.TransactionRecord{
		{PaymentID: "h3", Amount: 30050, InstrumentID: "inst-1", OccurredAt: base.Add(-1 * time.Hour)},
		{PaymentID: "h2", Amount: 20050, InstrumentID: "inst-1", OccurredAt: base.Add(-2 * time.Hour)},
		{PaymentID: "h1", Amount: 10050, InstrumentID: "inst-1", OccurredAt: base.Add(-3 * time.Hour)},
	}

	a, err := scorer.Assess(context.Background(), scorerPayment(40050), cleanContext(), history)
	require.NoError(t, err)

	assert.Equal(t, 15, a.Score)
	assert.Contains(t, a.Reasons[0], "escalating")
}

func TestAssess_MissingFingerprint(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})

	reqCtx := cleanContext()
	reqCtx.Fingerprint = ""

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), reqCtx, nil)
	require.NoError(t, err)

	assert.Equal(t, 15, a.Score)
}

func TestAssess_OffHours(t *testing.T) {
	scorer, _, _ := setupScorer(t, &fakeIntel{})
	scorer.now = func() time.Time { return time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC) }

	a, err := scorer.Assess(context.Background(), scorerPayment(125050), cleanContext(), nil)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Score)
	assert.Contains(t, a.Reasons[0], "outside normal hours")
}
