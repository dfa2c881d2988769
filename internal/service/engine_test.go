package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/compliance"
	"rentpay-engine/internal/config"
	"rentpay-engine/internal/fees"
	"rentpay-engine/internal/ledger"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/notify"
	"rentpay-engine/internal/providers"
	"rentpay-engine/internal/ratelimit"
	"rentpay-engine/internal/repository"
	"rentpay-engine/internal/risk"
	"rentpay-engine/internal/routing"
	"rentpay-engine/internal/scheduler"
)

type fakeCharger struct {
	requests []providers.ChargeRequest
	result   *providers.ChargeResult
	err      error
}

func (f *fakeCharger) SubmitCharge(_ context.Context, req providers.ChargeRequest) (*providers.ChargeResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &providers.ChargeResult{TransactionID: "txn-ok", Status: "accepted", ProcessingFee: 0}, nil
}

type benignIntel struct{}

func (benignIntel) Lookup(_ context.Context, origin string) (*models.ThreatIntel, error) {
	return &models.ThreatIntel{Origin: origin, RiskLevel: "none"}, nil
}

type engineFixture struct {
	engine      *Engine
	payments    *repository.MemoryPaymentsRepo
	instruments *repository.MemoryInstrumentsRepo
	routingRepo *repository.MemoryRoutingRepo
	audit       *repository.MemoryAuditRepo
	charger     *fakeCharger
	redis       *redis.Client
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := zap.NewNop()
	cfg, err := config.Load()
	require.NoError(t, err)

	f := &engineFixture{
		payments:    repository.NewMemoryPaymentsRepo(),
		instruments: repository.NewMemoryInstrumentsRepo(),
		routingRepo: repository.NewMemoryRoutingRepo(),
		audit:       repository.NewMemoryAuditRepo(),
		charger:     &fakeCharger{},
		redis:       redisClient,
	}

	calculator := fees.NewCalculator(&cfg.Fees)
	notifier := notify.NewNotifier(notify.NewTemplateStore(), logger)
	notifier.Register(models.DeliveryEmail, notify.NewRecordingSender())

	remindersRepo := repository.NewMemoryRemindersRepo()
	locks := scheduler.NewTenantLock(redisClient, time.Minute, logger)

	e := &Engine{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		orgID:       "org-1",
		payments:    f.payments,
		instruments: f.instruments,
		autopayRepo: repository.NewMemoryAutoPayRepo(),
		audit:       f.audit,
		calculator:  calculator,
		router:      routing.NewEngine("org-1", f.routingRepo, calculator, logger),
		gate:        compliance.NewGate(&cfg.Compliance, logger),
		ledger:      ledger.New(f.payments, f.instruments, logger),
		notifier:    notifier,
		charger:     f.charger,
		limiter:     ratelimit.NewLimiter(redisClient, &cfg.RateLimit, logger),
		stopCh:      make(chan struct{}),
	}
	e.responder = risk.NewResponder(&cfg.Risk, redisClient, notifier, logger)
	e.scorer = risk.NewScorer(&cfg.Risk, benignIntel{}, e.responder, logger)
	e.reminderSched = scheduler.NewReminderScheduler(f.payments, remindersRepo, notifier, locks, &cfg.Scheduler, logger)
	e.autopayProc = scheduler.NewAutoPayProcessor(f.payments, e.autopayRepo, remindersRepo, notifier, e.submitForAutoPay, locks, &cfg.Scheduler, logger)

	f.engine = e

	// Default routing setup: one primary account and a default rule.
	f.routingRepo.AddAccount(models.BusinessAccount{
		AccountID: "acct-primary", OrgID: "org-1", Name: "Operating", IsPrimary: true, IsActive: true,
	})
	f.routingRepo.AddRule(models.RoutingRule{
		RuleID: "rule-default", OrgID: "org-1", AccountID: "acct-primary",
		Priority: 100, IsDefault: true, IsActive: true,
	})
	return f
}

func (f *engineFixture) addInstrument(t *testing.T, inst *models.PaymentInstrument) {
	t.Helper()
	require.NoError(t, f.instruments.CreateInstrument(context.Background(), inst))
}

func bankInstrument() *models.PaymentInstrument {
	connID := "conn-1"
	return &models.PaymentInstrument{
		InstrumentID: "inst-1",
		TenantID:     "tenant-1",
		Type:         models.InstrumentBankTransfer,
		ConnectionID: &connID,
		Mask:         "6789",
		Verified:     true,
		IsActive:     true,
		IsDefault:    true,
	}
}

func engineContext() *models.RequestContext {
	return &models.RequestContext{
		UserID:        "user-1",
		OriginAddress: "203.0.113.10",
		UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X)",
		Fingerprint:   "fp-a1b2c3d4e5f60718",
		Protocol:      "TLS",
		TLSVersion:    "1.3",
		Role:          "tenant",
		Permissions:   []string{"payments:submit"},
		Authenticated: true,
		MFAVerified:   true,
		AuditLogging:  true,
	}
}

func createTestPayment(t *testing.T, f *engineFixture) *models.Payment {
	t.Helper()
	p, err := f.engine.CreatePayment(context.Background(), ledger.CreateSpec{
		TenantID:     "tenant-1",
		PropertyID:   "prop-1",
		PropertyType: "residential",
		Amount:       150000,
		DueDate:      time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	return p
}

func TestProcessPayment_AcceptedEndToEnd(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", engineContext())
	require.NoError(t, err)

	assert.True(t, result.Accepted, "unexpected rejection: %s", result.Error)
	assert.Equal(t, "txn-ok", result.TransactionID)

	stored, err := f.payments.GetPayment(ctx, "tenant-1", p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "txn-ok", *stored.TransactionID)
	// Bank fee for 1500.00 is the percent band: 1,125 minor units capped at 500.
	require.Len(t, stored.Fees, 1)
	assert.Equal(t, int64(500), stored.Fees[0].Amount)

	// The charge carried amount plus fee to the primary account.
	require.Len(t, f.charger.requests, 1)
	assert.Equal(t, "acct-primary", f.charger.requests[0].AccountID)
	assert.Equal(t, int64(150500), f.charger.requests[0].Amount)
}

func TestProcessPayment_BlockedOriginHalted(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	reqCtx := engineContext()
	require.NoError(t, f.engine.responder.DenyOrigin(ctx, reqCtx.OriginAddress))

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", reqCtx)
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Contains(t, result.Error, "blocked")
	assert.Empty(t, f.charger.requests)

	stored, err := f.payments.GetPayment(ctx, "tenant-1", p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, 1, f.audit.CountRiskAssessments())
}

func TestProcessPayment_ComplianceFailureHalted(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	reqCtx := engineContext()
	reqCtx.MFAVerified = false

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", reqCtx)
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Contains(t, result.Error, "compliance")
	assert.Empty(t, f.charger.requests)
	assert.Equal(t, 1, f.audit.CountComplianceResults())
}

func TestProcessPayment_LimitExceeded(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	inst := bankInstrument()
	inst.Limits = models.InstrumentLimits{PerTransaction: 100000}
	f.addInstrument(t, inst)
	p := createTestPayment(t, f)

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", engineContext())
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Contains(t, result.Error, "per_transaction")
}

func TestProcessPayment_RateLimited(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	reqCtx := engineContext()
	for i := 0; i < f.engine.config.RateLimit.MaxEvents; i++ {
		ok, err := f.engine.limiter.Allow(ctx, reqCtx.UserID, reqCtx.OriginAddress)
		require.NoError(t, err)
		require.True(t, ok)
	}

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", reqCtx)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Error, "too many payment attempts")
}

func TestProcessPayment_ChargeRejected(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	f.charger.result = &providers.ChargeResult{Status: "rejected", Reason: "account frozen"}

	result, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", engineContext())
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Contains(t, result.Error, "account frozen")

	stored, err := f.payments.GetPayment(ctx, "tenant-1", p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
}

func TestProcessPayment_ProcessorOutage(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	f.charger.err = errors.New("connection refused")

	_, err := f.engine.ProcessPayment(ctx, "tenant-1", p.PaymentID, "inst-1", engineContext())
	require.Error(t, err)
}

func TestDetermineRoute_UsesDefaultInstrument(t *testing.T) {
	f := setupEngine(t)
	f.addInstrument(t, bankInstrument())
	p := createTestPayment(t, f)

	route, err := f.engine.DetermineRoute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "acct-primary", route.Account.AccountID)
	assert.Equal(t, int64(500), route.Fee)
	assert.True(t, route.EstimatedSettlement.After(time.Now()))
}

func TestGetPaymentMethods(t *testing.T) {
	f := setupEngine(t)
	f.addInstrument(t, bankInstrument())

	methods, err := f.engine.GetPaymentMethods(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "inst-1", methods[0].InstrumentID)

	methods, err = f.engine.GetPaymentMethods(context.Background(), "tenant-other")
	require.NoError(t, err)
	assert.Empty(t, methods)
}

func TestSetupAutoPay_RejectsUnverifiedInstrument(t *testing.T) {
	f := setupEngine(t)
	inst := bankInstrument()
	inst.Verified = false
	f.addInstrument(t, inst)

	_, err := f.engine.SetupAutoPay(context.Background(), &models.AutoPayConfiguration{
		TenantID:     "tenant-1",
		InstrumentID: "inst-1",
		RetryDays:    []int{3},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not usable")
}

func bankLinkServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/link/exchange" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","record":{
			"connection_id":"conn-new","institution":"First National",
			"account_mask":"4321","routing_number":"021000021","account_number":"000123456789",
			"verified":true,
			"limits":{"per_transaction":500000,"daily":1000000,"monthly":5000000}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLinkBankInstrument_FirstBecomesDefault(t *testing.T) {
	f := setupEngine(t)
	f.engine.bankLink = providers.NewBankLinkClient(bankLinkServer(t).URL, "test-key", zap.NewNop())

	inst, err := f.engine.LinkBankInstrument(context.Background(), "tenant-1", "public-token-1")
	require.NoError(t, err)
	assert.True(t, inst.IsDefault)
	assert.True(t, inst.Verified)
	assert.Equal(t, models.InstrumentBankTransfer, inst.Type)
	assert.Equal(t, "4321", inst.Mask)
	require.NotNil(t, inst.ConnectionID)
	assert.Equal(t, "conn-new", *inst.ConnectionID)
	assert.Equal(t, int64(500000), inst.Limits.PerTransaction)

	second, err := f.engine.LinkBankInstrument(context.Background(), "tenant-1", "public-token-2")
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
}

func TestSetDefaultInstrument_SwitchesDefault(t *testing.T) {
	f := setupEngine(t)
	f.addInstrument(t, bankInstrument())
	other := bankInstrument()
	other.InstrumentID = "inst-2"
	other.IsDefault = false
	f.addInstrument(t, other)

	require.NoError(t, f.engine.SetDefaultInstrument(context.Background(), "tenant-1", "inst-2"))

	methods, err := f.engine.GetPaymentMethods(context.Background(), "tenant-1")
	require.NoError(t, err)
	for _, m := range methods {
		assert.Equal(t, m.InstrumentID == "inst-2", m.IsDefault)
	}
}

func TestSetDefaultInstrument_RejectsInactive(t *testing.T) {
	f := setupEngine(t)
	inst := bankInstrument()
	inst.IsActive = false
	f.addInstrument(t, inst)

	err := f.engine.SetDefaultInstrument(context.Background(), "tenant-1", "inst-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}
