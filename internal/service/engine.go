package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"rentpay-engine/internal/compliance"
	"rentpay-engine/internal/config"
	"rentpay-engine/internal/database"
	"rentpay-engine/internal/fees"
	"rentpay-engine/internal/ledger"
	"rentpay-engine/internal/models"
	"rentpay-engine/internal/notify"
	"rentpay-engine/internal/providers"
	"rentpay-engine/internal/ratelimit"
	"rentpay-engine/internal/redisx"
	"rentpay-engine/internal/repository"
	"rentpay-engine/internal/risk"
	"rentpay-engine/internal/routing"
	"rentpay-engine/internal/scheduler"
	"rentpay-engine/internal/settlement"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Engine composes the payment pipeline: ledger, routing, risk, compliance,
// reminders and auto-pay, plus the background sweep and settlement consumer.
type Engine struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
	orgID       string

	payments    repository.PaymentsRepo
	instruments repository.InstrumentsRepo
	autopayRepo repository.AutoPayRepo
	audit       repository.AuditRepo

	calculator *fees.Calculator
	router     *routing.Engine
	scorer     *risk.Scorer
	responder  *risk.Responder
	gate       *compliance.Gate
	ledger     *ledger.Ledger
	notifier   *notify.Notifier
	charger    providers.ChargeSubmitter
	bankLink   *providers.BankLinkClient
	limiter    *ratelimit.Limiter

	reminderSched *scheduler.ReminderScheduler
	autopayProc   *scheduler.AutoPayProcessor
	consumer      *settlement.Consumer
	watchdog      *settlement.Watchdog

	pushSender *notify.MQTTPushSender

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New wires the engine from configuration: postgres, redis, the external
// providers, and every pipeline component.
func New(cfg *config.Config, orgID string, logger *zap.Logger) (*Engine, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	redisClient := redisx.NewClient(&cfg.Redis)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	e := &Engine{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		orgID:       orgID,
		stopCh:      make(chan struct{}),
	}

	e.payments = repository.NewPostgresPaymentsRepo(db, logger)
	e.instruments = repository.NewPostgresInstrumentsRepo(db, logger)
	routingRepo := repository.NewPostgresRoutingRepo(db, logger)
	remindersRepo := repository.NewPostgresRemindersRepo(db, logger)
	e.autopayRepo = repository.NewPostgresAutoPayRepo(db, logger)
	e.audit = repository.NewPostgresAuditRepo(db, logger)

	e.calculator = fees.NewCalculator(&cfg.Fees)
	e.router = routing.NewEngine(orgID, routingRepo, e.calculator, logger)
	e.ledger = ledger.New(e.payments, e.instruments, logger)
	e.gate = compliance.NewGate(&cfg.Compliance, logger)

	e.notifier = notify.NewNotifier(notify.NewTemplateStore(), logger)
	e.notifier.Register(models.DeliveryEmail, notify.NewLogSender("email", logger))
	e.notifier.Register(models.DeliverySMS, notify.NewLogSender("sms", logger))
	e.notifier.Register(models.DeliveryMail, notify.NewLogSender("mail", logger))
	if cfg.MQTT.Broker != "" {
		push, err := notify.NewMQTTPushSender(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect push transport: %w", err)
		}
		e.pushSender = push
		e.notifier.Register(models.DeliveryPush, push)
	}

	intel := providers.NewThreatIntelClient(cfg.Providers.ThreatIntelBaseURL, redisClient, cfg.Providers.ThreatIntelTTL, logger)
	e.responder = risk.NewResponder(&cfg.Risk, redisClient, e.notifier, logger)
	e.scorer = risk.NewScorer(&cfg.Risk, intel, e.responder, logger)
	e.charger = providers.NewACHClient(cfg.Providers.ACHBaseURL, cfg.Providers.ACHAPIKey, logger)
	e.bankLink = providers.NewBankLinkClient(cfg.Providers.BankLinkBaseURL, cfg.Providers.BankLinkAPIKey, logger)
	e.limiter = ratelimit.NewLimiter(redisClient, &cfg.RateLimit, logger)

	locks := scheduler.NewTenantLock(redisClient, cfg.Scheduler.TenantLeaseTTL, logger)
	e.reminderSched = scheduler.NewReminderScheduler(e.payments, remindersRepo, e.notifier, locks, &cfg.Scheduler, logger)
	e.autopayProc = scheduler.NewAutoPayProcessor(e.payments, e.autopayRepo, remindersRepo, e.notifier, e.submitForAutoPay, locks, &cfg.Scheduler, logger)

	consumer, err := settlement.NewConsumer(ctx, redisClient, e.ledger, e.notifier, orgID, logger)
	if err != nil {
		return nil, err
	}
	e.consumer = consumer
	e.watchdog = settlement.NewWatchdog(e.payments, e.responder, &cfg.Scheduler, logger)

	return e, nil
}

// Start launches the settlement consumer and the periodic sweep loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting payment engine",
		zap.String("org_id", e.orgID),
		zap.Duration("sweep_interval", e.config.Scheduler.SweepInterval),
	)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.consumer.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.sweepLoop(ctx)
	}()
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.Scheduler.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.runSweep(ctx)
		}
	}
}

// runSweep executes one scheduled pass: reminders, auto-pay, the settlement
// SLA check and rate-limit GC. Each step logs its own failure and the sweep
// carries on.
func (e *Engine) runSweep(ctx context.Context) {
	pending, err := e.payments.ListByStatus(ctx, models.PaymentStatusPending)
	if err != nil {
		e.logger.Error("Sweep failed to list pending payments", zap.Error(err))
		return
	}

	if _, err := e.reminderSched.GenerateUpcomingReminders(ctx, pending); err != nil {
		e.logger.Error("Reminder generation failed", zap.Error(err))
	}
	if _, err := e.reminderSched.ProcessPendingReminders(ctx); err != nil {
		e.logger.Error("Reminder dispatch failed", zap.Error(err))
	}
	if _, err := e.autopayProc.ProcessAutoPayments(ctx, pending); err != nil {
		e.logger.Error("Auto-pay sweep failed", zap.Error(err))
	}
	if flagged, err := e.watchdog.Sweep(ctx); err != nil {
		e.logger.Error("Settlement watchdog failed", zap.Error(err))
	} else if flagged > 0 {
		e.logger.Warn("Payments flagged for settlement review", zap.Int("count", flagged))
	}
	if _, err := e.limiter.GC(ctx); err != nil {
		e.logger.Error("Rate limit GC failed", zap.Error(err))
	}
}

// Stop shuts the engine down and closes its connections.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()

	if e.pushSender != nil {
		e.pushSender.Close()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	e.logger.Info("Payment engine stopped")
}
