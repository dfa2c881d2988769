package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rentpay-engine/internal/models"
)

// Memory implementations back the repo interfaces when the database is
// disabled and in unit tests.

// MemoryPaymentsRepo in-memory PaymentsRepo.
type MemoryPaymentsRepo struct {
	mu       sync.RWMutex
	payments map[string]models.Payment // paymentID -> Payment
}

func NewMemoryPaymentsRepo() *MemoryPaymentsRepo {
	return &MemoryPaymentsRepo{payments: map[string]models.Payment{}}
}

func (r *MemoryPaymentsRepo) CreatePayment(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.PaymentID]; ok {
		return fmt.Errorf("payment already exists: %s", p.PaymentID)
	}
	r.payments[p.PaymentID] = *p
	return nil
}

func (r *MemoryPaymentsRepo) GetPayment(_ context.Context, tenantID, paymentID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("payment not found: %s", paymentID)
	}
	cp := p
	return &cp, nil
}

func (r *MemoryPaymentsRepo) UpdatePayment(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.PaymentID]; !ok {
		return fmt.Errorf("payment not found: %s", p.PaymentID)
	}
	updated := *p
	updated.UpdatedAt = time.Now()
	r.payments[p.PaymentID] = updated
	return nil
}

func (r *MemoryPaymentsRepo) ListByStatus(_ context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r *MemoryPaymentsRepo) ListProcessingBefore(_ context.Context, cutoff time.Time) ([]models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == models.PaymentStatusProcessing && p.UpdatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryPaymentsRepo) RecentHistory(_ context.Context, tenantID string, since time.Time) ([]models.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.TransactionRecord
	for _, p := range r.payments {
		if p.TenantID != tenantID || p.UpdatedAt.Before(since) {
			continue
		}
		if p.Status != models.PaymentStatusProcessing && p.Status != models.PaymentStatusCompleted {
			continue
		}
		instrumentID := ""
		if p.InstrumentID != nil {
			instrumentID = *p.InstrumentID
		}
		out = append(out, models.TransactionRecord{
			PaymentID:    p.PaymentID,
			TenantID:     p.TenantID,
			InstrumentID: instrumentID,
			Amount:       p.Amount,
			OccurredAt:   p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (r *MemoryPaymentsRepo) SumByInstrumentSince(_ context.Context, instrumentID string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, p := range r.payments {
		if p.InstrumentID == nil || *p.InstrumentID != instrumentID {
			continue
		}
		if p.UpdatedAt.Before(since) {
			continue
		}
		if p.Status == models.PaymentStatusProcessing || p.Status == models.PaymentStatusCompleted {
			total += p.Amount
		}
	}
	return total, nil
}

// MemoryInstrumentsRepo in-memory InstrumentsRepo.
type MemoryInstrumentsRepo struct {
	mu          sync.RWMutex
	instruments map[string]models.PaymentInstrument
}

func NewMemoryInstrumentsRepo() *MemoryInstrumentsRepo {
	return &MemoryInstrumentsRepo{instruments: map[string]models.PaymentInstrument{}}
}

func (r *MemoryInstrumentsRepo) ListByTenant(_ context.Context, tenantID string) ([]models.PaymentInstrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.PaymentInstrument
	for _, inst := range r.instruments {
		if inst.TenantID == tenantID && inst.IsActive {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryInstrumentsRepo) GetInstrument(_ context.Context, tenantID, instrumentID string) (*models.PaymentInstrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[instrumentID]
	if !ok || inst.TenantID != tenantID {
		return nil, fmt.Errorf("instrument not found: %s", instrumentID)
	}
	cp := inst
	return &cp, nil
}

func (r *MemoryInstrumentsRepo) CreateInstrument(_ context.Context, inst *models.PaymentInstrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[inst.InstrumentID]; ok {
		return fmt.Errorf("instrument already exists: %s", inst.InstrumentID)
	}
	r.instruments[inst.InstrumentID] = *inst
	return nil
}

func (r *MemoryInstrumentsRepo) SetDefault(_ context.Context, tenantID, instrumentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.instruments[instrumentID]
	if !ok || target.TenantID != tenantID {
		return fmt.Errorf("instrument not found: %s", instrumentID)
	}
	for id, inst := range r.instruments {
		if inst.TenantID == tenantID {
			inst.IsDefault = id == instrumentID
			r.instruments[id] = inst
		}
	}
	return nil
}

func (r *MemoryInstrumentsRepo) SetActive(_ context.Context, tenantID, instrumentID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instruments[instrumentID]
	if !ok || inst.TenantID != tenantID {
		return fmt.Errorf("instrument not found: %s", instrumentID)
	}
	inst.IsActive = active
	r.instruments[instrumentID] = inst
	return nil
}

// MemoryRoutingRepo in-memory RoutingRepo.
type MemoryRoutingRepo struct {
	mu       sync.RWMutex
	rules    []models.RoutingRule
	accounts map[string]models.BusinessAccount
}

func NewMemoryRoutingRepo() *MemoryRoutingRepo {
	return &MemoryRoutingRepo{accounts: map[string]models.BusinessAccount{}}
}

func (r *MemoryRoutingRepo) AddRule(rule models.RoutingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

func (r *MemoryRoutingRepo) AddAccount(acct models.BusinessAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acct.AccountID] = acct
}

func (r *MemoryRoutingRepo) ListActiveRules(_ context.Context, orgID string) ([]models.RoutingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.RoutingRule
	for _, rule := range r.rules {
		if rule.OrgID == orgID && rule.IsActive {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *MemoryRoutingRepo) GetAccount(_ context.Context, accountID string) (*models.BusinessAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("business account not found: %s", accountID)
	}
	cp := acct
	return &cp, nil
}

func (r *MemoryRoutingRepo) GetPrimaryAccount(_ context.Context, orgID string) (*models.BusinessAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.OrgID == orgID && acct.IsPrimary && acct.IsActive {
			cp := acct
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no primary business account for org: %s", orgID)
}

// MemoryRemindersRepo in-memory RemindersRepo.
type MemoryRemindersRepo struct {
	mu        sync.RWMutex
	reminders map[string]models.Reminder
	schedules map[string]models.NotificationSchedule // tenantID -> active schedule
	jobs      map[string]models.BulkReminderJob
}

func NewMemoryRemindersRepo() *MemoryRemindersRepo {
	return &MemoryRemindersRepo{
		reminders: map[string]models.Reminder{},
		schedules: map[string]models.NotificationSchedule{},
		jobs:      map[string]models.BulkReminderJob{},
	}
}

func (r *MemoryRemindersRepo) ReminderExists(_ context.Context, paymentID string, rtype models.ReminderType, offsetDays int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rem := range r.reminders {
		if rem.PaymentID == paymentID && rem.Type == rtype && rem.OffsetDays == offsetDays {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRemindersRepo) CreateReminder(_ context.Context, rem *models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reminders[rem.ReminderID]; ok {
		return fmt.Errorf("reminder already exists: %s", rem.ReminderID)
	}
	r.reminders[rem.ReminderID] = *rem
	return nil
}

func (r *MemoryRemindersRepo) ListUnsent(_ context.Context, limit int) ([]models.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Reminder
	for _, rem := range r.reminders {
		if !rem.Sent {
			out = append(out, rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRemindersRepo) MarkSent(_ context.Context, reminderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[reminderID]
	if !ok || rem.Sent {
		return fmt.Errorf("reminder already sent or not found: %s", reminderID)
	}
	now := time.Now()
	rem.Sent = true
	rem.SentAt = &now
	r.reminders[reminderID] = rem
	return nil
}

func (r *MemoryRemindersRepo) GetActiveSchedule(_ context.Context, tenantID string) (*models.NotificationSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sched, ok := r.schedules[tenantID]
	if !ok {
		return nil, nil
	}
	cp := sched
	return &cp, nil
}

func (r *MemoryRemindersRepo) CreateSchedule(_ context.Context, sched *models.NotificationSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[sched.TenantID] = *sched
	return nil
}

func (r *MemoryRemindersRepo) CreateJob(_ context.Context, job *models.BulkReminderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = *job
	return nil
}

func (r *MemoryRemindersRepo) UpdateJob(_ context.Context, job *models.BulkReminderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; !ok {
		return fmt.Errorf("bulk job not found: %s", job.JobID)
	}
	r.jobs[job.JobID] = *job
	return nil
}

// GetReminder test helper.
func (r *MemoryRemindersRepo) GetReminder(reminderID string) (models.Reminder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rem, ok := r.reminders[reminderID]
	return rem, ok
}

// CountReminders test helper.
func (r *MemoryRemindersRepo) CountReminders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reminders)
}

// MemoryAutoPayRepo in-memory AutoPayRepo.
type MemoryAutoPayRepo struct {
	mu      sync.RWMutex
	configs map[string]models.AutoPayConfiguration // tenantID -> config
}

func NewMemoryAutoPayRepo() *MemoryAutoPayRepo {
	return &MemoryAutoPayRepo{configs: map[string]models.AutoPayConfiguration{}}
}

func (r *MemoryAutoPayRepo) GetEnabledConfig(_ context.Context, tenantID string) (*models.AutoPayConfiguration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tenantID]
	if !ok || !cfg.IsEnabled {
		return nil, nil
	}
	cp := cfg
	return &cp, nil
}

func (r *MemoryAutoPayRepo) CreateConfig(_ context.Context, cfg *models.AutoPayConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.TenantID] = *cfg
	return nil
}

func (r *MemoryAutoPayRepo) DisableConfig(_ context.Context, tenantID, configID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[tenantID]
	if !ok || cfg.ConfigID != configID {
		return fmt.Errorf("autopay config not found: %s", configID)
	}
	cfg.IsEnabled = false
	r.configs[tenantID] = cfg
	return nil
}

// MemoryAuditRepo in-memory AuditRepo.
type MemoryAuditRepo struct {
	mu          sync.Mutex
	Assessments []models.RiskAssessment
	Compliance  []models.ComplianceResult
}

func NewMemoryAuditRepo() *MemoryAuditRepo {
	return &MemoryAuditRepo{}
}

func (r *MemoryAuditRepo) RecordRiskAssessment(_ context.Context, a *models.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Assessments = append(r.Assessments, *a)
	return nil
}

func (r *MemoryAuditRepo) RecordComplianceResult(_ context.Context, tenantID, paymentID string, res *models.ComplianceResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Compliance = append(r.Compliance, *res)
	return nil
}

// CountRiskAssessments test helper.
func (r *MemoryAuditRepo) CountRiskAssessments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Assessments)
}

// CountComplianceResults test helper.
func (r *MemoryAuditRepo) CountComplianceResults() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Compliance)
}
