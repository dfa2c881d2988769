package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/models"
	"rentpay-engine/internal/repository"
)

func setupLedger(t *testing.T) (*Ledger, *repository.MemoryPaymentsRepo, *repository.MemoryInstrumentsRepo) {
	t.Helper()
	payments := repository.NewMemoryPaymentsRepo()
	instruments := repository.NewMemoryInstrumentsRepo()
	l := New(payments, instruments, zap.NewNop())
	l.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return l, payments, instruments
}

func createPending(t *testing.T, l *Ledger) *models.Payment {
	t.Helper()
	p, err := l.Create(context.Background(), CreateSpec{
		TenantID:     "tenant-1",
		PropertyID:   "prop-1",
		PropertyType: "residential",
		Amount:       150000,
		DueDate:      time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func verifiedInstrument(limits models.InstrumentLimits) *models.PaymentInstrument {
	return &models.PaymentInstrument{
		InstrumentID: "inst-1",
		TenantID:     "tenant-1",
		Type:         models.InstrumentBankTransfer,
		Mask:         "6789",
		Limits:       limits,
		Verified:     true,
		IsActive:     true,
	}
}

func TestCreate_RejectsInvalidAmount(t *testing.T) {
	l, _, _ := setupLedger(t)

	_, err := l.Create(context.Background(), CreateSpec{TenantID: "tenant-1", PropertyID: "prop-1", Amount: 0})
	assert.Error(t, err)

	_, err = l.Create(context.Background(), CreateSpec{TenantID: "tenant-1", PropertyID: "prop-1", Amount: -500})
	assert.Error(t, err)
}

func TestLifecycle_PendingToCompleted(t *testing.T) {
	l, payments, _ := setupLedger(t)
	ctx := context.Background()
	p := createPending(t, l)

	require.NoError(t, l.MarkProcessing(ctx, p, "inst-1", "txn-123", 500))
	assert.Equal(t, models.PaymentStatusProcessing, p.Status)
	require.Len(t, p.Fees, 1)
	assert.Equal(t, "processing", p.Fees[0].FeeType)
	assert.Equal(t, int64(500), p.TotalFees())

	require.NoError(t, l.Complete(ctx, p))
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.PaidDate)
	require.NotNil(t, p.Confirmation)
	assert.Contains(t, *p.Confirmation, "PAY-")

	stored, err := payments.GetPayment(ctx, "tenant-1", p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
}

func TestLifecycle_PendingToFailed(t *testing.T) {
	l, _, _ := setupLedger(t)
	ctx := context.Background()
	p := createPending(t, l)

	require.NoError(t, l.MarkProcessing(ctx, p, "inst-1", "txn-123", 0))
	require.NoError(t, l.Fail(ctx, p, "insufficient funds"))

	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "insufficient funds", *p.FailureReason)
	assert.Nil(t, p.PaidDate)
}

func TestTransition_PendingCannotComplete(t *testing.T) {
	l, _, _ := setupLedger(t)
	p := createPending(t, l)

	err := l.Complete(context.Background(), p)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.PaymentStatusPending, te.From)
	assert.Equal(t, models.PaymentStatusCompleted, te.To)
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	l, _, _ := setupLedger(t)
	ctx := context.Background()

	p := createPending(t, l)
	require.NoError(t, l.MarkProcessing(ctx, p, "inst-1", "txn-1", 0))
	require.NoError(t, l.Fail(ctx, p, "declined"))

	var te *TransitionError
	assert.ErrorAs(t, l.Complete(ctx, p), &te)
	assert.ErrorAs(t, l.MarkProcessing(ctx, p, "inst-2", "txn-2", 0), &te)
}

func TestTransition_CompletedCanBeDisputed(t *testing.T) {
	l, _, _ := setupLedger(t)
	ctx := context.Background()

	p := createPending(t, l)
	require.NoError(t, l.MarkProcessing(ctx, p, "inst-1", "txn-1", 0))

	var te *TransitionError
	require.ErrorAs(t, l.Dispute(ctx, p), &te)

	require.NoError(t, l.Complete(ctx, p))
	require.NoError(t, l.Dispute(ctx, p))
	assert.Equal(t, models.PaymentStatusDisputed, p.Status)
	assert.True(t, p.Status.IsTerminal())
}

func TestMarkProcessing_RequiresInstrumentAndTransaction(t *testing.T) {
	l, _, _ := setupLedger(t)
	p := createPending(t, l)

	assert.Error(t, l.MarkProcessing(context.Background(), p, "", "txn-1", 0))
	assert.Error(t, l.MarkProcessing(context.Background(), p, "inst-1", "", 0))
	assert.Equal(t, models.PaymentStatusPending, p.Status)
}

func TestCheckInstrument_UnverifiedRejected(t *testing.T) {
	l, _, instruments := setupLedger(t)
	ctx := context.Background()

	inst := verifiedInstrument(models.InstrumentLimits{})
	inst.Verified = false
	require.NoError(t, instruments.CreateInstrument(ctx, inst))

	_, err := l.CheckInstrument(ctx, "tenant-1", "inst-1", 150000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not verified")
}

func TestCheckInstrument_PerTransactionLimit(t *testing.T) {
	l, _, instruments := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, instruments.CreateInstrument(ctx, verifiedInstrument(models.InstrumentLimits{PerTransaction: 100000})))

	_, err := l.CheckInstrument(ctx, "tenant-1", "inst-1", 150000)

	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "per_transaction", le.Window)
}

func TestCheckInstrument_DailyLimitCountsRecentSpend(t *testing.T) {
	l, payments, instruments := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, instruments.CreateInstrument(ctx, verifiedInstrument(models.InstrumentLimits{Daily: 200000})))

	// A completed charge from earlier today occupies most of the window.
	instID := "inst-1"
	paid := l.now().Add(-2 * time.Hour)
	require.NoError(t, payments.CreatePayment(ctx, &models.Payment{
		PaymentID:    "prior",
		TenantID:     "tenant-1",
		PropertyID:   "prop-1",
		Amount:       120000,
		Status:       models.PaymentStatusCompleted,
		InstrumentID: &instID,
		PaidDate:     &paid,
		UpdatedAt:    paid,
	}))

	_, err := l.CheckInstrument(ctx, "tenant-1", "inst-1", 100000)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "daily", le.Window)

	// A smaller charge still fits.
	_, err = l.CheckInstrument(ctx, "tenant-1", "inst-1", 50000)
	assert.NoError(t, err)
}

func TestAddLateFee_OnlyWhilePending(t *testing.T) {
	l, _, _ := setupLedger(t)
	ctx := context.Background()

	p := createPending(t, l)
	require.NoError(t, l.AddLateFee(ctx, p, 2500))
	require.Len(t, p.Fees, 1)
	assert.Equal(t, "late", p.Fees[0].FeeType)

	require.NoError(t, l.MarkProcessing(ctx, p, "inst-1", "txn-1", 0))
	assert.Error(t, l.AddLateFee(ctx, p, 2500))
}
