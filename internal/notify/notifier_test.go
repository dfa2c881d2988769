package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/models"
)

func notifyPayment() *models.Payment {
	return &models.Payment{
		PaymentID:  "pay-1",
		TenantID:   "tenant-1",
		PropertyID: "Unit 4B",
		Amount:     150000,
		DueDate:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Fees: []models.Fee{
			{FeeType: "processing", Amount: 500},
		},
	}
}

func TestDeliver_RendersPlaceholders(t *testing.T) {
	notifier := NewNotifier(NewTemplateStore(), zap.NewNop())
	email := NewRecordingSender()
	notifier.Register(models.DeliveryEmail, email)

	err := notifier.Deliver(context.Background(), models.ReminderUpcoming, models.DeliveryEmail, "tenant@example.com", notifyPayment())
	require.NoError(t, err)

	msgs := email.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tenant@example.com", msgs[0].Recipient)
	assert.Equal(t, "Upcoming rent payment for Unit 4B", msgs[0].Subject)
	// Amount includes the fee annotations.
	assert.Contains(t, msgs[0].Body, "$1,505.00")
	assert.Contains(t, msgs[0].Body, "April 1, 2024")
}

func TestDeliver_UnregisteredMethod(t *testing.T) {
	notifier := NewNotifier(NewTemplateStore(), zap.NewNop())

	err := notifier.Deliver(context.Background(), models.ReminderUpcoming, models.DeliverySMS, "+15550100", notifyPayment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sender registered")
}

func TestDeliver_SenderFailurePropagates(t *testing.T) {
	notifier := NewNotifier(NewTemplateStore(), zap.NewNop())
	sms := NewRecordingSender()
	sms.FailWith(errors.New("gateway timeout"))
	notifier.Register(models.DeliverySMS, sms)

	err := notifier.Deliver(context.Background(), models.ReminderOverdue, models.DeliverySMS, "+15550100", notifyPayment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")
}

func TestTemplateLookup_FallsBackToDefaultThenGeneric(t *testing.T) {
	store := NewTemplateStore()

	// No push template for overdue: the type default (email) is used.
	tmpl := store.Lookup(models.ReminderOverdue, models.DeliveryPush)
	assert.Equal(t, "overdue-email", tmpl.TemplateID)

	// Failed has only the email default.
	tmpl = store.Lookup(models.ReminderFailed, models.DeliveryMail)
	assert.Equal(t, "failed-email", tmpl.TemplateID)

	// A type with no templates at all gets the generic one.
	empty := &TemplateStore{
		templates: map[templateKey]models.MessageTemplate{},
		defaults:  map[models.ReminderType]models.MessageTemplate{},
	}
	tmpl = empty.Lookup(models.ReminderSuccess, models.DeliveryEmail)
	assert.Equal(t, "builtin-generic", tmpl.TemplateID)
}

func TestNotifyStepUp_PrefersPush(t *testing.T) {
	notifier := NewNotifier(NewTemplateStore(), zap.NewNop())
	push := NewRecordingSender()
	email := NewRecordingSender()
	notifier.Register(models.DeliveryPush, push)
	notifier.Register(models.DeliveryEmail, email)

	require.NoError(t, notifier.NotifyStepUp(context.Background(), "tenant-1", "pay-1"))

	assert.Len(t, push.Messages(), 1)
	assert.Empty(t, email.Messages())
}

func TestNotifyStepUp_FallsBackToEmail(t *testing.T) {
	notifier := NewNotifier(NewTemplateStore(), zap.NewNop())
	email := NewRecordingSender()
	notifier.Register(models.DeliveryEmail, email)

	require.NoError(t, notifier.NotifyStepUp(context.Background(), "tenant-1", "pay-1"))
	require.Len(t, email.Messages(), 1)
	assert.Equal(t, "tenant-1", email.Messages()[0].Recipient)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$1,500.00", formatAmount(150000))
	assert.Equal(t, "$0.75", formatAmount(75))
	assert.Equal(t, "$12,345.67", formatAmount(1234567))
}
