package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"rentpay-engine/internal/models"

	"go.uber.org/zap"
)

// Message is a rendered notification ready for one transport.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers one rendered message over a single transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier renders templates and fans messages out to the transport
// registered for each delivery method.
type Notifier struct {
	mu        sync.RWMutex
	senders   map[models.DeliveryMethod]Sender
	templates *TemplateStore
	logger    *zap.Logger
}

// NewNotifier creates a notifier with the given template store.
func NewNotifier(templates *TemplateStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		senders:   make(map[models.DeliveryMethod]Sender),
		templates: templates,
		logger:    logger,
	}
}

// Register installs the transport for a delivery method.
func (n *Notifier) Register(method models.DeliveryMethod, sender Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.senders[method] = sender
}

// Deliver renders the (type, method) template for the payment and sends it.
func (n *Notifier) Deliver(ctx context.Context, rtype models.ReminderType, method models.DeliveryMethod, recipient string, p *models.Payment) error {
	n.mu.RLock()
	sender, ok := n.senders[method]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no sender registered for delivery method %s", method)
	}

	tmpl := n.templates.Lookup(rtype, method)
	msg := Message{
		Recipient: recipient,
		Subject:   renderTemplate(tmpl.Subject, p),
		Body:      renderTemplate(tmpl.Body, p),
	}

	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to deliver %s notification via %s: %w", rtype, method, err)
	}

	n.logger.Debug("Notification delivered",
		zap.String("type", string(rtype)),
		zap.String("method", string(method)),
		zap.String("payment_id", p.PaymentID),
	)
	return nil
}

// NotifyStepUp sends the step-up-authentication prompt for a challenged
// payment over push, falling back to email.
func (n *Notifier) NotifyStepUp(ctx context.Context, tenantID, paymentID string) error {
	n.mu.RLock()
	sender, ok := n.senders[models.DeliveryPush]
	if !ok {
		sender, ok = n.senders[models.DeliveryEmail]
	}
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no sender available for step-up prompt")
	}

	msg := Message{
		Recipient: tenantID,
		Subject:   "Verification required",
		Body:      "Additional verification is required before your payment can be submitted. Open the app to continue.",
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send step-up prompt: %w", err)
	}

	n.logger.Info("Step-up prompt sent",
		zap.String("tenant_id", tenantID),
		zap.String("payment_id", paymentID),
	)
	return nil
}

// renderTemplate substitutes the placeholders a template may carry:
// {{amount}}, {{due_date}}, {{property}}.
func renderTemplate(text string, p *models.Payment) string {
	replacer := strings.NewReplacer(
		"{{amount}}", formatAmount(p.Amount+p.TotalFees()),
		"{{due_date}}", p.DueDate.Format("January 2, 2006"),
		"{{property}}", p.PropertyID,
	)
	return replacer.Replace(text)
}

// formatAmount renders minor units as a dollar string, e.g. 150000 -> $1,500.00.
func formatAmount(minor int64) string {
	major := minor / 100
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}

	digits := fmt.Sprintf("%d", major)
	var b strings.Builder
	if strings.HasPrefix(digits, "-") {
		b.WriteByte('-')
		digits = digits[1:]
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return fmt.Sprintf("$%s.%02d", b.String(), cents)
}
