package notify

import (
	"sync"

	"rentpay-engine/internal/models"
)

// TemplateStore holds message templates keyed by (type, method). Lookup
// falls back to the per-type default, then a built-in generic template, so
// rendering never fails for lack of a template.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]models.MessageTemplate
	defaults  map[models.ReminderType]models.MessageTemplate
}

type templateKey struct {
	Type   models.ReminderType
	Method models.DeliveryMethod
}

var genericTemplate = models.MessageTemplate{
	TemplateID: "builtin-generic",
	Subject:    "Payment notice for {{property}}",
	Body:       "A payment of {{amount}} for {{property}} is due on {{due_date}}.",
	IsDefault:  true,
}

// NewTemplateStore creates a store seeded with the standard templates.
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{
		templates: make(map[templateKey]models.MessageTemplate),
		defaults:  make(map[models.ReminderType]models.MessageTemplate),
	}
	for _, t := range builtinTemplates {
		s.Put(t)
	}
	return s
}

// Put installs a template. A template flagged default becomes the fallback
// for its type across all methods.
func (s *TemplateStore) Put(t models.MessageTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Method != "" {
		s.templates[templateKey{Type: t.Type, Method: t.Method}] = t
	}
	if t.IsDefault {
		s.defaults[t.Type] = t
	}
}

// Lookup returns the template for (type, method), the type default, or the
// built-in generic template, in that order.
func (s *TemplateStore) Lookup(rtype models.ReminderType, method models.DeliveryMethod) models.MessageTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.templates[templateKey{Type: rtype, Method: method}]; ok {
		return t
	}
	if t, ok := s.defaults[rtype]; ok {
		return t
	}
	return genericTemplate
}

var builtinTemplates = []models.MessageTemplate{
	{
		TemplateID: "upcoming-email",
		Type:       models.ReminderUpcoming,
		Method:     models.DeliveryEmail,
		Subject:    "Upcoming rent payment for {{property}}",
		Body:       "Your rent payment of {{amount}} for {{property}} is due on {{due_date}}.",
		IsDefault:  true,
	},
	{
		TemplateID: "upcoming-sms",
		Type:       models.ReminderUpcoming,
		Method:     models.DeliverySMS,
		Body:       "Rent of {{amount}} for {{property}} is due {{due_date}}.",
	},
	{
		TemplateID: "overdue-email",
		Type:       models.ReminderOverdue,
		Method:     models.DeliveryEmail,
		Subject:    "Overdue rent payment for {{property}}",
		Body:       "Your rent payment of {{amount}} for {{property}} was due on {{due_date}} and is now overdue. Please pay as soon as possible to avoid late fees.",
		IsDefault:  true,
	},
	{
		TemplateID: "overdue-sms",
		Type:       models.ReminderOverdue,
		Method:     models.DeliverySMS,
		Body:       "OVERDUE: rent of {{amount}} for {{property}} was due {{due_date}}.",
	},
	{
		TemplateID: "failed-email",
		Type:       models.ReminderFailed,
		Method:     models.DeliveryEmail,
		Subject:    "Payment failed for {{property}}",
		Body:       "Your payment of {{amount}} for {{property}} could not be processed. Please review your payment method and try again.",
		IsDefault:  true,
	},
	{
		TemplateID: "success-email",
		Type:       models.ReminderSuccess,
		Method:     models.DeliveryEmail,
		Subject:    "Payment received for {{property}}",
		Body:       "Your payment of {{amount}} for {{property}} has been received. Thank you.",
		IsDefault:  true,
	},
}
