package template

import (
	"fmt"
	"sync"

	"github.com/notifyhq/notification-engine/internal/models"
)

// ErrNotFound is returned when no template exists for the requested ID.
var ErrNotFound = fmt.Errorf("template not found")

// Registry resolves a template identifier to its channel-specific content.
type Registry interface {
	Get(id string) (models.Template, error)
}

// StaticRegistry is an in-memory Registry seeded with the engine's default
// template set.
type StaticRegistry struct {
	mu        sync.RWMutex
	templates map[string]models.Template
}

func NewStaticRegistry() *StaticRegistry {
	r := &StaticRegistry{templates: make(map[string]models.Template)}
	for _, t := range defaultTemplates() {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a template definition.
func (r *StaticRegistry) Register(t models.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
}

func (r *StaticRegistry) Get(id string) (models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return models.Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

func defaultTemplates() []models.Template {
	return []models.Template{
		{
			ID: "welcome",
			Email: &models.EmailContent{
				Subject: "Welcome, {{name}}!",
				HTML:    "<h1>Welcome, {{name}}!</h1><p>Your account is ready.</p>",
				Text:    "Welcome, {{name}}! Your account is ready.",
			},
			SMS: &models.SMSContent{Body: "Welcome, {{name}}! Your account is ready."},
		},
		{
			ID: "order-confirmation",
			Email: &models.EmailContent{
				Subject: "Order {{orderId}} confirmed",
				HTML:    "<h1>Thanks, {{name}}!</h1><p>Order {{orderId}} for {{total}} has been confirmed.</p>",
				Text:    "Thanks, {{name}}! Order {{orderId}} for {{total}} has been confirmed.",
			},
			SMS: &models.SMSContent{Body: "Order {{orderId}} confirmed. Total: {{total}}."},
		},
		{
			ID: "order-shipped",
			Email: &models.EmailContent{
				Subject: "Order {{orderId}} is on its way",
				HTML:    "<p>Order {{orderId}} shipped. Track it: {{trackingUrl}}</p>",
				Text:    "Order {{orderId}} shipped. Track it: {{trackingUrl}}",
			},
			SMS: &models.SMSContent{Body: "Order {{orderId}} shipped. Track: {{trackingUrl}}"},
		},
		{
			ID: "payment-received",
			Email: &models.EmailContent{
				Subject: "Payment received for order {{orderId}}",
				HTML:    "<p>We received your payment of {{amount}} for order {{orderId}}.</p>",
				Text:    "We received your payment of {{amount}} for order {{orderId}}.",
			},
			SMS: &models.SMSContent{Body: "Payment of {{amount}} received for order {{orderId}}."},
		},
		{
			ID: "payment-failed",
			Email: &models.EmailContent{
				Subject: "Payment failed for order {{orderId}}",
				HTML:    "<p>Your payment of {{amount}} for order {{orderId}} failed: {{reason}}</p>",
				Text:    "Your payment of {{amount}} for order {{orderId}} failed: {{reason}}",
			},
			SMS: &models.SMSContent{Body: "Payment for order {{orderId}} failed: {{reason}}"},
		},
		{
			ID: "password-reset",
			Email: &models.EmailContent{
				Subject: "Reset your password",
				HTML:    "<p>Hi {{name}}, use code {{code}} to reset your password.</p>",
				Text:    "Hi {{name}}, use code {{code}} to reset your password.",
			},
			SMS: &models.SMSContent{Body: "Use code {{code}} to reset your password."},
		},
	}
}
