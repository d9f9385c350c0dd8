// Package events provides the in-process notification bus. Ledger membership
// changes, invoice lifecycle transitions, and gateway failures are published
// here; subscribers render toasts, audit logs, or metrics.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Well-known notification names.
const (
	AddonAdded     = "addon.added"
	AddonRemoved   = "addon.removed"
	InvoicePaid    = "invoice.paid"
	InvoicePending = "invoice.pending"
	InvoiceShared  = "invoice.shared"
	SyncFailed     = "billing.sync_failed"
	SubmitFailed   = "billing.submit_failed"
	PartialSuccess = "billing.partial_success"
)

// Notification is a user-facing event naming what happened and to whom.
type Notification struct {
	// Name is the notification name (e.g., "addon.added", "invoice.paid").
	Name string

	// OrganizationID identifies the affected organization, when any.
	OrganizationID string

	// Subject names the affected add-on or invoice.
	Subject string

	// Message is the human-readable text surfaced to the console.
	Message string

	// Data carries additional payload for subscribers.
	Data map[string]any
}

// Handler is a function that processes a notification.
type Handler func(ctx context.Context, n Notification) error

// Bus is a simple publish/subscribe notification bus. Publishing is
// synchronous: each user action's notifications are delivered before the
// next action is processed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new notification bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler. Supports wildcard subscriptions:
//   - "addon.added" - exact match
//   - "addon.*" - all add-on notifications
//   - "*" - everything
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish delivers a notification to all matching handlers in registration
// order. Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.logger.Debug().
		Str("notification", n.Name).
		Str("organization_id", n.OrganizationID).
		Str("subject", n.Subject).
		Msg("notification published")

	var matched []Handler

	if handlers, ok := b.handlers[n.Name]; ok {
		matched = append(matched, handlers...)
	}

	if i := strings.IndexByte(n.Name, '.'); i > 0 {
		if handlers, ok := b.handlers[n.Name[:i]+".*"]; ok {
			matched = append(matched, handlers...)
		}
	}

	if handlers, ok := b.handlers["*"]; ok {
		matched = append(matched, handlers...)
	}

	for _, handler := range matched {
		if err := handler(ctx, n); err != nil {
			b.logger.Error().
				Err(err).
				Str("notification", n.Name).
				Msg("notification handler error")
		}
	}
}

// HasSubscribers checks if any handlers would receive a notification.
func (b *Bus) HasSubscribers(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.handlers[name]) > 0 {
		return true
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		if len(b.handlers[name[:i]+".*"]) > 0 {
			return true
		}
	}
	return len(b.handlers["*"]) > 0
}
