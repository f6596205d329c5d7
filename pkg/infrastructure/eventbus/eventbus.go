// Package eventbus provides the in-process implementation of domain.EventBus.
// The router publishes connection, listener and command lifecycle events on
// it; the health reporter and the log bridge consume them.
package eventbus

import (
	"sync"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
)

// InProcessEventBus is a synchronous in-process event bus.
// It dispatches events to registered handlers immediately on Publish().
type InProcessEventBus struct {
	handlers    map[domain.EventType][]domain.EventHandler
	allHandlers []domain.EventHandler
	mu          sync.RWMutex
	closed      bool
}

// New creates a new in-process event bus.
func New() *InProcessEventBus {
	return &InProcessEventBus{
		handlers:    make(map[domain.EventType][]domain.EventHandler),
		allHandlers: make([]domain.EventHandler, 0),
	}
}

// Publish dispatches an event to all matching handlers.
// Handlers for the specific event type are called first, then global handlers.
// The handler lists are copied before calling so a handler may subscribe.
func (b *InProcessEventBus) Publish(event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	typed := append([]domain.EventHandler(nil), b.handlers[event.EventType()]...)
	global := append([]domain.EventHandler(nil), b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range typed {
		b.call(handler, event)
	}
	for _, handler := range global {
		b.call(handler, event)
	}
}

func (b *InProcessEventBus) call(handler domain.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("eventbus", "Event handler panicked", map[string]interface{}{
				"type":  event.EventType(),
				"panic": r,
			})
		}
	}()
	handler(event)
}

// Subscribe registers a handler for a specific event type.
func (b *InProcessEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *InProcessEventBus) SubscribeAll(handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, handler)
}

// Close marks the bus as closed. No more events will be dispatched.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// PublishAll dispatches multiple events (e.g., from AggregateRoot.PullEvents).
func (b *InProcessEventBus) PublishAll(events []domain.Event) {
	for _, event := range events {
		b.Publish(event)
	}
}

// HandlerCount returns the total number of registered handlers (for diagnostics).
func (b *InProcessEventBus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allHandlers)
	for _, handlers := range b.handlers {
		count += len(handlers)
	}
	return count
}

// LogBridge subscribes a handler that writes every lifecycle event to the
// process log at debug level.
func LogBridge(bus domain.EventBus) {
	bus.SubscribeAll(func(e domain.Event) {
		logger.DebugCF("events", string(e.EventType()), map[string]interface{}{
			"aggregate_id": e.AggregateID(),
			"data":         e.Payload(),
		})
	})
}

// Verify interface compliance at compile time.
var _ domain.EventBus = (*InProcessEventBus)(nil)
