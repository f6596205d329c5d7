package domain

import "time"

// ---------------------------------------------------------------------------
// Lifecycle events
// ---------------------------------------------------------------------------

// EventType classifies domain events for routing and filtering.
type EventType string

const (
	// Connection lifecycle
	EventConnectionLoggingIn EventType = "connection.logging_in"
	EventConnectionReady     EventType = "connection.ready"
	EventConnectionFailed    EventType = "connection.failed"
	EventConnectionReleased  EventType = "connection.released"

	// Listener registry
	EventListenerRegistered   EventType = "listener.registered"
	EventListenerDeregistered EventType = "listener.deregistered"

	// Commands
	EventCommandExecuted EventType = "command.executed"
	EventCommandFailed   EventType = "command.failed"

	// IPC callers
	EventCallerConnected    EventType = "caller.connected"
	EventCallerDisconnected EventType = "caller.disconnected"

	// System
	EventSystemStartup     EventType = "system.startup"
	EventSystemShutdown    EventType = "system.shutdown"
	EventSystemHealthCheck EventType = "system.health"
)

// Event is the interface all domain events implement.
type Event interface {
	// EventType returns the classified event type.
	EventType() EventType
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() EntityID
	// Payload returns the event-specific data.
	Payload() interface{}
}

// BaseEvent provides a reusable implementation of the Event interface.
type BaseEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	AggID     EntityID    `json:"aggregate_id"`
	EventData interface{} `json:"data,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() EntityID { return e.AggID }
func (e BaseEvent) Payload() interface{}  { return e.EventData }

// NewEvent creates a new domain event.
func NewEvent(eventType EventType, aggregateID EntityID, data interface{}) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggregateID,
		EventData: data,
	}
}

// ---------------------------------------------------------------------------
// Event bus
// ---------------------------------------------------------------------------

// EventHandler processes a domain event. Handlers must not block.
type EventHandler func(Event)

// EventBus dispatches domain events to registered handlers.
type EventBus interface {
	// Publish dispatches an event to all registered handlers.
	Publish(event Event)
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler)
	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler)
	// Close shuts down the event bus.
	Close()
}
