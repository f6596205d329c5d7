// Event log: keeps the most recent lifecycle events from the domain bus so
// operators can see logins, failures and caller churn without reading logs.
package api

import (
	"sync"
	"time"

	"github.com/sipeed/discord-router/pkg/domain"
)

// DefaultEventLogSize is the number of events the log retains.
const DefaultEventLogSize = 200

// EventEntry is one recorded lifecycle event.
type EventEntry struct {
	Type      domain.EventType `json:"type"`
	Subject   domain.EntityID  `json:"subject,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Data      interface{}      `json:"data,omitempty"`
}

// EventLog is a fixed-size ring of recent events.
type EventLog struct {
	mu      sync.RWMutex
	entries []EventEntry
	next    int
	full    bool
}

// NewEventLog creates a log holding up to size entries.
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &EventLog{entries: make([]EventEntry, size)}
}

// Attach subscribes the log to every event on bus.
func (l *EventLog) Attach(bus domain.EventBus) {
	bus.SubscribeAll(l.record)
}

func (l *EventLog) record(e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = EventEntry{
		Type:      e.EventType(),
		Subject:   e.AggregateID(),
		Timestamp: e.OccurredAt(),
		Data:      e.Payload(),
	}
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (l *EventLog) Recent(limit int) []EventEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]EventEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
