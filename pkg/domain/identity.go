// Package domain provides the building blocks shared by the router packages:
// identifiers, connection states and lifecycle events.
package domain

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// EntityID names the subject of a lifecycle event: a client id, a listener
// id or an IPC caller id.
type EntityID string

func (id EntityID) String() string { return string(id) }

// IsZero reports whether no identity was assigned.
func (id EntityID) IsZero() bool { return id == "" }

// ---------------------------------------------------------------------------
// Aggregates
// ---------------------------------------------------------------------------

// AggregateRoot buffers the events a state transition produces so the owner
// can publish them after releasing its locks. Access is serialized by the
// owner.
type AggregateRoot struct {
	id      EntityID
	pending []Event
}

func (a *AggregateRoot) ID() EntityID      { return a.id }
func (a *AggregateRoot) SetID(id EntityID) { a.id = id }

// RecordEvent queues e until the next PullEvents.
func (a *AggregateRoot) RecordEvent(e Event) {
	a.pending = append(a.pending, e)
}

// PullEvents hands over the queued events and empties the queue.
func (a *AggregateRoot) PullEvents() []Event {
	out := a.pending
	a.pending = nil
	return out
}

func (a *AggregateRoot) HasPendingEvents() bool { return len(a.pending) > 0 }
