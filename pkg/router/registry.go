package router

import (
	"sort"
	"sync"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
)

// Registry holds the listeners of every token: token → listener id → listener.
// A listener id is unique across tokens.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]map[string]*Listener
	tokenOf map[string]string
	bus     domain.EventBus
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(bus domain.EventBus) *Registry {
	return &Registry{
		byToken: make(map[string]map[string]*Listener),
		tokenOf: make(map[string]string),
		bus:     bus,
	}
}

// EnsureToken creates an empty listener set for token if none exists.
func (r *Registry) EnsureToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byToken[token]; !ok {
		r.byToken[token] = make(map[string]*Listener)
	}
}

// Register adds or replaces the listener with l.ID. If the id was registered
// under another token it is moved.
func (r *Registry) Register(l *Listener) {
	r.mu.Lock()
	if prev, ok := r.tokenOf[l.ID]; ok && prev != l.Token {
		delete(r.byToken[prev], l.ID)
	}
	set, ok := r.byToken[l.Token]
	if !ok {
		set = make(map[string]*Listener)
		r.byToken[l.Token] = set
	}
	set[l.ID] = l
	r.tokenOf[l.ID] = l.Token
	r.mu.Unlock()

	logger.InfoCF("router", "Listener registered", map[string]interface{}{
		"listener_id": l.ID,
		"kind":        l.Kind,
		"active":      l.Active,
	})
	r.publish(domain.EventListenerRegistered, l)
}

// Deregister removes the listener id from every token. It reports whether
// anything was removed.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	var removed *Listener
	for _, set := range r.byToken {
		if l, ok := set[id]; ok {
			removed = l
			delete(set, id)
		}
	}
	delete(r.tokenOf, id)
	r.mu.Unlock()

	if removed == nil {
		return false
	}
	logger.InfoCF("router", "Listener deregistered", map[string]interface{}{
		"listener_id": id,
	})
	r.publish(domain.EventListenerDeregistered, removed)
	return true
}

// DeregisterReply removes every listener that delivers to addr and returns
// how many were removed. Used when a caller disconnects.
func (r *Registry) DeregisterReply(addr ReplyAddress) int {
	r.mu.Lock()
	var removed []*Listener
	for _, set := range r.byToken {
		for id, l := range set {
			if l.Reply == addr {
				removed = append(removed, l)
				delete(set, id)
				delete(r.tokenOf, id)
			}
		}
	}
	r.mu.Unlock()

	for _, l := range removed {
		r.publish(domain.EventListenerDeregistered, l)
	}
	if len(removed) > 0 {
		logger.InfoCF("router", "Listeners of disconnected caller removed", map[string]interface{}{
			"count": len(removed),
		})
	}
	return len(removed)
}

// Snapshot returns a copy of the token's listeners ordered by id.
// Registrations made after the call are not reflected.
func (r *Registry) Snapshot(token string) []*Listener {
	r.mu.RLock()
	set := r.byToken[token]
	out := make([]*Listener, 0, len(set))
	for _, l := range set {
		out = append(out, l)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of listeners registered for token.
func (r *Registry) Count(token string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken[token])
}

// Len returns the number of listeners across all tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokenOf)
}

// Forget drops the token's listener set if it is empty.
func (r *Registry) Forget(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byToken[token]) > 0 {
		return false
	}
	delete(r.byToken, token)
	return true
}

func (r *Registry) publish(t domain.EventType, l *Listener) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(domain.NewEvent(t, domain.EntityID(l.ID), map[string]interface{}{
		"kind":   l.Kind,
		"active": l.Active,
	}))
}
