package router

import (
	"fmt"
	"regexp"
	"slices"
)

// ReplyAddress delivers matched events back to the caller that registered a
// listener. Implementations must not block for long: they are called from
// the dispatch pass of the event.
type ReplyAddress interface {
	Deliver(d Delivery) error
}

// Delivery is one event forwarded to one listener.
type Delivery struct {
	ListenerID string
	Kind       EventKind
	Payload    interface{}
}

// FilterSpec restricts which events of a kind reach a listener. Empty id
// sets mean "any".
type FilterSpec struct {
	GuildIDs   []string `json:"guildIds,omitempty"`
	ChannelIDs []string `json:"channelIds,omitempty"`
	RoleIDs    []string `json:"roleIds,omitempty"`
	// MessageIDs applies to reaction kinds only.
	MessageIDs []string `json:"messageIds,omitempty"`

	// ExternalBotTrigger lets events authored by other bots through. Events
	// authored by the router's own account are always dropped.
	ExternalBotTrigger bool `json:"externalBotTrigger,omitempty"`

	// Message is required for message kinds and ignored otherwise.
	Message *MessageFilter `json:"message,omitempty"`
}

// MessageFilter is the content predicate of message listeners.
type MessageFilter struct {
	Pattern             PatternKind `json:"pattern"`
	Value               string      `json:"value"`
	CaseSensitive       bool        `json:"caseSensitive,omitempty"`
	ReferenceRequired   bool        `json:"referenceRequired,omitempty"`
	AttachmentsRequired bool        `json:"attachmentsRequired,omitempty"`
}

// Listener is a registered interest in one kind of event on one token.
type Listener struct {
	ID     string
	Token  string
	Kind   EventKind
	Filter FilterSpec
	Reply  ReplyAddress
	// Active is false when the owning workflow only runs as a manual test.
	Active bool

	matcher *regexp.Regexp
}

// NewListener validates the listener and precompiles the content matcher.
func NewListener(id, token string, kind EventKind, filter FilterSpec, reply ReplyAddress, active bool) (*Listener, error) {
	if id == "" || token == "" {
		return nil, fmt.Errorf("%w: id and token are required", ErrInvalidListener)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidListener, kind)
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: reply address is required", ErrInvalidListener)
	}

	l := &Listener{
		ID:     id,
		Token:  token,
		Kind:   kind,
		Filter: filter,
		Reply:  reply,
		Active: active,
	}

	if kind.IsMessage() {
		if l.Filter.Message == nil {
			l.Filter.Message = &MessageFilter{Pattern: PatternEvery}
		}
		m := l.Filter.Message
		re, err := compilePattern(m.Pattern, m.Value, m.CaseSensitive)
		if err != nil {
			return nil, err
		}
		l.matcher = re
	} else {
		l.Filter.Message = nil
	}

	return l, nil
}

func containsAny(set, values []string) bool {
	for _, v := range values {
		if slices.Contains(set, v) {
			return true
		}
	}
	return false
}
