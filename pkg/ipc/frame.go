// Package ipc is the duplex channel between the router process and the
// workflow executions that use it. Both sides exchange Frames over a
// websocket: requests and their correlated responses in one direction, and
// listener events pushed by the router in the other.
package ipc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/discord-router/pkg/router"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the message envelope. Every message exchanged over the channel
// is a Frame.
type Frame struct {
	ID   string    `json:"id" msgpack:"id"`
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation of a request, or the event name of an
	// event frame.
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Channel is the listener id an event frame is addressed to.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Data is JSON in both codecs so payload types need a single set of tags.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	Error     *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`
	Timestamp time.Time    `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Methods ─────────────────────────────────────────

const (
	MethodAcquire    = "connection.acquire"
	MethodRelease    = "connection.release"
	MethodRegister   = "listener.register"
	MethodDeregister = "listener.deregister"

	MethodListGuilds   = "list.guilds"
	MethodListChannels = "list.channels"
	MethodListRoles    = "list.roles"

	MethodSendMessage      = "send.message"
	MethodSendAction       = "send.action"
	MethodSendConfirmation = "send.confirmation"
)

// ── Error codes ─────────────────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeMethodNotFound = 405
	ErrCodeInternal       = 500
)

// ── Request/Response payloads ───────────────────────

// AcquireRequest asks for a connection for a credential.
type AcquireRequest struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// TokenRequest carries only a token.
type TokenRequest struct {
	Token string `json:"token"`
}

// ReleaseResponse reports whether the connection was closed.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// RegisterRequest registers or replaces a listener.
type RegisterRequest struct {
	Token      string            `json:"token"`
	ListenerID string            `json:"listenerId"`
	Kind       router.EventKind  `json:"kind"`
	Filter     router.FilterSpec `json:"filter"`
	Active     bool              `json:"active"`
}

// RegisterResponse echoes the registered listener id.
type RegisterResponse struct {
	ListenerID string `json:"listenerId"`
}

// DeregisterRequest removes a listener.
type DeregisterRequest struct {
	ListenerID string `json:"listenerId"`
}

// DeregisterResponse reports whether the listener existed.
type DeregisterResponse struct {
	Removed bool `json:"removed"`
}

// ListRequest scopes a list query. GuildIDs is ignored by list.guilds.
type ListRequest struct {
	Token    string   `json:"token"`
	GuildIDs []string `json:"guildIds,omitempty"`
}

// SendMessageRequest sends a composed message.
type SendMessageRequest struct {
	Token  string               `json:"token"`
	Params router.MessageParams `json:"params"`
}

// SendActionRequest performs a moderation action.
type SendActionRequest struct {
	Token  string              `json:"token"`
	Params router.ActionParams `json:"params"`
}

// SendConfirmationRequest posts a yes/no prompt.
type SendConfirmationRequest struct {
	Token  string               `json:"token"`
	Params router.ConfirmParams `json:"params"`
}

// ── Constructors ────────────────────────────────────

// NewRequestFrame creates a request frame with a fresh id.
func NewRequestFrame(method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       NewFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame addressed to a listener.
func NewEventFrame(listenerID, name string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameEvent,
		Method:    name,
		Channel:   listenerID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

func newControlFrame(t FrameType, correlID string) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      t,
		CorrelID:  correlID,
		Timestamp: time.Now().UTC(),
	}
}

// NewFrameID returns a new unique frame id.
func NewFrameID() string {
	return uuid.NewString()
}
