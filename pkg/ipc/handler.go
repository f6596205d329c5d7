package ipc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

// Connections is the supervisor surface the handler needs.
type Connections interface {
	Acquire(cred router.Credential, onDone func(router.Status)) router.Status
	Release(token string) bool
}

// Listeners is the registry surface the handler needs.
type Listeners interface {
	Register(l *router.Listener)
	Deregister(id string) bool
	DeregisterReply(addr router.ReplyAddress) int
}

// Commands is the executor surface the handler needs.
type Commands interface {
	SendMessage(ctx context.Context, token string, p *router.MessageParams) (*router.SendResult, error)
	SendAction(ctx context.Context, token string, p *router.ActionParams) (*router.ActionResult, error)
	SendConfirmation(ctx context.Context, token string, p *router.ConfirmParams) router.ConfirmResult
	ListGuilds(ctx context.Context, token string) []router.NamedID
	ListChannels(ctx context.Context, token string, guildIDs []string) []router.NamedID
	ListRoles(ctx context.Context, token string, guildIDs []string) []router.NamedID
}

// DefaultRequestTimeout bounds requests other than acquire and
// confirmation, which wait on their own deadlines.
const DefaultRequestTimeout = 30 * time.Second

// Handler dispatches request frames to the router.
type Handler struct {
	conns     Connections
	listeners Listeners
	commands  Commands

	RequestTimeout time.Duration
}

// NewHandler creates a request handler.
func NewHandler(conns Connections, listeners Listeners, commands Commands) *Handler {
	return &Handler{
		conns:          conns,
		listeners:      listeners,
		commands:       commands,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Handle processes one request frame. reply is the caller's address for
// listeners it registers. The returned frame is never nil.
func (h *Handler) Handle(ctx context.Context, frame *Frame, reply router.ReplyAddress) *Frame {
	switch frame.Method {
	case MethodAcquire:
		return h.handleAcquire(ctx, frame)
	case MethodSendConfirmation:
		return h.handleSendConfirmation(ctx, frame)
	}

	if frame.Method == MethodRegister {
		return h.handleRegister(ctx, frame, reply)
	}

	ctx, cancel := context.WithTimeout(ctx, h.RequestTimeout)
	defer cancel()

	switch frame.Method {
	case MethodRelease:
		return h.handleRelease(frame)
	case MethodDeregister:
		return h.handleDeregister(frame)
	case MethodListGuilds, MethodListChannels, MethodListRoles:
		return h.handleList(ctx, frame)
	case MethodSendMessage:
		return h.handleSendMessage(ctx, frame)
	case MethodSendAction:
		return h.handleSendAction(ctx, frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// mustResponseFrame creates a response frame, returning an error frame on marshal failure.
func mustResponseFrame(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

func badRequest(frame *Frame, err error) *Frame {
	return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
}

func (h *Handler) handleAcquire(ctx context.Context, frame *Frame) *Frame {
	var req AcquireRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}

	done := make(chan router.Status, 1)
	status := h.conns.Acquire(router.Credential{Token: req.Token, ClientID: req.ClientID}, func(s router.Status) {
		done <- s
	})
	if status != router.StatusLoggingIn {
		return mustResponseFrame(frame.ID, status)
	}

	select {
	case status = <-done:
		return mustResponseFrame(frame.ID, status)
	case <-ctx.Done():
		return NewErrorFrame(frame.ID, ErrCodeInternal, "acquire abandoned: "+ctx.Err().Error())
	}
}

func (h *Handler) handleRelease(frame *Frame) *Frame {
	var req TokenRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}
	return mustResponseFrame(frame.ID, ReleaseResponse{Released: h.conns.Release(req.Token)})
}

// handleRegister expects ctx to end when the reply address disconnects.
func (h *Handler) handleRegister(ctx context.Context, frame *Frame, reply router.ReplyAddress) *Frame {
	var req RegisterRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}

	l, err := router.NewListener(req.ListenerID, req.Token, req.Kind, req.Filter, reply, req.Active)
	if err != nil {
		return badRequest(frame, err)
	}
	h.listeners.Register(l)
	if ctx.Err() != nil {
		// the caller's cleanup may already have run
		h.listeners.DeregisterReply(reply)
		return NewErrorFrame(frame.ID, ErrCodeInternal, "caller disconnected")
	}
	return mustResponseFrame(frame.ID, RegisterResponse{ListenerID: l.ID})
}

func (h *Handler) handleDeregister(frame *Frame) *Frame {
	var req DeregisterRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}
	return mustResponseFrame(frame.ID, DeregisterResponse{Removed: h.listeners.Deregister(req.ListenerID)})
}

func (h *Handler) handleList(ctx context.Context, frame *Frame) *Frame {
	var req ListRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}

	var out []router.NamedID
	switch frame.Method {
	case MethodListGuilds:
		out = h.commands.ListGuilds(ctx, req.Token)
	case MethodListChannels:
		out = h.commands.ListChannels(ctx, req.Token, req.GuildIDs)
	default:
		out = h.commands.ListRoles(ctx, req.Token, req.GuildIDs)
	}
	return mustResponseFrame(frame.ID, out)
}

// Failed commands answer false rather than an error frame; the caller
// decides whether a failed send stops its workflow.
func (h *Handler) handleSendMessage(ctx context.Context, frame *Frame) *Frame {
	var req SendMessageRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}
	res, err := h.commands.SendMessage(ctx, req.Token, &req.Params)
	if err != nil {
		return mustResponseFrame(frame.ID, false)
	}
	return mustResponseFrame(frame.ID, res)
}

func (h *Handler) handleSendAction(ctx context.Context, frame *Frame) *Frame {
	var req SendActionRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}
	res, err := h.commands.SendAction(ctx, req.Token, &req.Params)
	if err != nil {
		return mustResponseFrame(frame.ID, false)
	}
	return mustResponseFrame(frame.ID, res)
}

func (h *Handler) handleSendConfirmation(ctx context.Context, frame *Frame) *Frame {
	var req SendConfirmationRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return badRequest(frame, err)
	}
	res := h.commands.SendConfirmation(ctx, req.Token, &req.Params)
	logger.DebugCF("ipc", "Confirmation answered", map[string]interface{}{
		"channel_id": req.Params.ChannelID,
		"confirmed":  res.Confirmed,
		"success":    res.Success,
	})
	return mustResponseFrame(frame.ID, res)
}
