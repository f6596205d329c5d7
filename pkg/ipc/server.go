package ipc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256

	// DefaultReadLimit leaves room for inline base64 attachments.
	DefaultReadLimit = 32 << 20
)

var (
	ErrConnClosed   = errors.New("ipc: connection closed")
	ErrSlowConsumer = errors.New("ipc: send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser callers send no Origin
		}
		for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		}
		logger.WarnCF("ipc", "Rejected websocket from disallowed origin", map[string]interface{}{"origin": origin})
		return false
	},
}

// Hub accepts IPC websocket connections and serves their requests.
type Hub struct {
	handler *Handler
	bus     domain.EventBus

	// RateLimit and Burst bound request frames per connection.
	RateLimit rate.Limit
	Burst     int
	ReadLimit int64

	// ReplyTimeout bounds the wait for send buffer room for a response.
	// A caller that does not drain its responses in time is disconnected.
	ReplyTimeout time.Duration

	mu      sync.RWMutex
	clients map[*Conn]struct{}
}

// NewHub creates a hub serving handler. bus may be nil.
func NewHub(handler *Handler, bus domain.EventBus) *Hub {
	return &Hub{
		handler:   handler,
		bus:       bus,
		RateLimit: rate.Inf,
		Burst:     1,
		ReadLimit: DefaultReadLimit,
		clients:   make(map[*Conn]struct{}),

		ReplyTimeout: writeWait,
	}
}

// Count returns the number of connected callers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The codec is chosen by the format query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("ipc", "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:      uuid.NewString(),
		ws:      ws,
		codec:   GetCodec(r.URL.Query().Get("format")),
		hub:     h,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(h.RateLimit, h.Burst),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.publish(domain.EventCallerConnected, c, map[string]interface{}{
		"format": c.codec.Name(),
		"remote": r.RemoteAddr,
	})
	logger.InfoCF("ipc", "Caller connected", map[string]interface{}{
		"conn_id": c.id,
		"format":  c.codec.Name(),
	})

	go c.writePump()
	go c.readPump()
}

// remove drops every listener the connection owned.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	removed := h.handler.listeners.DeregisterReply(c)
	c.close()

	h.publish(domain.EventCallerDisconnected, c, map[string]interface{}{
		"listeners": removed,
	})
	logger.InfoCF("ipc", "Caller disconnected", map[string]interface{}{
		"conn_id":   c.id,
		"listeners": removed,
	})
}

// Close disconnects every caller.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "router shutting down"),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	}
}

func (h *Hub) publish(t domain.EventType, c *Conn, data map[string]interface{}) {
	if h.bus != nil {
		h.bus.Publish(domain.NewEvent(t, domain.EntityID(c.id), data))
	}
}

// ---------------------------------------------------------------------------
// Conn
// ---------------------------------------------------------------------------

// Conn is one connected caller. It is the reply address of every listener
// the caller registers.
type Conn struct {
	id      string
	ws      *websocket.Conn
	codec   Codec
	hub     *Hub
	send    chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Deliver pushes a listener event to the caller without blocking.
func (c *Conn) Deliver(d router.Delivery) error {
	f, err := NewEventFrame(d.ListenerID, router.EventName(d.Kind), d.Payload)
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

func (c *Conn) enqueue(f *Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// reply queues a response, waiting up to the hub's ReplyTimeout for room.
func (c *Conn) reply(f *Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	timer := time.NewTimer(c.hub.ReplyTimeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	case <-timer.C:
		return ErrSlowConsumer
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnCF("ipc", "Read failed", map[string]interface{}{
					"conn_id": c.id,
					"error":   err.Error(),
				})
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := c.codec.Decode(data)
		if err != nil {
			_ = c.enqueue(NewErrorFrame("", ErrCodeBadRequest, "malformed frame: "+err.Error()))
			continue
		}

		switch frame.Type {
		case FramePing:
			_ = c.enqueue(newControlFrame(FramePong, frame.ID))
		case FrameRequest:
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
			go c.serve(frame)
		default:
			logger.DebugCF("ipc", "Ignoring frame", map[string]interface{}{
				"conn_id": c.id,
				"type":    frame.Type,
			})
		}
	}
}

func (c *Conn) serve(frame *Frame) {
	resp := c.hub.handler.Handle(c.ctx, frame, c)
	err := c.reply(resp)
	if err == nil || errors.Is(err, ErrConnClosed) {
		return
	}
	logger.WarnCF("ipc", "Response undeliverable, disconnecting caller", map[string]interface{}{
		"conn_id": c.id,
		"method":  frame.Method,
		"error":   err.Error(),
	})
	c.hub.remove(c)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(c.codec.MessageType(), message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ router.ReplyAddress = (*Conn)(nil)
