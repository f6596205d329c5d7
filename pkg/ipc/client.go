package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

// ErrCommandFailed is returned when the router answered a command with false.
var ErrCommandFailed = errors.New("ipc: command failed")

// RemoteError is an error frame returned by the router.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc: remote error %d: %s", e.Code, e.Message)
}

// Event is a listener event received from the router.
type Event struct {
	ListenerID string
	Name       string
	Data       json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.Data, v) }

type dialOptions struct {
	apiKey      string
	format      string
	eventBuffer int
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

// WithAPIKey presents key on the upgrade request.
func WithAPIKey(key string) DialOption {
	return func(o *dialOptions) { o.apiKey = key }
}

// WithFormat selects the frame codec ("json" or "msgpack").
func WithFormat(name string) DialOption {
	return func(o *dialOptions) { o.format = name }
}

// WithEventBuffer sets the capacity of each listener's event channel.
func WithEventBuffer(n int) DialOption {
	return func(o *dialOptions) { o.eventBuffer = n }
}

// Client is the caller side of the IPC channel, used by workflow
// executions. It is safe for concurrent use.
type Client struct {
	ws          *websocket.Conn
	codec       Codec
	eventBuffer int

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan *Frame
	listeners map[string]chan Event
	tokens    map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to the router IPC endpoint at rawURL (ws:// or wss://).
func Dial(ctx context.Context, rawURL string, opts ...DialOption) (*Client, error) {
	o := dialOptions{format: CodecNameJSON, eventBuffer: 64}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ipc: parse url: %w", err)
	}
	q := u.Query()
	q.Set("format", o.format)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if o.apiKey != "" {
		header.Set("X-API-Key", o.apiKey)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", u.Redacted(), err)
	}

	c := &Client{
		ws:          ws,
		codec:       GetCodec(o.format),
		eventBuffer: o.eventBuffer,
		pending:     make(map[string]chan *Frame),
		listeners:   make(map[string]chan Event),
		tokens:      make(map[string]struct{}),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection to the router is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		f, err := c.codec.Decode(data)
		if err != nil {
			logger.WarnCF("ipc-client", "Malformed frame", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch f.Type {
		case FrameResponse, FrameErr, FramePong:
			c.resolve(f)
		case FrameEvent:
			c.route(f)
		case FramePing:
			_ = c.write(newControlFrame(FramePong, f.ID))
		}
	}
}

func (c *Client) resolve(f *Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.CorrelID]
	delete(c.pending, f.CorrelID)
	c.mu.Unlock()

	if ok {
		ch <- f
	} else if f.Type == FrameErr && f.Error != nil {
		logger.WarnCF("ipc-client", "Uncorrelated error frame", map[string]interface{}{
			"code":    f.Error.Code,
			"message": f.Error.Message,
		})
	}
}

func (c *Client) route(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.listeners[f.Channel]
	if !ok {
		return
	}
	select {
	case ch <- Event{ListenerID: f.Channel, Name: f.Method, Data: f.Data}:
	default:
		logger.WarnCF("ipc-client", "Listener buffer full, event dropped", map[string]interface{}{
			"listener_id": f.Channel,
			"event":       f.Method,
		})
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		for id, ch := range c.listeners {
			close(ch)
			delete(c.listeners, id)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) write(f *Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(c.codec.MessageType(), data)
}

// roundTrip sends f and waits for the frame correlated with it.
func (c *Client) roundTrip(ctx context.Context, f *Frame) (*Frame, error) {
	ch := make(chan *Frame, 1)
	c.mu.Lock()
	c.pending[f.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return nil, fmt.Errorf("ipc: write %s: %w", f.Method, err)
	}

	select {
	case resp := <-ch:
		if resp.Type == FrameErr {
			if resp.Error == nil {
				return nil, &RemoteError{Code: ErrCodeInternal}
			}
			return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnClosed
	}
}

// call performs one request. A literal false response yields ErrCommandFailed.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	f, err := NewRequestFrame(method, req)
	if err != nil {
		return fmt.Errorf("ipc: encode %s: %w", method, err)
	}
	resp, err := c.roundTrip(ctx, f)
	if err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(resp.Data), []byte("false")) {
		return ErrCommandFailed
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("ipc: decode %s response: %w", method, err)
	}
	return nil
}

// Ping measures a round trip to the router.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.roundTrip(ctx, newControlFrame(FramePing, "")); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Acquire asks the router for a connection for cred. When the router has
// to log in, the call returns once the login settled.
func (c *Client) Acquire(ctx context.Context, cred router.Credential) (router.Status, error) {
	var status router.Status
	err := c.call(ctx, MethodAcquire, AcquireRequest{Token: cred.Token, ClientID: cred.ClientID}, &status)
	if err != nil {
		return "", err
	}
	if status == router.StatusReady || status == router.StatusAlready {
		c.mu.Lock()
		c.tokens[cred.Token] = struct{}{}
		c.mu.Unlock()
	}
	return status, nil
}

// Release asks the router to close the token's connection.
func (c *Client) Release(ctx context.Context, token string) (bool, error) {
	var resp ReleaseResponse
	if err := c.call(ctx, MethodRelease, TokenRequest{Token: token}, &resp); err != nil {
		return false, err
	}
	c.mu.Lock()
	delete(c.tokens, token)
	c.mu.Unlock()
	return resp.Released, nil
}

// Register registers a listener and returns the channel its events arrive
// on. Registering an id again replaces the filter and keeps the channel.
// The channel is closed on Deregister or when the connection ends.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (<-chan Event, error) {
	c.mu.Lock()
	ch, existed := c.listeners[req.ListenerID]
	if !existed {
		ch = make(chan Event, c.eventBuffer)
		c.listeners[req.ListenerID] = ch
	}
	c.mu.Unlock()

	if err := c.call(ctx, MethodRegister, req, nil); err != nil {
		if !existed {
			c.dropListener(req.ListenerID)
		}
		return nil, err
	}
	return ch, nil
}

// Deregister removes a listener.
func (c *Client) Deregister(ctx context.Context, listenerID string) (bool, error) {
	var resp DeregisterResponse
	err := c.call(ctx, MethodDeregister, DeregisterRequest{ListenerID: listenerID}, &resp)
	c.dropListener(listenerID)
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

func (c *Client) dropListener(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.listeners[id]; ok {
		close(ch)
		delete(c.listeners, id)
	}
}

func (c *Client) ListGuilds(ctx context.Context, token string) ([]router.NamedID, error) {
	var out []router.NamedID
	err := c.call(ctx, MethodListGuilds, ListRequest{Token: token}, &out)
	return out, err
}

func (c *Client) ListChannels(ctx context.Context, token string, guildIDs []string) ([]router.NamedID, error) {
	var out []router.NamedID
	err := c.call(ctx, MethodListChannels, ListRequest{Token: token, GuildIDs: guildIDs}, &out)
	return out, err
}

func (c *Client) ListRoles(ctx context.Context, token string, guildIDs []string) ([]router.NamedID, error) {
	var out []router.NamedID
	err := c.call(ctx, MethodListRoles, ListRequest{Token: token, GuildIDs: guildIDs}, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, token string, p router.MessageParams) (*router.SendResult, error) {
	var out router.SendResult
	if err := c.call(ctx, MethodSendMessage, SendMessageRequest{Token: token, Params: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendAction(ctx context.Context, token string, p router.ActionParams) (*router.ActionResult, error) {
	var out router.ActionResult
	if err := c.call(ctx, MethodSendAction, SendActionRequest{Token: token, Params: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendConfirmation(ctx context.Context, token string, p router.ConfirmParams) (router.ConfirmResult, error) {
	var out router.ConfirmResult
	err := c.call(ctx, MethodSendConfirmation, SendConfirmationRequest{Token: token, Params: p}, &out)
	return out, err
}

// Close deregisters every listener of this client, releases the acquired
// tokens when release is set, and closes the connection.
func (c *Client) Close(ctx context.Context, release bool) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.mu.Lock()
	ids := make([]string, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	tokens := make([]string, 0, len(c.tokens))
	for t := range c.tokens {
		tokens = append(tokens, t)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if _, err := c.Deregister(ctx, id); err != nil {
			logger.WarnCF("ipc-client", "Deregister on close failed", map[string]interface{}{
				"listener_id": id,
				"error":       err.Error(),
			})
		}
	}
	if release {
		for _, t := range tokens {
			if _, err := c.Release(ctx, t); err != nil {
				logger.WarnCF("ipc-client", "Release on close failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := c.ws.Close()
	c.shutdown(ErrConnClosed)
	return err
}
