package ipc

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/infrastructure/eventbus"
	"github.com/sipeed/discord-router/pkg/router"
)

type fakeConnections struct {
	mu       sync.Mutex
	status   router.Status
	settle   router.Status
	acquired []router.Credential
	released []string
}

func (f *fakeConnections) Acquire(cred router.Credential, onDone func(router.Status)) router.Status {
	f.mu.Lock()
	f.acquired = append(f.acquired, cred)
	status, settle := f.status, f.settle
	f.mu.Unlock()

	if status == router.StatusLoggingIn {
		go func() {
			time.Sleep(20 * time.Millisecond)
			onDone(settle)
		}()
	}
	return status
}

func (f *fakeConnections) set(status, settle router.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.settle = status, settle
}

func (f *fakeConnections) Release(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, token)
	return true
}

func (f *fakeConnections) releasedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

type fakeCommands struct {
	sendErr  error
	channels []router.NamedID
	confirm  router.ConfirmResult

	mu sync.Mutex
}

func (f *fakeCommands) SendMessage(_ context.Context, _ string, p *router.MessageParams) (*router.SendResult, error) {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &router.SendResult{ChannelID: p.ChannelID, MessageID: "m1"}, nil
}

func (f *fakeCommands) SendAction(_ context.Context, token string, p *router.ActionParams) (*router.ActionResult, error) {
	if token != "tok" {
		return nil, router.ErrNotReady
	}
	return &router.ActionResult{Action: p.ActionType}, nil
}

func (f *fakeCommands) SendConfirmation(context.Context, string, *router.ConfirmParams) router.ConfirmResult {
	return f.confirm
}

func (f *fakeCommands) ListGuilds(context.Context, string) []router.NamedID { return []router.NamedID{} }

func (f *fakeCommands) ListChannels(_ context.Context, _ string, guildIDs []string) []router.NamedID {
	if len(guildIDs) == 0 {
		return []router.NamedID{}
	}
	return f.channels
}

func (f *fakeCommands) ListRoles(context.Context, string, []string) []router.NamedID {
	return []router.NamedID{}
}

type testEnv struct {
	conns    *fakeConnections
	commands *fakeCommands
	registry *router.Registry
	hub      *Hub
	bus      *eventbus.InProcessEventBus
	url      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		conns:    &fakeConnections{status: router.StatusAlready},
		commands: &fakeCommands{},
		bus:      eventbus.New(),
	}
	env.registry = router.NewRegistry(nil)
	env.hub = NewHub(NewHandler(env.conns, env.registry, env.commands), env.bus)

	srv := httptest.NewServer(env.hub)
	t.Cleanup(func() {
		env.hub.Close()
		srv.Close()
	})
	env.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ipc"
	return env
}

func (env *testEnv) dial(t *testing.T, opts ...DialOption) *Client {
	t.Helper()
	c, err := Dial(context.Background(), env.url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background(), false) })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAcquireImmediateStatuses(t *testing.T) {
	for _, status := range []router.Status{router.StatusMissing, router.StatusAlready, router.StatusLogin} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			env.conns.set(status, "")
			c := env.dial(t)

			got, err := c.Acquire(testCtx(t), router.Credential{Token: "tok", ClientID: "app"})
			require.NoError(t, err)
			assert.Equal(t, status, got)
		})
	}
}

func TestAcquireWaitsForLogin(t *testing.T) {
	env := newTestEnv(t)
	env.conns.set(router.StatusLoggingIn, router.StatusReady)
	c := env.dial(t)

	got, err := c.Acquire(testCtx(t), router.Credential{Token: "tok", ClientID: "app"})
	require.NoError(t, err)
	assert.Equal(t, router.StatusReady, got)

	env.conns.set(router.StatusLoggingIn, router.StatusError)
	got, err = c.Acquire(testCtx(t), router.Credential{Token: "tok2", ClientID: "app2"})
	require.NoError(t, err)
	assert.Equal(t, router.StatusError, got)
}

func TestRegisterDeliverDeregister(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	ctx := testCtx(t)

	events, err := c.Register(ctx, RegisterRequest{
		Token:      "tok",
		ListenerID: "l1",
		Kind:       router.KindMessage,
		Filter: router.FilterSpec{
			ChannelIDs: []string{"c1"},
			Message:    &router.MessageFilter{Pattern: router.PatternStart, Value: "!ping"},
		},
		Active: true,
	})
	require.NoError(t, err)

	snap := env.registry.Snapshot("tok")
	require.Len(t, snap, 1)
	assert.Equal(t, []string{"c1"}, snap[0].Filter.ChannelIDs)

	require.NoError(t, snap[0].Reply.Deliver(router.Delivery{
		ListenerID: "l1",
		Kind:       router.KindMessage,
		Payload:    router.MessagePayload{ID: "m1", Content: "!ping", ChannelID: "c1"},
	}))

	select {
	case ev := <-events:
		assert.Equal(t, "l1", ev.ListenerID)
		assert.Equal(t, router.EventMessageCreate, ev.Name)
		var p router.MessagePayload
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, "!ping", p.Content)
	case <-ctx.Done():
		t.Fatal("event not received")
	}

	removed, err := c.Deregister(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, env.registry.Len())

	_, open := <-events
	assert.False(t, open)
}

func TestDisconnectDeregistersListeners(t *testing.T) {
	env := newTestEnv(t)
	var disconnected []domain.Event
	var mu sync.Mutex
	env.bus.Subscribe(domain.EventCallerDisconnected, func(e domain.Event) {
		mu.Lock()
		disconnected = append(disconnected, e)
		mu.Unlock()
	})

	c := env.dial(t)
	ctx := testCtx(t)
	for _, id := range []string{"a", "b"} {
		_, err := c.Register(ctx, RegisterRequest{Token: "tok", ListenerID: id, Kind: router.KindMemberJoin})
		require.NoError(t, err)
	}
	require.Equal(t, 2, env.registry.Len())
	assert.Equal(t, 1, env.hub.Count())

	require.NoError(t, c.ws.Close())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, env.registry.Len())
	assert.Equal(t, 0, env.hub.Count())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, disconnected, 1)
	assert.Equal(t, 2, disconnected[0].Payload().(map[string]interface{})["listeners"])
}

func TestUnknownMethodAndBadData(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	ctx := testCtx(t)

	var remote *RemoteError
	err := c.call(ctx, "jobs.enqueue", struct{}{}, nil)
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, ErrCodeMethodNotFound, remote.Code)

	_, err = c.Register(ctx, RegisterRequest{Token: "tok", ListenerID: "x", Kind: "bogus"})
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, ErrCodeBadRequest, remote.Code)
	assert.Equal(t, 0, env.registry.Len())

	c.mu.Lock()
	assert.Empty(t, c.listeners)
	c.mu.Unlock()
}

func TestFailedCommandAnswersFalse(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	ctx := testCtx(t)

	res, err := c.SendMessage(ctx, "tok", router.MessageParams{ChannelID: "c1", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, &router.SendResult{ChannelID: "c1", MessageID: "m1"}, res)

	env.commands.mu.Lock()
	env.commands.sendErr = router.ErrChannelNotFound
	env.commands.mu.Unlock()
	_, err = c.SendMessage(ctx, "tok", router.MessageParams{ChannelID: "gone"})
	assert.ErrorIs(t, err, ErrCommandFailed)

	_, err = c.SendAction(ctx, "other", router.ActionParams{ActionType: router.ActionAddRole})
	assert.ErrorIs(t, err, ErrCommandFailed)

	act, err := c.SendAction(ctx, "tok", router.ActionParams{ActionType: router.ActionRemoveMessages})
	require.NoError(t, err)
	assert.Equal(t, router.ActionRemoveMessages, act.Action)
}

func TestMsgpackFormat(t *testing.T) {
	env := newTestEnv(t)
	yes := true
	env.commands.channels = []router.NamedID{{Name: "general", ID: "c1"}}
	env.commands.confirm = router.ConfirmResult{Confirmed: &yes, Success: true}
	c := env.dial(t, WithFormat(CodecNameMsgpack))
	ctx := testCtx(t)

	chans, err := c.ListChannels(ctx, "tok", []string{"g1"})
	require.NoError(t, err)
	assert.Equal(t, env.commands.channels, chans)

	guilds, err := c.ListGuilds(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, guilds)

	res, err := c.SendConfirmation(ctx, "tok", router.ConfirmParams{
		MessageParams: router.MessageParams{ChannelID: "c1", Content: "sure?"},
		Timeout:       5,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Confirmed)
	assert.True(t, *res.Confirmed)
	assert.True(t, res.Success)
}

func TestCloseReleasesAcquiredTokens(t *testing.T) {
	env := newTestEnv(t)
	c, err := Dial(context.Background(), env.url)
	require.NoError(t, err)
	ctx := testCtx(t)

	_, err = c.Acquire(ctx, router.Credential{Token: "tok", ClientID: "app"})
	require.NoError(t, err)
	_, err = c.Register(ctx, RegisterRequest{Token: "tok", ListenerID: "l1", Kind: router.KindRoleCreate})
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx, true))
	assert.Equal(t, 0, env.registry.Len())
	assert.Equal(t, []string{"tok"}, env.conns.releasedTokens())

	select {
	case <-c.Done():
	default:
		t.Fatal("client not marked done")
	}
	_, err = c.ListGuilds(ctx, "tok")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	rtt, err := c.Ping(testCtx(t))
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}
