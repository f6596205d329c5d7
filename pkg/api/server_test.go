package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/discord-router/pkg/config"
	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/infrastructure/eventbus"
	"github.com/sipeed/discord-router/pkg/ipc"
	"github.com/sipeed/discord-router/pkg/router"
)

type staticSessions []router.SessionInfo

func (s staticSessions) Sessions() []router.SessionInfo { return s }

type staticListeners int

func (n staticListeners) Len() int { return int(n) }

func newTestServer(apiKey string, events *EventLog) *Server {
	cfg := config.Default()
	cfg.Router.APIKey = apiKey
	sessions := staticSessions{
		{ClientID: "a", State: domain.StatusReady},
		{ClientID: "b", State: domain.StatusConnecting},
	}
	hub := ipc.NewHub(ipc.NewHandler(nil, router.NewRegistry(nil), nil), nil)
	return NewServer(cfg, sessions, staticListeners(3), hub, events)
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := newTestServer("secret", nil).Handler()

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"missing key", "/api/status", nil, http.StatusUnauthorized},
		{"wrong key", "/api/status", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer", "/api/status", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"header", "/api/status", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"query", "/api/status?token=secret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, h, tt.target, tt.header).Code)
		})
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	h := newTestServer("", nil).Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/api/sessions", nil).Code)
}

func TestStatus(t *testing.T) {
	h := newTestServer("", nil).Handler()

	rec := get(t, h, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Connections struct {
			Total int `json:"total"`
			Ready int `json:"ready"`
		} `json:"connections"`
		Listeners  int `json:"listeners"`
		IPCCallers int `json:"ipc_callers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Connections.Total)
	assert.Equal(t, 1, body.Connections.Ready)
	assert.Equal(t, 3, body.Listeners)
	assert.Equal(t, 0, body.IPCCallers)
}

func TestSessionsNeverExposeTokens(t *testing.T) {
	h := newTestServer("", nil).Handler()
	rec := get(t, h, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token")
	assert.Contains(t, rec.Body.String(), `"clientId":"a"`)
}

func TestEventLogKeepsNewestFirst(t *testing.T) {
	bus := eventbus.New()
	log := NewEventLog(2)
	log.Attach(bus)

	assert.Empty(t, log.Recent(0))

	bus.Publish(domain.NewEvent(domain.EventConnectionLoggingIn, "app", nil))
	bus.Publish(domain.NewEvent(domain.EventConnectionReady, "app", nil))
	bus.Publish(domain.NewEvent(domain.EventCallerConnected, "conn-1", nil))

	recent := log.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.EventCallerConnected, recent[0].Type)
	assert.Equal(t, domain.EventConnectionReady, recent[1].Type)

	h := newTestServer("", log).Handler()
	rec := get(t, h, "/api/events?limit=1", nil)
	var entries []EventEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntityID("conn-1"), entries[0].Subject)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", formatDuration(0))
	assert.Equal(t, "2h 5m", formatDuration(2*3600e9+5*60e9))
	assert.Equal(t, "1d 1h 0m", formatDuration(25*3600e9))
}
