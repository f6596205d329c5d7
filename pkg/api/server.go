// Discord router - HTTP API server
// Serves the IPC websocket endpoint plus health and status endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/sipeed/discord-router/pkg/config"
	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/ipc"
	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

// Sessions reports the supervisor's connections.
type Sessions interface {
	Sessions() []router.SessionInfo
}

// Listeners reports the registry size.
type Listeners interface {
	Len() int
}

// Server is the HTTP API server of the router.
type Server struct {
	config    *config.Config
	sessions  Sessions
	listeners Listeners
	hub       *ipc.Hub
	events    *EventLog
	startTime time.Time
	server    *http.Server
}

// NewServer creates a new API server instance. events may be nil.
func NewServer(cfg *config.Config, sessions Sessions, listeners Listeners, hub *ipc.Hub, events *EventLog) *Server {
	return &Server{
		config:    cfg,
		sessions:  sessions,
		listeners: listeners,
		hub:       hub,
		events:    events,
		startTime: time.Now(),
	}
}

// Handler builds the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/events", s.handleEvents)

	mux.Handle(s.config.Router.Path, s.hub)

	return authMiddleware(s.config.Router.APIKey, mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{
		"addr":     addr,
		"ipc_path": s.config.Router.Path,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve %s: %w", addr, err)
	}
}

// Stop disconnects IPC callers and gracefully shuts down the server.
func (s *Server) Stop() error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)
	sessions := s.sessions.Sessions()

	ready := 0
	for _, ss := range sessions {
		if ss.State == domain.StatusReady {
			ready++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"connections": map[string]interface{}{
			"total": len(sessions),
			"ready": ready,
		},
		"listeners":   s.listeners.Len(),
		"ipc_callers": s.hub.Count(),
		"goroutines":  runtime.NumGoroutine(),
		"go_version":  runtime.Version(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Sessions())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []EventEntry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.events.Recent(limit))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
