package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
)

// Status is the answer to an acquire request.
type Status string

const (
	StatusMissing   Status = "missing"
	StatusAlready   Status = "already"
	StatusLogin     Status = "login"
	StatusLoggingIn Status = "logging-in"

	// Terminal notifications after StatusLoggingIn.
	StatusReady Status = "ready"
	StatusError Status = "error"
)

// DefaultLoginTimeout bounds one gateway handshake.
const DefaultLoginTimeout = 60 * time.Second

// session is the supervisor's record of one token.
type session struct {
	domain.AggregateRoot

	cred  Credential
	conn  Connection
	state domain.ConnectionStatus
	since time.Time
}

func (ss *session) transition(to domain.ConnectionStatus, t domain.EventType, data map[string]interface{}) {
	ss.state = to
	ss.since = time.Now()
	ss.RecordEvent(domain.NewEvent(t, ss.ID(), data))
}

// SessionInfo is a status snapshot of one connection. It never carries the
// token.
type SessionInfo struct {
	ClientID  string                  `json:"clientId"`
	State     domain.ConnectionStatus `json:"state"`
	Since     time.Time               `json:"since"`
	Listeners int                     `json:"listeners"`
}

// Supervisor owns the token → connection map and the login-in-progress
// guard. It is the only place connections are created or closed.
type Supervisor struct {
	mu       sync.Mutex
	sessions map[string]*session

	dial       Dialer
	registry   *Registry
	dispatcher *Dispatcher
	bus        domain.EventBus

	LoginTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor. bus may be nil.
func NewSupervisor(dial Dialer, reg *Registry, bus domain.EventBus) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		sessions:     make(map[string]*session),
		dial:         dial,
		registry:     reg,
		dispatcher:   NewDispatcher(reg),
		bus:          bus,
		LoginTimeout: DefaultLoginTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Registry returns the listener registry the supervisor dispatches to.
func (s *Supervisor) Registry() *Registry { return s.registry }

func (s *Supervisor) sink(src Source, ev Event) {
	s.dispatcher.Dispatch(s.ctx, src, ev)
}

// Acquire makes sure a connection for cred exists. When it returns
// StatusLoggingIn, onDone is called exactly once, from another goroutine,
// with StatusReady or StatusError. For every other status onDone is not
// called.
func (s *Supervisor) Acquire(cred Credential, onDone func(Status)) Status {
	if cred.Token == "" || cred.ClientID == "" {
		return StatusMissing
	}

	s.mu.Lock()
	if ss, ok := s.sessions[cred.Token]; ok {
		state := ss.state
		s.mu.Unlock()
		if state == domain.StatusReady {
			return StatusAlready
		}
		return StatusLogin
	}

	ss := &session{cred: cred}
	ss.SetID(domain.EntityID(cred.ClientID))
	ss.transition(domain.StatusConnecting, domain.EventConnectionLoggingIn, nil)
	s.sessions[cred.Token] = ss
	s.registry.EnsureToken(cred.Token)

	conn, err := s.dial(cred, s.sink)
	if err == nil {
		ss.conn = conn
	}
	events := ss.PullEvents()
	s.mu.Unlock()

	s.publish(events)
	logger.InfoCF("supervisor", "Logging in", map[string]interface{}{
		"client_id": cred.ClientID,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err == nil {
			err = s.open(ss)
		}
		status := s.settle(ss, err)
		if onDone != nil {
			onDone(status)
		}
	}()
	return StatusLoggingIn
}

func (s *Supervisor) open(ss *session) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.LoginTimeout)
	defer cancel()
	return ss.conn.Open(ctx)
}

// settle records the outcome of a login. A failed session is dropped so a
// later Acquire can retry.
func (s *Supervisor) settle(ss *session, err error) Status {
	s.mu.Lock()
	if err != nil {
		ss.transition(domain.StatusFailed, domain.EventConnectionFailed, map[string]interface{}{
			"error": err.Error(),
		})
		if s.sessions[ss.cred.Token] == ss {
			delete(s.sessions, ss.cred.Token)
		}
	} else {
		ss.transition(domain.StatusReady, domain.EventConnectionReady, nil)
	}
	events := ss.PullEvents()
	s.mu.Unlock()

	s.publish(events)

	if err != nil {
		logger.ErrorCF("supervisor", "Login failed", map[string]interface{}{
			"client_id": ss.cred.ClientID,
			"error":     err.Error(),
		})
		if ss.conn != nil {
			_ = ss.conn.Close()
		}
		return StatusError
	}
	logger.InfoCF("supervisor", "Connection ready", map[string]interface{}{
		"client_id": ss.cred.ClientID,
		"self_id":   ss.conn.SelfID(),
	})
	return StatusReady
}

// Platform returns the outbound surface of the token's connection.
func (s *Supervisor) Platform(token string) (Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[token]
	if !ok || ss.state != domain.StatusReady {
		return nil, ErrNotReady
	}
	return ss.conn, nil
}

// State reports the lifecycle state of the token's connection.
func (s *Supervisor) State(token string) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ss, ok := s.sessions[token]; ok {
		return ss.state
	}
	return domain.StatusAbsent
}

// Release closes and forgets the token's ready connection if no listener
// for the token remains. It reports whether the connection was closed.
func (s *Supervisor) Release(token string) bool {
	s.mu.Lock()
	ss, ok := s.sessions[token]
	if !ok || ss.state != domain.StatusReady || !s.registry.Forget(token) {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, token)
	ss.transition(domain.StatusAbsent, domain.EventConnectionReleased, nil)
	events := ss.PullEvents()
	s.mu.Unlock()

	if err := ss.conn.Close(); err != nil {
		logger.WarnCF("supervisor", "Close failed", map[string]interface{}{
			"client_id": ss.cred.ClientID,
			"error":     err.Error(),
		})
	}
	s.publish(events)
	logger.InfoCF("supervisor", "Connection released", map[string]interface{}{
		"client_id": ss.cred.ClientID,
	})
	return true
}

// Sessions returns a snapshot of every known connection ordered by client id.
func (s *Supervisor) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	tokens := make([]string, 0, len(s.sessions))
	for token, ss := range s.sessions {
		out = append(out, SessionInfo{
			ClientID: ss.cred.ClientID,
			State:    ss.state,
			Since:    ss.since,
		})
		tokens = append(tokens, token)
	}
	s.mu.Unlock()

	for i, token := range tokens {
		out[i].Listeners = s.registry.Count(token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Shutdown cancels pending logins and closes every connection.
func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, ss := range sessions {
		if ss.conn == nil {
			continue
		}
		if err := ss.conn.Close(); err != nil {
			logger.WarnCF("supervisor", "Close failed", map[string]interface{}{
				"client_id": ss.cred.ClientID,
				"error":     err.Error(),
			})
		}
	}
	logger.InfoCF("supervisor", "All connections closed", map[string]interface{}{
		"count": len(sessions),
	})
}

func (s *Supervisor) publish(events []domain.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		s.bus.Publish(e)
	}
}
