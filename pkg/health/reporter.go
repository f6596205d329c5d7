// Package health publishes periodic status snapshots of the router on the
// domain event bus, on a cron schedule.
package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

// Sessions reports the supervisor's connections.
type Sessions interface {
	Sessions() []router.SessionInfo
}

// Counter reports a size.
type Counter interface {
	Len() int
}

// CallerCounter reports connected IPC callers.
type CallerCounter interface {
	Count() int
}

// Snapshot is one health report.
type Snapshot struct {
	Connections int `json:"connections"`
	Ready       int `json:"ready"`
	Failed      int `json:"failed"`
	Listeners   int `json:"listeners"`
	Callers     int `json:"callers"`
	Goroutines  int `json:"goroutines"`
}

// Reporter publishes a Snapshot at every tick of a cron expression.
type Reporter struct {
	schedule  string
	sessions  Sessions
	listeners Counter
	callers   CallerCounter
	bus       domain.EventBus

	now func() time.Time
}

// NewReporter validates schedule and creates a reporter.
func NewReporter(schedule string, sessions Sessions, listeners Counter, callers CallerCounter, bus domain.EventBus) (*Reporter, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("health: invalid schedule %q", schedule)
	}
	return &Reporter{
		schedule:  schedule,
		sessions:  sessions,
		listeners: listeners,
		callers:   callers,
		bus:       bus,
		now:       time.Now,
	}, nil
}

// Run reports at every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	logger.InfoCF("health", "Reporter started", map[string]interface{}{
		"schedule": r.schedule,
	})
	for {
		next, err := r.next(r.now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.Report()
		}
	}
}

func (r *Reporter) next(after time.Time) (time.Time, error) {
	t, err := gronx.NextTickAfter(r.schedule, after, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("health: next tick: %w", err)
	}
	return t, nil
}

// Report takes a snapshot now and publishes it.
func (r *Reporter) Report() Snapshot {
	snap := Snapshot{Goroutines: runtime.NumGoroutine()}
	for _, ss := range r.sessions.Sessions() {
		snap.Connections++
		switch ss.State {
		case domain.StatusReady:
			snap.Ready++
		case domain.StatusFailed:
			snap.Failed++
		}
	}
	if r.listeners != nil {
		snap.Listeners = r.listeners.Len()
	}
	if r.callers != nil {
		snap.Callers = r.callers.Count()
	}

	if r.bus != nil {
		r.bus.Publish(domain.NewEvent(domain.EventSystemHealthCheck, "router", snap))
	}
	logger.InfoCF("health", "Status", map[string]interface{}{
		"connections": snap.Connections,
		"ready":       snap.Ready,
		"listeners":   snap.Listeners,
		"callers":     snap.Callers,
	})
	return snap
}
