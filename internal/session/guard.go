// Package session tracks authenticated admin sessions and logs them out after
// a period without activity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/rollcall/internal/metrics"
)

// Default inactivity thresholds.
const (
	DefaultWarnAfter = 4 * time.Minute
	DefaultTimeout   = 5 * time.Minute
)

var (
	// ErrUnknownSession is returned for ids that were never issued or have ended.
	ErrUnknownSession = errors.New("session not found")
	// ErrExpired is returned when the session timed out.
	ErrExpired = errors.New("session expired due to inactivity")
)

// State is a session's position in its inactivity countdown.
type State string

const (
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
	StateUnknown State = "unknown"
)

// Status is a point-in-time view of one session.
type Status struct {
	ID        string        `json:"id"`
	AdminID   string        `json:"adminId,omitempty"`
	Email     string        `json:"email,omitempty"`
	State     State         `json:"state"`
	Remaining time.Duration `json:"-"`

	// RemainingSeconds is Remaining rounded up, for clients.
	RemainingSeconds int `json:"remainingSeconds"`
}

// Hook is called with the session's status on a warning or expiry.
type Hook func(Status)

type entry struct {
	adminID    string
	email      string
	lastActive time.Time
	warned     bool
}

// Guard holds sessions keyed by id. Every qualifying input (Touch) resets
// both the warning and the timeout deadline.
type Guard struct {
	warnAfter time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry

	onWarn   Hook
	onExpire Hook
}

// Option configures a Guard.
type Option func(*Guard)

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// OnWarn registers a hook fired once per countdown when the warning threshold passes.
func OnWarn(h Hook) Option {
	return func(g *Guard) { g.onWarn = h }
}

// OnExpire registers a hook fired when a session is ended for inactivity.
func OnExpire(h Hook) Option {
	return func(g *Guard) { g.onExpire = h }
}

// NewGuard creates a Guard. A non-positive timeout uses DefaultTimeout; a
// warning threshold outside (0, timeout) becomes four fifths of the timeout.
func NewGuard(warnAfter, timeout time.Duration, opts ...Option) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if warnAfter <= 0 || warnAfter >= timeout {
		warnAfter = timeout * 4 / 5
	}
	g := &Guard{
		warnAfter: warnAfter,
		timeout:   timeout,
		now:       time.Now,
		sessions:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WarnAfter returns the inactivity warning threshold.
func (g *Guard) WarnAfter() time.Duration {
	return g.warnAfter
}

// Timeout returns the inactivity timeout.
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

// Begin starts a session for an authenticated admin and returns its id.
func (g *Guard) Begin(adminID, email string) string {
	id := uuid.NewString()

	g.mu.Lock()
	g.sessions[id] = &entry{adminID: adminID, email: email, lastActive: g.now()}
	g.mu.Unlock()

	metrics.Sessions.Inc()
	slog.Info("Admin session started", "session_id", id, "admin_id", adminID)
	return id
}

// Touch records activity on the session. It fails once the session has expired.
func (g *Guard) Touch(id string) error {
	var expired Status

	g.mu.Lock()
	e, ok := g.sessions[id]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownSession
	}
	now := g.now()
	if now.Sub(e.lastActive) >= g.timeout {
		expired = g.expireLocked(id, e, now)
		g.mu.Unlock()
		g.fire(g.onExpire, expired)
		return ErrExpired
	}
	e.lastActive = now
	e.warned = false
	g.mu.Unlock()
	return nil
}

// Check verifies that the session is alive without counting as activity.
func (g *Guard) Check(id string) error {
	st := g.Status(id)
	switch st.State {
	case StateUnknown:
		return ErrUnknownSession
	case StateExpired:
		return ErrExpired
	}
	return nil
}

// Status reports the session state. An expired session is ended by this call.
func (g *Guard) Status(id string) Status {
	var expired *Status

	g.mu.Lock()
	e, ok := g.sessions[id]
	if !ok {
		g.mu.Unlock()
		return Status{ID: id, State: StateUnknown}
	}
	now := g.now()
	st := g.statusLocked(id, e, now)
	if st.State == StateExpired {
		s := g.expireLocked(id, e, now)
		expired = &s
	}
	g.mu.Unlock()

	if expired != nil {
		g.fire(g.onExpire, *expired)
	}
	return st
}

// End removes the session. It reports whether the session existed.
func (g *Guard) End(id string) bool {
	g.mu.Lock()
	_, ok := g.sessions[id]
	delete(g.sessions, id)
	g.mu.Unlock()

	if ok {
		metrics.Sessions.Dec()
		slog.Info("Admin session ended", "session_id", id)
	}
	return ok
}

// Len returns the number of live sessions.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Sweep fires warnings and ends expired sessions. It returns the number ended.
func (g *Guard) Sweep() int {
	var warned, expired []Status

	g.mu.Lock()
	now := g.now()
	for id, e := range g.sessions {
		st := g.statusLocked(id, e, now)
		switch st.State {
		case StateExpired:
			expired = append(expired, g.expireLocked(id, e, now))
		case StateWarning:
			if !e.warned {
				e.warned = true
				warned = append(warned, st)
			}
		}
	}
	g.mu.Unlock()

	for _, st := range warned {
		slog.Info("Admin session idle", "session_id", st.ID, "remaining", st.Remaining)
		g.fire(g.onWarn, st)
	}
	for _, st := range expired {
		g.fire(g.onExpire, st)
	}
	return len(expired)
}

// Run sweeps on the given interval until ctx is done.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

func (g *Guard) statusLocked(id string, e *entry, now time.Time) Status {
	idle := now.Sub(e.lastActive)
	remaining := g.timeout - idle

	st := Status{ID: id, AdminID: e.adminID, Email: e.email, State: StateActive}
	switch {
	case idle >= g.timeout:
		st.State = StateExpired
		remaining = 0
	case idle >= g.warnAfter:
		st.State = StateWarning
	}
	st.Remaining = remaining
	st.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
	return st
}

func (g *Guard) expireLocked(id string, e *entry, now time.Time) Status {
	delete(g.sessions, id)
	metrics.Sessions.Dec()
	metrics.SessionExpirations.Inc()
	slog.Info("Admin session expired", "session_id", id, "admin_id", e.adminID, "idle", now.Sub(e.lastActive))
	return Status{ID: id, AdminID: e.adminID, Email: e.email, State: StateExpired}
}

func (g *Guard) fire(h Hook, st Status) {
	if h != nil {
		h(st)
	}
}
