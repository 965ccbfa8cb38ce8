// Package timeout bounds the wall-clock duration of awaited operations with
// per-method deadlines. It provides a cancellable timer primitive and a
// race-with-deadline combinator that never leaks timers: every timer created
// here reaches exactly one terminal state (fired or cleared) exactly once.
package timeout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout applies to methods with no configured timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTimeout caps every effective timeout, configured or not.
	DefaultMaxTimeout = 2 * time.Minute
)

// Config carries the externally supplied timeout table.
type Config struct {
	Default   time.Duration
	Max       time.Duration
	PerMethod map[string]time.Duration
}

// TimeoutError indicates an operation exceeded its method's deadline.
type TimeoutError struct {
	Method string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("method %q timed out after %s", e.Method, e.Limit)
}

// Manager issues deadline timers from a per-method configuration table. It is
// safe for concurrent use, and the table may be swapped at runtime via
// SetConfig (config hot reload).
type Manager struct {
	cfgMu sync.RWMutex
	cfg   Config

	log *slog.Logger

	total  atomic.Int64
	active atomic.Int64

	pendingMu sync.Mutex
	pending   map[*ClearableTimeout]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager builds a timeout manager. Zero config fields fall back to the
// package defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		log:     slog.Default(),
		pending: make(map[*ClearableTimeout]struct{}),
	}
	m.SetConfig(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// SetConfig replaces the timeout table. In-flight timers keep the deadline
// they were created with.
func (m *Manager) SetConfig(cfg Config) {
	if cfg.Default <= 0 {
		cfg.Default = DefaultTimeout
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxTimeout
	}
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()
}

// EffectiveTimeout returns the lesser of the method's configured timeout (or
// the default) and the hard maximum. The cap always applies, even when a
// method's configured value exceeds it.
func (m *Manager) EffectiveTimeout(method string) time.Duration {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	d, ok := m.cfg.PerMethod[method]
	if !ok || d <= 0 {
		d = m.cfg.Default
	}
	if d > m.cfg.Max {
		d = m.cfg.Max
	}
	return d
}

// NewTimeout returns a channel that yields a *TimeoutError once the method's
// effective timeout elapses. Firing increments the total-timeouts counter.
func (m *Manager) NewTimeout(method string) <-chan error {
	d := m.EffectiveTimeout(method)
	ch := make(chan error, 1)
	time.AfterFunc(d, func() {
		m.total.Add(1)
		ch <- &TimeoutError{Method: method, Limit: d}
	})
	return ch
}

// ClearableTimeout pairs a deadline channel with the ability to cancel the
// timer behind it.
type ClearableTimeout struct {
	// C yields a *TimeoutError if the timer fires before Clear is called.
	C <-chan error

	m      *Manager
	once   sync.Once
	method string
	limit  time.Duration

	// timerMu guards timer, which is published to ClearAll via the
	// manager's pending set before AfterFunc returns.
	timerMu sync.Mutex
	timer   *time.Timer
}

// NewClearableTimeout creates a cancellable deadline timer for the method.
// The active-timeout counter is incremented on creation and decremented
// exactly once, on either clear or fire.
func (m *Manager) NewClearableTimeout(method string) *ClearableTimeout {
	d := m.EffectiveTimeout(method)
	ch := make(chan error, 1)
	ct := &ClearableTimeout{
		C:      ch,
		m:      m,
		method: method,
		limit:  d,
	}

	m.active.Add(1)
	m.track(ct)

	ct.timerMu.Lock()
	ct.timer = time.AfterFunc(d, func() {
		ct.settle(func() {
			m.total.Add(1)
			ch <- &TimeoutError{Method: method, Limit: d}
		})
	})
	ct.timerMu.Unlock()
	return ct
}

// Clear cancels the timer. Repeated calls are no-ops, as is clearing a timer
// that already fired.
func (ct *ClearableTimeout) Clear() {
	ct.timerMu.Lock()
	if ct.timer != nil {
		ct.timer.Stop()
	}
	ct.timerMu.Unlock()
	ct.settle(nil)
}

// settle drives the timer to its single terminal state.
func (ct *ClearableTimeout) settle(fired func()) {
	ct.once.Do(func() {
		if fired != nil {
			fired()
		}
		ct.m.active.Add(-1)
		ct.m.untrack(ct)
	})
}

func (m *Manager) track(ct *ClearableTimeout) {
	m.pendingMu.Lock()
	m.pending[ct] = struct{}{}
	m.pendingMu.Unlock()
}

func (m *Manager) untrack(ct *ClearableTimeout) {
	m.pendingMu.Lock()
	delete(m.pending, ct)
	m.pendingMu.Unlock()
}

// ClearAll clears every outstanding clearable timeout. Intended for shutdown
// and reset paths so no timers leak past the manager's lifetime.
func (m *Manager) ClearAll() {
	m.pendingMu.Lock()
	outstanding := make([]*ClearableTimeout, 0, len(m.pending))
	for ct := range m.pending {
		outstanding = append(outstanding, ct)
	}
	m.pendingMu.Unlock()

	for _, ct := range outstanding {
		ct.Clear()
	}
}

// Operation is a unit of work raced against a deadline by WithTimeout.
type Operation func(ctx context.Context) (any, error)

// WithTimeout races op against a fresh clearable timeout for the method.
// Whichever settles first determines the outcome. The loser's resources are
// released: the timer is cleared when op wins; when the timer wins, op's
// context is cancelled and its eventual result, if any, is discarded without
// further effect. The active-timeout counter returns to its pre-call value on
// both paths.
func (m *Manager) WithTimeout(ctx context.Context, method string, op Operation) (any, error) {
	ct := m.NewClearableTimeout(method)
	opCtx, cancel := context.WithCancel(ctx)

	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case out := <-done:
		ct.Clear()
		cancel()
		return out.v, out.err
	case err := <-ct.C:
		// Cancellation is advisory only: the operation is never forcibly
		// interrupted, its late result is simply dropped.
		cancel()
		m.log.DebugContext(ctx, "operation timed out",
			slog.String("method", method),
			slog.Duration("limit", ct.limit),
		)
		return nil, err
	case <-ctx.Done():
		ct.Clear()
		cancel()
		return nil, ctx.Err()
	}
}

// Stats is a snapshot of the timeout counters.
type Stats struct {
	Total  int64
	Active int64
}

// Stats returns the current counter values.
func (m *Manager) Stats() Stats {
	return Stats{Total: m.total.Load(), Active: m.active.Load()}
}
