package sessions

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrManagerClosed is returned by mutating calls after the manager's Run loop
// has exited.
var ErrManagerClosed = errors.New("session manager closed")

const mutationQueueDepth = 64

// Manager serializes every mutation of the session table. Callers enqueue
// mutations; the Run loop applies them one at a time in strict FIFO order.
// Reads bypass the queue.
type Manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	queue  chan func(context.Context)
	closed chan struct{}

	// lastLogin is touched only by the writer goroutine. It enforces the
	// invariant that LoginTime strictly increases across re-logins even when
	// the wall clock is too coarse to distinguish two back-to-back logins.
	lastLogin time.Time
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

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a session manager over the given store. Run must be
// started before any mutating call can complete.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		log:    slog.Default(),
		now:    time.Now,
		queue:  make(chan func(context.Context), mutationQueueDepth),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run consumes the mutation queue until ctx is cancelled. It returns ctx's
// error. Mutations already dequeued complete before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.closed)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-m.queue:
			op(ctx)
		}
	}
}

// enqueue submits op to the writer goroutine.
func (m *Manager) enqueue(ctx context.Context, op func(context.Context)) error {
	select {
	case m.queue <- op:
		return nil
	case <-m.closed:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await blocks until the writer delivers a reply, the caller's context ends,
// or the manager shuts down. A reply that raced shutdown still wins.
func await[R any](ctx context.Context, m *Manager, ch <-chan R) (R, error) {
	var zero R
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.closed:
		select {
		case r := <-ch:
			return r, nil
		default:
			return zero, ErrManagerClosed
		}
	}
}

// CreateSession establishes or refreshes the session for id. An existing
// session is overwritten: the agent name is replaced and LoginTime is reset
// (re-login semantics). The resulting session value is returned.
func (m *Manager) CreateSession(ctx context.Context, id string, agentName string) (Session, error) {
	type reply struct {
		sess Session
		err  error
	}
	ch := make(chan reply, 1)

	err := m.enqueue(ctx, func(runCtx context.Context) {
		ts := m.now()
		if !ts.After(m.lastLogin) {
			ts = m.lastLogin.Add(time.Nanosecond)
		}
		m.lastLogin = ts

		sess := Session{ID: id, AgentName: agentName, LoginTime: ts}
		if err := m.store.Put(runCtx, sess); err != nil {
			ch <- reply{err: err}
			return
		}
		m.log.DebugContext(runCtx, "session created",
			slog.String("session_id", id),
			slog.String("agent", agentName),
		)
		ch <- reply{sess: sess}
	})
	if err != nil {
		return Session{}, err
	}

	r, err := await(ctx, m, ch)
	if err != nil {
		return Session{}, err
	}
	return r.sess, r.err
}

// DeleteSession removes the session for id and reports whether it existed.
func (m *Manager) DeleteSession(ctx context.Context, id string) (bool, error) {
	type reply struct {
		existed bool
		err     error
	}
	ch := make(chan reply, 1)

	err := m.enqueue(ctx, func(runCtx context.Context) {
		existed, err := m.store.Delete(runCtx, id)
		ch <- reply{existed: existed, err: err}
	})
	if err != nil {
		return false, err
	}

	r, err := await(ctx, m, ch)
	if err != nil {
		return false, err
	}
	return r.existed, r.err
}

// CleanupOldSessions removes every session older than maxAge and returns the
// removed count.
func (m *Manager) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	type reply struct {
		removed int
		err     error
	}
	ch := make(chan reply, 1)

	err := m.enqueue(ctx, func(runCtx context.Context) {
		cutoff := m.now().Add(-maxAge)
		removed, err := m.store.DeleteOlderThan(runCtx, cutoff)
		if removed > 0 {
			m.log.InfoContext(runCtx, "cleaned up stale sessions", slog.Int("removed", removed))
		}
		ch <- reply{removed: removed, err: err}
	})
	if err != nil {
		return 0, err
	}

	r, err := await(ctx, m, ch)
	if err != nil {
		return 0, err
	}
	return r.removed, r.err
}

// ClearAllSessions empties the table and returns the removed count.
func (m *Manager) ClearAllSessions(ctx context.Context) (int, error) {
	type reply struct {
		removed int
		err     error
	}
	ch := make(chan reply, 1)

	err := m.enqueue(ctx, func(runCtx context.Context) {
		removed, err := m.store.Clear(runCtx)
		ch <- reply{removed: removed, err: err}
	})
	if err != nil {
		return 0, err
	}

	r, err := await(ctx, m, ch)
	if err != nil {
		return 0, err
	}
	return r.removed, r.err
}

// GetSession reads the session for id without touching the mutation queue.
func (m *Manager) GetSession(ctx context.Context, id string) (Session, bool, error) {
	return m.store.Get(ctx, id)
}

// HasValidSession reports whether id maps to a session.
func (m *Manager) HasValidSession(ctx context.Context, id string) bool {
	_, ok, err := m.store.Get(ctx, id)
	return err == nil && ok
}

// GetAllSessions returns a snapshot of every session.
func (m *Manager) GetAllSessions(ctx context.Context) ([]Session, error) {
	return m.store.List(ctx)
}

// SessionCount returns the number of sessions in the table.
func (m *Manager) SessionCount(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}
