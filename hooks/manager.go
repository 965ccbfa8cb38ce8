package hooks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentgate/mcp-gateway-go/internal/logctx"
)

// Manager owns the three hook lists and runs the folds. It is safe for
// concurrent use; registration and removal may interleave with folds.
type Manager struct {
	mu       sync.RWMutex
	request  []Hook
	response []Hook
	errHooks []Hook

	log *slog.Logger
	now func() time.Time

	rateLimit       int
	rateWindow      time.Duration
	skipDefaults    bool
	rateLimiterHook *RateLimiter
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

// WithClock overrides the time source used by the built-in rate limiter.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRateLimit overrides the built-in limiter's window and per-window limit.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.rateLimit = limit
		}
		if window > 0 {
			m.rateWindow = window
		}
	}
}

// WithoutDefaultHooks constructs the manager empty, with no built-in hooks.
func WithoutDefaultHooks() Option {
	return func(m *Manager) { m.skipDefaults = true }
}

// NewManager builds a hook manager with the default pipeline installed: a
// request logger and the rate limiter on the request side, a metadata
// enricher on the response side, and a context enricher on the error side.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:        slog.Default(),
		now:        time.Now,
		rateLimit:  DefaultRateLimit,
		rateWindow: DefaultRateWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if !m.skipDefaults {
		m.rateLimiterHook = NewRateLimiter(m.rateLimit, m.rateWindow, m.now)
		m.Register(m.rateLimiterHook)
		m.Register(newRequestLogger(m.log))
		m.Register(newResponseEnricher())
		m.Register(newErrorEnricher(m.now))
	}
	return m
}

// RateLimiter returns the built-in rate limiter, or nil when the manager was
// constructed without default hooks.
func (m *Manager) RateLimiter() *RateLimiter { return m.rateLimiterHook }

// Register adds a hook to the list matching its kind and re-sorts that list
// by priority. Equal priorities keep registration order.
func (m *Manager) Register(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.listFor(h.Kind())
	*list = append(*list, h)
	sort.SliceStable(*list, func(i, j int) bool {
		return (*list)[i].Priority() < (*list)[j].Priority()
	})
}

// Remove drops the first hook with the given name across all three lists and
// reports whether anything was removed.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range []*[]Hook{&m.request, &m.response, &m.errHooks} {
		for i, h := range *list {
			if h.Name() == name {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (m *Manager) listFor(k Kind) *[]Hook {
	switch k {
	case KindResponse:
		return &m.response
	case KindError:
		return &m.errHooks
	default:
		return &m.request
	}
}

func (m *Manager) snapshot(k Kind) []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := *m.listFor(k)
	out := make([]Hook, len(list))
	copy(out, list)
	return out
}

// ProcessRequest folds the request through the request hooks in priority
// order and returns the final value.
func (m *Manager) ProcessRequest(ctx context.Context, req any, hctx *Context) (any, error) {
	return m.fold(ctx, m.snapshot(KindRequest), req, hctx)
}

// ProcessResponse folds the response through the response hooks.
func (m *Manager) ProcessResponse(ctx context.Context, resp any, hctx *Context) (any, error) {
	return m.fold(ctx, m.snapshot(KindResponse), resp, hctx)
}

// ProcessError folds an error value through the error hooks, typically to
// enrich it before it surfaces. The fold's own failure modes apply: a
// critical error hook that fails aborts enrichment.
func (m *Manager) ProcessError(ctx context.Context, cause error, hctx *Context) (error, error) {
	v, err := m.fold(ctx, m.snapshot(KindError), cause, hctx)
	if err != nil {
		return cause, err
	}
	out, ok := v.(error)
	if !ok {
		return cause, nil
	}
	return out, nil
}

// fold applies each hook's transformation to an accumulating value. A hook
// returning (nil, nil) preserves the prior value. Non-critical failures are
// logged and absorbed; critical failures and rate-limit rejections abort.
func (m *Manager) fold(ctx context.Context, list []Hook, v any, hctx *Context) (any, error) {
	cur := v
	for _, h := range list {
		if cond, ok := h.(Conditional); ok && !cond.Applies(cur, hctx) {
			continue
		}

		out, err := h.Execute(ctx, cur, hctx)
		if err != nil {
			// Admission rejections are a distinct error class: they abort the
			// fold whether or not the limiter is marked critical.
			var rle *RateLimitError
			if errors.As(err, &rle) {
				return nil, err
			}
			if h.Critical() {
				return nil, &HookError{HookName: h.Name(), HookKind: h.Kind(), Err: err}
			}
			hookCtx := logctx.WithHookData(ctx, &logctx.HookData{Name: h.Name(), Kind: string(h.Kind())})
			m.log.WarnContext(hookCtx, "non-critical hook failed, continuing",
				slog.String("err", err.Error()),
			)
			continue
		}
		if out != nil {
			cur = out
		}
	}
	return cur, nil
}
