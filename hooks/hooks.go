// Package hooks implements the gateway's ordered middleware pipeline.
// Requests, responses and errors are folded through priority-sorted lists of
// hooks; each hook may transform the in-flight value, reject it, or observe
// it and pass it along unchanged.
package hooks

import (
	"context"
	"time"
)

// Kind partitions hooks into the three pipeline stages.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
)

// Context carries per-request data handed unmodified to every hook in one
// pipeline run. Metadata is a scratch area shared by the hooks of that run;
// it is never reused across requests.
type Context struct {
	SessionID string
	Method    string
	StartTime time.Time
	Metadata  map[string]any
}

// Hook is a named, prioritized unit of middleware. Lower priorities run
// earlier; hooks with equal priority run in registration order.
//
// Execute receives the current fold value and returns its replacement. A nil
// replacement with a nil error preserves the prior value for the next hook.
// A non-nil error from a critical hook aborts the fold; from a non-critical
// hook it is logged and absorbed.
type Hook interface {
	Name() string
	Kind() Kind
	Priority() int
	Critical() bool

	Execute(ctx context.Context, v any, hctx *Context) (any, error)
}

// Conditional is an optional extension. Hooks that implement it are skipped
// for a given fold value when Applies returns false.
type Conditional interface {
	Applies(v any, hctx *Context) bool
}

// FuncHook adapts a plain function into a Hook.
type FuncHook struct {
	name      string
	kind      Kind
	priority  int
	critical  bool
	condition func(v any, hctx *Context) bool
	fn        func(ctx context.Context, v any, hctx *Context) (any, error)
}

var _ Hook = (*FuncHook)(nil)
var _ Conditional = (*FuncHook)(nil)

// FuncHookOption configures a FuncHook.
type FuncHookOption func(*FuncHook)

// AsCritical marks the hook critical: an error it returns aborts the fold.
func AsCritical() FuncHookOption {
	return func(h *FuncHook) { h.critical = true }
}

// When attaches a condition; the hook is skipped when cond returns false.
func When(cond func(v any, hctx *Context) bool) FuncHookOption {
	return func(h *FuncHook) { h.condition = cond }
}

// NewFuncHook builds a Hook from fn.
func NewFuncHook(name string, kind Kind, priority int, fn func(ctx context.Context, v any, hctx *Context) (any, error), opts ...FuncHookOption) *FuncHook {
	h := &FuncHook{
		name:     name,
		kind:     kind,
		priority: priority,
		fn:       fn,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *FuncHook) Name() string   { return h.name }
func (h *FuncHook) Kind() Kind     { return h.kind }
func (h *FuncHook) Priority() int  { return h.priority }
func (h *FuncHook) Critical() bool { return h.critical }

func (h *FuncHook) Applies(v any, hctx *Context) bool {
	if h.condition == nil {
		return true
	}
	return h.condition(v, hctx)
}

func (h *FuncHook) Execute(ctx context.Context, v any, hctx *Context) (any, error) {
	return h.fn(ctx, v, hctx)
}
