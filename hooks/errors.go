package hooks

import (
	"fmt"
	"time"
)

// RateLimitError indicates the sliding-window rate limiter denied admission
// for a (session, method) pair. It is an admission-control rejection, not a
// hook failure: the pipeline aborts on it regardless of the limiter's
// critical flag.
type RateLimitError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %ds", e.Key, e.RetryAfter)
}

// HookError wraps an error returned by a critical hook, identifying which
// hook aborted the fold.
type HookError struct {
	HookName string
	HookKind Kind
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q failed: %v", e.HookKind, e.HookName, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// EnrichedError is produced by the default error enricher. It preserves the
// underlying error and attaches the request context in which it occurred.
type EnrichedError struct {
	Err       error
	Method    string
	SessionID string
	Timestamp time.Time
}

func (e *EnrichedError) Error() string { return e.Err.Error() }

func (e *EnrichedError) Unwrap() error { return e.Err }
