package hooks

import (
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultRateWindow is the span of the sliding window.
	DefaultRateWindow = 60 * time.Second

	// DefaultRateLimit is the number of requests admitted per window for one
	// (session, method) pair.
	DefaultRateLimit = 30

	// maxTrackedKeys bounds the number of (session, method) windows held in
	// memory. Evicting a key forgets its history, which only ever errs in the
	// caller's favor.
	maxTrackedKeys = 16384
)

// RateLimiter is the built-in sliding-window admission hook. The key is
// sessionID + ":" + method; timestamps older than the window are pruned
// lazily on each check.
type RateLimiter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
	limit   int
	window  time.Duration
	now     func() time.Time
}

var _ Hook = (*RateLimiter)(nil)

// NewRateLimiter builds the limiter hook. A nil clock defaults to time.Now.
func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	// Only errors on non-positive size.
	windows, _ := lru.New[string, []time.Time](maxTrackedKeys)
	return &RateLimiter{
		windows: windows,
		limit:   limit,
		window:  window,
		now:     now,
	}
}

func (rl *RateLimiter) Name() string   { return "rate-limiter" }
func (rl *RateLimiter) Kind() Kind     { return KindRequest }
func (rl *RateLimiter) Priority() int  { return RateLimiterPriority }
func (rl *RateLimiter) Critical() bool { return false }

func (rl *RateLimiter) Execute(ctx context.Context, v any, hctx *Context) (any, error) {
	key := hctx.SessionID + ":" + hctx.Method

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	stamps, _ := rl.windows.Get(key)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		retryAfter := int(math.Ceil(kept[0].Add(rl.window).Sub(now).Seconds()))
		rl.windows.Add(key, kept)
		return nil, &RateLimitError{
			Key:        key,
			Limit:      rl.limit,
			Window:     rl.window,
			RetryAfter: retryAfter,
		}
	}

	kept = append(kept, now)
	rl.windows.Add(key, kept)
	return nil, nil
}

// SetLimit installs a new per-window budget and window span. Tracked
// timestamps are kept; the new values apply from the next check. Non-positive
// arguments leave the corresponding value unchanged.
func (rl *RateLimiter) SetLimit(limit int, window time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limit > 0 {
		rl.limit = limit
	}
	if window > 0 {
		rl.window = window
	}
}

// Reset forgets all tracked windows.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.windows.Purge()
}
