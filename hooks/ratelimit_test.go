package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source for limiter tests.
type fakeClock struct {
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.cur }
func (c *fakeClock) Advance(d time.Duration) { c.cur = c.cur.Add(d) }

func TestRateLimiterAdmitsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(30, time.Minute, clock.Now)
	hctx := &Context{SessionID: "s1", Method: "tools/call"}

	for i := 0; i < 30; i++ {
		_, err := rl.Execute(context.Background(), nil, hctx)
		require.NoError(t, err, "request %d should be admitted", i+1)
		clock.Advance(time.Second)
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(30, time.Minute, clock.Now)
	hctx := &Context{SessionID: "s1", Method: "tools/call"}

	for i := 0; i < 30; i++ {
		_, err := rl.Execute(context.Background(), nil, hctx)
		require.NoError(t, err)
	}

	_, err := rl.Execute(context.Background(), nil, hctx)
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "s1:tools/call", rle.Key)
	assert.Equal(t, 30, rle.Limit)
	assert.Equal(t, time.Minute, rle.Window)
	assert.Greater(t, rle.RetryAfter, 0)
	assert.LessOrEqual(t, rle.RetryAfter, 60)
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock.Now)
	hctx := &Context{SessionID: "s1", Method: "ping"}

	for i := 0; i < 2; i++ {
		_, err := rl.Execute(context.Background(), nil, hctx)
		require.NoError(t, err)
	}
	_, err := rl.Execute(context.Background(), nil, hctx)
	require.Error(t, err)

	clock.Advance(61 * time.Second)
	_, err = rl.Execute(context.Background(), nil, hctx)
	assert.NoError(t, err, "window expiry must re-admit the key")
}

func TestRateLimiterRetryAfterTracksOldestStamp(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock.Now)
	hctx := &Context{SessionID: "s1", Method: "ping"}

	_, err := rl.Execute(context.Background(), nil, hctx)
	require.NoError(t, err)
	clock.Advance(20 * time.Second)
	_, err = rl.Execute(context.Background(), nil, hctx)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	// Oldest stamp is 30s old; it leaves the window in another 30s.
	_, err = rl.Execute(context.Background(), nil, hctx)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 30, rle.RetryAfter)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, time.Minute, clock.Now)

	_, err := rl.Execute(context.Background(), nil, &Context{SessionID: "s1", Method: "ping"})
	require.NoError(t, err)
	_, err = rl.Execute(context.Background(), nil, &Context{SessionID: "s1", Method: "ping"})
	require.Error(t, err)

	// Other sessions and other methods have their own windows.
	_, err = rl.Execute(context.Background(), nil, &Context{SessionID: "s2", Method: "ping"})
	assert.NoError(t, err)
	_, err = rl.Execute(context.Background(), nil, &Context{SessionID: "s1", Method: "tools/list"})
	assert.NoError(t, err)
}

func TestRateLimiterReset(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, time.Minute, clock.Now)
	hctx := &Context{SessionID: "s1", Method: "ping"}

	_, err := rl.Execute(context.Background(), nil, hctx)
	require.NoError(t, err)
	_, err = rl.Execute(context.Background(), nil, hctx)
	require.Error(t, err)

	rl.Reset()
	_, err = rl.Execute(context.Background(), nil, hctx)
	assert.NoError(t, err)
}

func TestRateLimitRejectionAbortsFold(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(
		WithLogger(discardLogger()),
		WithClock(clock.Now),
		WithRateLimit(1, time.Minute),
	)

	var downstream int
	m.Register(NewFuncHook("counter", KindRequest, 500,
		func(ctx context.Context, v any, hctx *Context) (any, error) {
			downstream++
			return nil, nil
		}))

	hctx := &Context{SessionID: "s1", Method: "ping", Metadata: map[string]any{}}
	_, err := m.ProcessRequest(context.Background(), "req", hctx)
	require.NoError(t, err)
	require.Equal(t, 1, downstream)

	// The limiter is not critical, but its rejection still aborts the fold.
	_, err = m.ProcessRequest(context.Background(), "req", hctx)
	require.Error(t, err)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 1, downstream, "hooks after a rate-limit rejection must not run")
}
