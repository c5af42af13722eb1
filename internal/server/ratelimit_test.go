package server

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute, perHour, perDay int, dataPerDay int64) (*RateLimiter, *clock) {
	c := &clock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay, dataPerDay)
	rl.now = c.now
	return rl, c
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newTestLimiter(0, 0, 0, 0)

	for range 100 {
		require.NoError(t, rl.Allow("client", 100))
	}

	usage := rl.Usage("client")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(10000), usage.DataToday)
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, c := newTestLimiter(2, 0, 0, 0)

	require.NoError(t, rl.Allow("client", 0))
	c.advance(10 * time.Second)
	require.NoError(t, rl.Allow("client", 0))

	c.advance(10 * time.Second)
	err := rl.Allow("client", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	// A steady trickle must not keep the window open forever.
	c.advance(40 * time.Second)
	assert.NoError(t, rl.Allow("client", 0))
}

func TestRateLimiter_PerHour(t *testing.T) {
	rl, c := newTestLimiter(0, 3, 0, 0)

	for range 3 {
		require.NoError(t, rl.Allow("client", 0))
		c.advance(5 * time.Minute)
	}

	err := rl.Allow("client", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	c.advance(45 * time.Minute)
	assert.NoError(t, rl.Allow("client", 0))
}

func TestRateLimiter_DailyRequestQuota(t *testing.T) {
	rl, c := newTestLimiter(0, 0, 2, 0)

	require.NoError(t, rl.Allow("client", 0))
	require.NoError(t, rl.Allow("client", 0))

	err := rl.Allow("client", 0)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Limit)
	assert.Equal(t, int64(2), qe.Used)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), qe.Resets)

	c.advance(14 * time.Hour)
	assert.NoError(t, rl.Allow("client", 0))
}

func TestRateLimiter_DailyDataQuota(t *testing.T) {
	rl, _ := newTestLimiter(0, 0, 0, 1000)

	require.NoError(t, rl.Allow("client", 600))

	err := rl.Allow("client", 500)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(600), qe.Used)

	// Rejected requests are not counted.
	assert.NoError(t, rl.Allow("client", 400))
	assert.Equal(t, int64(1000), rl.Usage("client").DataToday)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(1, 0, 0, 0)

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("b", 0))
	assert.Error(t, rl.Allow("a", 0))
	assert.Error(t, rl.Allow("b", 0))
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, c := newTestLimiter(10, 0, 0, 0)

	require.NoError(t, rl.Allow("old", 0))
	c.advance(2 * time.Hour)
	require.NoError(t, rl.Allow("new", 0))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Equal(t, Usage{}, rl.Usage("old"))
	assert.Equal(t, 1, rl.Usage("new").RequestsToday)
}

func TestRateLimiter_Retention(t *testing.T) {
	rl, _ := newTestLimiter(10, 100, 0, 0)
	assert.Equal(t, time.Hour, rl.retention())

	rl, _ = newTestLimiter(10, 0, 50, 0)
	assert.Equal(t, 24*time.Hour, rl.retention())

	rl, _ = newTestLimiter(0, 0, 0, 1<<20)
	assert.Equal(t, 24*time.Hour, rl.retention())
}

func TestRateLimiter_PruneLoopEvictsIdleClients(t *testing.T) {
	rl, c := newTestLimiter(10, 0, 0, 0)
	require.NoError(t, rl.Allow("client", 0))
	c.advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.pruneLoop(ctx, 5*time.Millisecond, slog.Default())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return rl.Usage("client").LastSeen.IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prune loop did not stop after cancel")
	}
}

func TestRateLimitErrors_Messages(t *testing.T) {
	rle := &RateLimitError{Type: "minute", Limit: 60, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 60, retry after: 30s)", rle.Error())

	qe := &QuotaExceededError{Type: "data", Limit: 10, Used: 8, Resets: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "quota exceeded for data (used: 8, limit: 10, resets: 2026-01-02T00:00:00Z)", qe.Error())
}
