package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// pruneInterval is how often a serving RateLimiter drops idle clients.
const pruneInterval = 10 * time.Minute

// RateLimiter enforces per-client request rates and daily quotas. Windows
// are fixed: a minute window opens with the first request after the previous
// one expired.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

type clientUsage struct {
	minuteStart time.Time
	minuteCount int

	hourStart time.Time
	hourCount int

	dayStart   time.Time
	dayCount   int
	dataToday  int64
	lastSeenAt time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
	LastSeen           time.Time
}

// NewRateLimiter creates a rate limiter. A zero limit disables that check.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// Allow records a request of dataSize bytes from clientID, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage, ok := rl.clients[clientID]
	if !ok {
		usage = &clientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.clients[clientID] = usage
	}
	usage.roll(now)

	if rl.requestsPerMinute > 0 && usage.minuteCount >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.requestsPerMinute,
			RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && usage.hourCount >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: usage.hourStart.Add(time.Hour).Sub(now),
		}
	}

	resets := usage.dayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && usage.dayCount >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.maxRequestsPerDay),
			Used:   int64(usage.dayCount),
			Resets: resets,
		}
	}
	if rl.maxDataPerDay > 0 && usage.dataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.maxDataPerDay,
			Used:   usage.dataToday,
			Resets: resets,
		}
	}

	usage.minuteCount++
	usage.hourCount++
	usage.dayCount++
	usage.dataToday += dataSize
	usage.lastSeenAt = now
	return nil
}

func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minuteCount = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hourCount = now, 0
	}
	if day := startOfDay(now); !day.Equal(u.dayStart) {
		u.dayStart, u.dayCount, u.dataToday = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Usage returns the counters recorded for clientID.
func (rl *RateLimiter) Usage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minuteCount,
		RequestsLastHour:   u.hourCount,
		RequestsToday:      u.dayCount,
		DataToday:          u.dataToday,
		LastSeen:           u.lastSeenAt,
	}
}

// Prune forgets clients not seen within idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for id, u := range rl.clients {
		if u.lastSeenAt.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// retention is how long an idle client's counters still matter: an hour
// for rate windows, a day when daily quotas are enforced.
func (rl *RateLimiter) retention() time.Duration {
	if rl.maxRequestsPerDay > 0 || rl.maxDataPerDay > 0 {
		return 24 * time.Hour
	}
	return time.Hour
}

// pruneLoop prunes idle clients every interval until ctx is done.
func (rl *RateLimiter) pruneLoop(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Prune(rl.retention()); n > 0 {
				logger.Debug("Pruned idle rate limit clients", "removed", n)
			}
		}
	}
}

// RateLimitError reports a request rate violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError reports a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
