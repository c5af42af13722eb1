// Package workers bounds how many CPU-heavy calls (recognition, rasterization)
// run at the same time and how many callers may wait for a slot.
package workers

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOverloaded is returned by Acquire when the wait queue is full.
var ErrOverloaded = errors.New("worker pool overloaded")

// Config holds the limits of a Limiter.
type Config struct {
	Name       string // pool name, used as metrics label
	MaxWorkers int    // concurrent slots (0 = runtime.NumCPU())
	MaxQueue   int    // callers allowed to wait for a slot (0 = unbounded)
}

// DefaultConfig returns a config sized to the host.
func DefaultConfig(name string) Config {
	return Config{
		Name:       name,
		MaxWorkers: runtime.NumCPU(),
		MaxQueue:   64,
	}
}

// Stats is a snapshot of limiter usage.
type Stats struct {
	Name         string        `json:"name"`
	Capacity     int           `json:"capacity"`
	InFlight     int           `json:"in_flight"`
	Waiting      int           `json:"waiting"`
	PeakInFlight int           `json:"peak_in_flight"`
	Rejected     int64         `json:"rejected"`
	Canceled     int64         `json:"canceled"`
	TotalWait    time.Duration `json:"total_wait"`
}

// Limiter is a counting semaphore with a bounded wait queue. A nil *Limiter
// imposes no limit.
type Limiter struct {
	name     string
	sem      chan struct{}
	maxQueue int64
	waiting  atomic.Int64

	mu    sync.Mutex
	stats Stats
}

// NewLimiter creates a limiter from cfg.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	l := &Limiter{
		name:     cfg.Name,
		sem:      make(chan struct{}, cfg.MaxWorkers),
		maxQueue: int64(cfg.MaxQueue),
	}
	l.stats.Name = cfg.Name
	l.stats.Capacity = cfg.MaxWorkers
	return l
}

// Acquire takes a slot, waiting until one is free, the queue overflows or
// ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}

	// Fast path: free slot, no queueing.
	select {
	case l.sem <- struct{}{}:
		l.acquired(0)
		return nil
	default:
	}

	if l.maxQueue > 0 && l.waiting.Load() >= l.maxQueue {
		l.mu.Lock()
		l.stats.Rejected++
		l.mu.Unlock()
		workerRejected.WithLabelValues(l.name).Inc()
		return ErrOverloaded
	}

	l.waiting.Add(1)
	workerWaiting.WithLabelValues(l.name).Inc()
	defer func() {
		l.waiting.Add(-1)
		workerWaiting.WithLabelValues(l.name).Dec()
	}()

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.acquired(time.Since(start))
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.stats.Canceled++
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *Limiter) acquired(wait time.Duration) {
	workerInFlight.WithLabelValues(l.name).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.TotalWait += wait
	if n := len(l.sem); n > l.stats.PeakInFlight {
		l.stats.PeakInFlight = n
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	if l == nil {
		return
	}
	select {
	case <-l.sem:
		workerInFlight.WithLabelValues(l.name).Dec()
	default:
		// Release without Acquire; nothing to free.
	}
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Stats returns a snapshot of the limiter's usage.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	l.mu.Lock()
	s := l.stats
	l.mu.Unlock()
	s.InFlight = len(l.sem)
	s.Waiting = int(l.waiting.Load())
	return s
}
