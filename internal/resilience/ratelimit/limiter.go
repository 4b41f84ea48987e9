// Package ratelimit bounds how many operation invocations may start
// within a rolling time window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/snapflow/capshot/internal/resilience/metrics"
)

// Limiter admits at most requestsPerWindow executions within any
// rolling window. State is scoped to the operations sharing this
// limiter instance.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// New creates a limiter admitting requestsPerWindow executions per
// window.
func New(requestsPerWindow int, window time.Duration) *Limiter {
	if requestsPerWindow < 1 {
		requestsPerWindow = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		limit:  requestsPerWindow,
		window: window,
		stamps: make([]time.Time, 0, requestsPerWindow),
	}
}

// Acquire blocks until an execution slot is available, then records it.
// Waiters loop: after sleeping out the oldest slot they re-check the
// window, since other waiters may have filled it again. The lock is
// never held across a wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := time.Now()
		l.evictLocked(now)

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			metrics.RateLimitWait.Observe(time.Since(start).Seconds())
			return nil
		}

		// Window full: wait until the oldest recorded slot ages out,
		// then re-check.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// evictLocked drops timestamps older than the window. Callers must hold
// l.mu.
func (l *Limiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.stamps) && !l.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[idx:]...)
	}
}

// InWindow reports how many executions are currently recorded in the
// window, for health reporting.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictLocked(time.Now())
	return len(l.stamps)
}

// Limit returns the configured slots per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration {
	return l.window
}
