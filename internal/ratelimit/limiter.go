// Package ratelimit implements a per-identity fixed-window rate limiter with
// lazy window reset. The record map is the only state shared across
// concurrent requests and is guarded by a single mutex; an optional sweep
// goroutine bounds memory by purging long-idle windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Count      int
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// LimitError is returned by Enforce when the window is exhausted.
type LimitError struct {
	Identity   string
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per window, retry after %s",
		e.Identity, e.Limit, e.RetryAfter.Round(time.Second))
}

// record tracks one identity's current window.
type record struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per identity within a fixed window. Windows reset
// lazily on the first check after expiry, so no timer is needed for
// correctness.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record

	limit  int
	window time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		records: make(map[string]*record),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Check counts one request for the identity and reports whether it fits in
// the current window.
func (l *Limiter) Check(identity string) Result {
	return l.CheckWithLimit(identity, 0)
}

// CheckWithLimit applies a per-identity limit override. A non-positive limit
// falls back to the limiter default.
func (l *Limiter) CheckWithLimit(identity string, limit int) Result {
	if limit <= 0 {
		limit = l.limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[identity]
	if !ok || now.Sub(rec.windowStart) >= l.window {
		rec = &record{windowStart: now}
		l.records[identity] = rec
	}

	resetAt := rec.windowStart.Add(l.window)
	if rec.count >= limit {
		return Result{
			Allowed:    false,
			Count:      rec.count,
			Remaining:  0,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	rec.count++
	return Result{
		Allowed:   true,
		Count:     rec.count,
		Remaining: limit - rec.count,
		Limit:     limit,
		ResetAt:   resetAt,
	}
}

// Enforce is the strict variant: it returns a typed *LimitError when the
// window is exceeded.
func (l *Limiter) Enforce(identity string) (Result, error) {
	return l.EnforceWithLimit(identity, 0)
}

// EnforceWithLimit is Enforce with a per-identity limit override.
func (l *Limiter) EnforceWithLimit(identity string, limit int) (Result, error) {
	result := l.CheckWithLimit(identity, limit)
	if !result.Allowed {
		return result, &LimitError{
			Identity:   identity,
			Limit:      result.Limit,
			ResetAt:    result.ResetAt,
			RetryAfter: result.RetryAfter,
		}
	}
	return result, nil
}

// StartSweep purges records whose window expired more than grace ago. Purely
// a memory bound: disabling it only makes entries persist longer.
func (l *Limiter) StartSweep(ctx context.Context, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(grace)
			}
		}
	}()
}

func (l *Limiter) sweep(grace time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, rec := range l.records {
		if now.Sub(rec.windowStart) >= l.window+grace {
			delete(l.records, id)
		}
	}
}

// size is test-only visibility into the record map.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
