package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_WindowExhaustion(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	want := []bool{true, true, true, false}
	for i, expected := range want {
		result := l.Check("key-1")
		if result.Allowed != expected {
			t.Errorf("check %d: expected allowed=%v, got %v", i+1, expected, result.Allowed)
		}
		if i == len(want)-1 && result.RetryAfter <= 0 {
			t.Errorf("rejected check must carry a positive retryAfter, got %v", result.RetryAfter)
		}
	}

	// A different identity is unaffected.
	other := l.Check("key-2")
	if !other.Allowed || other.Count != 1 {
		t.Errorf("expected fresh window for other identity, got %+v", other)
	}
}

func TestLimiter_RemainingCounts(t *testing.T) {
	l := NewLimiter(2, time.Minute)

	r := l.Check("k")
	if r.Count != 1 || r.Remaining != 1 || r.Limit != 2 {
		t.Errorf("first check: %+v", r)
	}
	r = l.Check("k")
	if r.Count != 2 || r.Remaining != 0 {
		t.Errorf("second check: %+v", r)
	}
}

func TestLimiter_LazyWindowReset(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	current := time.Now()
	l.now = func() time.Time { return current }

	if r := l.Check("k"); !r.Allowed {
		t.Fatal("first check should pass")
	}
	if r := l.Check("k"); r.Allowed {
		t.Fatal("second check should be rejected")
	}

	// Window elapses; next access resets lazily.
	current = current.Add(61 * time.Second)
	r := l.Check("k")
	if !r.Allowed || r.Count != 1 {
		t.Errorf("expected fresh window after expiry, got %+v", r)
	}
}

func TestLimiter_Enforce(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	if _, err := l.Enforce("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := l.Enforce("k")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *LimitError, got %v", err)
	}
	if limitErr.Identity != "k" {
		t.Errorf("expected identity 'k', got %q", limitErr.Identity)
	}
	if limitErr.Limit != 1 {
		t.Errorf("expected limit 1, got %d", limitErr.Limit)
	}
	if limitErr.RetryAfter <= 0 {
		t.Errorf("expected positive retryAfter, got %v", limitErr.RetryAfter)
	}
	if limitErr.ResetAt.IsZero() {
		t.Error("expected resetAt to be set")
	}
}

func TestLimiter_PerIdentityOverride(t *testing.T) {
	l := NewLimiter(10, time.Minute)

	// Override tighter than the default.
	if r := l.CheckWithLimit("k", 1); !r.Allowed || r.Limit != 1 {
		t.Errorf("first check: %+v", r)
	}
	if r := l.CheckWithLimit("k", 1); r.Allowed {
		t.Errorf("override of 1 should reject the second check: %+v", r)
	}

	// Non-positive override falls back to the default.
	if r := l.CheckWithLimit("other", 0); r.Limit != 10 {
		t.Errorf("expected default limit 10, got %d", r.Limit)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(5, time.Minute)
	current := time.Now()
	l.now = func() time.Time { return current }

	l.Check("old")
	current = current.Add(30 * time.Second)
	l.Check("fresh")

	// "old" is now past window+grace; "fresh" is not.
	current = current.Add(70 * time.Second)
	l.sweep(40 * time.Second)

	if l.size() != 1 {
		t.Errorf("expected 1 record after sweep, got %d", l.size())
	}
	// Swept identity starts a fresh window, not a stale count.
	if r := l.Check("old"); r.Count != 1 {
		t.Errorf("expected fresh count for swept identity, got %d", r.Count)
	}
}

func TestLimiter_ConcurrentChecks(t *testing.T) {
	l := NewLimiter(1000, time.Minute)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				l.Check("shared")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	r := l.Check("shared")
	if r.Count != 801 {
		t.Errorf("expected count 801 after 800 concurrent checks, got %d", r.Count)
	}
}
