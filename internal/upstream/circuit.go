package upstream

import (
	"sync"
	"time"
)

// breakerState is the circuit state of the agent runner.
type breakerState int

const (
	breakerClosed   breakerState = iota // healthy, requests flow
	breakerOpen                         // tripped, requests rejected
	breakerHalfOpen                     // probing, one request allowed
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker trips after failureThreshold consecutive failures and allows a
// probe request once probeInterval has elapsed.
type breaker struct {
	mu sync.Mutex

	state    breakerState
	failures int
	openedAt time.Time

	failureThreshold int
	probeInterval    time.Duration
}

func newBreaker(failureThreshold int, probeInterval time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if probeInterval <= 0 {
		probeInterval = 15 * time.Second
	}
	return &breaker{
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
	}
}

// current returns the state, transitioning open to half-open once the
// probe interval has elapsed. Must be called with mu held.
func (b *breaker) current() breakerState {
	if b.state == breakerOpen && time.Since(b.openedAt) >= b.probeInterval {
		b.state = breakerHalfOpen
	}
	return b.state
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current() != breakerOpen
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case breakerClosed:
		if b.failures >= b.failureThreshold {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}
