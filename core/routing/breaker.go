package routing

import (
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerSnapshot is a point-in-time copy of the breaker.
type BreakerSnapshot struct {
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure"`
	LastSuccess time.Time    `json:"last_success"`
}

// Breaker trips after threshold consecutive failures, rejects calls for the
// recovery window and then lets exactly one trial through.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	recovery  time.Duration
	openedAt  time.Time
	trial     bool
	lastFail  time.Time
	lastOK    time.Time
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, recovery time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	return &Breaker{state: StateClosed, threshold: threshold, recovery: recovery, now: time.Now}
}

// Allow reports whether a call may reach the protected dependency. In the
// half-open state only the first caller is allowed until it reports back.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return false
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return true
	case StateHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// Success closes the circuit and resets the failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	b.lastOK = b.now()
	b.setState(StateClosed)
}

// Failure records a failed call. A failed trial reopens the circuit at once.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFail = b.now()
	b.trial = false
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.lastFail
		b.setState(StateOpen)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{State: b.state, Failures: b.failures, LastFailure: b.lastFail, LastSuccess: b.lastOK}
}

func (b *Breaker) setState(s BreakerState) {
	b.state = s
	switch s {
	case StateClosed:
		breakerState.Set(0)
	case StateHalfOpen:
		breakerState.Set(1)
	case StateOpen:
		breakerState.Set(2)
	}
}
