package reconnect

import (
	"sync"
	"time"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// CircuitBreaker implements spec §4.F / §8 invariant 5: CLOSED by
// default, opens after a consecutive-failure streak, half-opens after
// a timeout, and fully closes on one success.
type CircuitBreaker struct {
	mu sync.Mutex

	state               model.CircuitState
	consecutiveFailures int
	threshold           int
	openedAt            time.Time
	timeout             time.Duration

	now func() time.Time
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     model.CircuitClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// State returns the current breaker state, first resolving an expired
// OPEN window to HALF_OPEN (spec: "After circuitBreakerTimeout ->
// HALF_OPEN; next attempt permitted").
func (c *CircuitBreaker) State() model.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeHalfOpenLocked()
	return c.state
}

func (c *CircuitBreaker) maybeHalfOpenLocked() {
	if c.state == model.CircuitOpen && c.now().Sub(c.openedAt) >= c.timeout {
		c.state = model.CircuitHalfOpen
	}
}

// AllowAttempt reports whether a reconnect attempt may be scheduled.
func (c *CircuitBreaker) AllowAttempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeHalfOpenLocked()
	return c.state != model.CircuitOpen
}

// RecordFailure registers a failed attempt, opening the breaker once
// the consecutive-failure threshold is reached (or immediately if
// already HALF_OPEN, per spec: "HALF_OPEN -> OPEN on failure").
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.CircuitHalfOpen {
		c.open()
		return
	}

	c.consecutiveFailures++
	if c.consecutiveFailures >= c.threshold {
		c.open()
	}
}

// RecordSuccess closes the breaker and resets the failure streak
// (spec: "HALF_OPEN -> CLOSED on one success"; a success while CLOSED
// is a no-op beyond resetting the streak).
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
	c.state = model.CircuitClosed
}

// ForceOpen opens the breaker unconditionally, used when maxAttempts
// is reached (spec: "Reaching maxAttempts also opens the breaker.").
func (c *CircuitBreaker) ForceOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open()
}

func (c *CircuitBreaker) open() {
	c.state = model.CircuitOpen
	c.openedAt = c.now()
}

// Reset returns the breaker to CLOSED with a clean failure count, used
// by an explicit reconnect()/cancel() path.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = model.CircuitClosed
	c.consecutiveFailures = 0
}
