package reconnect

import (
	"math/rand"
	"sync"
	"time"
)

// Config is the reconnection scheduler's parameter set (spec §4.F, §6).
type Config struct {
	Strategy                Strategy
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	MaxAttempts             int
	Factor                  float64
	JitterType              JitterType
	JitterFactor            float64
	ResetTimeout            time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Scheduler drives reconnection attempts: it computes delays, tracks
// the attempt counter, and defers to a CircuitBreaker for admission
// control (spec §4.F).
type Scheduler struct {
	mu sync.Mutex

	cfg     Config
	breaker *CircuitBreaker

	attempt      int
	lastDelay    float64
	lastAttemptAt time.Time
	timer        *time.Timer

	rng *rand.Rand
	now func() time.Time
}

// NewScheduler builds a Scheduler. rngSource is optional; nil creates a
// new source for this Scheduler, seeded from the current time.
func NewScheduler(cfg Config, rngSource *rand.Rand) *Scheduler {
	if rngSource == nil {
		rngSource = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout),
		rng:     rngSource,
		now:     time.Now,
	}
}

// Breaker exposes the underlying circuit breaker for status reporting.
func (s *Scheduler) Breaker() *CircuitBreaker { return s.breaker }

// NextDelay computes and records the delay for the next attempt,
// without scheduling a timer. Returns ok=false if the breaker rejects
// scheduling or maxAttempts has been reached (which also opens the
// breaker, per spec §4.F).
func (s *Scheduler) NextDelay() (delay time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeResetOnIdleLocked()

	if !s.breaker.AllowAttempt() {
		return 0, false
	}

	if s.cfg.MaxAttempts > 0 && s.attempt >= s.cfg.MaxAttempts {
		s.breaker.ForceOpen()
		return 0, false
	}

	baseMs := BaseDelay(s.cfg.Strategy, s.attempt, float64(s.cfg.BaseDelay.Milliseconds()), float64(s.cfg.MaxDelay.Milliseconds()), s.cfg.Factor)
	jitteredMs := ApplyJitter(s.cfg.JitterType, baseMs, float64(s.cfg.MaxDelay.Milliseconds()), s.lastDelay, s.rng)

	s.attempt++
	s.lastDelay = jitteredMs
	s.lastAttemptAt = s.now()

	return time.Duration(jitteredMs) * time.Millisecond, true
}

// maybeResetOnIdleLocked implements spec §4.F: "A resetTimeout idle
// window without attempts also resets attemptNumber."
func (s *Scheduler) maybeResetOnIdleLocked() {
	if s.attempt == 0 || s.cfg.ResetTimeout <= 0 {
		return
	}
	if s.now().Sub(s.lastAttemptAt) >= s.cfg.ResetTimeout {
		s.attempt = 0
		s.lastDelay = 0
	}
}

// RecordSuccess resets the attempt counter and closes the breaker
// (spec: "A success resets attemptNumber and consecutive failures.").
func (s *Scheduler) RecordSuccess() {
	s.mu.Lock()
	s.attempt = 0
	s.lastDelay = 0
	s.mu.Unlock()
	s.breaker.RecordSuccess()
}

// RecordFailure registers a failed attempt with the breaker.
func (s *Scheduler) RecordFailure() {
	s.breaker.RecordFailure()
}

// Schedule arranges for fn to run after the next computed delay,
// returning ok=false if the breaker rejects scheduling. Cancel clears
// the timer (spec §5: "A disconnect cancels all reconnection timers").
func (s *Scheduler) Schedule(fn func()) (ok bool) {
	delay, ok := s.NextDelay()
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, fn)
	s.mu.Unlock()
	return true
}

// Cancel stops any pending scheduled attempt.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// AttemptNumber reports the current attempt counter (for status/metrics).
func (s *Scheduler) AttemptNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}
