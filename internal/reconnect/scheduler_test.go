package reconnect

import (
	"math/rand"
	"testing"
	"time"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

func TestSchedulerDeterministicWithNoJitter(t *testing.T) {
	cfg := Config{
		Strategy:                StrategyExponential,
		BaseDelay:               100 * time.Millisecond,
		MaxDelay:                1000 * time.Millisecond,
		MaxAttempts:             6,
		Factor:                  2,
		JitterType:              JitterNone,
		CircuitBreakerThreshold: 100, // keep the breaker out of the way
		CircuitBreakerTimeout:   time.Second,
	}
	s := NewScheduler(cfg, rand.New(rand.NewSource(1)))

	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		d, ok := s.NextDelay()
		if !ok {
			t.Fatalf("attempt %d: expected ok", i)
		}
		if d != w*time.Millisecond {
			t.Fatalf("attempt %d: got %v, want %v", i, d, w*time.Millisecond)
		}
	}
}

func TestSchedulerOpensCircuitAtMaxAttempts(t *testing.T) {
	cfg := Config{
		Strategy:                StrategyConstant,
		BaseDelay:               time.Millisecond,
		MaxDelay:                time.Second,
		MaxAttempts:             2,
		Factor:                  2,
		JitterType:              JitterNone,
		CircuitBreakerThreshold: 100,
		CircuitBreakerTimeout:   time.Second,
	}
	s := NewScheduler(cfg, rand.New(rand.NewSource(1)))

	if _, ok := s.NextDelay(); !ok {
		t.Fatal("attempt 1 should be allowed")
	}
	if _, ok := s.NextDelay(); !ok {
		t.Fatal("attempt 2 should be allowed")
	}
	if _, ok := s.NextDelay(); ok {
		t.Fatal("attempt 3 should be rejected: maxAttempts reached")
	}
	if s.Breaker().State() != model.CircuitOpen {
		t.Fatal("breaker should be open after maxAttempts")
	}
}

func TestSchedulerSuccessResetsAttemptCounter(t *testing.T) {
	cfg := Config{
		Strategy:                StrategyConstant,
		BaseDelay:               time.Millisecond,
		MaxDelay:                time.Second,
		MaxAttempts:             0,
		Factor:                  2,
		JitterType:              JitterNone,
		CircuitBreakerThreshold: 100,
		CircuitBreakerTimeout:   time.Second,
	}
	s := NewScheduler(cfg, rand.New(rand.NewSource(1)))

	s.NextDelay()
	s.NextDelay()
	if s.AttemptNumber() != 2 {
		t.Fatalf("attempt number = %d, want 2", s.AttemptNumber())
	}

	s.RecordSuccess()
	if s.AttemptNumber() != 0 {
		t.Fatalf("attempt number after success = %d, want 0", s.AttemptNumber())
	}
}
