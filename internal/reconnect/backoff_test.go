package reconnect

import "testing"

func TestExponentialBackoffSequence(t *testing.T) {
	// S1 from spec §8: strategy=exponential, baseDelay=100, factor=2,
	// maxDelay=1000, jitter=none -> [100, 200, 400, 800, 1000, 1000]
	want := []float64{100, 200, 400, 800, 1000, 1000}
	for attempt, w := range want {
		got := BaseDelay(StrategyExponential, attempt, 100, 1000, 2)
		if got != w {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestLinearBackoffCapsAtMax(t *testing.T) {
	got := BaseDelay(StrategyLinear, 50, 100, 1000, 2)
	if got != 1000 {
		t.Fatalf("got %v, want capped 1000", got)
	}
}

func TestConstantBackoffIgnoresAttempt(t *testing.T) {
	for attempt := 0; attempt < 5; attempt++ {
		got := BaseDelay(StrategyConstant, attempt, 250, 5000, 2)
		if got != 250 {
			t.Fatalf("attempt %d: got %v, want 250", attempt, got)
		}
	}
}

func TestFibonacciBackoffGrowsThenCaps(t *testing.T) {
	d0 := BaseDelay(StrategyFibonacci, 0, 100, 100000, 2)
	d1 := BaseDelay(StrategyFibonacci, 1, 100, 100000, 2)
	d2 := BaseDelay(StrategyFibonacci, 2, 100, 100000, 2)
	if !(d0 <= d1 && d1 <= d2) {
		t.Fatalf("fibonacci delays should be non-decreasing: %v %v %v", d0, d1, d2)
	}

	capped := BaseDelay(StrategyFibonacci, 40, 100, 1000, 2)
	if capped != 1000 {
		t.Fatalf("got %v, want capped 1000", capped)
	}
}

func TestJitterNoneIsDeterministic(t *testing.T) {
	got := ApplyJitter(JitterNone, 500, 1000, 0, nil)
	if got != 500 {
		t.Fatalf("got %v, want 500", got)
	}
}
