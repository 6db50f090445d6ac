package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestReplyResetsMissedCount(t *testing.T) {
	m := New(zerolog.Nop(), Config{Interval: time.Hour, Timeout: time.Hour, MaxMissed: 3}, func(seq uint64, clientTime int64) error { return nil })

	m.mu.Lock()
	m.seq = 1
	m.pending[1] = time.Now()
	m.missed = 2
	m.mu.Unlock()

	m.Reply(Heartbeat{Sequence: 1})

	if m.missed != 0 {
		t.Fatalf("missed = %d, want 0", m.missed)
	}
}

func TestUnhealthyFiresAfterMaxMissed(t *testing.T) {
	m := New(zerolog.Nop(), Config{Interval: time.Hour, Timeout: time.Hour, MaxMissed: 2}, func(seq uint64, clientTime int64) error { return nil })
	var unhealthyFired int32
	m.OnUnhealthy(func() { atomic.AddInt32(&unhealthyFired, 1) })

	m.recordMiss(1)
	if atomic.LoadInt32(&unhealthyFired) != 0 {
		t.Fatal("should not be unhealthy after one miss")
	}
	m.recordMiss(2)
	if atomic.LoadInt32(&unhealthyFired) != 1 {
		t.Fatal("should become unhealthy at maxMissed")
	}
	m.recordMiss(3)
	if atomic.LoadInt32(&unhealthyFired) != 1 {
		t.Fatal("should not fire unhealthy twice")
	}
}

func TestHealthyFiresOnRecoveryFromUnhealthy(t *testing.T) {
	m := New(zerolog.Nop(), Config{Interval: time.Hour, Timeout: time.Hour, MaxMissed: 1}, func(seq uint64, clientTime int64) error { return nil })
	var healthyFired int32
	m.OnHealthy(func() { atomic.AddInt32(&healthyFired, 1) })

	m.recordMiss(1) // -> unhealthy

	m.mu.Lock()
	m.seq = 2
	m.pending[2] = time.Now()
	m.mu.Unlock()
	m.Reply(Heartbeat{Sequence: 2})

	if atomic.LoadInt32(&healthyFired) != 1 {
		t.Fatal("expected healthy to fire once on recovery")
	}
}

func TestProbeSendsAndTimesOut(t *testing.T) {
	sent := make(chan uint64, 1)
	m := New(zerolog.Nop(), Config{Interval: time.Hour, Timeout: 10 * time.Millisecond, MaxMissed: 1}, func(seq uint64, clientTime int64) error {
		sent <- seq
		return nil
	})
	var timedOut int32
	m.OnTimeout(func() { atomic.AddInt32(&timedOut, 1) })

	m.probe()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("probe never sent")
	}

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&timedOut) != 1 {
		t.Fatal("expected timeout to fire")
	}
}

func TestReplyRecordsLatencySample(t *testing.T) {
	m := New(zerolog.Nop(), Config{Interval: time.Hour, Timeout: time.Hour, MaxMissed: 3}, func(seq uint64, clientTime int64) error { return nil })
	var gotLatency time.Duration
	m.OnLatencySample(func(d time.Duration) { gotLatency = d })

	m.mu.Lock()
	m.seq = 1
	m.pending[1] = time.Now().Add(-5 * time.Millisecond)
	m.mu.Unlock()

	m.Reply(Heartbeat{Sequence: 1})

	if gotLatency <= 0 {
		t.Fatalf("expected positive latency, got %v", gotLatency)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m := New(zerolog.Nop(), Config{Interval: time.Millisecond, Timeout: time.Hour, MaxMissed: 3}, func(seq uint64, clientTime int64) error { return nil })
	m.Start()
	m.Start() // no-op
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop() // no-op, must not panic
}
