package connection

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

func newTestMachine() *Machine {
	return New(zerolog.Nop(), time.Minute)
}

func TestInitialStateIsDisconnected(t *testing.T) {
	m := newTestMachine()
	if m.State() != model.StateDisconnected {
		t.Fatalf("got %v, want disconnected", m.State())
	}
}

func TestValidTransitionSequence(t *testing.T) {
	m := newTestMachine()
	seq := []model.ConnState{
		model.StateConnecting,
		model.StateConnected,
		model.StateAuthenticated,
		model.StateActive,
		model.StateIdle,
		model.StateActive,
		model.StateDisconnected,
	}
	for _, to := range seq {
		if err := m.Transition(to); err != nil {
			t.Fatalf("transition to %v: %v", to, err)
		}
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := newTestMachine()
	if err := m.Transition(model.StateActive); err == nil {
		t.Fatal("expected error transitioning disconnected -> active directly")
	}
}

func TestErrorOnlyLeadsToDisconnected(t *testing.T) {
	m := newTestMachine()
	_ = m.Transition(model.StateConnecting)
	_ = m.Transition(model.StateError)
	if err := m.Transition(model.StateConnecting); err == nil {
		t.Fatal("error state should only transition to disconnected")
	}
	if err := m.Transition(model.StateDisconnected); err != nil {
		t.Fatalf("error -> disconnected should be allowed: %v", err)
	}
}

func TestIsAuthenticatedResetsOnDisconnect(t *testing.T) {
	m := newTestMachine()
	_ = m.Transition(model.StateConnecting)
	_ = m.Transition(model.StateConnected)
	_ = m.Transition(model.StateAuthenticated)
	if !m.IsAuthenticated() {
		t.Fatal("expected authenticated")
	}
	_ = m.Transition(model.StateDisconnected)
	if m.IsAuthenticated() {
		t.Fatal("expected authenticated to reset after disconnect")
	}
}

func TestTransitionCallbackFires(t *testing.T) {
	m := newTestMachine()
	var gotFrom, gotTo model.ConnState
	m.OnTransition(func(from, to model.ConnState) {
		gotFrom, gotTo = from, to
	})
	_ = m.Transition(model.StateConnecting)
	if gotFrom != model.StateDisconnected || gotTo != model.StateConnecting {
		t.Fatalf("callback got (%v, %v)", gotFrom, gotTo)
	}
}

func TestRecordLatencyEMA(t *testing.T) {
	m := newTestMachine()
	m.RecordLatency(100)
	if m.metrics.AverageLatencyMs != 100 {
		t.Fatalf("first sample should seed average, got %v", m.metrics.AverageLatencyMs)
	}
	m.RecordLatency(200)
	want := 0.1*200 + 0.9*100
	if m.metrics.AverageLatencyMs != want {
		t.Fatalf("got %v, want %v", m.metrics.AverageLatencyMs, want)
	}
}

func TestSubscriptionInventoryOrder(t *testing.T) {
	m := newTestMachine()
	m.AddSubscription("a")
	m.AddSubscription("b")
	m.AddSubscription("c")
	m.RemoveSubscription("b")
	m.AddSubscription("d")

	got := m.Subscriptions()
	want := []string{"a", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSetAuthSchedulesRefreshBeforeExpiry(t *testing.T) {
	m := newTestMachine()
	done := make(chan struct{})
	m.tokenRefreshThreshold = 10 * time.Millisecond

	m.SetAuth(AuthData{Token: "tok", ExpiresAt: time.Now().Add(15 * time.Millisecond)}, func() error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("token refresh hook never fired")
	}
}

func TestDestroyCancelsPendingRefresh(t *testing.T) {
	m := newTestMachine()
	fired := false
	m.SetAuth(AuthData{Token: "tok", ExpiresAt: time.Now().Add(20 * time.Millisecond)}, func() error {
		fired = true
		return nil
	})
	m.Destroy()
	time.Sleep(50 * time.Millisecond)
	if fired {
		t.Fatal("refresh hook should not fire after Destroy")
	}
}

func TestStatusSnapshot(t *testing.T) {
	m := newTestMachine()
	_ = m.Transition(model.StateConnecting)
	_ = m.Transition(model.StateConnected)
	m.AddSubscription("stream-1")

	status := m.Status(model.ProtocolJSON, model.QueueSummary{Size: 3})
	if status.State != model.StateConnected {
		t.Fatalf("got %v", status.State)
	}
	if len(status.Subscriptions) != 1 || status.Subscriptions[0] != "stream-1" {
		t.Fatalf("got %v", status.Subscriptions)
	}
	if status.Queue.Size != 3 {
		t.Fatalf("got %v", status.Queue.Size)
	}
	if status.NegotiatedProtocol != model.ProtocolJSON {
		t.Fatalf("got %v", status.NegotiatedProtocol)
	}
}
