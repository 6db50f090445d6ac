package buffer

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

type fakeGovernor struct{ over bool }

func (f *fakeGovernor) OverMemoryLimit() bool { return f.over }

func newTestManager(gov Governor) *Manager {
	return NewManager(zerolog.Nop(), storage.NewMemory(), gov)
}

func TestManagerRoutesPushToCorrectStream(t *testing.T) {
	m := newTestManager(&fakeGovernor{})
	m.CreateBuffer(model.BufferConfig{StreamID: "s1", MaxDataPoints: 5})
	m.CreateBuffer(model.BufferConfig{StreamID: "s2", MaxDataPoints: 5})

	if _, err := m.Push("s1", model.DataPoint{Timestamp: 1, Value: "a"}, 0); err != nil {
		t.Fatalf("push s1: %v", err)
	}

	b1, _ := m.Buffer("s1")
	b2, _ := m.Buffer("s2")
	if len(b1.Read()) != 1 {
		t.Fatal("expected 1 point in s1")
	}
	if len(b2.Read()) != 0 {
		t.Fatal("expected 0 points in s2")
	}
}

func TestManagerRejectsPushToUnknownStream(t *testing.T) {
	m := newTestManager(&fakeGovernor{})
	if _, err := m.Push("missing", model.DataPoint{}, 0); err == nil {
		t.Fatal("expected unknown_stream error")
	}
}

func TestManagerRejectsPushOverMemoryLimit(t *testing.T) {
	m := newTestManager(&fakeGovernor{over: true})
	m.CreateBuffer(model.BufferConfig{StreamID: "s1", MaxDataPoints: 5})
	if _, err := m.Push("s1", model.DataPoint{Timestamp: 1}, 0); err == nil {
		t.Fatal("expected memory_limit_exceeded error")
	}
}

func TestManagerDestroyBufferRemovesStream(t *testing.T) {
	m := newTestManager(&fakeGovernor{})
	m.CreateBuffer(model.BufferConfig{StreamID: "s1", MaxDataPoints: 5})
	if err := m.DestroyBuffer("s1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, ok := m.Buffer("s1"); ok {
		t.Fatal("expected stream to be removed")
	}
}

func TestManagerFlushCallbackFires(t *testing.T) {
	m := newTestManager(&fakeGovernor{})
	var gotStreamID string
	m.OnFlush(func(e FlushEvent) { gotStreamID = e.StreamID })

	b := m.CreateBuffer(model.BufferConfig{StreamID: "s1", MaxDataPoints: 5})
	b.Push(model.DataPoint{Timestamp: 1}, 0)
	b.Flush(model.FlushManual)

	if gotStreamID != "s1" {
		t.Fatalf("got %q", gotStreamID)
	}
}
