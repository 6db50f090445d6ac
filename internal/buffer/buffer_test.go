package buffer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

func q(v float64) *float64 { return &v }

func TestCapacityFromMaxDataPoints(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 5}
	b := NewBuffer(zerolog.Nop(), cfg, nil)
	if b.capacity != 5 {
		t.Fatalf("got %d, want 5", b.capacity)
	}
}

func TestCapacityFromWindowSize(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", WindowSizeMs: 95}
	b := NewBuffer(zerolog.Nop(), cfg, nil)
	if b.capacity != 10 {
		t.Fatalf("got %d, want 10 (ceil(95/10))", b.capacity)
	}
}

func TestDropOldestOverwritesOnFull(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 2, OverflowStrategy: model.OverflowDropOldest}
	b := NewBuffer(zerolog.Nop(), cfg, nil)

	b.Push(model.DataPoint{Timestamp: 1, Value: "a"}, 0)
	b.Push(model.DataPoint{Timestamp: 2, Value: "b"}, 0)
	res := b.Push(model.DataPoint{Timestamp: 3, Value: "c"}, 0)

	if !res.Overflow || res.Evicted == nil || res.Evicted.Value != "a" {
		t.Fatalf("got %+v", res)
	}
	data := b.Read()
	if len(data) != 2 || data[0].Value != "b" || data[1].Value != "c" {
		t.Fatalf("got %v", data)
	}
}

func TestDropNewestRefusesWhenFull(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 1, OverflowStrategy: model.OverflowDropNewest}
	b := NewBuffer(zerolog.Nop(), cfg, nil)

	b.Push(model.DataPoint{Timestamp: 1, Value: "a"}, 0)
	res := b.Push(model.DataPoint{Timestamp: 2, Value: "b"}, 0)

	if !res.Overflow {
		t.Fatal("expected overflow=true when refusing")
	}
	data := b.Read()
	if len(data) != 1 || data[0].Value != "a" {
		t.Fatalf("got %v", data)
	}
}

func TestDownsampleKeepsOneOfN(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, OverflowStrategy: model.OverflowDownsample, DownsampleFactor: 3}
	b := NewBuffer(zerolog.Nop(), cfg, nil)

	for i := 1; i <= 6; i++ {
		b.Push(model.DataPoint{Timestamp: int64(i), Value: i}, 0)
	}
	data := b.Read()
	if len(data) != 2 {
		t.Fatalf("got %d points, want 2 (every 3rd of 6)", len(data))
	}
}

func TestPriorityBasedRejectsLowQuality(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, OverflowStrategy: model.OverflowPriorityBased, QualityThreshold: 0.5}
	b := NewBuffer(zerolog.Nop(), cfg, nil)

	b.Push(model.DataPoint{Timestamp: 1, Value: "low", Quality: q(0.2)}, 0)
	b.Push(model.DataPoint{Timestamp: 2, Value: "high", Quality: q(0.9)}, 0)

	data := b.Read()
	if len(data) != 1 || data[0].Value != "high" {
		t.Fatalf("got %v", data)
	}
}

func TestReadFiltersToWindow(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, WindowSizeMs: 1000}
	b := NewBuffer(zerolog.Nop(), cfg, nil)
	b.now = func() time.Time { return time.UnixMilli(10000) }

	b.Push(model.DataPoint{Timestamp: 8500, Value: "stale"}, 0)
	b.Push(model.DataPoint{Timestamp: 9500, Value: "fresh"}, 0)

	data := b.Read()
	if len(data) != 1 || data[0].Value != "fresh" {
		t.Fatalf("got %v", data)
	}
}

func TestFlushDrainsAndClearsAtomically(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10}
	b := NewBuffer(zerolog.Nop(), cfg, nil)
	b.Push(model.DataPoint{Timestamp: 2, Value: "b"}, 0)
	b.Push(model.DataPoint{Timestamp: 1, Value: "a"}, 0)

	event := b.Flush(model.FlushManual)
	if len(event.Data) != 2 || event.Data[0].Value != "a" || event.Data[1].Value != "b" {
		t.Fatalf("got %v, want sorted by ts", event.Data)
	}
	if len(b.Read()) != 0 {
		t.Fatal("buffer should be empty after flush")
	}
}

func TestHealthScorePenalizesHighUtilization(t *testing.T) {
	stats := Statistics{Utilization: 0.95, OverflowCounts: map[model.OverflowStrategy]int{}}
	score, issues := healthScore(stats)
	if score != 80 {
		t.Fatalf("got %d, want 80", score)
	}
	if len(issues) != 1 {
		t.Fatalf("got %v", issues)
	}
}

func TestHealthScoreAppliesEveryPenaltyAtItsMaximum(t *testing.T) {
	stats := Statistics{
		Utilization:    0.95,
		OverflowCounts: map[model.OverflowStrategy]int{model.OverflowFIFO: 50},
		EMAQuality:     0.1,
		Errors:         100,
	}
	score, _ := healthScore(stats)
	if score != 20 {
		t.Fatalf("got %d, want 20 (100 - 20 - 15 - 25 - 20 error cap)", score)
	}
}

func TestRecommendWidensWindowOnHeavyOverflow(t *testing.T) {
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, WindowSizeMs: 1000, OverflowStrategy: model.OverflowDropNewest}
	b := NewBuffer(zerolog.Nop(), cfg, nil)
	for i := 0; i < 35; i++ {
		b.Push(model.DataPoint{Timestamp: int64(i)}, 0)
	}
	rec := b.Recommend()
	if rec == nil {
		t.Fatal("expected a recommendation")
	}
	if rec.Proposed.WindowSizeMs != 1500 {
		t.Fatalf("got %d, want 1500", rec.Proposed.WindowSizeMs)
	}
	if !rec.AutoApply() {
		t.Fatal("expected medium-impact high-confidence recommendation to auto-apply")
	}
}

func TestPersistAndRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemory()
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, EnablePersistence: true}
	b := NewBuffer(zerolog.Nop(), cfg, store)
	b.Push(model.DataPoint{Timestamp: 1, Value: "a"}, 0)
	b.Push(model.DataPoint{Timestamp: 2, Value: "b"}, 0)

	if err := b.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	b2 := NewBuffer(zerolog.Nop(), cfg, store)
	data := b2.Read()
	if len(data) != 2 {
		t.Fatalf("got %d points, want 2", len(data))
	}
}

func TestRestoreDiscardsStaleSnapshot(t *testing.T) {
	store := storage.NewMemory()
	cfg := model.BufferConfig{StreamID: "s1", MaxDataPoints: 10, EnablePersistence: true}
	b := NewBuffer(zerolog.Nop(), cfg, store)
	b.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	b.Push(model.DataPoint{Timestamp: 1, Value: "a"}, 0)
	_ = b.Persist()

	b2 := NewBuffer(zerolog.Nop(), cfg, store)
	if len(b2.Read()) != 0 {
		t.Fatal("expected stale snapshot to be discarded")
	}
}
