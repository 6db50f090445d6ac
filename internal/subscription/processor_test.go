package subscription

import (
	"testing"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

func TestProcessorDecimatesAcceptsOneInN(t *testing.T) {
	cfg := model.StreamConfig{DataType: model.DataNumeric, DecimationFactor: 3}
	p := NewProcessor(cfg)

	var accepted int
	p.OnData(func(dp model.DataPoint) { accepted++ })

	for i := 0; i < 9; i++ {
		p.Ingest(model.DataPoint{Value: float64(i)})
	}

	if accepted != 3 {
		t.Fatalf("got %d, want 3", accepted)
	}
}

func TestProcessorEnforcesMinMaxBounds(t *testing.T) {
	min, max := 0.0, 10.0
	cfg := model.StreamConfig{DataType: model.DataNumeric, MinValue: &min, MaxValue: &max}
	p := NewProcessor(cfg)

	var accepted []float64
	p.OnData(func(dp model.DataPoint) { accepted = append(accepted, dp.Value.(float64)) })

	p.Ingest(model.DataPoint{Value: -1.0})
	p.Ingest(model.DataPoint{Value: 5.0})
	p.Ingest(model.DataPoint{Value: 100.0})

	if len(accepted) != 1 || accepted[0] != 5.0 {
		t.Fatalf("got %v", accepted)
	}
}

func TestProcessorPauseBlocksIngest(t *testing.T) {
	p := NewProcessor(model.StreamConfig{DataType: model.DataNumeric})
	var accepted int
	p.OnData(func(dp model.DataPoint) { accepted++ })

	p.Pause()
	p.Ingest(model.DataPoint{Value: 1.0})
	if accepted != 0 {
		t.Fatal("expected paused ingest to be dropped")
	}

	p.Resume()
	p.Ingest(model.DataPoint{Value: 1.0})
	if accepted != 1 {
		t.Fatalf("got %d, want 1 after resume", accepted)
	}
}

func TestProcessorStatsTrackCounts(t *testing.T) {
	p := NewProcessor(model.StreamConfig{DataType: model.DataNumeric})
	p.Ingest(model.DataPoint{Value: 1.0})
	p.Ingest(model.DataPoint{Value: 2.0})

	stats := p.Stats()
	if stats.TotalReceived != 2 || stats.TotalStored != 2 {
		t.Fatalf("got %+v", stats)
	}
}
