package subscription

import (
	"testing"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

func baseCaps() Capabilities {
	return Capabilities{
		Permissions:        map[string]bool{"telemetry.read": true},
		MaxSampleRateHz:    100,
		MaxBatchSize:       50,
		SupportedTypes:     map[model.DataType]bool{model.DataNumeric: true},
		SupportedFilters:   map[string]bool{"gt": true},
		SupportedProtocols: map[model.Protocol]bool{model.ProtocolJSON: true},
	}
}

func TestValidateRejectsMissingPermission(t *testing.T) {
	req := SubscribeRequest{StreamID: "s1", Permission: "admin.write", Config: model.StreamConfig{DataType: model.DataNumeric}, Protocol: model.ProtocolJSON}
	res := Validate(req, baseCaps(), DefaultChain(nil))
	if res.Valid {
		t.Fatal("expected validation failure")
	}
}

func TestValidateClampsSampleRateAsModification(t *testing.T) {
	req := SubscribeRequest{
		StreamID: "s1", Permission: "telemetry.read",
		Config:   model.StreamConfig{DataType: model.DataNumeric, SampleRateHz: 500},
		Protocol: model.ProtocolJSON,
	}
	res := Validate(req, baseCaps(), DefaultChain(nil))
	if !res.Valid {
		t.Fatalf("expected valid with modification, got errors: %v", res.Errors)
	}
	if res.Modifications["sampleRateHz"] != 100.0 {
		t.Fatalf("got %v", res.Modifications["sampleRateHz"])
	}
}

// TestValidateFrequencyCapSucceedsWithGrantedActualRate reproduces
// S6: a 500 Hz request against a 200 Hz channel maximum succeeds with
// status=200, granted.frequency.actualHz=200, and a FREQUENCY_CAPPED
// warning.
func TestValidateFrequencyCapSucceedsWithGrantedActualRate(t *testing.T) {
	caps := baseCaps()
	caps.MaxSampleRateHz = 200

	req := SubscribeRequest{
		StreamID:   "s1",
		Permission: "telemetry.read",
		Config:     model.StreamConfig{DataType: model.DataNumeric, SampleRateHz: 500},
		Protocol:   model.ProtocolJSON,
	}
	res := Validate(req, caps, DefaultChain(nil))

	if !res.Valid {
		t.Fatalf("expected success, got errors: %v", res.Errors)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %d, want %d", res.Status, StatusOK)
	}
	if res.Granted.Frequency.ActualHz != 200 {
		t.Fatalf("granted.frequency.actualHz = %v, want 200", res.Granted.Frequency.ActualHz)
	}
	if !res.Granted.Frequency.Capped {
		t.Fatal("expected granted.frequency.capped = true")
	}

	found := false
	for _, w := range res.Warnings {
		if w.Code == WarningFrequencyCapped {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a FREQUENCY_CAPPED warning, got %v", res.Warnings)
	}
}

func TestValidateRejectsUnsupportedFilterOperator(t *testing.T) {
	req := SubscribeRequest{
		StreamID: "s1", Permission: "telemetry.read",
		Config:   model.StreamConfig{DataType: model.DataNumeric},
		Protocol: model.ProtocolJSON,
		Filters:  []model.Filter{{Field: "x", Operator: "regex"}},
	}
	res := Validate(req, baseCaps(), DefaultChain(nil))
	if res.Valid {
		t.Fatal("expected rejection of unsupported filter operator")
	}
}

func TestValidateRejectsDuplicateSubscription(t *testing.T) {
	req := SubscribeRequest{StreamID: "s1", Permission: "telemetry.read", Config: model.StreamConfig{DataType: model.DataNumeric}, Protocol: model.ProtocolJSON}
	isDup := func(streamID string) bool { return streamID == "s1" }
	res := Validate(req, baseCaps(), DefaultChain(isDup))
	if res.Valid {
		t.Fatal("expected duplicate rejection")
	}
}

func TestApplyModificationsUpdatesConfig(t *testing.T) {
	cfg := model.StreamConfig{SampleRateHz: 500, BufferSize: 1000}
	mods := map[string]any{"sampleRateHz": 100.0, "bufferSize": 50}
	got := ApplyModifications(cfg, mods)
	if got.SampleRateHz != 100 || got.BufferSize != 50 {
		t.Fatalf("got %+v", got)
	}
}

func TestEstimateResourcesScalesWithRateAndBuffer(t *testing.T) {
	cfg := model.StreamConfig{DataType: model.DataNumeric, SampleRateHz: 10, BufferSize: 100}
	est := EstimateResources(cfg)
	want := int64(10 * (50 + 8) * 100)
	if est.MemoryBytes != want {
		t.Fatalf("got %d, want %d", est.MemoryBytes, want)
	}
	if est.CPUPercent != 0.1 {
		t.Fatalf("got %v, want 0.1", est.CPUPercent)
	}
}

func TestEstimateResourcesCPUCapsAt50(t *testing.T) {
	cfg := model.StreamConfig{DataType: model.DataNumeric, SampleRateHz: 10000, BufferSize: 1}
	est := EstimateResources(cfg)
	if est.CPUPercent != 50 {
		t.Fatalf("got %v, want capped 50", est.CPUPercent)
	}
}
