package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/serialize"
)

func newTestManager() *Manager {
	reg := serialize.NewRegistry()
	comp := serialize.NewCompressor(256)
	caps := Capabilities{
		SupportedProtocols:   reg.Protocols(),
		PreferredProtocol:    model.ProtocolJSON,
		CompressionSupported: true,
	}
	return NewManager(reg, comp, caps, zerolog.Nop())
}

func TestNegotiatePicksClientPreferredWhenCommon(t *testing.T) {
	client := Capabilities{
		SupportedProtocols: []model.Protocol{model.ProtocolJSON, model.ProtocolCBOR},
		PreferredProtocol:  model.ProtocolCBOR,
	}
	server := Capabilities{
		SupportedProtocols: []model.Protocol{model.ProtocolJSON, model.ProtocolCBOR, model.ProtocolMessagePack},
		PreferredProtocol:  model.ProtocolMessagePack,
	}

	result := Negotiate(client, server)
	if result.SelectedProtocol != model.ProtocolCBOR {
		t.Fatalf("selected = %s, want cbor", result.SelectedProtocol)
	}
}

func TestNegotiateFallsBackToServerPreferred(t *testing.T) {
	client := Capabilities{
		SupportedProtocols: []model.Protocol{model.ProtocolJSON, model.ProtocolMessagePack},
		PreferredProtocol:  model.ProtocolCBOR, // not common
	}
	server := Capabilities{
		SupportedProtocols: []model.Protocol{model.ProtocolJSON, model.ProtocolMessagePack},
		PreferredProtocol:  model.ProtocolMessagePack,
	}

	result := Negotiate(client, server)
	if result.SelectedProtocol != model.ProtocolMessagePack {
		t.Fatalf("selected = %s, want messagepack", result.SelectedProtocol)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := newTestManager()
	p := model.PriorityNormal
	msg := &model.Message{ID: "a", Type: model.MessageTelemetry, Timestamp: 1, Priority: &p, Payload: map[string]any{"v": 1.0}}

	encoded, err := m.Encode(msg, false, serialize.CompressionNone)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := m.Decode(msg.Protocol, encoded, false, serialize.CompressionNone)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != msg.ID {
		t.Fatalf("id mismatch: %s != %s", decoded.ID, msg.ID)
	}
}

func TestEncodeRecordsRealCompressionRatio(t *testing.T) {
	m := newTestManager()
	p := model.PriorityNormal
	msg := &model.Message{ID: "a", Type: model.MessageTelemetry, Timestamp: 1, Priority: &p, Payload: map[string]any{"v": strings.Repeat("aaaaaaaaaa", 200)}}

	_, err := m.Encode(msg, true, serialize.CompressionGzip)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !msg.Compressed {
		t.Fatal("expected a payload this size and this repetitive to compress")
	}

	sum := m.Summary(msg.Protocol)
	if sum.CompressionRatio <= 0 || sum.CompressionRatio >= 0.99 {
		t.Fatalf("CompressionRatio = %v, want a real ratio well under 1 for a highly compressible payload", sum.CompressionRatio)
	}
}

func TestSwitchChangesCurrentProtocol(t *testing.T) {
	m := newTestManager()
	var switched bool
	m.OnSwitch(func(from, to model.Protocol) { switched = true })

	m.Switch(model.ProtocolCBOR)

	if !switched {
		t.Fatal("expected switch callback to fire")
	}
	if m.Current(model.MessageTelemetry) != model.ProtocolCBOR {
		t.Fatalf("current = %s, want cbor", m.Current(model.MessageTelemetry))
	}
}

func TestRecommendationRequiresMinimumSamples(t *testing.T) {
	m := newTestManager()
	m.current = model.ProtocolJSON

	// JSON: mediocre but present.
	for i := 0; i < 10; i++ {
		m.metrics[model.ProtocolJSON].Record(Sample{EncodeTimeMs: 5, Bytes: 100, At: time.Now()})
	}
	// CBOR: much better, but under the sample floor.
	for i := 0; i < 10; i++ {
		m.metrics[model.ProtocolCBOR].Record(Sample{EncodeTimeMs: 0.1, Bytes: 20, At: time.Now()})
	}

	var recommended bool
	m.OnRecommendation(func(Recommendation) { recommended = true })
	m.RecomputeAll()

	if recommended {
		t.Fatal("should not recommend with fewer than minSamplesForRecommend samples")
	}
}

func TestAutoSwitchAppliesAtHighConfidence(t *testing.T) {
	m := newTestManager()
	m.current = model.ProtocolJSON
	m.autoSwitchEnabled = true

	for i := 0; i < 20; i++ {
		m.metrics[model.ProtocolJSON].Record(Sample{EncodeTimeMs: 50, Bytes: 1000, At: time.Now()})
	}
	for i := 0; i < 1000; i++ {
		m.metrics[model.ProtocolCBOR].Record(Sample{EncodeTimeMs: 0.01, Bytes: 10, At: time.Now()})
	}

	m.RecomputeAll()

	if m.Current(model.MessageTelemetry) != model.ProtocolCBOR {
		t.Fatalf("expected auto-switch to cbor, got %s", m.Current(model.MessageTelemetry))
	}
}
