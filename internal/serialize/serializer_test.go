package serialize

import (
	"testing"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

func sampleMessage() *model.Message {
	p := model.PriorityHigh
	return &model.Message{
		ID:        "msg-1",
		Type:      model.MessageTelemetry,
		Payload:   map[string]any{"x": 1.5, "y": "ok"},
		Timestamp: 1234,
		Priority:  &p,
	}
}

func TestRoundTripEveryFormat(t *testing.T) {
	reg := NewRegistry()
	for _, p := range []model.Protocol{model.ProtocolJSON, model.ProtocolMessagePack, model.ProtocolCBOR} {
		s, ok := reg.Get(p)
		if !ok {
			t.Fatalf("missing serializer for %s", p)
		}
		msg := sampleMessage()
		msg.Protocol = p

		encoded, err := s.Encode(msg)
		if err != nil {
			t.Fatalf("%s encode: %v", p, err)
		}
		decoded, err := s.Decode(encoded)
		if err != nil {
			t.Fatalf("%s decode: %v", p, err)
		}
		if decoded.ID != msg.ID || decoded.Type != msg.Type || decoded.Timestamp != msg.Timestamp {
			t.Fatalf("%s round-trip mismatch: got %+v, want %+v", p, decoded, msg)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	s := NewJSON()
	_, err := s.Decode([]byte(`{"id":"x","type":"bogus","timestamp":1}`))
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecodeRejectsMissingID(t *testing.T) {
	s := NewJSON()
	_, err := s.Decode([]byte(`{"type":"telemetry","timestamp":1}`))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	header := FrameHeader{
		Protocol:   model.ProtocolJSON,
		Compressed: false,
		Timestamp:  42,
	}

	framed, err := EncodeFrame(header, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}

	gotHeader, gotPayload, err := DecodeFrame(framed)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", gotPayload, payload)
	}
	if gotHeader.Protocol != model.ProtocolJSON || gotHeader.Timestamp != 42 {
		t.Fatalf("header mismatch: %+v", gotHeader)
	}
}

func TestFrameDetectsCorruption(t *testing.T) {
	framed, err := EncodeFrame(FrameHeader{Protocol: model.ProtocolJSON}, []byte("payload"))
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	framed[len(framed)-1] ^= 0xFF

	if _, _, err := DecodeFrame(framed); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	c := NewCompressor(8)
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad this out")

	for _, algo := range []CompressionType{CompressionGzip, CompressionDeflate} {
		compressed, ratio, err := c.Compress(algo, payload)
		if err != nil {
			t.Fatalf("%s compress: %v", algo, err)
		}
		if ratio <= 0 {
			t.Fatalf("%s ratio should be measured, got %v", algo, ratio)
		}
		out, err := c.Decompress(algo, compressed)
		if err != nil {
			t.Fatalf("%s decompress: %v", algo, err)
		}
		if string(out) != string(payload) {
			t.Fatalf("%s round-trip mismatch", algo)
		}
	}
}

func TestShouldCompressRespectsThresholdAndBinary(t *testing.T) {
	c := NewCompressor(100)
	if c.ShouldCompress(make([]byte, 50), false) {
		t.Fatal("payload below threshold should not compress")
	}
	if c.ShouldCompress(make([]byte, 200), true) {
		t.Fatal("already-binary payload should not compress")
	}
	if !c.ShouldCompress(make([]byte, 200), false) {
		t.Fatal("payload above threshold should compress")
	}
}
