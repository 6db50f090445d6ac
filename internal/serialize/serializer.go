package serialize

import (
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// Serializer is implemented once per wire format (spec §4.B).
type Serializer interface {
	Encode(msg *model.Message) ([]byte, error)
	Decode(data []byte) (*model.Message, error)
	EstimateSize(msg *model.Message) int
	ContentType() string
	Protocol() model.Protocol
}

// wireEnvelope is the serializer-neutral shape every format marshals;
// field tags differ per struct tag set used by each library.
type wireEnvelope = model.Message

func validateDecoded(msg *model.Message) error {
	if err := msg.Validate(); err != nil {
		return clienterr.New(clienterr.Protocol, "invalid_envelope", false, clienterr.Context{Operation: "decode"}, err)
	}
	return nil
}

// estimateBase returns a conservative byte estimate for the envelope
// fields common to every format (spec §4.B: "return a conservative
// byte count per type without actually serializing").
func estimateBase(msg *model.Message) int {
	const (
		fixedOverhead = 64 // id, timestamp, protocol, flags
	)
	size := fixedOverhead + len(msg.ID) + len(msg.Type)
	size += estimatePayload(msg.Payload)
	return size
}

func estimatePayload(payload any) int {
	switch v := payload.(type) {
	case nil:
		return 0
	case string:
		return len(v)
	case []byte:
		return len(v)
	case map[string]any:
		total := 0
		for k, val := range v {
			total += len(k) + estimatePayload(val) + 4
		}
		return total
	case []any:
		total := 0
		for _, val := range v {
			total += estimatePayload(val) + 2
		}
		return total
	case float64, float32:
		return 8
	case int, int32, int64, uint, uint32, uint64:
		return 8
	case bool:
		return 1
	default:
		// Unknown shape: assume a modest struct footprint rather than
		// walking it with reflection, keeping this an estimate, not an
		// encode.
		return 48
	}
}
