package serialize

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// CBORSerializer implements Serializer over fxamacker/cbor/v2, the
// CBOR library used by open-telemetry-otel-arrow in the example pack.
type CBORSerializer struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func NewCBOR() *CBORSerializer {
	encMode, _ := cbor.CanonicalEncOptions().EncMode()
	// Generic maps decode as map[string]any, the shape the JSON and
	// MessagePack serializers also produce.
	decMode, _ := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	return &CBORSerializer{encMode: encMode, decMode: decMode}
}

func (s *CBORSerializer) Protocol() model.Protocol { return model.ProtocolCBOR }
func (s *CBORSerializer) ContentType() string      { return "application/cbor" }

func (s *CBORSerializer) Encode(msg *model.Message) ([]byte, error) {
	out, err := s.encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize(cbor): encode: %w", err)
	}
	return out, nil
}

func (s *CBORSerializer) Decode(data []byte) (*model.Message, error) {
	var msg model.Message
	if err := s.decMode.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("serialize(cbor): decode: %w", err)
	}
	msg.Protocol = model.ProtocolCBOR
	if err := validateDecoded(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *CBORSerializer) EstimateSize(msg *model.Message) int {
	// CBOR's compact major-type encoding runs close to MessagePack.
	return estimateBase(msg) * 65 / 100
}
