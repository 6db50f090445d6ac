package serialize

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// MsgpackSerializer implements Serializer over vmihailenco/msgpack/v5.
type MsgpackSerializer struct{}

func NewMsgpack() *MsgpackSerializer { return &MsgpackSerializer{} }

func (s *MsgpackSerializer) Protocol() model.Protocol { return model.ProtocolMessagePack }
func (s *MsgpackSerializer) ContentType() string      { return "application/msgpack" }

func (s *MsgpackSerializer) Encode(msg *model.Message) ([]byte, error) {
	out, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize(msgpack): encode: %w", err)
	}
	return out, nil
}

func (s *MsgpackSerializer) Decode(data []byte) (*model.Message, error) {
	var msg model.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("serialize(msgpack): decode: %w", err)
	}
	msg.Protocol = model.ProtocolMessagePack
	if err := validateDecoded(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MsgpackSerializer) EstimateSize(msg *model.Message) int {
	// MessagePack's binary tagging is denser than JSON; ~70% of the
	// base estimate is a reasonable conservative bound.
	return estimateBase(msg) * 70 / 100
}
