package serialize

import "github.com/wtyler2505/RoverMissionControl-sub013/internal/model"

// Registry holds one Serializer instance per supported protocol.
type Registry struct {
	serializers map[model.Protocol]Serializer
}

// NewRegistry builds a Registry with the three built-in formats.
func NewRegistry() *Registry {
	r := &Registry{serializers: make(map[model.Protocol]Serializer)}
	r.Register(NewJSON())
	r.Register(NewMsgpack())
	r.Register(NewCBOR())
	return r
}

func (r *Registry) Register(s Serializer) {
	r.serializers[s.Protocol()] = s
}

func (r *Registry) Get(p model.Protocol) (Serializer, bool) {
	s, ok := r.serializers[p]
	return s, ok
}

// Protocols lists every registered protocol.
func (r *Registry) Protocols() []model.Protocol {
	out := make([]model.Protocol, 0, len(r.serializers))
	for p := range r.serializers {
		out = append(out, p)
	}
	return out
}
