package protocol

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/serialize"
)

// RecomputeInterval is how often rolling metrics are re-derived (spec §4.C).
const RecomputeInterval = 5 * time.Second

// Score weights for the recommendation engine (spec §4.C).
const (
	weightLatency    = 0.3
	weightThroughput = 0.3
	weightSize       = 0.2
	weightError      = 0.2
)

// recommendationThreshold and minSamples gate when an alternative is
// worth recommending at all (spec §4.C).
const (
	recommendationThreshold = 1.2
	minSamplesForRecommend  = 50
	autoSwitchConfidence    = 0.85
)

// confidenceSampleCap is the named constant backing the confidence
// formula spec §9 calls out as heuristic and swappable.
const confidenceSampleCap = 1000.0

// Recommendation is emitted when an alternative protocol scores
// meaningfully better than the current one.
type Recommendation struct {
	From       model.Protocol
	To         model.Protocol
	Confidence float64
	Score      float64
	CurrentScore float64
}

// Manager owns capability negotiation, per-protocol metrics, and the
// recommendation/auto-switch engine (spec §4.C).
type Manager struct {
	mu sync.RWMutex

	registry *serialize.Registry
	compressor *serialize.Compressor

	clientCaps Capabilities
	negotiated NegotiationResult

	current model.Protocol
	metrics map[model.Protocol]*RollingMetrics

	autoSwitchEnabled bool
	typeHints         map[model.MessageType]model.Protocol

	onRecommendation func(Recommendation)
	onSwitch         func(from, to model.Protocol)

	log zerolog.Logger
}

// NewManager constructs a Manager that keeps rolling metrics for every
// protocol in the registry; clientCaps supplies the supported set
// offered during negotiation.
func NewManager(registry *serialize.Registry, compressor *serialize.Compressor, clientCaps Capabilities, log zerolog.Logger) *Manager {
	m := &Manager{
		registry:          registry,
		compressor:        compressor,
		clientCaps:        clientCaps,
		metrics:           make(map[model.Protocol]*RollingMetrics),
		autoSwitchEnabled: true,
		typeHints:         make(map[model.MessageType]model.Protocol),
		log:               log,
	}
	for _, p := range registry.Protocols() {
		m.metrics[p] = NewRollingMetrics()
	}
	if clientCaps.PreferredProtocol != "" {
		m.current = clientCaps.PreferredProtocol
	} else if len(registry.Protocols()) > 0 {
		m.current = registry.Protocols()[0]
	}
	return m
}

// OnRecommendation registers the callback invoked when a switch is
// worth recommending (not yet applied unless auto-switch is enabled).
func (m *Manager) OnRecommendation(fn func(Recommendation)) { m.onRecommendation = fn }

// OnSwitch registers the callback invoked after the active protocol changes.
func (m *Manager) OnSwitch(fn func(from, to model.Protocol)) { m.onSwitch = fn }

// SetAutoSwitch toggles automatic application of high-confidence recommendations.
func (m *Manager) SetAutoSwitch(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSwitchEnabled = enabled
}

// SetTypeHint overrides scoring-based selection for a given message type.
func (m *Manager) SetTypeHint(t model.MessageType, p model.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeHints[t] = p
}

// Negotiate performs capability negotiation against serverCaps and
// adopts the selected protocol as current.
func (m *Manager) Negotiate(serverCaps Capabilities) NegotiationResult {
	result := Negotiate(m.clientCaps, serverCaps)

	m.mu.Lock()
	m.negotiated = result
	if result.SelectedProtocol != "" {
		m.current = result.SelectedProtocol
	}
	m.mu.Unlock()

	return result
}

// Current returns the active protocol, honoring a per-type hint if set.
func (m *Manager) Current(msgType model.MessageType) model.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if hint, ok := m.typeHints[msgType]; ok {
		return hint
	}
	return m.current
}

// Encode delegates to the current serializer, optionally compressing,
// and records a rolling sample. Encode never re-serializes or drops
// in-flight messages on a concurrent switch: it captures the protocol
// to use at entry and uses it throughout (spec §8 invariant 7).
func (m *Manager) Encode(msg *model.Message, compress bool, algo serialize.CompressionType) ([]byte, error) {
	proto := m.Current(msg.Type)
	ser, ok := m.registry.Get(proto)
	if !ok {
		return nil, clienterr.New(clienterr.Protocol, "unknown_protocol", false, clienterr.Context{Operation: "encode"}, nil)
	}

	msg.Protocol = proto
	start := time.Now()
	out, err := ser.Encode(msg)
	elapsed := time.Since(start)

	sample := Sample{EncodeTimeMs: msToFloat(elapsed), Bytes: len(out), At: time.Now(), Error: err != nil}

	if err == nil && compress && m.compressor.ShouldCompress(out, false) {
		preLen := len(out)
		compressed, _, cerr := m.compressor.Compress(algo, out)
		if cerr == nil {
			out = compressed
			msg.Compressed = true
			sample.Compressed = true
			sample.RawBytes = preLen
			sample.Bytes = len(out)
		}
	}

	m.recordAndMaybeRecompute(proto, sample)

	if err != nil {
		return nil, clienterr.Wrap(clienterr.Protocol, "encode", err)
	}
	return out, nil
}

// Decode delegates to the serializer named by proto, decompressing
// first if needed.
func (m *Manager) Decode(proto model.Protocol, data []byte, compressed bool, algo serialize.CompressionType) (*model.Message, error) {
	ser, ok := m.registry.Get(proto)
	if !ok {
		return nil, clienterr.New(clienterr.Protocol, "unknown_protocol", false, clienterr.Context{Operation: "decode"}, nil)
	}

	if compressed {
		plain, err := m.compressor.Decompress(algo, data)
		if err != nil {
			return nil, clienterr.Wrap(clienterr.Protocol, "decompress", err)
		}
		data = plain
	}

	start := time.Now()
	msg, err := ser.Decode(data)
	elapsed := time.Since(start)

	m.recordAndMaybeRecompute(proto, Sample{DecodeTimeMs: msToFloat(elapsed), Bytes: len(data), At: time.Now(), Error: err != nil})

	if err != nil {
		return nil, clienterr.Wrap(clienterr.Protocol, "decode", err)
	}
	return msg, nil
}

func (m *Manager) recordAndMaybeRecompute(proto model.Protocol, s Sample) {
	m.mu.RLock()
	rm := m.metrics[proto]
	m.mu.RUnlock()
	if rm == nil {
		return
	}
	rm.Record(s)
}

// RecomputeAll recomputes rolling summaries for every protocol and
// evaluates the recommendation engine. Call on a 5s ticker (spec §4.C).
func (m *Manager) RecomputeAll() {
	m.mu.RLock()
	summaries := make(map[model.Protocol]Summary, len(m.metrics))
	for p, rm := range m.metrics {
		summaries[p] = rm.Recompute()
	}
	current := m.current
	autoSwitch := m.autoSwitchEnabled
	m.mu.RUnlock()

	if len(summaries) < 2 {
		return
	}

	currentScore := score(summaries[current])
	var best model.Protocol
	var bestScore float64
	for p, sum := range summaries {
		if p == current || sum.SampleCount < minSamplesForRecommend {
			continue
		}
		s := score(sum)
		if s > bestScore {
			bestScore = s
			best = p
		}
	}

	if best == "" || currentScore <= 0 {
		return
	}
	if bestScore <= currentScore*recommendationThreshold {
		return
	}

	confidence := float64(summaries[best].SampleCount) / confidenceSampleCap
	if confidence > 0.9 {
		confidence = 0.9
	}

	rec := Recommendation{From: current, To: best, Confidence: confidence, Score: bestScore, CurrentScore: currentScore}
	if m.onRecommendation != nil {
		m.onRecommendation(rec)
	}

	if autoSwitch && confidence >= autoSwitchConfidence {
		m.Switch(best)
	}
}

// Switch applies a protocol change immediately. It never drops
// in-flight encodes: only future Encode calls observe the new value
// (spec §8 invariant 7).
func (m *Manager) Switch(to model.Protocol) {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return
	}
	m.current = to
	m.mu.Unlock()

	m.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("protocol switched")
	if m.onSwitch != nil {
		m.onSwitch(from, to)
	}
}

// Summary exposes the latest derived metrics for a protocol.
func (m *Manager) Summary(p model.Protocol) Summary {
	m.mu.RLock()
	rm := m.metrics[p]
	m.mu.RUnlock()
	if rm == nil {
		return Summary{}
	}
	return rm.Recompute()
}

func score(s Summary) float64 {
	if s.SampleCount == 0 {
		return 0
	}
	latencyScore := inverse(s.AvgEncodeMs)
	throughputScore := normalize(s.ThroughputBytesPS, 10_000_000)
	sizeScore := inverse(s.CompressionRatio * 1000)
	errorScore := 1 - s.ErrorRate

	return weightLatency*latencyScore + weightThroughput*throughputScore + weightSize*sizeScore + weightError*errorScore
}

func inverse(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return 1 / (1 + v)
}

func normalize(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	n := v / scale
	if n > 1 {
		n = 1
	}
	return n
}

func msToFloat(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
