package buffer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/resource"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

// Governor is the subset of *resource.Governor the buffer manager
// needs for aggregate memory backpressure (spec §5).
type Governor interface {
	OverMemoryLimit() bool
}

var _ Governor = (*resource.Governor)(nil)

// Manager owns every stream's Buffer and applies aggregate
// memory backpressure across them.
type Manager struct {
	mu      sync.RWMutex
	log     zerolog.Logger
	store   storage.Store
	streams map[string]*Buffer
	gov     Governor

	onFlush  func(FlushEvent)
	onHealth func(streamID string, score int, issues []string)
}

func NewManager(log zerolog.Logger, store storage.Store, gov Governor) *Manager {
	return &Manager{
		log:     log,
		store:   store,
		streams: make(map[string]*Buffer),
		gov:     gov,
	}
}

func (m *Manager) OnFlush(fn func(FlushEvent))                             { m.onFlush = fn }
func (m *Manager) OnHealthWarning(fn func(streamID string, score int, issues []string)) { m.onHealth = fn }

// CreateBuffer instantiates (or replaces) a stream's buffer.
func (m *Manager) CreateBuffer(cfg model.BufferConfig) *Buffer {
	b := NewBuffer(m.log, cfg, m.store)
	b.OnFlush(func(e FlushEvent) {
		if m.onFlush != nil {
			m.onFlush(e)
		}
	})
	b.OnHealthWarning(func(score int, issues []string) {
		if m.onHealth != nil {
			m.onHealth(cfg.StreamID, score, issues)
		}
	})

	m.mu.Lock()
	m.streams[cfg.StreamID] = b
	m.mu.Unlock()
	return b
}

// Buffer returns the named stream's buffer, if any.
func (m *Manager) Buffer(streamID string) (*Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.streams[streamID]
	return b, ok
}

// Push routes a data point to its stream's buffer, refusing ingestion
// across every stream when the process is over its aggregate memory
// limit (spec §5's resource-governor backpressure signal).
func (m *Manager) Push(streamID string, dp model.DataPoint, dataRateHz float64) (PushResult, error) {
	if m.gov != nil && m.gov.OverMemoryLimit() {
		return PushResult{}, clienterr.New(clienterr.Buffer, "memory_limit_exceeded", true,
			clienterr.Context{StreamID: streamID, Operation: "push"}, nil)
	}

	b, ok := m.Buffer(streamID)
	if !ok {
		return PushResult{}, clienterr.New(clienterr.Buffer, "unknown_stream", false,
			clienterr.Context{StreamID: streamID, Operation: "push"}, nil)
	}
	return b.Push(dp, dataRateHz), nil
}

// DestroyBuffer persists (if enabled) and removes a stream's buffer.
func (m *Manager) DestroyBuffer(streamID string) error {
	m.mu.Lock()
	b, ok := m.streams[streamID]
	delete(m.streams, streamID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return b.DestroyBuffer()
}

// NotifyConnectionState fans a connection transition out to every
// stream's CONNECTION_STATE flush trigger (spec §4.I).
func (m *Manager) NotifyConnectionState() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.streams {
		b.NotifyConnectionState()
	}
}

// PersistAll snapshots every persistence-enabled stream, for use on
// disconnect (spec §4.I).
func (m *Manager) PersistAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.streams {
		if err := b.Persist(); err != nil {
			m.log.Warn().Err(err).Msg("buffer persist failed")
		}
	}
}

// RunStatistics recomputes statistics for every stream on interval
// until stop is closed (spec §4.I: "updated each statisticsInterval").
func (m *Manager) RunStatistics(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.RLock()
			buffers := make([]*Buffer, 0, len(m.streams))
			for _, b := range m.streams {
				buffers = append(buffers, b)
			}
			m.mu.RUnlock()
			for _, b := range buffers {
				b.CheckHealth()
			}
		}
	}
}

// Recommendations gathers every stream's current optimization proposal.
func (m *Manager) Recommendations() []Recommendation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []Recommendation
	for _, b := range m.streams {
		if r := b.Recommend(); r != nil {
			recs = append(recs, *r)
		}
	}
	return recs
}
