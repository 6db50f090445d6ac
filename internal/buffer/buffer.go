// Package buffer implements the per-stream telemetry buffer manager of
// spec §4.I: a time-windowed circular buffer with pluggable overflow
// strategies, independent flush triggers, rolling statistics, a health
// score, persistence across disconnects, and optimization
// recommendations.
//
// The circular buffer's head/tail slot layout is grounded on the
// teacher's lock-free pkg/websocket/ring_buffer.go, generalized from
// atomic []byte slots to a mutex-guarded slice of typed DataPoint
// (spec §5: the client is single-threaded/cooperative, so the
// lock-free machinery buys nothing here). Persistence's evict-oldest,
// serialize-before-store shape is grounded on src/replay_buffer.go.
package buffer

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

// persistedFreshnessCap discards a restored snapshot older than this
// (spec §4.I: "older than 1 hour is discarded on restore").
const persistedFreshnessCap = time.Hour

const rollingTimingSamples = 100

// PushResult reports what happened to an incoming point.
type PushResult struct {
	Overflow bool
	Evicted  *model.DataPoint
}

// FlushEvent is the atomic drain payload spec §4.I describes.
type FlushEvent struct {
	StreamID         string
	Trigger          model.FlushTrigger
	Data             []model.DataPoint
	Statistics       Statistics
	FlushDurationMs  float64
	Timestamp        time.Time
}

// Statistics is the per-stream rolling report (spec §4.I).
type Statistics struct {
	Size               int
	Capacity           int
	Utilization        float64
	TotalReceived      int
	TotalStored        int
	TotalDropped       int
	TotalFlushed       int
	OverflowCounts     map[model.OverflowStrategy]int
	InsertAvgMicros    float64
	RetrieveAvgMicros  float64
	DataRateHz         float64
	EMAQuality         float64
	QualityHistogram   [10]int
	OldestTimestamp    int64
	NewestTimestamp    int64
	TimeSpanMs         int64
	Errors             int
	HealthScore        int
}

// Recommendation is an optimization proposal for a stream's BufferConfig.
type Recommendation struct {
	StreamID   string
	Proposed   model.BufferConfig
	Reason     string
	Impact     string // low | medium | high
	Confidence float64
}

// AutoApply reports whether this recommendation clears spec §4.I's bar:
// "confidence>0.7 AND impact≠low".
func (r Recommendation) AutoApply() bool {
	return r.Confidence > 0.7 && r.Impact != "low"
}

// Buffer is one stream's circular buffer plus bookkeeping.
type Buffer struct {
	mu sync.Mutex

	cfg      model.BufferConfig
	capacity int

	slots []model.DataPoint
	head  int // next write index
	count int

	downsampleCounter int

	stats            Statistics
	insertTimings    []float64
	retrieveTimings  []float64
	emaQuality       float64
	rateWindowStart  time.Time
	rateWindowCount  int

	flushTimer *time.Timer
	statsTimer *time.Timer

	store storage.Store
	log   zerolog.Logger

	onFlush  func(FlushEvent)
	onHealth func(score int, issues []string)

	now func() time.Time
}

func capacityOf(cfg model.BufferConfig) int {
	if cfg.MaxDataPoints > 0 {
		return cfg.MaxDataPoints
	}
	if cfg.WindowSizeMs > 0 {
		c := (cfg.WindowSizeMs + 9) / 10
		if c < 1 {
			c = 1
		}
		return c
	}
	return 1
}

// NewBuffer constructs a stream buffer and, if persistence is enabled,
// restores any snapshot left from a prior session (spec §4.I: "Restore
// runs once at buffer creation").
func NewBuffer(log zerolog.Logger, cfg model.BufferConfig, store storage.Store) *Buffer {
	capacity := capacityOf(cfg)
	b := &Buffer{
		cfg:      cfg,
		capacity: capacity,
		slots:    make([]model.DataPoint, capacity),
		store:    store,
		log:      log,
		now:      time.Now,
		stats:    Statistics{Capacity: capacity, OverflowCounts: make(map[model.OverflowStrategy]int)},
	}
	if cfg.EnablePersistence && store != nil {
		b.restore()
	}
	if cfg.HasTrigger(model.FlushTimeInterval) && cfg.FlushIntervalMs > 0 {
		b.armFlushTimer()
	}
	return b
}

func (b *Buffer) OnFlush(fn func(FlushEvent))              { b.onFlush = fn }
func (b *Buffer) OnHealthWarning(fn func(int, []string))   { b.onHealth = fn }

// Push ingests one data point, applying the configured overflow
// strategy (spec §4.I).
func (b *Buffer) Push(dp model.DataPoint, dataRateHz float64) PushResult {
	start := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalReceived++
	b.rateWindowCount++
	b.bumpQualityLocked(dp.Quality)

	if !b.admitLocked(dp, dataRateHz) {
		b.stats.TotalDropped++
		b.stats.OverflowCounts[b.cfg.OverflowStrategy]++
		return PushResult{Overflow: true}
	}

	var evicted *model.DataPoint
	full := b.count >= b.capacity
	if full {
		old := b.slots[b.head]
		evicted = &old
	}

	b.slots[b.head] = dp
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
	b.stats.TotalStored++

	b.recordTimingLocked(&b.insertTimings, b.now().Sub(start))

	if b.cfg.HasTrigger(model.FlushBufferFull) && b.count >= b.capacity {
		go b.Flush(model.FlushBufferFull)
	}
	if b.cfg.HasTrigger(model.FlushDataCount) && b.cfg.FlushDataCount > 0 && b.count >= b.cfg.FlushDataCount {
		go b.Flush(model.FlushDataCount)
	}
	if b.cfg.HasTrigger(model.FlushQualityThreshold) && b.emaQuality < b.cfg.QualityThreshold && b.emaQuality > 0 {
		go b.Flush(model.FlushQualityThreshold)
	}

	return PushResult{Overflow: full, Evicted: evicted}
}

// admitLocked applies the overflow strategy's admission rule. Returns
// false to drop the incoming point without storing it.
func (b *Buffer) admitLocked(dp model.DataPoint, dataRateHz float64) bool {
	full := b.count >= b.capacity
	switch b.cfg.OverflowStrategy {
	case model.OverflowFIFO, model.OverflowDropOldest:
		return true
	case model.OverflowDropNewest:
		return !full
	case model.OverflowDownsample:
		factor := b.cfg.DownsampleFactor
		if factor < 1 {
			factor = 1
		}
		b.downsampleCounter++
		return b.downsampleCounter%factor == 0
	case model.OverflowPriorityBased:
		if dp.Quality == nil {
			return false
		}
		return *dp.Quality >= b.cfg.QualityThreshold
	case model.OverflowAdaptive:
		quality := 1.0
		if dp.Quality != nil {
			quality = *dp.Quality
		}
		utilization := float64(b.count) / float64(b.capacity)
		if quality > 0.7 {
			return true
		}
		blocked := utilization > 0.8 && quality < 0.5 && dataRateHz > adaptiveRateThreshold
		return !blocked
	default:
		return true
	}
}

// adaptiveRateThreshold is the data-rate gate ADAPTIVE admission
// compares against alongside utilization and quality (spec §4.I).
const adaptiveRateThreshold = 0

func (b *Buffer) bumpQualityLocked(q *float64) {
	if q == nil {
		return
	}
	if b.emaQuality == 0 {
		b.emaQuality = *q
	} else {
		b.emaQuality = 0.1**q + 0.9*b.emaQuality
	}
	bin := int(*q * 10)
	if bin > 9 {
		bin = 9
	}
	if bin < 0 {
		bin = 0
	}
	b.stats.QualityHistogram[bin]++
}

func (b *Buffer) recordTimingLocked(samples *[]float64, d time.Duration) {
	*samples = append(*samples, float64(d.Microseconds()))
	if len(*samples) > rollingTimingSamples {
		*samples = (*samples)[len(*samples)-rollingTimingSamples:]
	}
}

// Read returns entries newer than now-windowSizeMs, oldest first (spec §4.I).
func (b *Buffer) Read() []model.DataPoint {
	start := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.orderedLocked()
	if b.cfg.WindowSizeMs <= 0 {
		b.recordTimingLocked(&b.retrieveTimings, b.now().Sub(start))
		return all
	}

	cutoff := b.now().Add(-time.Duration(b.cfg.WindowSizeMs) * time.Millisecond).UnixMilli()
	var out []model.DataPoint
	for _, dp := range all {
		if dp.Timestamp >= cutoff {
			out = append(out, dp)
		}
	}
	b.recordTimingLocked(&b.retrieveTimings, b.now().Sub(start))
	return out
}

func (b *Buffer) orderedLocked() []model.DataPoint {
	if b.count == 0 {
		return nil
	}
	out := make([]model.DataPoint, 0, b.count)
	start := (b.head - b.count + b.capacity) % b.capacity
	for i := 0; i < b.count; i++ {
		out = append(out, b.slots[(start+i)%b.capacity])
	}
	return out
}

// Flush atomically drains the buffer into a FlushEvent and clears it
// (spec §4.I).
func (b *Buffer) Flush(trigger model.FlushTrigger) FlushEvent {
	start := b.now()
	b.mu.Lock()
	data := b.orderedLocked()
	sort.SliceStable(data, func(i, j int) bool { return data[i].Timestamp < data[j].Timestamp })
	b.head, b.count = 0, 0
	b.stats.TotalFlushed += len(data)
	snapshot := b.recomputeStatsLocked()
	b.mu.Unlock()

	event := FlushEvent{
		StreamID:        b.cfg.StreamID,
		Trigger:         trigger,
		Data:            data,
		Statistics:      snapshot,
		FlushDurationMs: float64(b.now().Sub(start).Microseconds()) / 1000,
		Timestamp:       b.now(),
	}
	if b.onFlush != nil {
		b.onFlush(event)
	}
	return event
}

// NotifyConnectionState triggers a CONNECTION_STATE flush if configured.
func (b *Buffer) NotifyConnectionState() {
	if b.cfg.HasTrigger(model.FlushConnectionState) {
		b.Flush(model.FlushConnectionState)
	}
}

func (b *Buffer) armFlushTimer() {
	b.flushTimer = time.AfterFunc(time.Duration(b.cfg.FlushIntervalMs)*time.Millisecond, func() {
		b.Flush(model.FlushTimeInterval)
		b.armFlushTimer()
	})
}

// RecomputeStatistics refreshes and returns the stats snapshot (spec
// §4.I: "updated each statisticsInterval").
func (b *Buffer) RecomputeStatistics() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recomputeStatsLocked()
}

func (b *Buffer) recomputeStatsLocked() Statistics {
	b.stats.Size = b.count
	b.stats.Capacity = b.capacity
	if b.capacity > 0 {
		b.stats.Utilization = float64(b.count) / float64(b.capacity)
	}
	b.stats.InsertAvgMicros = average(b.insertTimings)
	b.stats.RetrieveAvgMicros = average(b.retrieveTimings)
	b.stats.EMAQuality = b.emaQuality

	if b.count > 0 {
		ordered := b.orderedLocked()
		b.stats.OldestTimestamp = ordered[0].Timestamp
		b.stats.NewestTimestamp = ordered[len(ordered)-1].Timestamp
		b.stats.TimeSpanMs = b.stats.NewestTimestamp - b.stats.OldestTimestamp
	}

	now := b.now()
	if b.rateWindowStart.IsZero() {
		b.rateWindowStart = now
	}
	elapsed := now.Sub(b.rateWindowStart).Seconds()
	if elapsed >= 1 {
		b.stats.DataRateHz = float64(b.rateWindowCount) / elapsed
		b.rateWindowStart = now
		b.rateWindowCount = 0
	}

	b.stats.HealthScore, _ = healthScore(b.stats)
	return b.stats
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// healthScore implements spec §4.I's deterministic scoring formula.
func healthScore(s Statistics) (int, []string) {
	score := 100
	var issues []string

	if s.Utilization > 0.9 {
		score -= 20
		issues = append(issues, "utilization above 90%")
	} else if s.Utilization > 0.8 {
		score -= 10
		issues = append(issues, "utilization above 80%")
	}

	totalOverflows := 0
	for _, c := range s.OverflowCounts {
		totalOverflows += c
	}
	if totalOverflows > 10 {
		score -= 15
		issues = append(issues, "overflow count above 10")
	} else if totalOverflows > 5 {
		score -= 8
		issues = append(issues, "overflow count above 5")
	}

	if s.EMAQuality < 0.5 && s.EMAQuality > 0 {
		score -= 25
		issues = append(issues, "average quality below 0.5")
	} else if s.EMAQuality < 0.7 && s.EMAQuality > 0 {
		score -= 10
		issues = append(issues, "average quality below 0.7")
	}

	errPenalty := 2 * s.Errors
	if errPenalty > 20 {
		errPenalty = 20
	}
	score -= errPenalty
	if s.Errors > 0 {
		issues = append(issues, "errors recorded")
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

// CheckHealth evaluates the current stats and fires OnHealthWarning if
// the score drops below 70 (spec §4.I).
func (b *Buffer) CheckHealth() {
	stats := b.RecomputeStatistics()
	if stats.HealthScore < 70 && b.onHealth != nil {
		_, issues := healthScore(stats)
		b.onHealth(stats.HealthScore, issues)
	}
}

// Recommend proposes a BufferConfig change per spec §4.I's rule set.
func (b *Buffer) Recommend() *Recommendation {
	stats := b.RecomputeStatistics()
	proposed := b.cfg

	totalOverflows := 0
	for _, c := range stats.OverflowCounts {
		totalOverflows += c
	}

	switch {
	case totalOverflows > 20:
		proposed.WindowSizeMs = int(float64(proposed.WindowSizeMs) * 1.5)
		return &Recommendation{StreamID: b.cfg.StreamID, Proposed: proposed, Reason: "overflow count above 20", Impact: "medium", Confidence: 0.8}
	case stats.Utilization > 0.95:
		proposed.MaxDataPoints = int(float64(capacityOf(proposed)) * 1.2)
		return &Recommendation{StreamID: b.cfg.StreamID, Proposed: proposed, Reason: "utilization above 95%", Impact: "high", Confidence: 0.85}
	case stats.DataRateHz > 100 && proposed.WindowSizeMs < 200:
		proposed.WindowSizeMs = 200
		proposed.OverflowStrategy = model.OverflowDownsample
		proposed.DownsampleFactor = 2
		return &Recommendation{StreamID: b.cfg.StreamID, Proposed: proposed, Reason: "high data rate with narrow window", Impact: "medium", Confidence: 0.75}
	case stats.EMAQuality > 0 && stats.EMAQuality < 0.6 && proposed.OverflowStrategy != model.OverflowPriorityBased:
		proposed.OverflowStrategy = model.OverflowPriorityBased
		proposed.QualityThreshold = 0.7
		return &Recommendation{StreamID: b.cfg.StreamID, Proposed: proposed, Reason: "sustained low quality", Impact: "medium", Confidence: 0.72}
	}
	return nil
}

// persistedSnapshot is the on-disk representation (spec §4.I persistence).
type persistedSnapshot struct {
	SavedAt time.Time          `json:"savedAt"`
	Data    []model.DataPoint `json:"data"`
}

// Persist snapshots the current window to offline storage (spec §4.I:
// "destroyBuffer and disconnection paths snapshot the current window").
func (b *Buffer) Persist() error {
	if b.store == nil || !b.cfg.EnablePersistence {
		return nil
	}
	b.mu.Lock()
	data := b.orderedLocked()
	b.mu.Unlock()

	payload, err := json.Marshal(persistedSnapshot{SavedAt: b.now(), Data: data})
	if err != nil {
		return clienterr.Wrap(clienterr.Buffer, "persist_marshal", err)
	}
	if err := b.store.Save(b.persistenceKey(), payload); err != nil {
		return clienterr.Wrap(clienterr.Buffer, "persist_save", err)
	}
	return nil
}

func (b *Buffer) persistenceKey() string { return "buffer:" + b.cfg.StreamID }

func (b *Buffer) restore() {
	raw, ok, err := b.store.Load(b.persistenceKey())
	if err != nil || !ok {
		return
	}
	var snap persistedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		b.log.Warn().Err(err).Str("stream", b.cfg.StreamID).Msg("buffer snapshot corrupt, discarding")
		return
	}
	if b.now().Sub(snap.SavedAt) > persistedFreshnessCap {
		return
	}
	for _, dp := range snap.Data {
		b.Push(dp, 0)
	}
}

// DestroyBuffer persists (if enabled) and releases timers. Idempotent.
func (b *Buffer) DestroyBuffer() error {
	err := b.Persist()
	b.mu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if b.statsTimer != nil {
		b.statsTimer.Stop()
		b.statsTimer = nil
	}
	b.mu.Unlock()
	return err
}
