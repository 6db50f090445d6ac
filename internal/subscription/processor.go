package subscription

import (
	"sync"
	"time"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// rateWindow is the length of the fixed window RateHz is counted over.
// RateHz is recomputed when a point arrives after the window has
// elapsed, and counting then restarts; the window does not slide.
const rateWindow = 10 * time.Second

// ProcessorStats is the per-subscription ingestion counter set (spec §4.J).
type ProcessorStats struct {
	TotalReceived int
	TotalStored   int
	TotalDropped  int
	RateHz        float64
	EMAQuality    float64
}

// Processor enforces a numeric stream's min/max bounds, applies
// decimation, tracks stats, and (when not paused) hands surviving points
// onward via OnData.
type Processor struct {
	mu sync.Mutex

	cfg model.StreamConfig

	paused bool

	decimationCounter int
	stats             ProcessorStats

	windowStart time.Time
	windowCount int

	onData func(model.DataPoint)
	now    func() time.Time
}

func NewProcessor(cfg model.StreamConfig) *Processor {
	return &Processor{cfg: cfg, now: time.Now}
}

func (p *Processor) OnData(fn func(model.DataPoint)) { p.onData = fn }

func (p *Processor) Pause()  { p.mu.Lock(); p.paused = true; p.mu.Unlock() }
func (p *Processor) Resume() { p.mu.Lock(); p.paused = false; p.mu.Unlock() }
func (p *Processor) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Ingest drops points outside MinValue/MaxValue, applies decimation
// (accept 1 in N), and updates stats (spec §4.J). Bounds are checked
// only on numeric streams whose value is a float64; the declared data
// type and dimensions are not checked.
func (p *Processor) Ingest(dp model.DataPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalReceived++
	p.bumpRateLocked()
	p.bumpQualityLocked(dp.Quality)

	if p.paused {
		p.stats.TotalDropped++
		return
	}

	if !p.withinBoundsLocked(dp) {
		p.stats.TotalDropped++
		return
	}

	factor := p.cfg.DecimationFactor
	if factor < 1 {
		factor = 1
	}
	p.decimationCounter++
	if p.decimationCounter%factor != 0 {
		p.stats.TotalDropped++
		return
	}

	p.stats.TotalStored++
	if p.onData != nil {
		p.onData(dp)
	}
}

func (p *Processor) withinBoundsLocked(dp model.DataPoint) bool {
	if p.cfg.DataType != model.DataNumeric {
		return true
	}
	v, ok := dp.Value.(float64)
	if !ok {
		return true
	}
	if p.cfg.MinValue != nil && v < *p.cfg.MinValue {
		return false
	}
	if p.cfg.MaxValue != nil && v > *p.cfg.MaxValue {
		return false
	}
	return true
}

func (p *Processor) bumpRateLocked() {
	now := p.now()
	if p.windowStart.IsZero() {
		p.windowStart = now
	}
	p.windowCount++
	if elapsed := now.Sub(p.windowStart); elapsed >= rateWindow {
		p.stats.RateHz = float64(p.windowCount) / elapsed.Seconds()
		p.windowStart = now
		p.windowCount = 0
	}
}

func (p *Processor) bumpQualityLocked(q *float64) {
	if q == nil {
		return
	}
	if p.stats.EMAQuality == 0 {
		p.stats.EMAQuality = *q
	} else {
		p.stats.EMAQuality = 0.1**q + 0.9*p.stats.EMAQuality
	}
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
