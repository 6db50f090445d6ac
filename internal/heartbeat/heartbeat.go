// Package heartbeat implements the liveness probe of spec §4.E: a
// periodic ping/reply exchange that raises healthy/unhealthy/timeout
// events for the connection state machine to act on.
package heartbeat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Heartbeat wire payload (spec §3): `{timestamp, clientTime, serverTime, latency, sequence}`.
type Heartbeat struct {
	Timestamp  int64
	ClientTime int64
	ServerTime int64
	Latency    time.Duration
	Sequence   uint64
}

// Sender transmits a probe. The monitor does not know how probes are
// framed on the wire; that is the transport/serializer's job.
type Sender func(seq uint64, clientTime int64) error

// Config controls probe cadence and miss tolerance (spec §4.E, §6).
type Config struct {
	Interval     time.Duration
	Timeout      time.Duration
	MaxMissed    int // default 3
}

// Monitor sends a probe at Interval and expects a reply within Timeout.
// After MaxMissed consecutive misses it fires OnUnhealthy once; a
// subsequent reply fires OnHealthy once. A probe that never replies
// within Timeout also fires OnTimeout for that specific exchange.
type Monitor struct {
	mu sync.Mutex

	cfg Config
	log zerolog.Logger

	send Sender

	seq          uint64
	pending      map[uint64]time.Time
	missed       int
	unhealthy    bool
	lastLatency  time.Duration

	ticker    *time.Ticker
	stopCh    chan struct{}
	running   bool

	onUnhealthy func()
	onHealthy   func()
	onTimeout   func()
	onLatency   func(time.Duration)

	now func() time.Time
}

func New(log zerolog.Logger, cfg Config, send Sender) *Monitor {
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = 3
	}
	return &Monitor{
		cfg:     cfg,
		log:     log,
		send:    send,
		pending: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

func (m *Monitor) OnUnhealthy(fn func())          { m.onUnhealthy = fn }
func (m *Monitor) OnHealthy(fn func())            { m.onHealthy = fn }
func (m *Monitor) OnTimeout(fn func())            { m.onTimeout = fn }
func (m *Monitor) OnLatencySample(fn func(time.Duration)) { m.onLatency = fn }

// Start begins the periodic probe loop. Calling Start while already
// running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ticker = time.NewTicker(m.cfg.Interval)
	m.stopCh = make(chan struct{})
	ticker := m.ticker
	stop := m.stopCh
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				m.probe()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the probe loop. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
}

func (m *Monitor) probe() {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	sentAt := m.now()
	m.pending[seq] = sentAt
	timeout := m.cfg.Timeout
	m.mu.Unlock()

	if err := m.send(seq, sentAt.UnixMilli()); err != nil {
		m.log.Warn().Err(err).Uint64("seq", seq).Msg("heartbeat send failed")
		m.recordMiss(seq)
		return
	}

	time.AfterFunc(timeout, func() { m.checkTimeout(seq) })
}

func (m *Monitor) checkTimeout(seq uint64) {
	m.mu.Lock()
	_, stillPending := m.pending[seq]
	if stillPending {
		delete(m.pending, seq)
	}
	m.mu.Unlock()

	if stillPending {
		if m.onTimeout != nil {
			m.onTimeout()
		}
		m.recordMiss(seq)
	}
}

func (m *Monitor) recordMiss(seq uint64) {
	m.mu.Lock()
	m.missed++
	becameUnhealthy := !m.unhealthy && m.missed >= m.cfg.MaxMissed
	if becameUnhealthy {
		m.unhealthy = true
	}
	m.mu.Unlock()

	if becameUnhealthy && m.onUnhealthy != nil {
		m.onUnhealthy()
	}
}

// Reply is delivered by the transport layer when a heartbeat reply
// message arrives, matched by sequence.
func (m *Monitor) Reply(hb Heartbeat) {
	m.mu.Lock()
	sentAt, ok := m.pending[hb.Sequence]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, hb.Sequence)

	latency := m.now().Sub(sentAt)
	m.lastLatency = latency
	m.missed = 0
	wasUnhealthy := m.unhealthy
	m.unhealthy = false
	m.mu.Unlock()

	if m.onLatency != nil {
		m.onLatency(latency)
	}
	if wasUnhealthy && m.onHealthy != nil {
		m.onHealthy()
	}
}

// LastLatency returns the most recently observed round-trip latency.
func (m *Monitor) LastLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLatency
}

// Unhealthy reports the current health signal.
func (m *Monitor) Unhealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unhealthy
}
