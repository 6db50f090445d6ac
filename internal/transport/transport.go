// Package transport implements spec §4.G: a primary duplex transport
// (websocket) with an HTTP long-poll fallback, quality scoring, and
// forced switching between the two.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
)

// Kind identifies which transport is currently active.
type Kind string

const (
	Primary  Kind = "primary"
	Fallback Kind = "fallback"
)

// Quality is the label spec §4.G assigns from rolling latency/error rate.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// reprobeBudget is the budget for the periodic primary-availability check
// (spec §4.G: "a short-lived test connection with a 3 s budget").
const reprobeBudget = 3 * time.Second

// Metrics is the per-transport rolling metric set (spec §4.G).
type Metrics struct {
	Messages        uint64
	Bytes           uint64
	Errors          uint64
	AvgLatencyMs    float64
	AvgBandwidthBps float64
	CompressionSavedBytes uint64
}

func (m *Metrics) errorRate() float64 {
	if m.Messages == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Messages)
}

func (m *Metrics) quality() Quality {
	errPct := m.errorRate() * 100
	switch {
	case m.AvgLatencyMs < 50 && errPct < 1:
		return QualityExcellent
	case m.AvgLatencyMs < 150 && errPct < 5:
		return QualityGood
	case m.AvgLatencyMs < 300 && errPct < 10:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Dialer opens the primary duplex connection.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// Poller implements the long-poll fallback's two HTTP legs.
type Poller interface {
	Send(ctx context.Context, sessionID string, payload []byte) error
	Poll(ctx context.Context, sessionID string, timeout time.Duration) ([][]byte, error)
	Handshake(ctx context.Context) (sessionID string, err error)
}

// Transport multiplexes primary/fallback delivery behind a single
// Send/receive surface, auto-switching per spec §4.G.
type Transport struct {
	mu sync.Mutex

	url       string
	dial      Dialer
	poller    Poller
	log       zerolog.Logger

	active    Kind
	conn      *websocket.Conn
	sessionID string

	metrics map[Kind]*Metrics

	onMessage func(Kind, []byte)
	onSwitch  func(from, to Kind, reason string)
	onStatus  func(Kind, Quality)

	stopReprobe chan struct{}
	httpClient  *http.Client
}

func New(log zerolog.Logger, url string, dial Dialer, poller Poller) *Transport {
	return &Transport{
		url:    url,
		dial:   dial,
		poller: poller,
		log:    log,
		active: Primary,
		metrics: map[Kind]*Metrics{
			Primary:  {},
			Fallback: {},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Transport) OnMessage(fn func(Kind, []byte))               { t.onMessage = fn }
func (t *Transport) OnSwitch(fn func(from, to Kind, reason string)) { t.onSwitch = fn }
func (t *Transport) OnStatus(fn func(Kind, Quality))                { t.onStatus = fn }

// Active reports which transport is currently serving traffic.
func (t *Transport) Active() Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Metrics returns a copy of the named transport's rolling metrics.
func (t *Transport) Metrics(kind Kind) Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.metrics[kind]
}

// Connect opens the primary transport and starts its read pump.
func (t *Transport) Connect(ctx context.Context) error {
	conn, err := t.dial(ctx, t.url)
	if err != nil {
		return clienterr.Wrap(clienterr.Connection, "transport_connect", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.active = Primary
	t.mu.Unlock()

	go t.readPump(conn)
	return nil
}

func (t *Transport) readPump(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			isCurrent := t.conn == conn
			t.mu.Unlock()
			if isCurrent {
				t.recordError(Primary)
				t.switchTo(Fallback, "primary read error")
			}
			return
		}
		t.recordMessage(Primary, len(message), 0)
		if t.onMessage != nil {
			t.onMessage(Primary, message)
		}
	}
}

// Send writes payload via whichever transport is active.
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	kind := t.active
	conn := t.conn
	session := t.sessionID
	t.mu.Unlock()

	start := time.Now()
	var err error
	switch kind {
	case Primary:
		if conn == nil {
			return clienterr.New(clienterr.Transport, "not_connected", true, clienterr.Context{Operation: "send"}, nil)
		}
		err = conn.WriteMessage(websocket.BinaryMessage, payload)
	case Fallback:
		err = t.poller.Send(ctx, session, payload)
	}

	latency := time.Since(start)
	if err != nil {
		t.recordError(kind)
		return clienterr.Wrap(clienterr.Transport, "send", err)
	}
	t.recordMessage(kind, len(payload), latency)
	return nil
}

func (t *Transport) recordMessage(kind Kind, bytes int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics[kind]
	m.Messages++
	m.Bytes += uint64(bytes)
	if latency > 0 {
		ms := float64(latency.Milliseconds())
		if m.AvgLatencyMs == 0 {
			m.AvgLatencyMs = ms
		} else {
			m.AvgLatencyMs = 0.2*ms + 0.8*m.AvgLatencyMs
		}
	}
	quality := m.quality()
	if t.onStatus != nil {
		t.onStatus(kind, quality)
	}
	if kind == t.active && quality == QualityPoor {
		go t.switchTo(oppositeOf(kind), "sustained poor quality")
	}
}

func (t *Transport) recordError(kind Kind) {
	t.mu.Lock()
	t.metrics[kind].Errors++
	t.mu.Unlock()
}

func oppositeOf(k Kind) Kind {
	if k == Primary {
		return Fallback
	}
	return Primary
}

// switchTo moves active delivery to `to`, establishing the fallback
// session handshake the first time it is used, and begins re-probing
// the opposite transport for recovery.
func (t *Transport) switchTo(to Kind, reason string) {
	t.mu.Lock()
	from := t.active
	if from == to {
		t.mu.Unlock()
		return
	}
	t.active = to
	t.mu.Unlock()

	if to == Fallback {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		session, err := t.poller.Handshake(ctx)
		cancel()
		if err != nil {
			t.log.Error().Err(err).Msg("fallback handshake failed")
		} else {
			t.mu.Lock()
			t.sessionID = session
			t.mu.Unlock()
			go t.pollLoop()
		}
	}

	t.log.Warn().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("transport switched")
	if t.onSwitch != nil {
		t.onSwitch(from, to, reason)
	}

	if to == Fallback {
		t.startReprobe()
	}
}

func (t *Transport) pollLoop() {
	for {
		t.mu.Lock()
		active := t.active
		session := t.sessionID
		t.mu.Unlock()
		if active != Fallback {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		msgs, err := t.poller.Poll(ctx, session, 30*time.Second)
		cancel()
		if err != nil {
			t.recordError(Fallback)
			continue
		}
		for _, msg := range msgs {
			t.recordMessage(Fallback, len(msg), 0)
			if t.onMessage != nil {
				t.onMessage(Fallback, msg)
			}
		}
	}
}

// startReprobe periodically attempts a short-lived primary connection
// and switches back on success (spec §4.G).
func (t *Transport) startReprobe() {
	t.mu.Lock()
	if t.stopReprobe != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.stopReprobe = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				stillFallback := t.active == Fallback
				t.mu.Unlock()
				if !stillFallback {
					t.mu.Lock()
					t.stopReprobe = nil
					t.mu.Unlock()
					return
				}

				ctx, cancel := context.WithTimeout(context.Background(), reprobeBudget)
				conn, err := t.dial(ctx, t.url)
				cancel()
				if err != nil {
					continue
				}

				t.mu.Lock()
				t.conn = conn
				t.stopReprobe = nil
				t.mu.Unlock()
				go t.readPump(conn)
				t.switchTo(Primary, "primary reprobe succeeded")
				return
			}
		}
	}()
}

// Close tears down whichever transport is active. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	stop := t.stopReprobe
	t.conn = nil
	t.stopReprobe = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
