// Package alert implements the alert pipeline of spec §4.K: an
// immediate-vs-batched outbound decision with adaptive batch sizing,
// a pending-acknowledgment map with retry/backoff, serialized
// sync-on-reconnect, and routing for alerts received from mission
// control.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// SendBatch delivers a batch of alerts to the wire.
type SendBatch func(alerts []model.Alert) error

// SendAck delivers one acknowledgment to the wire.
type SendAck func(ack model.Acknowledgment) error

// SyncFunc performs the wire-level sync round trip.
type SyncFunc func(req model.SyncRequest) (model.SyncResponse, error)

// Config controls batching, retry, and sync behavior (spec §4.K, §6).
type Config struct {
	DefaultBatchSize    int
	LowLatencyThreshold time.Duration
	HighLatencyThreshold time.Duration
	BatchTimeout        time.Duration
	MaxRetries          int
	BaseRetryDelay      time.Duration
	AutoAcknowledgeInfo bool
	ResyncOnReconnect   bool
}

// LatencyProvider reports the connection's current average latency,
// used to pick the immediate-vs-batched path and the adaptive batch size.
type LatencyProvider func() time.Duration

// Pipeline is the alert send/ack/sync/receive state machine.
type Pipeline struct {
	mu sync.Mutex

	cfg     Config
	log     zerolog.Logger
	latency LatencyProvider

	sendBatch SendBatch
	sendAck   SendAck
	sync      SyncFunc

	batch       []model.Alert
	batchOpenedAt time.Time
	batchTimer  *time.Timer

	pendingAcks map[string]model.Acknowledgment
	acked       map[string]bool

	syncing          bool
	connectionLossAt *time.Time

	onAlertReceived func(model.Alert)
	onAckFailed     func(model.Acknowledgment, error)

	now func() time.Time
}

func New(log zerolog.Logger, cfg Config, latency LatencyProvider, sendBatch SendBatch, sendAck SendAck, sync SyncFunc) *Pipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 10
	}
	return &Pipeline{
		cfg:         cfg,
		log:         log,
		latency:     latency,
		sendBatch:   sendBatch,
		sendAck:     sendAck,
		sync:        sync,
		pendingAcks: make(map[string]model.Acknowledgment),
		acked:       make(map[string]bool),
		now:         time.Now,
	}
}

func (p *Pipeline) OnAlertReceived(fn func(model.Alert))                    { p.onAlertReceived = fn }
func (p *Pipeline) OnAckFailed(fn func(model.Acknowledgment, error))        { p.onAckFailed = fn }

// currentBatchSize implements spec §4.K's adaptive rule: "halves under
// lowLatency, doubles under highLatency, else default."
func (p *Pipeline) currentBatchSize() int {
	lat := p.latency()
	switch {
	case lat < p.cfg.LowLatencyThreshold:
		size := p.cfg.DefaultBatchSize / 2
		if size < 1 {
			size = 1
		}
		return size
	case lat > p.cfg.HighLatencyThreshold:
		return p.cfg.DefaultBatchSize * 2
	default:
		return p.cfg.DefaultBatchSize
	}
}

// SendAlert decides immediate vs batched delivery (spec §4.K).
func (p *Pipeline) SendAlert(data model.AlertData, priority model.AlertPriority) error {
	alert := model.Alert{
		ID:        uuid.NewString(),
		Kind:      model.AlertNew,
		Priority:  priority,
		Timestamp: p.now(),
		Data:      data,
	}

	p.mu.Lock()
	immediate := priority == model.AlertCritical ||
		(len(p.batch) == 0 && p.latency() < p.cfg.LowLatencyThreshold)
	p.mu.Unlock()

	if immediate {
		return p.dispatch([]model.Alert{alert})
	}

	p.mu.Lock()
	if len(p.batch) == 0 {
		p.batchOpenedAt = p.now()
		p.armBatchTimerLocked()
	}
	p.batch = append(p.batch, alert)
	full := len(p.batch) >= p.currentBatchSize()
	p.mu.Unlock()

	if full {
		p.flushBatch()
	}
	return nil
}

func (p *Pipeline) armBatchTimerLocked() {
	if p.batchTimer != nil {
		p.batchTimer.Stop()
	}
	p.batchTimer = time.AfterFunc(p.cfg.BatchTimeout, p.flushBatch)
}

// flushBatch dispatches the pending batch, re-prepending on failure
// and retrying with exponential backoff (spec §4.K).
func (p *Pipeline) flushBatch() {
	p.mu.Lock()
	if len(p.batch) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.batch
	p.batch = nil
	if p.batchTimer != nil {
		p.batchTimer.Stop()
		p.batchTimer = nil
	}
	p.mu.Unlock()

	if err := p.dispatch(batch); err != nil {
		p.retryBatch(batch, 0)
	}
}

func (p *Pipeline) retryBatch(batch []model.Alert, attempt int) {
	if attempt >= p.cfg.MaxRetries {
		p.log.Error().Int("size", len(batch)).Msg("alert batch dropped after max retries")
		return
	}

	p.mu.Lock()
	p.batch = append(batch, p.batch...)
	p.mu.Unlock()

	delay := p.cfg.BaseRetryDelay * time.Duration(1<<uint(attempt))
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		pending := p.batch
		p.batch = nil
		p.mu.Unlock()

		if len(pending) == 0 {
			return
		}
		if err := p.dispatch(pending); err != nil {
			p.retryBatch(pending, attempt+1)
		}
	})
}

func (p *Pipeline) dispatch(alerts []model.Alert) error {
	if err := p.sendBatch(alerts); err != nil {
		return clienterr.Wrap(clienterr.Connection, "alert_send", err)
	}
	return nil
}

// Acknowledge optimistically marks an alert acked locally and enqueues
// it for server confirmation with retry on failure (spec §4.K).
func (p *Pipeline) Acknowledge(alertID, ackedBy string) {
	ack := model.Acknowledgment{AlertID: alertID, AcknowledgedBy: ackedBy, AcknowledgedAt: p.now()}

	p.mu.Lock()
	p.acked[alertID] = true
	p.pendingAcks[alertID] = ack
	p.mu.Unlock()

	p.sendAckWithRetry(ack, 0)
}

func (p *Pipeline) sendAckWithRetry(ack model.Acknowledgment, attempt int) {
	err := p.sendAck(ack)
	if err == nil {
		p.mu.Lock()
		delete(p.pendingAcks, ack.AlertID)
		p.mu.Unlock()
		return
	}

	if attempt >= p.cfg.MaxRetries {
		if p.onAckFailed != nil {
			p.onAckFailed(ack, err)
		}
		return
	}

	delay := p.cfg.BaseRetryDelay * time.Duration(1<<uint(attempt))
	time.AfterFunc(delay, func() { p.sendAckWithRetry(ack, attempt+1) })
}

// ApplyRemoteAck records an acknowledgment that arrived from mission
// control rather than from a local Acknowledge call (another client
// acked the same alert, or this is confirmation of our own), without
// re-entering the local retry path (spec §4.K: acks sync across
// clients).
func (p *Pipeline) ApplyRemoteAck(ack model.Acknowledgment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acked[ack.AlertID] = true
	delete(p.pendingAcks, ack.AlertID)
}

// IsAcknowledged reports the local optimistic ack state.
func (p *Pipeline) IsAcknowledged(alertID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acked[alertID]
}

// PendingAcknowledgments returns every ack still unconfirmed, for
// replay on reconnect (spec §4.K).
func (p *Pipeline) PendingAcknowledgments() []model.Acknowledgment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Acknowledgment, 0, len(p.pendingAcks))
	for _, a := range p.pendingAcks {
		out = append(out, a)
	}
	return out
}

// SyncAlerts serializes sync requests: a second call while one is in
// flight is rejected (spec §4.K: "one in flight at a time").
func (p *Pipeline) SyncAlerts(req model.SyncRequest) (model.SyncResponse, error) {
	p.mu.Lock()
	if p.syncing {
		p.mu.Unlock()
		return model.SyncResponse{}, clienterr.New(clienterr.Connection, "sync_in_progress", true,
			clienterr.Context{Operation: "sync_alerts"}, nil)
	}
	p.syncing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.syncing = false
		p.mu.Unlock()
	}()

	resp, err := p.sync(req)
	if err != nil {
		return model.SyncResponse{}, clienterr.Wrap(clienterr.Connection, "sync_alerts", err)
	}
	return resp, nil
}

// ReconnectResync implements spec §4.K's reconnect sequencing: record
// connectionLossTime once, sync from it, replay pending acks, clear
// connectionLossTime.
func (p *Pipeline) ReconnectResync() error {
	if !p.cfg.ResyncOnReconnect {
		return nil
	}

	p.mu.Lock()
	if p.connectionLossAt == nil {
		now := p.now()
		p.connectionLossAt = &now
	}
	lossTime := *p.connectionLossAt
	p.mu.Unlock()

	_, err := p.SyncAlerts(model.SyncRequest{LastSyncTimestamp: lossTime})
	if err != nil {
		return err
	}

	for _, ack := range p.PendingAcknowledgments() {
		p.sendAckWithRetry(ack, 0)
	}

	p.mu.Lock()
	p.connectionLossAt = nil
	p.mu.Unlock()
	return nil
}

// NotifyDisconnected records the loss time so ReconnectResync can sync
// from the right point even if it runs later.
func (p *Pipeline) NotifyDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectionLossAt == nil {
		now := p.now()
		p.connectionLossAt = &now
	}
}

// ReceiveAlert routes an inbound alert: auto-acks info priority,
// updates the local acknowledged set, and emits alert-received (spec §4.K).
func (p *Pipeline) ReceiveAlert(a model.Alert) {
	if p.cfg.AutoAcknowledgeInfo && a.Priority == model.AlertInfo {
		p.Acknowledge(a.ID, "auto")
	}
	if a.Data.Acknowledged {
		p.mu.Lock()
		p.acked[a.ID] = true
		p.mu.Unlock()
	}
	if p.onAlertReceived != nil {
		p.onAlertReceived(a)
	}
}
