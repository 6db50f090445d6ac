// Package client assembles every component (spec §4.A-K) behind the
// single facade surface of spec §4.L: Connect/Disconnect/Reconnect/
// SendMessage plus subscription and alert management, grounded on
// go-server/pkg/websocket.Client wiring its hub, connection, and
// metrics together behind one constructor.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/alert"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/auth"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/buffer"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/config"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/connection"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/eventbus"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/heartbeat"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/metrics"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/protocol"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/queue"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/reconnect"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/resource"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/serialize"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/subscription"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/transport"
)

// HandshakeResult is what AuthFunc returns after the wire-level
// auth exchange completes.
type HandshakeResult struct {
	Token      string
	ServerCaps protocol.Capabilities
}

// AuthFunc performs the wire-level authentication exchange once the
// transport is connected. The facade never assumes a concrete wire
// shape for this exchange; it delegates it entirely, the same way
// internal/subscription.Manager delegates the wire-subscribe command.
type AuthFunc func(ctx context.Context) (HandshakeResult, error)

// Options configures a Client.
type Options struct {
	Config     config.Config
	Log        zerolog.Logger
	Dial       transport.Dialer
	Poller     transport.Poller
	Auth       AuthFunc
	ClientCaps protocol.Capabilities
	SubCaps    subscription.Capabilities
	Store      storage.Store
}

// Client is the assembled facade over components A-K (spec §4.L).
type Client struct {
	log zerolog.Logger
	cfg config.Config

	bus        *eventbus.Bus
	conn       *connection.Machine
	transport  *transport.Transport
	heartbeat  *heartbeat.Monitor
	reconnect  *reconnect.Scheduler
	protocol   *protocol.Manager
	queueMgr   *queue.Queue
	bufferMgr  *buffer.Manager
	subMgr     *subscription.Manager
	alertPipe  *alert.Pipeline
	governor   *resource.Governor
	metrics    *metrics.Metrics

	authFn AuthFunc

	mu           sync.Mutex
	manualClose  bool
	subRequests  map[string]subscription.SubscribeRequest
	queueCtx     context.Context
	queueCancel  context.CancelFunc
	statsStop    chan struct{}
	govStop      chan struct{}

	pendingSyncMu sync.Mutex
	pendingSync   map[string]chan model.SyncResponse
}

// New builds every component and wires their callbacks together, but
// does not connect (spec §4.L: construction and connection are
// separate steps).
func New(opts Options) *Client {
	log := opts.Log
	store := opts.Store
	if store == nil {
		store = storage.NewMemory()
	}

	bus := eventbus.New(log, 0)
	gov := resource.New(opts.Config.Buffering.MemoryLimitBytes)
	met := metrics.New()

	registry := serialize.NewRegistry()
	compressor := serialize.NewCompressor(opts.Config.Alerts.CompressionThreshold)
	clientCaps := opts.ClientCaps
	if clientCaps.MaxMessageSize == 0 {
		clientCaps.MaxMessageSize = gov.MaxMessageSize()
	}
	protoMgr := protocol.NewManager(registry, compressor, clientCaps, log)

	connMgr := connection.New(log, opts.Config.Auth.TokenRefreshThreshold)

	c := &Client{
		log:         log,
		cfg:         opts.Config,
		bus:         bus,
		conn:        connMgr,
		protocol:    protoMgr,
		governor:    gov,
		metrics:     met,
		authFn:      opts.Auth,
		subRequests: make(map[string]subscription.SubscribeRequest),
		pendingSync: make(map[string]chan model.SyncResponse),
	}

	c.transport = transport.New(log, opts.Config.Connection.URL, opts.Dial, opts.Poller)
	c.transport.OnMessage(c.handleWireMessage)
	c.transport.OnSwitch(func(from, to transport.Kind, reason string) {
		log.Info().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("transport switched")
	})

	c.heartbeat = heartbeat.New(log, heartbeat.Config{
		Interval:  opts.Config.Connection.HeartbeatInterval,
		Timeout:   opts.Config.Connection.HeartbeatTimeout,
		MaxMissed: 3,
	}, c.sendHeartbeatProbe)
	c.heartbeat.OnUnhealthy(func() { bus.Emit("heartbeat:unhealthy", nil) })
	c.heartbeat.OnHealthy(func() { bus.Emit("heartbeat:healthy", nil) })
	c.heartbeat.OnTimeout(func() { bus.Emit("heartbeat:timeout", nil) })
	c.heartbeat.OnLatencySample(func(d time.Duration) { connMgr.RecordLatency(float64(d.Milliseconds())) })

	c.reconnect = reconnect.NewScheduler(reconnect.Config{
		Strategy:                reconnect.Strategy(opts.Config.Reconnect.Strategy),
		BaseDelay:               opts.Config.Reconnect.BaseDelay,
		MaxDelay:                opts.Config.Reconnect.MaxDelay,
		MaxAttempts:             opts.Config.Reconnect.MaxAttempts,
		Factor:                  opts.Config.Reconnect.Factor,
		JitterType:              reconnect.JitterType(opts.Config.Reconnect.JitterType),
		JitterFactor:            opts.Config.Reconnect.JitterFactor,
		ResetTimeout:            opts.Config.Reconnect.ResetTimeout,
		CircuitBreakerThreshold: opts.Config.Reconnect.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   opts.Config.Reconnect.CircuitBreakerTimeout,
	}, nil)

	c.queueMgr = queue.New(log, queue.Config{
		MaxSize:        opts.Config.Queue.MaxSize,
		BaseDelay:      100 * time.Millisecond,
		HighWaterMark:  opts.Config.Queue.MaxSize * 8 / 10,
		LowWaterMark:   opts.Config.Queue.MaxSize * 5 / 10,
		PersistenceKey: "outbound-queue",
	}, store, c.deliverQueued)
	c.queueMgr.OnDropped(func(m model.QueuedMessage, reason string) {
		c.metrics.QueueDropped.WithLabelValues(reason).Inc()
	})
	c.queueMgr.OnUpdate(func() {
		c.metrics.QueueSize.Set(float64(c.queueMgr.Stats().Size))
	})

	c.bufferMgr = buffer.NewManager(log, store, gov)
	c.bufferMgr.OnFlush(func(ev buffer.FlushEvent) {
		bus.Emit("buffer:flush", ev)
	})
	c.bufferMgr.OnHealthWarning(func(streamID string, score int, issues []string) {
		bus.Emit("buffer:health_warning", map[string]any{"streamID": streamID, "score": score, "issues": issues})
	})

	c.subMgr = subscription.NewManager(log, opts.SubCaps, c.wireSubscribe, c.wireUnsubscribe, c.wireRenew)
	c.subMgr.OnStateChange(func(streamID string, from, to model.SubState) {
		bus.Emit("subscription:state", map[string]any{"streamID": streamID, "from": from, "to": to})
	})
	c.subMgr.OnData(func(streamID string, dp model.DataPoint) {
		if b, ok := c.bufferMgr.Buffer(streamID); ok {
			b.Push(dp, 0)
		}
	})

	c.alertPipe = alert.New(log, alert.Config{
		DefaultBatchSize:     opts.Config.Alerts.BatchSize,
		LowLatencyThreshold:  opts.Config.Alerts.LowLatencyThreshold,
		HighLatencyThreshold: opts.Config.Alerts.HighLatencyThreshold,
		BatchTimeout:         opts.Config.Alerts.BatchTimeout,
		MaxRetries:           opts.Config.Alerts.MaxRetries,
		BaseRetryDelay:       time.Duration(opts.Config.Alerts.RetryBackoffMs) * time.Millisecond,
		AutoAcknowledgeInfo:  opts.Config.Alerts.AutoAcknowledgeInfo,
		ResyncOnReconnect:    opts.Config.Alerts.ResyncOnReconnect,
	}, c.currentLatency, c.sendAlertBatch, c.sendAlertAck, c.syncAlertsWire)
	c.alertPipe.OnAlertReceived(func(a model.Alert) { bus.Emit("alert:received", a) })

	connMgr.OnTransition(func(from, to model.ConnState) {
		c.metrics.SetConnectionState(string(to), []string{
			string(model.StateDisconnected), string(model.StateConnecting), string(model.StateConnected),
			string(model.StateAuthenticated), string(model.StateActive), string(model.StateIdle),
			string(model.StateReconnecting), string(model.StateError),
		})
		bus.Emit("connection:state", map[string]any{"from": from, "to": to})
		c.bufferMgr.NotifyConnectionState()
	})

	return c
}

// Bus exposes the event stream for application-level subscribers.
func (c *Client) Bus() *eventbus.Bus { return c.bus }

// Metrics exposes the client's Prometheus collector set, for mounting
// behind an HTTP handler (e.g. promhttp.HandlerFor).
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// Status returns a point-in-time connection snapshot (spec §3).
func (c *Client) Status() model.ConnectionStatus {
	return c.conn.Status(c.protocol.Current(model.MessageTelemetry), c.queueMgr.Stats())
}

// Connect implements spec §4.L's connect sequence: transition to
// connecting, open the transport, authenticate, negotiate the
// protocol, start the heartbeat, and resume outbound delivery.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.manualClose = false
	c.mu.Unlock()

	c.metrics.ConnectAttempts.Inc()

	if err := c.conn.Transition(model.StateConnecting); err != nil {
		return err
	}
	if err := c.transport.Connect(ctx); err != nil {
		c.conn.Transition(model.StateError)
		return clienterr.Wrap(clienterr.Connection, "connect", err)
	}
	if err := c.conn.Transition(model.StateConnected); err != nil {
		return err
	}

	if c.authFn != nil {
		result, err := c.authFn(ctx)
		if err != nil {
			c.conn.Transition(model.StateError)
			return clienterr.Wrap(clienterr.Authentication, "handshake", err)
		}
		claims, perr := auth.Parse(result.Token)
		if perr == nil {
			c.conn.SetAuth(connection.AuthData{Token: result.Token, ExpiresAt: claims.ExpiresAt}, c.refreshToken)
		}
		c.protocol.Negotiate(result.ServerCaps)
		if err := c.conn.Transition(model.StateAuthenticated); err != nil {
			return err
		}
	}

	if err := c.conn.Transition(model.StateActive); err != nil {
		return err
	}

	c.metrics.ConnectSuccesses.Inc()
	c.reconnect.RecordSuccess()

	c.heartbeat.Start()

	c.mu.Lock()
	c.queueCtx, c.queueCancel = context.WithCancel(context.Background())
	c.mu.Unlock()
	go c.queueMgr.ProcessQueue(c.queueCtx, func() bool {
		return c.conn.State() == model.StateActive || c.conn.State() == model.StateIdle
	})

	c.govStop = make(chan struct{})
	go c.governor.Run(30*time.Second, c.govStop)

	c.statsStop = make(chan struct{})
	if c.cfg.Buffering.EnableStatistics {
		go c.bufferMgr.RunStatistics(c.cfg.Buffering.StatisticsInterval, c.statsStop)
	}

	c.replaySubscriptions()
	if err := c.alertPipe.ReconnectResync(); err != nil {
		c.log.Warn().Err(err).Msg("alert resync failed after connect")
	}

	c.bus.Emit("client:connected", nil)
	return nil
}

// Disconnect implements spec §4.L's disconnect sequence: mark manual,
// stop the heartbeat, close the transport, stop the queue, persist
// buffer and alert state.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualClose = true
	c.mu.Unlock()

	c.heartbeat.Stop()
	c.reconnect.Cancel()
	c.queueMgr.StopProcessing()
	if c.queueCancel != nil {
		c.queueCancel()
	}
	if c.govStop != nil {
		close(c.govStop)
		c.govStop = nil
	}
	if c.statsStop != nil {
		close(c.statsStop)
		c.statsStop = nil
	}

	if err := c.queueMgr.Snapshot(); err != nil {
		c.log.Warn().Err(err).Msg("queue snapshot failed on disconnect")
	}
	c.bufferMgr.PersistAll()
	c.alertPipe.NotifyDisconnected()

	err := c.transport.Close()
	c.conn.Transition(model.StateDisconnected)
	c.bus.Emit("client:disconnected", nil)
	return err
}

// Reconnect implements spec §4.F/§4.L's reconnection path: schedule a
// retry through the circuit breaker and re-run Connect on fire.
func (c *Client) Reconnect(ctx context.Context) {
	c.mu.Lock()
	manual := c.manualClose
	c.mu.Unlock()
	if manual {
		return
	}

	c.conn.Transition(model.StateReconnecting)
	c.metrics.ReconnectAttempts.Inc()

	ok := c.reconnect.Schedule(func() {
		if err := c.Connect(ctx); err != nil {
			c.reconnect.RecordFailure()
			c.log.Warn().Err(err).Msg("reconnect attempt failed")
			c.Reconnect(ctx)
		}
	})
	if !ok {
		c.log.Error().Msg("reconnection exhausted or circuit open")
		c.bus.Emit("client:reconnect_exhausted", nil)
	}
}

// SendMessage enqueues an outbound message for priority-ordered,
// retried delivery (spec §4.H routed through §4.L).
func (c *Client) SendMessage(msgType model.MessageType, payload any, priority model.Priority) (string, error) {
	return c.queueMgr.Enqueue(msgType, payload, priority)
}

// Subscribe creates a telemetry subscription and its backing buffer
// (spec §4.I, §4.J wired together).
func (c *Client) Subscribe(req subscription.SubscribeRequest, bufCfg model.BufferConfig) (*model.Subscription, error) {
	sub, _, err := c.subMgr.Subscribe(req)
	if err != nil {
		return nil, err
	}

	c.conn.AddSubscription(req.StreamID)
	c.mu.Lock()
	c.subRequests[req.StreamID] = req
	c.mu.Unlock()

	bufCfg.StreamID = req.StreamID
	c.bufferMgr.CreateBuffer(bufCfg)

	return sub, nil
}

// Unsubscribe tears down a stream's subscription and buffer.
func (c *Client) Unsubscribe(streamID string) error {
	if err := c.subMgr.Unsubscribe(streamID); err != nil {
		return err
	}
	c.conn.RemoveSubscription(streamID)
	c.mu.Lock()
	delete(c.subRequests, streamID)
	c.mu.Unlock()
	return c.bufferMgr.DestroyBuffer(streamID)
}

// SendAlert dispatches an alert through the outbound alert pipeline
// (spec §4.K).
func (c *Client) SendAlert(data model.AlertData, priority model.AlertPriority) error {
	c.metrics.AlertsSent.Inc()
	return c.alertPipe.SendAlert(data, priority)
}

// AcknowledgeAlert marks an alert acknowledged, locally and on the wire.
func (c *Client) AcknowledgeAlert(alertID, ackedBy string) {
	c.alertPipe.Acknowledge(alertID, ackedBy)
	c.metrics.AlertsAcknowledged.Inc()
}

// Destroy tears everything down. Idempotent.
func (c *Client) Destroy() {
	c.Disconnect()
	c.bus.Clear()
}

// replaySubscriptions re-issues the wire-subscribe command for every
// tracked stream, in the order the connection recorded them (spec
// §4.L: "restore subscriptions in subscription-insertion order").
func (c *Client) replaySubscriptions() {
	c.mu.Lock()
	reqs := make([]subscription.SubscribeRequest, 0, len(c.subRequests))
	for _, streamID := range c.conn.Subscriptions() {
		if req, ok := c.subRequests[streamID]; ok {
			reqs = append(reqs, req)
		}
	}
	c.mu.Unlock()

	for _, req := range reqs {
		if _, err := c.wireSubscribe(req); err != nil {
			c.log.Warn().Err(err).Str("stream", req.StreamID).Msg("subscription replay failed")
		}
	}
}

func (c *Client) refreshToken() error {
	if c.authFn == nil {
		return nil
	}
	result, err := c.authFn(context.Background())
	if err != nil {
		return err
	}
	claims, perr := auth.Parse(result.Token)
	if perr != nil {
		return perr
	}
	c.conn.SetAuth(connection.AuthData{Token: result.Token, ExpiresAt: claims.ExpiresAt}, c.refreshToken)
	return nil
}

func (c *Client) currentLatency() time.Duration {
	return c.heartbeat.LastLatency()
}

// wireSubscribe sends a subscribe command over the wire. It is the
// WireSubscribe callback subscription.Manager invokes, and is also
// reused directly by replaySubscriptions.
func (c *Client) wireSubscribe(req subscription.SubscribeRequest) (string, error) {
	wireSubID := uuid.NewString()
	_, err := c.sendEnvelope(model.MessageCommand, map[string]any{
		"command":  "subscribe",
		"streamID": req.StreamID,
		"wireSubID": wireSubID,
		"config":   req.Config,
	}, model.PriorityHigh)
	return wireSubID, err
}

func (c *Client) wireUnsubscribe(wireSubID string) error {
	_, err := c.sendEnvelope(model.MessageCommand, map[string]any{
		"command":   "unsubscribe",
		"wireSubID": wireSubID,
	}, model.PriorityHigh)
	return err
}

func (c *Client) wireRenew(streamID string) error {
	_, err := c.sendEnvelope(model.MessageCommand, map[string]any{
		"command":  "renew",
		"streamID": streamID,
	}, model.PriorityNormal)
	return err
}

func (c *Client) sendAlertBatch(alerts []model.Alert) error {
	_, err := c.sendEnvelope(model.MessageAlertBatch, alerts, model.PriorityHigh)
	return err
}

func (c *Client) sendAlertAck(ack model.Acknowledgment) error {
	_, err := c.sendEnvelope(model.MessageAlertAck, ack, model.PriorityNormal)
	return err
}

// syncAlertsWire sends an alert_sync request and blocks until
// handleWireMessage routes the matching alert_sync response back
// through the pending-sync correlation map, or the acknowledgment
// timeout elapses (spec §4.K's sync round trip).
func (c *Client) syncAlertsWire(req model.SyncRequest) (model.SyncResponse, error) {
	requestID := uuid.NewString()
	req.RequestID = requestID

	respCh := make(chan model.SyncResponse, 1)
	c.pendingSyncMu.Lock()
	c.pendingSync[requestID] = respCh
	c.pendingSyncMu.Unlock()
	defer func() {
		c.pendingSyncMu.Lock()
		delete(c.pendingSync, requestID)
		c.pendingSyncMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Alerts.AcknowledgmentTimeout)
	defer cancel()

	msg := &model.Message{
		ID: uuid.NewString(), Type: model.MessageAlertSync, Payload: req, Timestamp: model.NowMillis(),
	}
	encoded, err := c.protocol.Encode(msg, c.cfg.Connection.Compression, serialize.CompressionGzip)
	if err != nil {
		return model.SyncResponse{}, err
	}
	if err := c.transport.Send(ctx, encoded); err != nil {
		return model.SyncResponse{}, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		return model.SyncResponse{}, clienterr.New(clienterr.Connection, "alert_sync_timeout", true,
			clienterr.Context{Operation: "sync_alerts"}, ctx.Err())
	}
}

// resolveSyncResponse delivers an inbound alert_sync response to the
// goroutine blocked in syncAlertsWire for the matching RequestID, if
// any is still waiting.
func (c *Client) resolveSyncResponse(resp model.SyncResponse) {
	c.pendingSyncMu.Lock()
	ch, ok := c.pendingSync[resp.RequestID]
	if ok {
		delete(c.pendingSync, resp.RequestID)
	}
	c.pendingSyncMu.Unlock()
	if ok {
		ch <- resp
	}
}

// sendEnvelope is the synchronous direct-send path used for control
// messages (subscribe/unsubscribe/renew/alerts) that bypass the
// outbound queue because they must reach the wire immediately or not
// at all (the queue is for application telemetry/commands).
func (c *Client) sendEnvelope(msgType model.MessageType, payload any, priority model.Priority) (string, error) {
	id := uuid.NewString()
	msg := &model.Message{ID: id, Type: msgType, Payload: payload, Timestamp: model.NowMillis(), Priority: &priority}
	encoded, err := c.protocol.Encode(msg, c.cfg.Connection.Compression, serialize.CompressionGzip)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Connection.Timeout)
	defer cancel()
	if err := c.transport.Send(ctx, encoded); err != nil {
		return "", err
	}
	c.metrics.MessagesSent.Inc()
	c.metrics.MessageSize.Observe(float64(len(encoded)))
	return id, nil
}

// deliverQueued is the queue.SendFunc: encode and send one queued
// application message.
func (c *Client) deliverQueued(ctx context.Context, qm model.QueuedMessage) error {
	msg := &model.Message{ID: qm.ID, Type: qm.Type, Payload: qm.Payload, Timestamp: model.NowMillis()}
	encoded, err := c.protocol.Encode(msg, c.cfg.Connection.Compression, serialize.CompressionGzip)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, encoded); err != nil {
		return err
	}
	c.metrics.MessagesSent.Inc()
	c.metrics.MessageSize.Observe(float64(len(encoded)))
	return nil
}

// sendHeartbeatProbe is the heartbeat.Sender: probes bypass the queue
// and the protocol manager's current-protocol selection uses the
// heartbeat message type, which callers may pin via SetTypeHint.
func (c *Client) sendHeartbeatProbe(seq uint64, clientTime int64) error {
	_, err := c.sendEnvelope(model.MessageHeartbeat, heartbeat.Heartbeat{
		ClientTime: clientTime,
		Sequence:   seq,
	}, model.PriorityHigh)
	return err
}

// handleWireMessage routes one inbound frame: decode, then dispatch by
// message type (spec §4.L's receive path).
func (c *Client) handleWireMessage(kind transport.Kind, payload []byte) {
	proto := c.protocol.Current(model.MessageTelemetry)
	msg, err := c.protocol.Decode(proto, payload, false, serialize.CompressionGzip)
	if err != nil {
		c.metrics.ErrorsByKind.WithLabelValues(string(clienterr.Protocol)).Inc()
		c.log.Warn().Err(err).Msg("failed to decode inbound message")
		return
	}
	c.metrics.MessagesReceived.Inc()

	switch msg.Type {
	case model.MessageHeartbeat:
		var hb heartbeat.Heartbeat
		if decodePayload(msg.Payload, &hb) {
			c.heartbeat.Reply(hb)
		}
	case model.MessageTelemetry:
		var envelope struct {
			StreamID string         `json:"streamID"`
			Point    model.DataPoint `json:"point"`
		}
		if decodePayload(msg.Payload, &envelope) {
			c.subMgr.Ingest(envelope.StreamID, envelope.Point)
		}
	case model.MessageAlert:
		var a model.Alert
		if decodePayload(msg.Payload, &a) {
			c.alertPipe.ReceiveAlert(a)
		}
	case model.MessageAlertSync:
		var resp model.SyncResponse
		if decodePayload(msg.Payload, &resp) {
			c.resolveSyncResponse(resp)
		}
	case model.MessageAlertAck:
		var ack model.Acknowledgment
		if decodePayload(msg.Payload, &ack) {
			c.alertPipe.ApplyRemoteAck(ack)
		}
	case model.MessageAlertBatch:
		var alerts []model.Alert
		if decodePayload(msg.Payload, &alerts) {
			for _, a := range alerts {
				c.alertPipe.ReceiveAlert(a)
			}
		}
	case model.MessageStatus, model.MessageNotification:
		c.bus.Emit("message:"+string(msg.Type), msg.Payload)
	case model.MessageError:
		c.bus.Emit("message:error", msg.Payload)
	}
}

// decodePayload re-marshals a generically-decoded payload (a
// map[string]any for every serializer in this package) into a
// concrete type. This costs one extra JSON round trip per inbound
// message but keeps every serializer ignorant of application payload
// shapes, matching spec §4.B's envelope/payload separation.
func decodePayload(payload any, out any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
