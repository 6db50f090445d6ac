// Package connection implements the connection state machine of spec
// §4.D: transitions, metrics, subscription inventory, and
// token-refresh scheduling.
package connection

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// latencyEMAAlpha is the smoothing factor for average latency (spec §4.D).
const latencyEMAAlpha = 0.1

// allowedTransitions enumerates spec §4.D's state machine. A
// transition not listed here is rejected.
var allowedTransitions = map[model.ConnState]map[model.ConnState]bool{
	model.StateDisconnected: {model.StateConnecting: true},
	model.StateConnecting: {
		model.StateConnected: true,
		model.StateError:     true,
	},
	model.StateConnected: {
		model.StateAuthenticated: true,
		model.StateError:         true,
		model.StateDisconnected:  true,
		model.StateReconnecting:  true,
	},
	model.StateAuthenticated: {
		model.StateActive:       true,
		model.StateIdle:         true,
		model.StateDisconnected: true,
		model.StateReconnecting: true,
		model.StateError:        true,
	},
	model.StateActive: {
		model.StateIdle:         true,
		model.StateDisconnected: true,
		model.StateReconnecting: true,
		model.StateError:        true,
	},
	model.StateIdle: {
		model.StateActive:       true,
		model.StateDisconnected: true,
		model.StateReconnecting: true,
		model.StateError:        true,
	},
	model.StateReconnecting: {
		model.StateConnecting:   true,
		model.StateConnected:    true,
		model.StateError:        true,
		model.StateDisconnected: true,
	},
	model.StateError: {
		model.StateDisconnected: true,
	},
}

// TokenRefreshHook is invoked tokenRefreshThreshold before expiry.
type TokenRefreshHook func() error

// AuthData holds the latest auth exchange result.
type AuthData struct {
	Token     string
	ExpiresAt time.Time
}

// Machine is the connection state machine (spec §4.D).
type Machine struct {
	mu sync.Mutex

	state   model.ConnState
	prev    model.ConnState
	metrics model.ConnMetrics

	subscriptions map[string]bool // insertion-ordered via subOrder
	subOrder      []string

	auth                  *AuthData
	tokenRefreshThreshold time.Duration
	tokenRefreshHook      TokenRefreshHook
	refreshTimer          *time.Timer

	authenticatedSinceConnect bool

	onTransition func(from, to model.ConnState)
	log          zerolog.Logger
}

func New(log zerolog.Logger, tokenRefreshThreshold time.Duration) *Machine {
	return &Machine{
		state:                 model.StateDisconnected,
		subscriptions:         make(map[string]bool),
		tokenRefreshThreshold: tokenRefreshThreshold,
		log:                   log,
	}
}

// OnTransition registers a callback fired synchronously at transition time.
func (m *Machine) OnTransition(fn func(from, to model.ConnState)) { m.onTransition = fn }

// State returns the current state.
func (m *Machine) State() model.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition attempts to move to `to`, validating against the
// allowed-transition table. Transitions are totally ordered: this call
// holds the lock for its full duration, including the callback, so two
// concurrent transitions cannot interleave.
func (m *Machine) Transition(to model.ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !allowedTransitions[from][to] {
		return clienterr.New(clienterr.Connection, "invalid_transition", false,
			clienterr.Context{State: string(from), Operation: fmt.Sprintf("-> %s", to)}, nil)
	}

	m.applyStateEffectsLocked(from, to)

	m.prev = from
	m.state = to

	m.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("connection state transition")

	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return nil
}

func (m *Machine) applyStateEffectsLocked(from, to model.ConnState) {
	switch to {
	case model.StateConnecting:
		m.authenticatedSinceConnect = false
	case model.StateConnected:
		m.metrics.ConnectCount++
		m.metrics.ConnectedAt = time.Now()
	case model.StateAuthenticated:
		m.authenticatedSinceConnect = true
	case model.StateReconnecting:
		m.metrics.ReconnectAttempts++
	case model.StateError:
		m.metrics.ErrorCount++
	case model.StateDisconnected:
		m.authenticatedSinceConnect = false
		m.cancelRefreshTimerLocked()
	}
}

// IsAuthenticated reports whether a successful auth exchange occurred
// after the current connected transition, with no intervening
// disconnection (spec §8 invariant 9).
func (m *Machine) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedSinceConnect
}

// RecordLatency folds a new latency sample into the EMA (spec §4.D, α=0.1).
func (m *Machine) RecordLatency(sampleMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.CurrentLatencyMs = sampleMs
	if m.metrics.AverageLatencyMs == 0 {
		m.metrics.AverageLatencyMs = sampleMs
		return
	}
	m.metrics.AverageLatencyMs = latencyEMAAlpha*sampleMs + (1-latencyEMAAlpha)*m.metrics.AverageLatencyMs
}

// AddSubscription records a stream as part of the session's inventory.
func (m *Machine) AddSubscription(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscriptions[streamID] {
		m.subscriptions[streamID] = true
		m.subOrder = append(m.subOrder, streamID)
	}
}

// RemoveSubscription drops a stream from the inventory.
func (m *Machine) RemoveSubscription(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, streamID)
	for i, id := range m.subOrder {
		if id == streamID {
			m.subOrder = append(m.subOrder[:i], m.subOrder[i+1:]...)
			break
		}
	}
}

// Subscriptions returns the inventory in insertion order (spec S5:
// replays happen "one per prior stream, in subscription-insertion order").
func (m *Machine) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subOrder...)
}

// SetAuth records a fresh auth exchange and schedules token refresh.
func (m *Machine) SetAuth(auth AuthData, hook TokenRefreshHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auth = &auth
	m.tokenRefreshHook = hook
	m.scheduleRefreshLocked()
}

func (m *Machine) scheduleRefreshLocked() {
	m.cancelRefreshTimerLocked()
	if m.auth == nil || m.tokenRefreshHook == nil {
		return
	}

	fireAt := m.auth.ExpiresAt.Add(-m.tokenRefreshThreshold)
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	m.refreshTimer = time.AfterFunc(delay, func() {
		if err := m.tokenRefreshHook(); err != nil {
			m.log.Error().Err(err).Msg("token refresh failed")
		}
	})
}

func (m *Machine) cancelRefreshTimerLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

// Status returns a point-in-time snapshot (spec §3 "Connection status").
func (m *Machine) Status(negotiated model.Protocol, queue model.QueueSummary) model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.ConnectionStatus{
		State:              m.state,
		Metrics:            m.metrics,
		Subscriptions:      append([]string(nil), m.subOrder...),
		Queue:              queue,
		NegotiatedProtocol: negotiated,
	}
}

// Destroy cancels any pending refresh timer. Idempotent.
func (m *Machine) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRefreshTimerLocked()
}
