package model

import "time"

// ConnState is the connection state machine's current state (spec §3, §4.D).
type ConnState string

const (
	StateDisconnected  ConnState = "disconnected"
	StateConnecting    ConnState = "connecting"
	StateConnected     ConnState = "connected"
	StateAuthenticated ConnState = "authenticated"
	StateReconnecting  ConnState = "reconnecting"
	StateError         ConnState = "error"
	StateIdle          ConnState = "idle"
	StateActive        ConnState = "active"
)

// ConnMetrics accumulates connection-lifetime counters and latencies.
type ConnMetrics struct {
	ConnectCount      int
	ReconnectAttempts int
	ErrorCount        int
	ConnectedAt       time.Time
	CurrentLatencyMs  float64
	AverageLatencyMs  float64
}

// QueueSummary is a point-in-time snapshot of the outbound queue.
type QueueSummary struct {
	Size        int
	HighWater   bool
	Backpressure bool
}

// ConnectionStatus is the snapshot spec §3 describes.
type ConnectionStatus struct {
	State             ConnState
	Metrics           ConnMetrics
	Subscriptions     []string
	Queue             QueueSummary
	NegotiatedProtocol Protocol
}
