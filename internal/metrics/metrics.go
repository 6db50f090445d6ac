// Package metrics exposes the client's Prometheus surface, grounded on
// go-server/internal/metrics.Metrics's counter/gauge/histogram set,
// retargeted from server-side connection counts to client-side
// connection, message, queue, and buffer telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the client's Prometheus collector set. Unlike the
// teacher's server (one process, one global registry), a program may
// run several client instances, so each Metrics owns its own
// *prometheus.Registry rather than registering into the default one.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectAttempts  prometheus.Counter
	ConnectSuccesses prometheus.Counter
	ReconnectAttempts prometheus.Counter
	ConnectionState  *prometheus.GaugeVec

	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram
	MessageSize      prometheus.Histogram

	QueueSize        prometheus.Gauge
	QueueDropped     *prometheus.CounterVec
	BufferUtilization *prometheus.GaugeVec
	BufferOverflow   *prometheus.CounterVec

	AlertsSent          prometheus.Counter
	AlertsAcknowledged  prometheus.Counter

	ErrorsByKind *prometheus.CounterVec
}

// New builds a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_connect_attempts_total",
			Help: "Total connection attempts.",
		}),
		ConnectSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_connect_successes_total",
			Help: "Total successful connections.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_reconnect_attempts_total",
			Help: "Total reconnection attempts scheduled.",
		}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemetry_client_connection_state",
			Help: "1 for the currently active connection state, 0 otherwise.",
		}, []string{"state"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_messages_sent_total",
			Help: "Total messages sent over any transport.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_messages_received_total",
			Help: "Total messages received over any transport.",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_client_message_latency_seconds",
			Help:    "Round-trip latency observed per message.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		MessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_client_message_size_bytes",
			Help:    "Encoded message size in bytes.",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_client_queue_size",
			Help: "Current outbound queue depth.",
		}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_client_queue_dropped_total",
			Help: "Total messages dropped from the outbound queue, by reason.",
		}, []string{"reason"}),
		BufferUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemetry_client_buffer_utilization_ratio",
			Help: "Per-stream buffer utilization ratio.",
		}, []string{"stream"}),
		BufferOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_client_buffer_overflow_total",
			Help: "Per-stream buffer overflow events.",
		}, []string{"stream"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_alerts_sent_total",
			Help: "Total alerts dispatched, immediate or batched.",
		}),
		AlertsAcknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_client_alerts_acknowledged_total",
			Help: "Total alerts acknowledged by the server.",
		}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_client_errors_total",
			Help: "Total errors observed, by taxonomy kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ConnectAttempts, m.ConnectSuccesses, m.ReconnectAttempts, m.ConnectionState,
		m.MessagesSent, m.MessagesReceived, m.MessageLatency, m.MessageSize,
		m.QueueSize, m.QueueDropped, m.BufferUtilization, m.BufferOverflow,
		m.AlertsSent, m.AlertsAcknowledged, m.ErrorsByKind,
	)
	return m
}

// SetConnectionState zeroes every known state gauge and sets only the
// active one, mirroring a Gauge-per-state pattern over a single enum.
func (m *Metrics) SetConnectionState(active string, allStates []string) {
	for _, s := range allStates {
		if s == active {
			m.ConnectionState.WithLabelValues(s).Set(1)
		} else {
			m.ConnectionState.WithLabelValues(s).Set(0)
		}
	}
}

func (m *Metrics) ObserveLatency(d time.Duration) {
	m.MessageLatency.Observe(d.Seconds())
}
