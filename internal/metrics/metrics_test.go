package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestSetConnectionStateActivatesOnlyOneGauge(t *testing.T) {
	m := New()
	states := []string{"disconnected", "connecting", "connected"}
	m.SetConnectionState("connecting", states)

	mf, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var gauge *dto.MetricFamily
	for _, f := range mf {
		if f.GetName() == "telemetry_client_connection_state" {
			gauge = f
		}
	}
	if gauge == nil {
		t.Fatal("connection state gauge not registered")
	}

	for _, metric := range gauge.Metric {
		var state string
		for _, l := range metric.Label {
			if l.GetName() == "state" {
				state = l.GetValue()
			}
		}
		want := 0.0
		if state == "connecting" {
			want = 1.0
		}
		if metric.GetGauge().GetValue() != want {
			t.Fatalf("state %q: got %v, want %v", state, metric.GetGauge().GetValue(), want)
		}
	}
}

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.ConnectAttempts.Inc()
	m.MessagesSent.Inc()
	m.QueueDropped.WithLabelValues("expired").Inc()

	mf, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range mf {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"telemetry_client_connect_attempts_total",
		"telemetry_client_messages_sent_total",
		"telemetry_client_queue_dropped_total",
	} {
		if !found[name] {
			t.Fatalf("expected metric %q to be registered", name)
		}
	}
}
