package queue

import (
	"container/heap"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

func newTestQueue(cfg Config, send SendFunc) *Queue {
	if send == nil {
		send = func(ctx context.Context, msg model.QueuedMessage) error { return nil }
	}
	return New(zerolog.Nop(), cfg, storage.NewMemory(), send)
}

func TestPriorityOrderingWithFIFOTiebreak(t *testing.T) {
	q := newTestQueue(Config{MaxRetries: 3}, nil)

	q.Enqueue(model.MessageTelemetry, "low-1", model.PriorityLow)
	q.Enqueue(model.MessageCommand, "high-1", model.PriorityHigh)
	q.Enqueue(model.MessageTelemetry, "low-2", model.PriorityLow)
	q.Enqueue(model.MessageCommand, "high-2", model.PriorityHigh)

	var order []string
	for q.items.Len() > 0 {
		msg := heap.Pop(q.items).(model.QueuedMessage)
		order = append(order, msg.Payload.(string))
	}

	want := []string{"high-1", "high-2", "low-1", "low-2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestBackpressureRejectsBelowHighPriority(t *testing.T) {
	q := newTestQueue(Config{MaxRetries: 3, HighWaterMark: 2, LowWaterMark: 0}, nil)

	q.Enqueue(model.MessageTelemetry, "a", model.PriorityLow)
	q.Enqueue(model.MessageTelemetry, "b", model.PriorityLow)

	if !q.Stats().Backpressure {
		t.Fatal("expected backpressure active at high-water mark")
	}

	if _, err := q.Enqueue(model.MessageTelemetry, "c", model.PriorityNormal); err == nil {
		t.Fatal("expected normal priority enqueue to be rejected under backpressure")
	}
	if _, err := q.Enqueue(model.MessageCommand, "urgent", model.PriorityHigh); err != nil {
		t.Fatalf("high priority should bypass backpressure: %v", err)
	}
}

func TestMaxSizeRejectsEnqueue(t *testing.T) {
	q := newTestQueue(Config{MaxSize: 1, MaxRetries: 3}, nil)
	if _, err := q.Enqueue(model.MessageTelemetry, "a", model.PriorityLow); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := q.Enqueue(model.MessageTelemetry, "b", model.PriorityLow); err == nil {
		t.Fatal("expected size_exceeded error")
	}
}

func TestFailedDeliveryRetriesThenDrops(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	q := newTestQueue(Config{MaxRetries: 1, BaseDelay: time.Millisecond}, func(ctx context.Context, msg model.QueuedMessage) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errSendFailed
	})

	var dropped model.QueuedMessage
	var droppedReason string
	done := make(chan struct{})
	q.OnDropped(func(msg model.QueuedMessage, reason string) {
		dropped, droppedReason = msg, reason
		close(done)
	})

	q.Enqueue(model.MessageCommand, "payload", model.PriorityNormal)
	// The first failed send re-queues the message after its backoff; the
	// delivery loop then retries it and drops it once RetryCount exceeds
	// MaxRetries.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.ProcessQueue(ctx, func() bool { return true })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never dropped")
	}

	if dropped.Payload != "payload" {
		t.Fatalf("got %v", dropped.Payload)
	}
	if droppedReason != "max_retries_exceeded" {
		t.Fatalf("got %v", droppedReason)
	}
}

func TestExpiredMessageDroppedImmediately(t *testing.T) {
	q := newTestQueue(Config{MaxRetries: 3}, nil)
	past := time.Now().Add(-time.Hour)

	var droppedReason string
	q.OnDropped(func(msg model.QueuedMessage, reason string) { droppedReason = reason })

	q.mu.Lock()
	heap.Push(q.items, model.QueuedMessage{
		ID: "x", Priority: model.PriorityNormal, Timestamp: time.Now(), ExpiresAt: &past,
	})
	q.mu.Unlock()

	q.deliverOne(context.Background())

	if droppedReason != "expired" {
		t.Fatalf("got %v", droppedReason)
	}
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	q := newTestQueue(Config{MaxRetries: 3, PersistenceKey: "outbound"}, nil)
	q.Enqueue(model.MessageTelemetry, "a", model.PriorityLow)
	q.Enqueue(model.MessageCommand, "b", model.PriorityHigh)

	if err := q.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	q2 := New(zerolog.Nop(), Config{MaxRetries: 3, PersistenceKey: "outbound"}, q.store, nil)
	if err := q2.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if q2.items.Len() != 2 {
		t.Fatalf("got %d items, want 2", q2.items.Len())
	}
}

type sendError string

func (e sendError) Error() string { return string(e) }

var errSendFailed = sendError("send failed")
