// Package queue implements the outbound priority queue of spec §4.H:
// priority ordering with FIFO tiebreak, retry/backoff, persistence
// across disconnects, and high/low-water backpressure.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/storage"
)

// SendFunc hands a queued message to the transport. A nil error marks
// it delivered.
type SendFunc func(ctx context.Context, msg model.QueuedMessage) error

// Config controls capacity, retry, and backpressure behavior (spec §4.H, §6).
type Config struct {
	MaxSize           int
	BaseDelay         time.Duration
	MaxRetries        int
	HighWaterMark     int
	LowWaterMark      int
	PersistenceKey    string
	MaxSendsPerSecond float64 // 0 disables throttling
}

// Queue is the priority-ordered outbound delivery pipeline.
type Queue struct {
	mu sync.Mutex

	cfg   Config
	items *priorityHeap
	store storage.Store
	log   zerolog.Logger

	send    SendFunc
	limiter *rate.Limiter

	processing  bool
	stopCh      chan struct{}
	backpressure bool

	onUpdate    func()
	onDropped   func(model.QueuedMessage, string)
	onBackpressure func(active bool)

	now func() time.Time
}

func New(log zerolog.Logger, cfg Config, store storage.Store, send SendFunc) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	items := &priorityHeap{}
	heap.Init(items)

	var limiter *rate.Limiter
	if cfg.MaxSendsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxSendsPerSecond), 1)
	}

	return &Queue{
		cfg:     cfg,
		items:   items,
		store:   store,
		log:     log,
		send:    send,
		limiter: limiter,
		now:     time.Now,
	}
}

func (q *Queue) OnUpdate(fn func())                          { q.onUpdate = fn }
func (q *Queue) OnDropped(fn func(model.QueuedMessage, string)) { q.onDropped = fn }
func (q *Queue) OnBackpressure(fn func(active bool))           { q.onBackpressure = fn }

// Enqueue adds a new message, subject to backpressure admission (spec
// §4.H: "refuse new enqueues below HIGH priority" while over the
// high-water mark).
func (q *Queue) Enqueue(msgType model.MessageType, payload any, priority model.Priority) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.backpressure && priority < model.PriorityHigh {
		return "", clienterr.New(clienterr.Queue, "backpressure_rejected", true,
			clienterr.Context{Operation: "enqueue"}, nil)
	}
	if q.cfg.MaxSize > 0 && q.items.Len() >= q.cfg.MaxSize {
		return "", clienterr.New(clienterr.Queue, "size_exceeded", true,
			clienterr.Context{Operation: "enqueue"}, nil)
	}

	msg := model.QueuedMessage{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    payload,
		Priority:   priority,
		Timestamp:  q.now(),
		MaxRetries: q.cfg.MaxRetries,
	}
	heap.Push(q.items, msg)
	q.checkBackpressureLocked()
	q.notifyUpdate()
	return msg.ID, nil
}

func (q *Queue) checkBackpressureLocked() {
	size := q.items.Len()
	if !q.backpressure && q.cfg.HighWaterMark > 0 && size >= q.cfg.HighWaterMark {
		q.backpressure = true
		if q.onBackpressure != nil {
			go q.onBackpressure(true)
		}
	} else if q.backpressure && size <= q.cfg.LowWaterMark {
		q.backpressure = false
		if q.onBackpressure != nil {
			go q.onBackpressure(false)
		}
	}
}

func (q *Queue) notifyUpdate() {
	if q.onUpdate != nil {
		go q.onUpdate()
	}
}

// Stats reports the current queue summary for status snapshots.
func (q *Queue) Stats() model.QueueSummary {
	q.mu.Lock()
	defer q.mu.Unlock()
	return model.QueueSummary{
		Size:         q.items.Len(),
		HighWater:    q.items.Len() >= q.cfg.HighWaterMark && q.cfg.HighWaterMark > 0,
		Backpressure: q.backpressure,
	}
}

// Clear empties the queue without delivering anything.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = &priorityHeap{}
	heap.Init(q.items)
	q.checkBackpressureLocked()
	q.notifyUpdate()
}

// ProcessQueue runs the delivery loop until StopProcessing is called.
// isConnected is polled before each pop (spec §4.H: "while the queue is
// non-empty and the connection is in a connected state").
func (q *Queue) ProcessQueue(ctx context.Context, isConnected func() bool) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.stopCh = make(chan struct{})
	stop := q.stopCh
	q.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !isConnected() {
				continue
			}
			q.deliverOne(ctx)
		}
	}
}

func (q *Queue) deliverOne(ctx context.Context) {
	q.mu.Lock()
	if q.items.Len() == 0 {
		q.mu.Unlock()
		return
	}
	msg := heap.Pop(q.items).(model.QueuedMessage)
	q.mu.Unlock()

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			q.mu.Lock()
			heap.Push(q.items, msg)
			q.mu.Unlock()
			return
		}
	}

	now := q.now()
	if msg.Expired(now) {
		q.drop(msg, "expired")
		return
	}

	err := q.send(ctx, msg)
	if err == nil {
		q.checkBackpressureAfterPop()
		q.notifyUpdate()
		return
	}

	msg.RetryCount++
	if msg.RetryCount > msg.MaxRetries {
		q.drop(msg, "max_retries_exceeded")
		return
	}

	delay := q.cfg.BaseDelay * time.Duration(1<<uint(msg.RetryCount))
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		heap.Push(q.items, msg)
		q.checkBackpressureLocked()
		q.mu.Unlock()
		q.notifyUpdate()
	})
}

func (q *Queue) checkBackpressureAfterPop() {
	q.mu.Lock()
	q.checkBackpressureLocked()
	q.mu.Unlock()
}

func (q *Queue) drop(msg model.QueuedMessage, reason string) {
	if q.onDropped != nil {
		q.onDropped(msg, reason)
	}
	q.checkBackpressureAfterPop()
	q.notifyUpdate()
}

// StopProcessing halts the delivery loop. Idempotent.
func (q *Queue) StopProcessing() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.processing {
		return
	}
	q.processing = false
	close(q.stopCh)
}

// Snapshot persists the current queue to offline storage (spec §4.H:
// "on disconnect, snapshot the queue to offline storage").
func (q *Queue) Snapshot() error {
	q.mu.Lock()
	items := append([]model.QueuedMessage(nil), *q.items...)
	q.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })

	data, err := json.Marshal(items)
	if err != nil {
		return clienterr.Wrap(clienterr.Queue, "snapshot_marshal", err)
	}
	if err := q.store.Save(q.cfg.PersistenceKey, data); err != nil {
		return clienterr.Wrap(clienterr.Queue, "snapshot_save", err)
	}
	return nil
}

// Restore reloads a persisted snapshot (spec §4.H: "on next connect
// restore and resume").
func (q *Queue) Restore() error {
	data, ok, err := q.store.Load(q.cfg.PersistenceKey)
	if err != nil {
		return clienterr.Wrap(clienterr.Queue, "restore_load", err)
	}
	if !ok {
		return nil
	}

	var items []model.QueuedMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return clienterr.Wrap(clienterr.Queue, "restore_unmarshal", err)
	}

	q.mu.Lock()
	q.items = &priorityHeap{}
	heap.Init(q.items)
	for _, item := range items {
		heap.Push(q.items, item)
	}
	q.checkBackpressureLocked()
	q.mu.Unlock()
	q.notifyUpdate()
	return nil
}

// priorityHeap orders by descending priority, ties broken FIFO by
// timestamp (spec §4.H).
type priorityHeap []model.QueuedMessage

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Timestamp.Before(h[j].Timestamp)
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(model.QueuedMessage)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
