// Package eventbus implements the typed publish/subscribe abstraction
// of spec §4.A, grounded on the recover-and-continue pattern used
// around per-connection goroutines in go-server/pkg/websocket/hub.go.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives an event payload. Its concrete shape is
// event-specific; callers type-assert as needed.
type Handler func(payload any)

// Subscription is a value representing one registration. It carries
// its own lifetime: callers hold it to unregister later instead of
// comparing function pointers, which Go cannot do reliably.
type Subscription struct {
	id    uint64
	event string
	once  bool
}

type registration struct {
	id      uint64
	handler Handler
	once    bool
}

// Bus is a synchronous, single-threaded-friendly event emitter. Emits
// are delivered in registration order; a panicking listener is
// recovered and logged, never propagated, and never blocks delivery
// to subsequent listeners.
type Bus struct {
	mu           sync.Mutex
	listeners    map[string][]registration
	nextID       uint64
	maxListeners int
	log          zerolog.Logger
}

// New creates a Bus. maxListeners <= 0 disables the warning threshold.
func New(log zerolog.Logger, maxListeners int) *Bus {
	return &Bus{
		listeners:    make(map[string][]registration),
		maxListeners: maxListeners,
		log:          log,
	}
}

// On registers handler for event and returns its Subscription.
func (b *Bus) On(event string, handler Handler) Subscription {
	return b.register(event, handler, false)
}

// Once registers a handler that unregisters itself after first delivery.
func (b *Bus) Once(event string, handler Handler) Subscription {
	return b.register(event, handler, true)
}

func (b *Bus) register(event string, handler Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], registration{id: id, handler: handler, once: once})

	if b.maxListeners > 0 && len(b.listeners[event]) > b.maxListeners {
		b.log.Warn().
			Str("event", event).
			Int("count", len(b.listeners[event])).
			Int("max", b.maxListeners).
			Msg("listener count exceeds configured maximum")
	}

	return Subscription{id: id, event: event, once: once}
}

// Off unregisters a subscription. Safe to call twice.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[sub.event]
	for i, r := range regs {
		if r.id == sub.id {
			b.listeners[sub.event] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every current subscriber of event,
// synchronously, in registration order. Once-registrations are
// removed after this delivery. Emit never mutates under a listener's
// feet: the snapshot of listeners is taken before any handler runs, so
// a handler that subscribes or unsubscribes during emit affects only
// future emits.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	regs := append([]registration(nil), b.listeners[event]...)
	b.mu.Unlock()

	var onceIDs []uint64
	for _, r := range regs {
		b.safeCall(event, r, payload)
		if r.once {
			onceIDs = append(onceIDs, r.id)
		}
	}

	if len(onceIDs) > 0 {
		b.mu.Lock()
		for _, id := range onceIDs {
			remaining := b.listeners[event][:0]
			for _, r := range b.listeners[event] {
				if r.id != id {
					remaining = append(remaining, r)
				}
			}
			b.listeners[event] = remaining
		}
		b.mu.Unlock()
	}
}

func (b *Bus) safeCall(event string, r registration, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error().
				Str("event", event).
				Interface("panic", rec).
				Msg("event listener panicked, isolated from remaining listeners")
		}
	}()
	r.handler(payload)
}

// ListenerCount returns the number of active listeners for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// Clear removes all listeners for every event. Used by destroy paths.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]registration)
}
