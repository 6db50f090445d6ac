package subscription

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/clienterr"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// WireSubscribe sends the wire-level subscribe command and returns the
// server-assigned subscription id.
type WireSubscribe func(req SubscribeRequest) (wireSubID string, err error)

// WireUnsubscribe sends the wire-level unsubscribe/cancel command.
type WireUnsubscribe func(wireSubID string) error

// WireRenew sends the wire-level renewal command for an auto-renewing
// subscription approaching expiry.
type WireRenew func(streamID string) error

// allowedSubTransitions is the state machine spec §4.J names: "created
// → active ↔ paused → (cancelled | expired | error)".
var allowedSubTransitions = map[model.SubState]map[model.SubState]bool{
	model.SubCreated: {model.SubActive: true, model.SubError: true},
	model.SubActive: {
		model.SubPaused:    true,
		model.SubCancelled: true,
		model.SubExpired:   true,
		model.SubError:     true,
	},
	model.SubPaused: {
		model.SubActive:    true,
		model.SubCancelled: true,
		model.SubExpired:   true,
		model.SubError:     true,
	},
}

type entry struct {
	sub       model.Subscription
	processor *Processor
	renewTimer *time.Timer
}

// Manager owns every active subscription, its processor, and its
// lifecycle state (spec §4.J).
type Manager struct {
	mu      sync.Mutex
	log     zerolog.Logger
	entries map[string]*entry // by streamID
	groups  map[string]*model.Group

	chain           []Rule
	caps            Capabilities
	wireSubscribe   WireSubscribe
	wireUnsubscribe WireUnsubscribe
	wireRenew       WireRenew

	onStateChange func(streamID string, from, to model.SubState)
	onData        func(streamID string, dp model.DataPoint)

	now func() time.Time
}

func NewManager(log zerolog.Logger, caps Capabilities, wireSub WireSubscribe, wireUnsub WireUnsubscribe, wireRenew WireRenew) *Manager {
	m := &Manager{
		log:             log,
		entries:         make(map[string]*entry),
		groups:          make(map[string]*model.Group),
		caps:            caps,
		wireSubscribe:   wireSub,
		wireUnsubscribe: wireUnsub,
		wireRenew:       wireRenew,
		now:             time.Now,
	}
	m.chain = DefaultChain(m.isDuplicate)
	return m
}

func (m *Manager) OnStateChange(fn func(streamID string, from, to model.SubState)) { m.onStateChange = fn }
func (m *Manager) OnData(fn func(streamID string, dp model.DataPoint))             { m.onData = fn }

func (m *Manager) isDuplicate(streamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[streamID]
	return ok
}

// Subscribe validates, applies modifications, sends the wire-subscribe,
// and creates the subscription + processor (spec §4.J).
func (m *Manager) Subscribe(req SubscribeRequest) (*model.Subscription, ValidationResult, error) {
	result := Validate(req, m.caps, m.chain)
	if !result.Valid {
		return nil, result, clienterr.New(clienterr.Subscription, "validation_failed", false,
			clienterr.Context{StreamID: req.StreamID, Operation: "subscribe"}, nil)
	}

	cfg := ApplyModifications(req.Config, result.Modifications)
	req.Config = cfg

	wireSubID, err := m.wireSubscribe(req)
	if err != nil {
		return nil, result, clienterr.Wrap(clienterr.Subscription, "wire_subscribe", err)
	}

	now := m.now()
	sub := model.Subscription{
		StreamID:     req.StreamID,
		WireSubID:    wireSubID,
		Config:       cfg,
		State:        model.SubCreated,
		CreatedAt:    now,
		LastActivity: now,
		Filters:      req.Filters,
		QoS:          req.QoS,
		Lifetime:     req.Lifetime,
	}

	proc := NewProcessor(cfg)
	proc.OnData(func(dp model.DataPoint) {
		if m.onData != nil {
			m.onData(req.StreamID, dp)
		}
	})

	e := &entry{sub: sub, processor: proc}
	m.mu.Lock()
	m.entries[req.StreamID] = e
	m.mu.Unlock()

	m.transition(req.StreamID, model.SubActive)
	m.armLifetime(req.StreamID)

	return &e.sub, result, nil
}

// BatchOptions controls spec §4.J's batch subscribe semantics.
type BatchOptions struct {
	FailOnAnyError bool
	Transactional  bool
	MaxConcurrency int
}

// BatchResult pairs each request with its outcome.
type BatchResult struct {
	Request SubscribeRequest
	Sub     *model.Subscription
	Err     error
}

// BatchSubscribe subscribes to every request, honoring FailOnAnyError
// and Transactional rollback (spec §4.J).
func (m *Manager) BatchSubscribe(reqs []SubscribeRequest, opts BatchOptions) ([]BatchResult, error) {
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]BatchResult, len(reqs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req SubscribeRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			sub, _, err := m.Subscribe(req)
			results[i] = BatchResult{Request: req, Sub: sub, Err: err}
		}(i, req)
	}
	wg.Wait()

	var firstErr error
	created := make([]string, 0, len(reqs))
	for _, r := range results {
		if r.Err != nil && firstErr == nil {
			firstErr = r.Err
		}
		if r.Sub != nil {
			created = append(created, r.Request.StreamID)
		}
	}

	if firstErr != nil && (opts.FailOnAnyError || opts.Transactional) {
		if opts.Transactional {
			for _, streamID := range created {
				_ = m.Unsubscribe(streamID)
			}
		}
		return results, firstErr
	}
	return results, nil
}

// Pause gates ingest for a stream without tearing down the subscription.
func (m *Manager) Pause(streamID string) error {
	e, ok := m.entryFor(streamID)
	if !ok {
		return errNotFound(streamID)
	}
	e.processor.Pause()
	return m.transition(streamID, model.SubPaused)
}

// Resume reopens ingest for a paused stream.
func (m *Manager) Resume(streamID string) error {
	e, ok := m.entryFor(streamID)
	if !ok {
		return errNotFound(streamID)
	}
	e.processor.Resume()
	return m.transition(streamID, model.SubActive)
}

// Unsubscribe closes the wire subscription and removes the processor.
// Buffer teardown (with its own persistence semantics) is the caller's
// responsibility via the facade, which owns both this manager and 4.I.
func (m *Manager) Unsubscribe(streamID string) error {
	e, ok := m.entryFor(streamID)
	if !ok {
		return errNotFound(streamID)
	}
	if err := m.wireUnsubscribe(e.sub.WireSubID); err != nil {
		return clienterr.Wrap(clienterr.Subscription, "wire_unsubscribe", err)
	}

	m.mu.Lock()
	if e.renewTimer != nil {
		e.renewTimer.Stop()
	}
	delete(m.entries, streamID)
	m.mu.Unlock()

	return m.transition(streamID, model.SubCancelled)
}

// Ingest routes raw data to the stream's processor.
func (m *Manager) Ingest(streamID string, dp model.DataPoint) error {
	e, ok := m.entryFor(streamID)
	if !ok {
		return errNotFound(streamID)
	}
	e.processor.Ingest(dp)

	m.mu.Lock()
	e.sub.LastActivity = m.now()
	m.mu.Unlock()
	return nil
}

// Get returns a subscription's current record.
func (m *Manager) Get(streamID string) (model.Subscription, bool) {
	e, ok := m.entryFor(streamID)
	if !ok {
		return model.Subscription{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.sub, true
}

// Stats returns the stream's processor stats.
func (m *Manager) Stats(streamID string) (ProcessorStats, bool) {
	e, ok := m.entryFor(streamID)
	if !ok {
		return ProcessorStats{}, false
	}
	return e.processor.Stats(), true
}

func (m *Manager) entryFor(streamID string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[streamID]
	return e, ok
}

func (m *Manager) transition(streamID string, to model.SubState) error {
	m.mu.Lock()
	e, ok := m.entries[streamID]
	if !ok {
		m.mu.Unlock()
		return errNotFound(streamID)
	}
	from := e.sub.State
	if !allowedSubTransitions[from][to] {
		m.mu.Unlock()
		return clienterr.New(clienterr.Subscription, "invalid_transition", false,
			clienterr.Context{StreamID: streamID, State: string(from), Operation: string(to)}, nil)
	}
	e.sub.State = to
	m.mu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(streamID, from, to)
	}
	return nil
}

// armLifetime schedules auto-renewal at expiresAt for subscriptions
// that request it (spec §4.J: "on reaching expiresAt, autoRenew=true
// sends a renewal command; failure transitions to expired").
func (m *Manager) armLifetime(streamID string) {
	e, ok := m.entryFor(streamID)
	if !ok || e.sub.Lifetime.ExpiresAt.IsZero() {
		return
	}

	delay := time.Until(e.sub.Lifetime.ExpiresAt)
	if delay < 0 {
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		e2, ok := m.entryFor(streamID)
		if !ok {
			return
		}
		if !e2.sub.Lifetime.AutoRenew {
			_ = m.transition(streamID, model.SubExpired)
			return
		}
		if err := m.wireRenew(streamID); err != nil {
			m.log.Warn().Err(err).Str("stream", streamID).Msg("subscription renewal failed")
			_ = m.transition(streamID, model.SubExpired)
			return
		}

		m.mu.Lock()
		e2.sub.Lifetime.ExpiresAt = m.now().Add(e2.sub.Lifetime.RenewInterval)
		m.mu.Unlock()
		m.armLifetime(streamID)
	})

	m.mu.Lock()
	e.renewTimer = timer
	m.mu.Unlock()
}

// Group creates a named collection over existing subscriptions.
func (m *Manager) Group(id string, streamIDs []string) *model.Group {
	g := &model.Group{ID: id, SubscriptionIDs: streamIDs}
	m.mu.Lock()
	m.groups[id] = g
	m.mu.Unlock()
	return g
}

// AddDependency records that streamID's subscription depends on
// dependsOn (unsubscribing dependsOn should cascade, enforced by the
// facade that walks this graph).
func (m *Manager) AddDependency(streamID, dependsOn string) error {
	e, ok := m.entryFor(streamID)
	if !ok {
		return errNotFound(streamID)
	}
	m.mu.Lock()
	e.sub.Dependencies = append(e.sub.Dependencies, dependsOn)
	m.mu.Unlock()
	return nil
}

type notFoundError string

func (e notFoundError) Error() string { return "subscription not found: " + string(e) }

func errNotFound(streamID string) error {
	return clienterr.New(clienterr.Subscription, "not_found", false,
		clienterr.Context{StreamID: streamID, Operation: "lookup"}, notFoundError(streamID))
}
