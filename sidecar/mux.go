package sidecar

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/bazelment/agent-sidecar/protocol"
)

// EventMux fans a single ordered stream of server events out to any number
// of subscriptions. Global subscriptions receive every event; per-request
// subscriptions receive only events carrying their request id and are torn
// down once that request's turn END has been delivered to them.
//
// One dispatch goroutine drains the inbound queue. The registry lock is only
// held to mutate or snapshot the registry, never during delivery. Delivery
// pushes into each subscription's unbounded relay queue, so a slow consumer
// builds up a backlog in its own subscription instead of stalling the others.
type EventMux struct {
	queue      *queue[*protocol.ServerEvent]
	logger     *slog.Logger
	telemetry  *telemetry
	done       chan struct{}
	byRequest  map[string][]*Subscription
	global     []*Subscription
	mu         sync.Mutex
	dispatched atomic.Uint64
	closed     bool
}

// MuxOption configures an EventMux.
type MuxOption func(*muxConfig)

type muxConfig struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	telemetry     *telemetry
}

// WithMuxLogger sets the logger used for dispatch diagnostics.
func WithMuxLogger(logger *slog.Logger) MuxOption {
	return func(c *muxConfig) {
		c.logger = logger
	}
}

// WithMuxMeterProvider overrides the OpenTelemetry meter provider.
func WithMuxMeterProvider(mp metric.MeterProvider) MuxOption {
	return func(c *muxConfig) {
		c.meterProvider = mp
	}
}

func withMuxTelemetry(t *telemetry) MuxOption {
	return func(c *muxConfig) {
		c.telemetry = t
	}
}

// NewEventMux creates a mux and starts its dispatch goroutine.
func NewEventMux(opts ...MuxOption) *EventMux {
	cfg := muxConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	if cfg.telemetry == nil {
		cfg.telemetry = newTelemetry(nil, cfg.meterProvider)
	}

	m := &EventMux{
		queue:     newQueue[*protocol.ServerEvent](),
		logger:    cfg.logger,
		telemetry: cfg.telemetry,
		done:      make(chan struct{}),
		byRequest: make(map[string][]*Subscription),
	}
	go m.run()
	return m
}

// Enqueue hands ev to the dispatch goroutine. It returns false once the mux
// has been closed. It never waits on subscribers.
func (m *EventMux) Enqueue(ev *protocol.ServerEvent) bool {
	if ev == nil {
		return false
	}
	return m.queue.Push(ev)
}

// SubscribeAll registers a subscription receiving every future event. On a
// closed mux the returned subscription is already closed.
func (m *EventMux) SubscribeAll(buffer int) *Subscription {
	sub := newSubscription(m, "", buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		sub.finish()
		return sub
	}
	m.global = append(m.global, sub)
	return sub
}

// SubscribeRequest registers a subscription for events tagged with
// requestID. On a closed mux the returned subscription is already closed.
func (m *EventMux) SubscribeRequest(requestID string, buffer int) *Subscription {
	sub := newSubscription(m, requestID, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || requestID == "" {
		sub.finish()
		return sub
	}
	m.byRequest[requestID] = append(m.byRequest[requestID], sub)
	return sub
}

// UnsubscribeRequest removes and closes sub. Subscription.Close does the
// same; requestID must match the id sub was created with.
func (m *EventMux) UnsubscribeRequest(requestID string, sub *Subscription) {
	if sub == nil || sub.requestID != requestID {
		return
	}
	sub.Close()
}

// UnsubscribeAll removes and closes a global subscription.
func (m *EventMux) UnsubscribeAll(sub *Subscription) {
	if sub == nil || sub.requestID != "" {
		return
	}
	sub.Close()
}

// remove drops sub from the registry. Unknown subscriptions are ignored.
func (m *EventMux) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.requestID == "" {
		for i, item := range m.global {
			if item == sub {
				m.global = append(m.global[:i:i], m.global[i+1:]...)
				return
			}
		}
		return
	}
	subs := m.byRequest[sub.requestID]
	for i, item := range subs {
		if item == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.byRequest, sub.requestID)
	} else {
		m.byRequest[sub.requestID] = subs
	}
}

// Close stops accepting inbound events. Events already enqueued are still
// dispatched; then every subscription is closed and the registry cleared.
// Close is idempotent.
func (m *EventMux) Close() {
	m.queue.Close()
}

// Done is closed once the dispatch goroutine has exited and every
// subscription has been closed.
func (m *EventMux) Done() <-chan struct{} {
	return m.done
}

// MuxStats is a point-in-time view of the mux registry.
type MuxStats struct {
	Dispatched     uint64
	Global         int
	Requests       int
	PerRequestSubs int
	Backlog        int
	Closed         bool
}

// Stats returns a snapshot of the registry.
func (m *EventMux) Stats() MuxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := MuxStats{
		Dispatched: m.dispatched.Load(),
		Global:     len(m.global),
		Requests:   len(m.byRequest),
		Backlog:    m.queue.Len(),
		Closed:     m.closed,
	}
	for _, subs := range m.byRequest {
		st.PerRequestSubs += len(subs)
	}
	return st
}

func (m *EventMux) run() {
	defer close(m.done)
	for {
		ev, ok := m.queue.Pop()
		if !ok {
			m.closeAll()
			return
		}
		m.dispatch(ev)
	}
}

func (m *EventMux) dispatch(ev *protocol.ServerEvent) {
	subs := m.subscriptionsFor(ev)
	for _, sub := range subs {
		sub.enqueue(ev)
	}
	m.dispatched.Add(1)
	m.telemetry.eventDispatched(ev, len(subs))

	// Teardown strictly after delivery: the END event is already in each
	// subscription's relay queue and will drain before its channel closes.
	if ev.IsTurnEnd() {
		m.closeRequest(ev.RequestID)
	}
}

// subscriptionsFor snapshots the delivery set for ev.
func (m *EventMux) subscriptionsFor(ev *protocol.ServerEvent) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqSubs := m.byRequest[ev.RequestID]
	if ev.RequestID == "" {
		reqSubs = nil
	}
	subs := make([]*Subscription, 0, len(m.global)+len(reqSubs))
	subs = append(subs, m.global...)
	return append(subs, reqSubs...)
}

func (m *EventMux) closeRequest(requestID string) {
	if requestID == "" {
		return
	}
	m.mu.Lock()
	subs := m.byRequest[requestID]
	delete(m.byRequest, requestID)
	m.mu.Unlock()
	if len(subs) > 0 {
		m.logger.Debug("turn ended, closing request subscriptions",
			"request_id", requestID, "count", len(subs))
	}
	for _, sub := range subs {
		sub.finish()
	}
}

func (m *EventMux) closeAll() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := make([]*Subscription, 0, len(m.global))
	subs = append(subs, m.global...)
	for _, list := range m.byRequest {
		subs = append(subs, list...)
	}
	m.global = nil
	m.byRequest = make(map[string][]*Subscription)
	m.mu.Unlock()

	m.logger.Debug("event mux closed", "subscriptions", len(subs), "dispatched", m.dispatched.Load())
	for _, sub := range subs {
		sub.finish()
	}
}
