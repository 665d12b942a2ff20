package sidecar

import (
	"github.com/bazelment/agent-sidecar/protocol"
)

// Subscription is one consumer's view of a session's event stream. Events are
// relayed through an unbounded internal queue into a bounded channel; a full
// channel only holds back this subscription.
//
// Subscriptions are created by an EventMux. A subscription torn down by the
// mux (on mux close or on its request's turn END) still delivers every event
// it had accepted before the channel closes. Close, called by the owner,
// discards anything not yet delivered.
type Subscription struct {
	relay     *relay[*protocol.ServerEvent]
	mux       *EventMux
	requestID string
}

func newSubscription(mux *EventMux, requestID string, buffer int) *Subscription {
	return &Subscription{
		relay:     newRelay[*protocol.ServerEvent](buffer),
		mux:       mux,
		requestID: requestID,
	}
}

// Events returns the consumer channel. It is closed after the subscription is
// closed and every accepted event has been delivered.
func (s *Subscription) Events() <-chan *protocol.ServerEvent {
	return s.relay.out
}

// RequestID is the request this subscription is scoped to, or "" for a
// global subscription.
func (s *Subscription) RequestID() string {
	return s.requestID
}

// Closed reports whether the subscription stopped accepting events.
func (s *Subscription) Closed() bool {
	return s.relay.closed.Load()
}

// Pending reports events accepted but not yet handed to the channel.
func (s *Subscription) Pending() int {
	return s.relay.queue.Len()
}

// Drained reports whether the subscription is closed and has nothing left to
// deliver.
func (s *Subscription) Drained() bool {
	return s.relay.drained()
}

// Close stops the subscription, discards undelivered events and removes it
// from its mux. Close is idempotent.
func (s *Subscription) Close() {
	s.relay.abort()
	if s.mux != nil {
		s.mux.remove(s)
	}
}

// enqueue is a no-op once the subscription is closed.
func (s *Subscription) enqueue(ev *protocol.ServerEvent) bool {
	return s.relay.push(ev)
}

func (s *Subscription) finish() {
	s.relay.finish()
}
