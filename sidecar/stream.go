package sidecar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Stream follows one request until its turn ends. It consumes a per-request
// subscription, builds the Turn and resolves exactly once:
//
//   - END boundary: the finished turn.
//   - Subscription closed with a turn in progress: the partial turn (Ended is
//     false).
//   - Subscription closed before any event carried a turn id: ErrNoTurn.
//   - Close called first: ErrStreamClosed, with the partial turn if any.
//
// Events and Partials mirror what the loop consumed. Both channels are closed
// once the stream resolves and their backlog is read. Their forwarding
// goroutines start on the first call, so a caller that only waits for Result
// holds none. Call Close when done to release them.
type Stream struct {
	mux       *EventMux
	sub       *Subscription
	logger    *slog.Logger
	events    *relay[*protocol.ServerEvent]
	partials  *relay[*protocol.MessageEvent]
	result    *future[*RunResult]
	stop      chan struct{}
	requestID string
	idle      time.Duration
	stopOnce  sync.Once
}

func newStream(mux *EventMux, sub *Subscription, cfg Config) *Stream {
	idle := cfg.IdleCheckInterval
	if idle <= 0 {
		idle = DefaultIdleCheckInterval
	}
	s := &Stream{
		mux:       mux,
		sub:       sub,
		logger:    cfg.Logger.With("request_id", sub.RequestID()),
		events:    newLazyRelay[*protocol.ServerEvent](cfg.RequestBuffer),
		partials:  newLazyRelay[*protocol.MessageEvent](cfg.PartialBuffer),
		result:    newFuture[*RunResult](),
		stop:      make(chan struct{}),
		requestID: sub.RequestID(),
		idle:      idle,
	}
	go s.run()
	return s
}

func (s *Stream) RequestID() string {
	return s.requestID
}

// Events returns every event of the request in arrival order, including
// those consumed before the first call.
func (s *Stream) Events() <-chan *protocol.ServerEvent {
	return s.events.start()
}

// Partials returns the partial messages of the request.
func (s *Stream) Partials() <-chan *protocol.MessageEvent {
	return s.partials.start()
}

// Done is closed once the stream has resolved.
func (s *Stream) Done() <-chan struct{} {
	return s.result.Done()
}

// Result waits for the stream to resolve. A ctx error does not stop the
// stream.
func (s *Stream) Result(ctx context.Context) (*RunResult, error) {
	return s.result.Wait(ctx)
}

// Close stops following the request. It only affects this stream's own
// subscription. Close is idempotent.
func (s *Stream) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mux.UnsubscribeRequest(s.requestID, s.sub)
	s.events.abort()
	s.partials.abort()
}

func (s *Stream) run() {
	defer s.mux.UnsubscribeRequest(s.requestID, s.sub)
	defer s.partials.finish()
	defer s.events.finish()

	b := turnBuilder{logger: s.logger}
	ticker := time.NewTicker(s.idle)
	defer ticker.Stop()

	in := s.sub.Events()
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				s.abandoned(b.turn)
				return
			}
			s.events.push(ev)
			if m := ev.GetMessage(); m != nil && m.IsPartial {
				s.partials.push(m)
			}
			if b.apply(ev) {
				s.logger.Debug("turn ended", "turn_id", b.turn.TurnID, "events", len(b.turn.Events))
				s.result.resolve(&RunResult{Turn: b.turn}, nil)
				return
			}
		case <-ticker.C:
			if s.sub.Drained() {
				s.abandoned(b.turn)
				return
			}
		case <-s.stop:
			s.stopped(b.turn)
			return
		}
	}
}

func (s *Stream) stopped(turn *Turn) {
	var res *RunResult
	if turn != nil {
		res = &RunResult{Turn: turn}
	}
	s.result.resolve(res, ErrStreamClosed)
}

// abandoned resolves a stream whose subscription closed before END.
func (s *Stream) abandoned(turn *Turn) {
	select {
	case <-s.stop:
		// Close tore the subscription down.
		s.stopped(turn)
		return
	default:
	}
	if turn == nil {
		s.logger.Debug("stream closed before any turn event")
		s.result.resolve(nil, ErrNoTurn)
		return
	}
	s.logger.Debug("stream closed with turn in progress", "turn_id", turn.TurnID, "events", len(turn.Events))
	s.result.resolve(&RunResult{Turn: turn}, nil)
}
