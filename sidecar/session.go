package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Session is one attached sidecar session. It serializes every outbound
// event, answers callback requests from Handlers, and fans inbound events out
// through an EventMux.
//
// A Session is terminal once its transport fails or closes: Done is closed,
// every subscription is closed and pending streams resolve.
type Session struct {
	transport Transport
	mux       *EventMux
	logger    *slog.Logger
	telemetry *telemetry
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	init      *future[*SessionInitInfo]
	events    *Subscription
	inputs    map[string]string
	err       error
	handlers  Handlers
	id        string
	cfg       Config
	sendMu    sync.Mutex
	inputsMu  sync.Mutex
	errMu     sync.Mutex
	eventsMu  sync.Mutex
	closeOnce sync.Once
	closing   atomic.Bool
}

// NewSession wraps an open transport. Unless WithoutHello is given, the client
// hello is sent before the receive loop starts. Cancelling ctx cancels the
// context passed to callback handlers.
func NewSession(ctx context.Context, transport Transport, sessionID string, handlers Handlers, opts ...Option) (*Session, error) {
	return newSession(ctx, transport, sessionID, handlers, defaultConfig().with(opts...))
}

func newSession(ctx context.Context, transport Transport, sessionID string, handlers Handlers, cfg Config) (*Session, error) {
	logger := cfg.Logger.With("session_id", sessionID)
	tel := newTelemetry(cfg.TracerProvider, cfg.MeterProvider)
	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		transport: transport,
		mux:       NewEventMux(WithMuxLogger(logger), withMuxTelemetry(tel)),
		logger:    logger,
		telemetry: tel,
		ctx:       sessionCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		init:      newFuture[*SessionInitInfo](),
		inputs:    make(map[string]string),
		handlers:  handlers,
		id:        sessionID,
		cfg:       cfg,
	}
	if cfg.EventsFromAttach {
		s.events = s.mux.SubscribeAll(cfg.EventBuffer)
	}

	if !cfg.SkipHello {
		err := s.send(ctx, &protocol.ClientEvent{
			Hello: &protocol.ClientHello{
				ProtocolVersion: cfg.ClientInfo.Protocol,
				ClientName:      cfg.ClientInfo.Name,
				ClientVersion:   cfg.ClientInfo.Version,
			},
		})
		if err != nil {
			s.shutdown()
			close(s.done)
			return nil, fmt.Errorf("send hello: %w", err)
		}
	}

	go s.recvLoop()
	logger.Debug("session attached")
	return s, nil
}

// ID returns the sidecar session id.
func (s *Session) ID() string {
	return s.id
}

// Query sends a prompt and returns its request id without waiting. Events of
// the request can only be observed through Events or Subscribe; use Stream to
// follow a single request.
func (s *Session) Query(ctx context.Context, prompt string) (string, error) {
	requestID := newID("req")
	err := s.send(ctx, &protocol.ClientEvent{
		RequestID: requestID,
		Query:     &protocol.Query{Prompt: prompt},
	})
	return requestID, err
}

// Stream sends a prompt and follows its turn. The request subscription is
// registered before the query is sent.
func (s *Session) Stream(ctx context.Context, prompt string) (*Stream, error) {
	return s.streamQuery(ctx, newID("req"), &protocol.Query{Prompt: prompt})
}

// Run sends a prompt and blocks until its turn resolves.
func (s *Session) Run(ctx context.Context, prompt string) (*RunResult, error) {
	st, err := s.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Result(ctx)
}

// QueryTurn is Run returning only the turn.
func (s *Session) QueryTurn(ctx context.Context, prompt string) (*Turn, error) {
	res, err := s.Run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Turn == nil {
		return nil, ErrNoTurn
	}
	return res.Turn, nil
}

func (s *Session) streamQuery(ctx context.Context, requestID string, q *protocol.Query) (*Stream, error) {
	sub := s.mux.SubscribeRequest(requestID, s.cfg.RequestBuffer)
	err := s.send(ctx, &protocol.ClientEvent{RequestID: requestID, Query: q})
	if err != nil {
		s.mux.UnsubscribeRequest(requestID, sub)
		return nil, err
	}
	return newStream(s.mux, sub, s.cfg), nil
}

// StartInputStream opens a server-side input stream and returns the request
// id of the turn it feeds along with the stream id.
func (s *Session) StartInputStream(ctx context.Context) (requestID, streamID string, err error) {
	requestID, streamID = newID("req"), newID("input")
	if err := s.send(ctx, &protocol.ClientEvent{
		RequestID: requestID,
		Query:     &protocol.Query{InputStreamID: streamID},
	}); err != nil {
		return "", "", err
	}
	s.trackInput(streamID, requestID)
	return requestID, streamID, nil
}

// StreamInput is StartInputStream followed by a Stream for the input's turn,
// subscribed before the stream is opened.
func (s *Session) StreamInput(ctx context.Context) (*Stream, string, error) {
	requestID, streamID := newID("req"), newID("input")
	st, err := s.streamQuery(ctx, requestID, &protocol.Query{InputStreamID: streamID})
	if err != nil {
		return nil, "", err
	}
	s.trackInput(streamID, requestID)
	return st, streamID, nil
}

func (s *Session) trackInput(streamID, requestID string) {
	s.inputsMu.Lock()
	s.inputs[streamID] = requestID
	s.inputsMu.Unlock()
}

func (s *Session) inputRequest(streamID string) (string, bool) {
	s.inputsMu.Lock()
	defer s.inputsMu.Unlock()
	id, ok := s.inputs[streamID]
	return id, ok
}

// SendInputChunk feeds one raw payload into an open input stream.
func (s *Session) SendInputChunk(ctx context.Context, streamID string, event protocol.Value) error {
	requestID, ok := s.inputRequest(streamID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}
	return s.send(ctx, &protocol.ClientEvent{
		RequestID:  requestID,
		InputChunk: &protocol.InputChunk{InputStreamID: streamID, Event: event},
	})
}

// SendInputEvent feeds a typed input event into an open input stream.
func (s *Session) SendInputEvent(ctx context.Context, streamID string, event InputEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	return s.SendInputChunk(ctx, streamID, event.InputValue())
}

// EndInputStream closes an input stream. The stream id cannot be used again.
func (s *Session) EndInputStream(ctx context.Context, streamID string) error {
	requestID, ok := s.inputRequest(streamID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}
	err := s.send(ctx, &protocol.ClientEvent{
		RequestID: requestID,
		EndInput:  &protocol.EndInput{InputStreamID: streamID},
	})
	if err == nil {
		s.inputsMu.Lock()
		delete(s.inputs, streamID)
		s.inputsMu.Unlock()
	}
	return err
}

func (s *Session) Interrupt(ctx context.Context) error {
	return s.send(ctx, &protocol.ClientEvent{RequestID: newID("req"), Interrupt: &protocol.Interrupt{}})
}

func (s *Session) Cancel(ctx context.Context, reason string) error {
	return s.send(ctx, &protocol.ClientEvent{RequestID: newID("req"), Cancel: &protocol.Cancel{Reason: reason}})
}

func (s *Session) SetPermissionMode(ctx context.Context, mode string) error {
	return s.send(ctx, &protocol.ClientEvent{
		RequestID:         newID("req"),
		SetPermissionMode: &protocol.SetPermissionMode{Mode: mode},
	})
}

func (s *Session) SetModel(ctx context.Context, model string) error {
	return s.send(ctx, &protocol.ClientEvent{RequestID: newID("req"), SetModel: &protocol.SetModel{Model: model}})
}

// Events returns the session-wide event channel. The channel closes when the
// session ends.
//
// Unless the session was attached WithEventsFromAttach, the subscription is
// registered on the first call and earlier events are not replayed. The
// session-init event may already have passed by then; Init and WaitInit
// always report it.
func (s *Session) Events() <-chan *protocol.ServerEvent {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events == nil {
		s.events = s.mux.SubscribeAll(s.cfg.EventBuffer)
	}
	return s.events.Events()
}

// Subscribe registers an additional global subscription. Release it with
// Unsubscribe.
func (s *Session) Subscribe(buffer int) *Subscription {
	return s.mux.SubscribeAll(buffer)
}

func (s *Session) Unsubscribe(sub *Subscription) {
	s.mux.UnsubscribeAll(sub)
}

// SubscribeRequest registers a subscription for one request id, such as one
// returned by Query. It closes after the request's turn END.
func (s *Session) SubscribeRequest(requestID string, buffer int) *Subscription {
	return s.mux.SubscribeRequest(requestID, buffer)
}

// Turns groups the session's events into turns on a dedicated subscription.
// The channel closes when ctx is done or the session ends.
func (s *Session) Turns(ctx context.Context) <-chan *Turn {
	sub := s.mux.SubscribeAll(s.cfg.EventBuffer)
	go func() {
		select {
		case <-ctx.Done():
			s.mux.UnsubscribeAll(sub)
		case <-s.mux.Done():
		}
	}()
	return CollectTurns(ctx, sub.Events())
}

// Init returns the session-init info once the agent has initialized, or nil.
func (s *Session) Init() *SessionInitInfo {
	if !s.init.resolved() {
		return nil
	}
	info, _ := s.init.Wait(context.Background())
	return info
}

// WaitInit blocks until the session-init event arrives or the session ends.
func (s *Session) WaitInit(ctx context.Context) (*SessionInitInfo, error) {
	return s.init.Wait(ctx)
}

// Stats returns a snapshot of the session's event mux.
func (s *Session) Stats() MuxStats {
	return s.mux.Stats()
}

// Done is closed once the receive loop has exited and every subscription has
// been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport failure that ended the session. It is nil while
// the session runs and after an orderly end or Close.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close half-closes the transport and closes the mux, which closes every
// subscription. Close is idempotent and does not wait for Done.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		err = s.shutdown()
		s.logger.Debug("session closed")
	})
	return err
}

func (s *Session) shutdown() error {
	s.cancel()
	s.sendMu.Lock()
	err := s.transport.CloseSend()
	s.sendMu.Unlock()
	if c, ok := s.transport.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	s.mux.Close()
	return err
}

// send is the single outbound path. It stamps the session id.
func (s *Session) send(ctx context.Context, ev *protocol.ClientEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closing.Load() {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	ev.SessionID = s.id

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.transport.Send(ev); err != nil {
		s.telemetry.sendFailed(ev.Payload())
		return &TransportError{Op: "send", Cause: err}
	}
	return nil
}

func (s *Session) recvLoop() {
	defer close(s.done)
	for {
		ev, err := s.transport.Recv()
		if err != nil {
			s.recvEnded(err)
			break
		}
		if ev == nil {
			continue
		}
		if ev.SessionInit != nil {
			s.init.resolve(ParseSessionInit(ev.SessionInit), nil)
		}
		if ev.SessionClosed != nil {
			s.logger.Info("session closed by sidecar", "reason", ev.SessionClosed.Reason)
		}
		s.dispatchCallback(ev)
		s.mux.Enqueue(ev)
	}
	s.mux.Close()
	<-s.mux.Done()
	s.init.resolve(nil, ErrSessionClosed)
}

func (s *Session) recvEnded(err error) {
	if errors.Is(err, io.EOF) || s.closing.Load() {
		s.logger.Debug("session stream ended")
		return
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled && s.ctx.Err() != nil {
		return
	}
	s.logger.Warn("session stream failed", "error", err)
	s.errMu.Lock()
	s.err = &TransportError{Op: "recv", Cause: err}
	s.errMu.Unlock()
}
