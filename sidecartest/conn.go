package sidecartest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/bazelment/agent-sidecar/protocol"
)

// ErrConnClosed is returned by Conn methods once the attached stream ended.
var ErrConnClosed = errors.New("sidecartest: connection closed")

// Conn is the server side of one AttachSession stream. The test drives it:
// Send pushes server events, Next and Expect read what the client sent.
type Conn struct {
	stream    grpc.ServerStream
	inbox     chan *protocol.ClientEvent
	closed    chan struct{}
	recvDone  chan struct{}
	closeErr  error
	recvErr   error
	sessionID string
	received  []*protocol.ClientEvent
	skipped   []*protocol.ClientEvent // passed over by Expect, served first
	seq       atomic.Uint64
	sendMu    sync.Mutex
	mu        sync.Mutex
	closeOnce sync.Once
}

func newConn(stream grpc.ServerStream) *Conn {
	c := &Conn{
		stream:   stream,
		inbox:    make(chan *protocol.ClientEvent, 1024),
		closed:   make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.recvDone)
	defer close(c.inbox)
	for {
		ev := new(protocol.ClientEvent)
		if err := c.stream.RecvMsg(ev); err != nil {
			c.mu.Lock()
			c.recvErr = err
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		if c.sessionID == "" {
			c.sessionID = ev.SessionID
		}
		c.received = append(c.received, ev)
		c.mu.Unlock()
		select {
		case c.inbox <- ev:
		case <-c.closed:
			return
		}
	}
}

// SessionID is the session id stamped on the first client event.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Received returns every client event read so far.
func (c *Conn) Received() []*protocol.ClientEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.ClientEvent(nil), c.received...)
}

// Send pushes events to the client in order. Missing session ids are filled
// in and every event gets the next sequence number.
func (c *Conn) Send(events ...*protocol.ServerEvent) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for _, ev := range events {
		select {
		case <-c.closed:
			return ErrConnClosed
		default:
		}
		if ev.SessionID == "" {
			ev.SessionID = c.SessionID()
		}
		ev.Seq = c.seq.Add(1)
		if err := c.stream.SendMsg(ev); err != nil {
			return fmt.Errorf("send %s: %w", ev.PayloadKind(), err)
		}
	}
	return nil
}

// Next returns the next client event, including ones an earlier Expect
// passed over.
func (c *Conn) Next(ctx context.Context) (*protocol.ClientEvent, error) {
	c.mu.Lock()
	if len(c.skipped) > 0 {
		ev := c.skipped[0]
		c.skipped = c.skipped[1:]
		c.mu.Unlock()
		return ev, nil
	}
	c.mu.Unlock()
	return c.recv(ctx)
}

func (c *Conn) recv(ctx context.Context) (*protocol.ClientEvent, error) {
	select {
	case ev, ok := <-c.inbox:
		if !ok {
			return nil, ErrConnClosed
		}
		return ev, nil
	case <-c.closed:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Expect returns the first client event carrying payload. Events it passes
// over stay queued, in order, for later Next and Expect calls, so callers
// can wait for concurrent responses in any order.
func (c *Conn) Expect(ctx context.Context, payload protocol.ClientPayload) (*protocol.ClientEvent, error) {
	c.mu.Lock()
	for i, ev := range c.skipped {
		if ev.Payload() == payload {
			c.skipped = append(c.skipped[:i:i], c.skipped[i+1:]...)
			c.mu.Unlock()
			return ev, nil
		}
	}
	c.mu.Unlock()

	for {
		ev, err := c.recv(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", payload, err)
		}
		if ev.Payload() == payload {
			return ev, nil
		}
		c.mu.Lock()
		c.skipped = append(c.skipped, ev)
		c.mu.Unlock()
	}
}

// RecvErr is the error that ended the client-to-server direction, io.EOF
// after a client half-close.
func (c *Conn) RecvErr() error {
	<-c.recvDone
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvErr
}

// Close ends the stream. A nil err ends it cleanly, which the client sees as
// io.EOF; otherwise err is returned as the RPC status.
func (c *Conn) Close(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
}

// Done is closed once Close was called.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

func (c *Conn) wait() error {
	select {
	case <-c.closed:
		return c.closeErr
	case <-c.stream.Context().Done():
		c.Close(nil)
		return c.stream.Context().Err()
	}
}
