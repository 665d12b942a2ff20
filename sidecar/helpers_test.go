package sidecar

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bazelment/agent-sidecar/protocol"
)

const waitTimeout = 2 * time.Second

// ============================================================================
// Event builders
// ============================================================================

func beginEvent(turnID, requestID string, index uint32) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		TurnID:    turnID,
		RequestID: requestID,
		Turn:      &protocol.TurnBoundary{Kind: protocol.BoundaryBegin, TurnIndex: index},
	}
}

func endEvent(turnID, requestID string, index uint32) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		TurnID:    turnID,
		RequestID: requestID,
		Turn:      &protocol.TurnBoundary{Kind: protocol.BoundaryEnd, TurnIndex: index},
	}
}

func assistantEvent(turnID, requestID, text string, partial bool) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		TurnID:    turnID,
		RequestID: requestID,
		Message: &protocol.MessageEvent{
			IsPartial: partial,
			Assistant: &protocol.AssistantMessage{
				Content: []protocol.ContentBlock{protocol.TextBlock(text)},
			},
		},
	}
}

func resultEvent(turnID, requestID, result string, partial bool) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		TurnID:    turnID,
		RequestID: requestID,
		Message: &protocol.MessageEvent{
			IsPartial: partial,
			Result:    &protocol.ResultMessage{Result: result, Subtype: "success"},
		},
	}
}

func stderrEvent(turnID, requestID, line string) *protocol.ServerEvent {
	return &protocol.ServerEvent{TurnID: turnID, RequestID: requestID, Stderr: &protocol.StderrLine{Line: line}}
}

// ============================================================================
// Channel helpers
// ============================================================================

// recvEvent reads one event or fails after waitTimeout.
func recvEvent(t *testing.T, ch <-chan *protocol.ServerEvent) *protocol.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// drain reads until ch closes.
func drain[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var out []T
	deadline := time.After(waitTimeout)
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, item)
		case <-deadline:
			t.Fatalf("timed out draining channel after %d items", len(out))
			return out
		}
	}
}

func requireClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
	}
}

// ============================================================================
// Fake transport
// ============================================================================

// fakeTransport is an in-memory Transport. The test plays the sidecar: push
// delivers server events, sent returns what the session wrote.
type fakeTransport struct {
	inbound   chan recvResult
	closed    chan struct{}
	sendErr   error
	sent      []*protocol.ClientEvent
	mu        sync.Mutex
	closeOnce sync.Once
	halfClose bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan recvResult, 1024),
		closed:  make(chan struct{}),
	}
}

// recvResult is one Recv result. Events and failures share a channel so a
// failure is seen only after every event pushed before it.
type recvResult struct {
	ev  *protocol.ServerEvent
	err error
}

func (f *fakeTransport) Send(ev *protocol.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) Recv() (*protocol.ServerEvent, error) {
	select {
	case in, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return in.ev, in.err
	case <-f.closed:
		return nil, errors.New("transport closed")
	}
}

func (f *fakeTransport) CloseSend() error {
	f.mu.Lock()
	f.halfClose = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) halfClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halfClose
}

func (f *fakeTransport) push(events ...*protocol.ServerEvent) {
	for _, ev := range events {
		f.inbound <- recvResult{ev: ev}
	}
}

// end finishes the server side with io.EOF.
func (f *fakeTransport) end() {
	close(f.inbound)
}

func (f *fakeTransport) fail(err error) {
	f.inbound <- recvResult{err: err}
}

func (f *fakeTransport) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) sentEvents() []*protocol.ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.ClientEvent(nil), f.sent...)
}

// waitSent waits for a sent event matching match and returns it.
func (f *fakeTransport) waitSent(t *testing.T, match func(*protocol.ClientEvent) bool) *protocol.ClientEvent {
	t.Helper()
	var found *protocol.ClientEvent
	require.Eventually(t, func() bool {
		for _, ev := range f.sentEvents() {
			if match(ev) {
				found = ev
				return true
			}
		}
		return false
	}, waitTimeout, 5*time.Millisecond)
	return found
}

func (f *fakeTransport) waitPayload(t *testing.T, payload protocol.ClientPayload) *protocol.ClientEvent {
	t.Helper()
	return f.waitSent(t, func(ev *protocol.ClientEvent) bool { return ev.Payload() == payload })
}

func (f *fakeTransport) lastQuery(t *testing.T) *protocol.ClientEvent {
	t.Helper()
	var last *protocol.ClientEvent
	for _, ev := range f.sentEvents() {
		if ev.Query != nil {
			last = ev
		}
	}
	require.NotNil(t, last, "no query sent")
	return last
}
