// Package ws carries an attached sidecar session over a WebSocket. Each
// frame is one JSON-encoded protocol event: ClientEvent upstream,
// ServerEvent downstream.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazelment/agent-sidecar/protocol"
)

// closeGrace bounds the write of the close frame.
const closeGrace = time.Second

// Option configures Dial.
type Option func(*dialConfig)

type dialConfig struct {
	dialer *websocket.Dialer
	header http.Header
}

// WithToken sends token as a bearer Authorization header on the handshake.
func WithToken(token string) Option {
	return func(c *dialConfig) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(c *dialConfig) {
		c.header.Add(key, value)
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *dialConfig) {
		c.dialer = d
	}
}

// Transport is a sidecar.Transport over one WebSocket connection.
type Transport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a WebSocket to url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Transport, error) {
	cfg := dialConfig{dialer: websocket.DefaultDialer, header: http.Header{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	conn, resp, err := cfg.dialer.DialContext(ctx, url, cfg.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

func (t *Transport) Send(ev *protocol.ClientEvent) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(ev)
}

// Recv returns the next server event. A normal close from the peer is
// reported as io.EOF.
func (t *Transport) Recv() (*protocol.ServerEvent, error) {
	ev := new(protocol.ServerEvent)
	if err := t.conn.ReadJSON(ev); err != nil {
		return nil, normalizeReadErr(err)
	}
	return ev, nil
}

// CloseSend sends a normal-closure frame. The peer is expected to finish and
// answer with its own close frame, which Recv reports as io.EOF.
func (t *Transport) CloseSend() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func normalizeReadErr(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

var _ io.Closer = (*Transport)(nil)
