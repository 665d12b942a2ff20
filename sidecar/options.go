package sidecar

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/bazelment/agent-sidecar/protocol"
)

// nopHandler is a slog.Handler that discards all output.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// nopLogger is a shared no-op logger instance.
var nopLogger = slog.New(nopHandler{})

// Default buffer sizes and intervals.
const (
	DefaultEventBuffer       = 256
	DefaultRequestBuffer     = 256
	DefaultPartialBuffer     = 64
	DefaultIdleCheckInterval = 30 * time.Second
)

// ClientInfo identifies this client in the session hello.
type ClientInfo struct {
	Name     string
	Version  string
	Protocol string
}

// Config holds client and session configuration.
type Config struct {
	// Logger receives diagnostics. Defaults to a logger that discards output.
	Logger *slog.Logger

	// TracerProvider and MeterProvider override the global OpenTelemetry
	// providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// ClientInfo is sent in the hello that opens every attached session.
	ClientInfo ClientInfo

	// Token, when set, is attached as a Bearer authorization header on every
	// RPC.
	Token string

	// TransportCredentials secure the connection. Nil means insecure.
	TransportCredentials credentials.TransportCredentials

	// DialOptions are appended to the options passed to grpc.NewClient.
	DialOptions []grpc.DialOption

	// EventBuffer is the channel capacity of Session.Events (default: 256).
	EventBuffer int

	// RequestBuffer is the channel capacity of per-request subscriptions
	// (default: 256).
	RequestBuffer int

	// PartialBuffer is the channel capacity of Stream.Partials (default: 64).
	PartialBuffer int

	// IdleCheckInterval bounds how long a stream handle waits for an event
	// before re-checking whether its subscription was abandoned (default: 30s).
	IdleCheckInterval time.Duration

	// CallbackTimeout bounds each tool, hook and permission handler call. Zero
	// means no timeout.
	CallbackTimeout time.Duration

	// SkipHello attaches without sending the client hello.
	SkipHello bool

	// EventsFromAttach registers the Session.Events subscription before the
	// receive loop starts instead of on the first Events call.
	EventsFromAttach bool
}

// Option is a functional option for configuring a Client or Session.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Logger:            nopLogger,
		ClientInfo:        ClientInfo{Name: "agent-sidecar-go", Protocol: protocol.ProtocolVersion},
		EventBuffer:       DefaultEventBuffer,
		RequestBuffer:     DefaultRequestBuffer,
		PartialBuffer:     DefaultPartialBuffer,
		IdleCheckInterval: DefaultIdleCheckInterval,
	}
}

func (c Config) with(opts ...Option) Config {
	// Copy the slice so per-session options never alias the client's.
	c.DialOptions = append([]grpc.DialOption(nil), c.DialOptions...)
	for _, opt := range opts {
		opt(&c)
	}
	if c.Logger == nil {
		c.Logger = nopLogger
	}
	if c.ClientInfo.Protocol == "" {
		c.ClientInfo.Protocol = protocol.ProtocolVersion
	}
	return c
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracerProvider overrides the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider overrides the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

// WithClientInfo sets the name and version sent in the session hello.
func WithClientInfo(info ClientInfo) Option {
	return func(c *Config) {
		c.ClientInfo = info
	}
}

// WithToken authenticates every RPC with a Bearer token.
func WithToken(token string) Option {
	return func(c *Config) {
		c.Token = token
	}
}

// WithTransportCredentials dials with TLS or other transport security.
func WithTransportCredentials(creds credentials.TransportCredentials) Option {
	return func(c *Config) {
		c.TransportCredentials = creds
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Config) {
		c.DialOptions = append(c.DialOptions, opts...)
	}
}

// WithEventBuffer sets the Session.Events channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		c.EventBuffer = n
	}
}

// WithRequestBuffer sets the per-request subscription capacity.
func WithRequestBuffer(n int) Option {
	return func(c *Config) {
		c.RequestBuffer = n
	}
}

// WithPartialBuffer sets the Stream.Partials channel capacity.
func WithPartialBuffer(n int) Option {
	return func(c *Config) {
		c.PartialBuffer = n
	}
}

// WithIdleCheckInterval sets how often an idle stream handle re-checks its
// subscription.
func WithIdleCheckInterval(d time.Duration) Option {
	return func(c *Config) {
		c.IdleCheckInterval = d
	}
}

// WithCallbackTimeout bounds each callback handler invocation.
func WithCallbackTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CallbackTimeout = d
	}
}

// WithoutHello attaches without sending the client hello.
func WithoutHello() Option {
	return func(c *Config) {
		c.SkipHello = true
	}
}

// WithEventsFromAttach makes Session.Events include every event from the
// moment the session is attached, session init and early callback requests
// included. Events are then buffered until read, so only use it when the
// channel will be drained.
func WithEventsFromAttach() Option {
	return func(c *Config) {
		c.EventsFromAttach = true
	}
}

// newID returns a random id such as "req_6f1c...".
func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
