// Package sidecartest runs an in-process fake sidecar for tests. It serves the
// sidecar gRPC service on a localhost listener, keeps sessions in memory and
// hands every attached stream to the test as a Conn.
package sidecartest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bazelment/agent-sidecar/protocol"
)

// AttachHandler drives one attached stream. Its return value becomes the RPC
// status; returning nil ends the stream cleanly.
type AttachHandler func(ctx context.Context, c *Conn) error

// Option configures a Server.
type Option func(*Server)

// WithToken requires a Bearer token on every call.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithInfo sets the GetInfo response.
func WithInfo(info protocol.GetInfoResponse) Option {
	return func(s *Server) { s.info = info }
}

// WithAttachHandler runs h for every attached stream instead of queueing the
// stream for Accept.
func WithAttachHandler(h AttachHandler) Option {
	return func(s *Server) { s.onAttach = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is a fake sidecar.
type Server struct {
	srv      *grpc.Server
	lis      net.Listener
	group    *errgroup.Group
	logger   *slog.Logger
	onAttach AttachHandler
	attached chan *Conn
	sessions map[string]*protocol.SessionSummary
	conns    []*Conn
	order    []string
	token    string
	info     protocol.GetInfoResponse
	mu       sync.Mutex
	stopOnce sync.Once
}

// Start listens on a random localhost port and serves until Close.
func Start(opts ...Option) (*Server, error) {
	s := &Server{
		logger:   slog.New(slog.DiscardHandler),
		attached: make(chan *Conn, 64),
		sessions: make(map[string]*protocol.SessionSummary),
		info: protocol.GetInfoResponse{
			SidecarVersion:  "sidecartest",
			ProtocolVersion: protocol.ProtocolVersion,
			Capabilities: []string{
				protocol.CapabilityHooks,
				protocol.CapabilityPermissions,
				protocol.CapabilityClientTools,
				protocol.CapabilityInputStream,
				protocol.CapabilitySessions,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.lis = lis

	var serverOpts []grpc.ServerOption
	if s.token != "" {
		serverOpts = append(serverOpts,
			grpc.UnaryInterceptor(tokenUnaryInterceptor(s.token)),
			grpc.StreamInterceptor(tokenStreamInterceptor(s.token)),
		)
	}
	s.srv = grpc.NewServer(serverOpts...)
	s.srv.RegisterService(&serviceDesc, s)

	s.group = new(errgroup.Group)
	s.group.Go(func() error {
		return s.srv.Serve(lis)
	})
	s.logger.Debug("fake sidecar listening", "addr", s.Addr())
	return s, nil
}

// Addr is the host:port to dial.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Accept waits for the next attached stream. It is only fed when no
// AttachHandler is configured.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-s.attached:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddSession registers a session as if CreateSession had been called.
func (s *Server) AddSession(summary protocol.SessionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(summary)
}

// Sessions returns the registered sessions in creation order.
func (s *Server) Sessions() []protocol.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.SessionSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sessions[id])
	}
	return out
}

// Close ends every attached stream and stops the server.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		conns := append([]*Conn(nil), s.conns...)
		s.mu.Unlock()
		for _, c := range conns {
			c.Close(nil)
		}
		s.srv.GracefulStop()
		err = s.group.Wait()
	})
	return err
}

func (s *Server) putLocked(summary protocol.SessionSummary) {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}
	if summary.State == "" {
		summary.State = protocol.SessionStateIdle
	}
	if _, ok := s.sessions[summary.SessionID]; !ok {
		s.order = append(s.order, summary.SessionID)
	}
	s.sessions[summary.SessionID] = &summary
}

func (s *Server) getLocked(sessionID string) (*protocol.SessionSummary, error) {
	summary, ok := s.sessions[sessionID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session %s not found", sessionID)
	}
	return summary, nil
}

func (s *Server) attach(stream grpc.ServerStream) error {
	c := newConn(stream)
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	if s.onAttach != nil {
		err := s.onAttach(stream.Context(), c)
		c.Close(err)
		return err
	}
	select {
	case s.attached <- c:
	case <-stream.Context().Done():
		return stream.Context().Err()
	}
	return c.wait()
}

// ============================================================================
// Control plane
// ============================================================================

func (s *Server) getInfo(context.Context, *protocol.GetInfoRequest) (*protocol.GetInfoResponse, error) {
	info := s.info
	return &info, nil
}

func (s *Server) healthCheck(context.Context, *protocol.HealthCheckRequest) (*protocol.HealthCheckResponse, error) {
	return &protocol.HealthCheckResponse{Status: "ok"}, nil
}

func (s *Server) createSession(_ context.Context, req *protocol.CreateSessionRequest) (*protocol.CreateSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "sess_" + uuid.NewString()
	s.putLocked(protocol.SessionSummary{SessionID: id, Model: req.Config.Model})
	return &protocol.CreateSessionResponse{Session: *s.sessions[id]}, nil
}

func (s *Server) getSession(_ context.Context, req *protocol.GetSessionRequest) (*protocol.GetSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, err := s.getLocked(req.SessionID)
	if err != nil {
		return nil, err
	}
	return &protocol.GetSessionResponse{Session: *summary}, nil
}

func (s *Server) listSessions(context.Context, *protocol.ListSessionsRequest) (*protocol.ListSessionsResponse, error) {
	return &protocol.ListSessionsResponse{Sessions: s.Sessions()}, nil
}

func (s *Server) deleteSession(_ context.Context, req *protocol.DeleteSessionRequest) (*protocol.DeleteSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.sessions[req.SessionID]
	if !ok {
		return &protocol.DeleteSessionResponse{Deleted: false}, nil
	}
	if summary.Attached && !req.Force {
		return nil, status.Errorf(codes.FailedPrecondition, "session %s is attached", req.SessionID)
	}
	delete(s.sessions, req.SessionID)
	for i, id := range s.order {
		if id == req.SessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return &protocol.DeleteSessionResponse{Deleted: true}, nil
}

func (s *Server) forkSession(_ context.Context, req *protocol.ForkSessionRequest) (*protocol.ForkSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := s.getLocked(req.SessionID)
	if err != nil {
		return nil, err
	}
	model := req.Config.Model
	if model == "" {
		model = parent.Model
	}
	id := "sess_" + uuid.NewString()
	s.putLocked(protocol.SessionSummary{SessionID: id, Model: model})
	return &protocol.ForkSessionResponse{Session: *s.sessions[id]}, nil
}

func (s *Server) rewindFiles(_ context.Context, req *protocol.RewindFilesRequest) (*protocol.RewindFilesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getLocked(req.SessionID); err != nil {
		return nil, err
	}
	if req.CheckpointUUID == "" {
		return nil, status.Error(codes.InvalidArgument, "checkpoint_uuid is required")
	}
	return &protocol.RewindFilesResponse{Rewound: true, Message: "rewound to " + req.CheckpointUUID}, nil
}
