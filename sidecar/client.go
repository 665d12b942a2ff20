package sidecar

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Client is a connection to a sidecar. It exposes the control-plane calls and
// attaches sessions.
type Client struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
	cfg    Config
}

// Dial creates a client for addr. The connection is established lazily on
// the first call.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig().with(opts...)

	creds := cfg.TransportCredentials
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(protocol.CodecName)),
	}
	if cfg.Token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(NewBearerToken(cfg.Token, cfg.TransportCredentials != nil)))
	}
	dialOpts = append(dialOpts, cfg.DialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial sidecar %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		logger: cfg.Logger.With("addr", addr),
		cfg:    cfg,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// AttachSession opens the session event stream and wraps it in a Session.
// Options override the client's configuration for this session only.
func (c *Client) AttachSession(ctx context.Context, sessionID string, handlers Handlers, opts ...Option) (*Session, error) {
	cfg := c.cfg.with(opts...)
	t, err := openGRPCTransport(ctx, c.conn)
	if err != nil {
		return nil, fmt.Errorf("attach session %s: %w", sessionID, err)
	}
	s, err := newSession(ctx, t, sessionID, handlers, cfg)
	if err != nil {
		return nil, fmt.Errorf("attach session %s: %w", sessionID, err)
	}
	return s, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		c.logger.Debug("control call failed", "method", method, "error", err)
		return err
	}
	return nil
}

func (c *Client) GetInfo(ctx context.Context) (*protocol.GetInfoResponse, error) {
	resp := &protocol.GetInfoResponse{}
	if err := c.invoke(ctx, protocol.MethodGetInfo, &protocol.GetInfoRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// HasCapability asks the sidecar whether it supports capability.
func (c *Client) HasCapability(ctx context.Context, capability string) (bool, error) {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.HasCapability(capability), nil
}

func (c *Client) HealthCheck(ctx context.Context) (*protocol.HealthCheckResponse, error) {
	resp := &protocol.HealthCheckResponse{}
	if err := c.invoke(ctx, protocol.MethodHealthCheck, &protocol.HealthCheckRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateSession(ctx context.Context, cfg protocol.SessionConfig) (*protocol.SessionSummary, error) {
	resp := &protocol.CreateSessionResponse{}
	if err := c.invoke(ctx, protocol.MethodCreateSession, &protocol.CreateSessionRequest{Config: cfg}, resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*protocol.SessionSummary, error) {
	resp := &protocol.GetSessionResponse{}
	if err := c.invoke(ctx, protocol.MethodGetSession, &protocol.GetSessionRequest{SessionID: sessionID}, resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]protocol.SessionSummary, error) {
	resp := &protocol.ListSessionsResponse{}
	if err := c.invoke(ctx, protocol.MethodListSessions, &protocol.ListSessionsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// DeleteSession deletes a session. With force, an attached session is
// detached first.
func (c *Client) DeleteSession(ctx context.Context, sessionID string, force bool) (bool, error) {
	resp := &protocol.DeleteSessionResponse{}
	req := &protocol.DeleteSessionRequest{SessionID: sessionID, Force: force}
	if err := c.invoke(ctx, protocol.MethodDeleteSession, req, resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

func (c *Client) ForkSession(ctx context.Context, sessionID string, cfg protocol.SessionConfig) (*protocol.SessionSummary, error) {
	resp := &protocol.ForkSessionResponse{}
	req := &protocol.ForkSessionRequest{SessionID: sessionID, Config: cfg}
	if err := c.invoke(ctx, protocol.MethodForkSession, req, resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// RewindFiles restores files to a user-message checkpoint.
func (c *Client) RewindFiles(ctx context.Context, sessionID, checkpointUUID string) (*protocol.RewindFilesResponse, error) {
	resp := &protocol.RewindFilesResponse{}
	req := &protocol.RewindFilesRequest{SessionID: sessionID, CheckpointUUID: checkpointUUID}
	if err := c.invoke(ctx, protocol.MethodRewindFiles, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
