package sidecar

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Transport is an ordered bidirectional event stream bound to one sidecar
// session. Send is called under the session's send lock, Recv only from the
// session's receive loop. A Transport that also implements io.Closer is
// closed when the session closes.
type Transport interface {
	Send(*protocol.ClientEvent) error
	Recv() (*protocol.ServerEvent, error)
	CloseSend() error
}

// attachStreamDesc describes the AttachSession bidirectional stream.
var attachStreamDesc = &grpc.StreamDesc{
	StreamName:    "AttachSession",
	ServerStreams: true,
	ClientStreams: true,
}

// grpcTransport adapts an AttachSession client stream. Events travel through
// protocol.Codec, so the stream's messages are the protocol structs.
type grpcTransport struct {
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func openGRPCTransport(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (*grpcTransport, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(protocol.CodecName)}, opts...)
	stream, err := conn.NewStream(streamCtx, attachStreamDesc, protocol.MethodAttachSession, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &grpcTransport{stream: stream, cancel: cancel}, nil
}

func (t *grpcTransport) Send(ev *protocol.ClientEvent) error {
	return t.stream.SendMsg(ev)
}

func (t *grpcTransport) Recv() (*protocol.ServerEvent, error) {
	ev := new(protocol.ServerEvent)
	if err := t.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (t *grpcTransport) CloseSend() error {
	return t.stream.CloseSend()
}

// Close cancels the stream, which unblocks a pending Recv.
func (t *grpcTransport) Close() error {
	t.closeOnce.Do(t.cancel)
	return nil
}
