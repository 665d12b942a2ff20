package sidecartest

import (
	"context"

	"google.golang.org/grpc"

	"github.com/bazelment/agent-sidecar/protocol"
)

// serviceDesc registers the sidecar service without generated stubs. Messages
// are the protocol records, carried by protocol.Codec.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: protocol.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetInfo", (*Server).getInfo),
		unary("HealthCheck", (*Server).healthCheck),
		unary("CreateSession", (*Server).createSession),
		unary("GetSession", (*Server).getSession),
		unary("ListSessions", (*Server).listSessions),
		unary("DeleteSession", (*Server).deleteSession),
		unary("ForkSession", (*Server).forkSession),
		unary("RewindFiles", (*Server).rewindFiles),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "AttachSession",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(*Server).attach(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func unary[Req, Resp any](name string, fn func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + protocol.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return fn(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			})
		},
	}
}
