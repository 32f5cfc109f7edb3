package grpcpeer

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/ringkv/ringkv/internal/transport"
)

// Server adapts an incoming Deliver call onto a local sink: the same
// role local.Network.Send plays for the in-process transport, except
// here there is exactly one destination — whichever node this gRPC
// server was started for — so no NodeID-keyed routing table is
// needed.
type Server struct {
	sink chan<- transport.Message
}

// NewServer returns a PeerServer that pushes every delivered Message
// onto sink. sink is normally a node.Dispatcher's own inbound channel.
func NewServer(sink chan<- transport.Message) *Server {
	return &Server{sink: sink}
}

func (s *Server) Deliver(ctx context.Context, env *Envelope) (*Ack, error) {
	select {
	case s.sink <- env.Msg:
		return &Ack{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Listen starts a gRPC server bound to addr, serving srv as the
// PeerService, and returns once the listener is accepting connections.
// The returned grpc.Server should be Stop'd by the caller on shutdown.
func Listen(addr string, srv PeerServer) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	RegisterPeerServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
