package grpcpeer

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ringkv/ringkv/internal/transport"
)

// serviceName mirrors the "/package.Service/Method" full method name
// protoc-gen-go-grpc would derive from a peer.proto file.
const serviceName = "ringkv.peer.PeerService"

// Envelope is the single payload Deliver ever carries. Msg holds one
// of the concrete types in transport/messages.go; the gob codec can
// round-trip it through this interface-typed field because every
// concrete message type is registered with gob.Register in that
// file's init().
type Envelope struct {
	Msg transport.Message
}

// Ack is Deliver's empty response — the wire vocabulary of spec.md §6
// has no peer-to-peer reply payloads beyond ReadResponse, which is
// itself just another Message flowing through Deliver in the other
// direction.
type Ack struct{}

// PeerServer is implemented by whatever should receive delivered
// messages — see Server in server.go.
type PeerServer interface {
	Deliver(ctx context.Context, env *Envelope) (*Ack, error)
}

// PeerClient is the stub protoc-gen-go-grpc would generate for the
// PeerService/Deliver method.
type PeerClient interface {
	Deliver(ctx context.Context, env *Envelope, opts ...grpc.CallOption) (*Ack, error)
}

type peerClient struct {
	cc *grpc.ClientConn
}

// NewPeerClient wraps a dialled connection with the Deliver stub.
func NewPeerClient(cc *grpc.ClientConn) PeerClient {
	return &peerClient{cc: cc}
}

func (c *peerClient) Deliver(ctx context.Context, env *Envelope, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Deliver", env, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterPeerServer registers srv's Deliver method on grpcServer,
// exactly like a generated RegisterPeerServiceServer would.
func RegisterPeerServer(grpcServer *grpc.Server, srv PeerServer) {
	grpcServer.RegisterService(&serviceDesc, srv)
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Deliver"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).Deliver(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ringkv/peer.proto",
}
