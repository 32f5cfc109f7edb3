package grpcpeer

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ringkv/ringkv/internal/transport"
)

// Handle is the grpcpeer transport's concrete Handle: a dial target of
// the form "host:port". Registered with gob because it travels inside
// NodesList payloads alongside every other Handle implementation.
type Handle string

func (h Handle) String() string { return string(h) }

func init() {
	gob.Register(Handle(""))
}

// conn is a single dialled connection and its Deliver stub.
type conn struct {
	cc     *grpc.ClientConn
	client PeerClient
}

// Transport is a Peer backed by real gRPC connections, one per
// distinct address, dialled lazily and cached for reuse. It is the
// production counterpart to transport/local.Network.
type Transport struct {
	mu    sync.Mutex
	conns map[string]*conn
}

// NewTransport returns an empty connection pool.
func NewTransport() *Transport {
	return &Transport{conns: make(map[string]*conn)}
}

func (t *Transport) dial(addr string) (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[addr]; ok {
		return c, nil
	}
	cc, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, err
	}
	c := &conn{cc: cc, client: NewPeerClient(cc)}
	t.conns[addr] = c
	return c, nil
}

// Send implements transport.Peer by dialling (or reusing a dial to)
// to's address and invoking Deliver.
func (t *Transport) Send(ctx context.Context, to transport.Handle, msg transport.Message) error {
	addr, ok := to.(Handle)
	if !ok {
		return fmt.Errorf("grpcpeer: transport.Handle %v is not a grpcpeer.Handle", to)
	}
	c, err := t.dial(string(addr))
	if err != nil {
		return err
	}
	_, err = c.client.Deliver(ctx, &Envelope{Msg: msg})
	return err
}

// Close tears down every pooled connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var first error
	for addr, c := range t.conns {
		if err := c.cc.Close(); err != nil && first == nil {
			first = err
		}
		delete(t.conns, addr)
	}
	return first
}
