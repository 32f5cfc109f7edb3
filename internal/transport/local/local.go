// Package local implements an in-process Peer transport: one buffered
// Go channel per registered node, addressed by a Handle that is
// simply the destination's NodeID. It is grounded on the in-memory
// transport double in senutpal-quorum's internal/transport/memory.go,
// and is what the end-to-end node tests in ringkv run against.
//
// Because every Send call that originates from a given node happens
// synchronously from within that node's single dispatcher goroutine
// (spec.md §5), writing directly into the destination's channel,
// without spawning a goroutine per send, is enough to guarantee FIFO
// delivery per directed edge.
package local

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/transport"
)

// mailboxSize bounds how many undelivered messages a node's inbound
// queue can hold before Send blocks. Generous enough that a
// coordinator's self-send during its own quorum fan-out never stalls
// waiting for its own dispatcher loop to drain a prior message.
const mailboxSize = 4096

// Handle is the local transport's concrete Handle type: the
// destination NodeID, nothing else. Registered with gob because it
// travels inside NodesList payloads.
type Handle model.NodeID

func (h Handle) String() string { return fmt.Sprintf("local:%d", int(h)) }

func init() {
	gob.Register(Handle(0))
}

// Network is a shared in-process switchboard. Every NodeID that will
// ever send or receive through this Network must first call
// Register.
type Network struct {
	mu    sync.Mutex
	boxes map[model.NodeID]chan transport.Message
}

// NewNetwork creates an empty switchboard.
func NewNetwork() *Network {
	return &Network{boxes: make(map[model.NodeID]chan transport.Message)}
}

// Register creates the inbound mailbox for id (idempotent) and
// returns it along with the Handle peers should use to address id.
func (n *Network) Register(id model.NodeID) (<-chan transport.Message, transport.Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	box, ok := n.boxes[id]
	if !ok {
		box = make(chan transport.Message, mailboxSize)
		n.boxes[id] = box
	}
	return box, Handle(id)
}

// Send delivers msg to the mailbox registered for to's NodeID. It
// blocks only if that mailbox is full (spec.md §5 notes sends "are
// non-blocking" as a design goal, not a hard guarantee under
// pathological backlog; mailboxSize is sized so this never matters in
// practice).
func (n *Network) Send(ctx context.Context, to transport.Handle, msg transport.Message) error {
	handle, ok := to.(Handle)
	if !ok {
		return fmt.Errorf("local: transport.Handle %v is not a local.Handle", to)
	}
	n.mu.Lock()
	box, ok := n.boxes[model.NodeID(handle)]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("local: no node registered for %s", handle)
	}
	select {
	case box <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes id's mailbox, e.g. once it has left the ring.
// Pending sends to it will fail with "no node registered" rather than
// silently blocking forever.
func (n *Network) Unregister(id model.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.boxes, id)
}
