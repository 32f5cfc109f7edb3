// Package transport defines the capability the core assumes as an
// external collaborator: "an unreliable ordered point-to-point
// delivery primitive between named peers" (spec.md §1). The core
// never knows how a Handle is actually dialled — it only ever holds
// handles it got out of the NodeRegistry and hands them back to Peer.
package transport

import "context"

// Handle is an opaque, backend-specific address for a peer. The
// local (in-process) and grpcpeer backends each define their own
// concrete Handle type; the core treats it as inert data it shuttles
// around and never inspects.
type Handle interface{}

// Peer is the capability every component that needs to talk to
// another node depends on: the Membership Engine to multicast
// Join/ReJoin/Leave and request NodesList/JoinData, the Quorum
// Coordinator to fan out ReadRequest/WriteRequest.
//
// Send must preserve FIFO order per (from, to) directed edge (spec.md
// §5 "Ordering guarantees"). Send is synchronous in both backends:
// grpcpeer's Send returns only once the remote Deliver call has
// returned, so it blocks the caller on network I/O; local's Send
// blocks while the destination mailbox is full.
type Peer interface {
	Send(ctx context.Context, to Handle, msg Message) error
}

// Message is the marker interface every peer message vocabulary type
// in messages.go implements. It exists purely to give Peer.Send a
// narrower signature than interface{}.
type Message interface {
	peerMessage()
}
