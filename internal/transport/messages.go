package transport

import (
	"encoding/gob"

	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/storage"
)

// Every message in the peer vocabulary of spec.md §6. Each carries
// SenderID per the spec's blanket rule ("all messages carry
// senderID"). They are registered with encoding/gob in init() so the
// grpcpeer transport's gob codec can marshal them across an
// interface-typed envelope field without a .proto schema — see
// transport/grpcpeer/codec.go.

// JoinRequest is sent by a new or recovering node to any ring member
// to learn the current membership. SenderHandle carries the joiner's
// own address, mirroring what the original Akka implementation got
// for free from getSender() — our point-to-point Peer.Send has no
// such implicit return address, so one travels in the payload
// whenever the recipient cannot yet resolve SenderID through its own
// NodeRegistry.
type JoinRequest struct {
	SenderID     model.NodeID
	SenderHandle Handle
}

// NodesList answers a JoinRequest with the sender's current
// NodeRegistry.
type NodesList struct {
	SenderID model.NodeID
	Nodes    map[model.NodeID]Handle
}

// DataRequest is sent by a joiner to its ring successor, asking for
// the records it must now hold a replica of.
type DataRequest struct {
	SenderID model.NodeID
}

// JoinData answers a DataRequest with the records the joiner should
// adopt.
type JoinData struct {
	SenderID model.NodeID
	Records  storage.Records
}

// Join announces that SenderID has finished joining and is now READY.
// SenderHandle is recorded into the recipient's NodeRegistry, since
// SenderID is new to every other node by definition.
type Join struct {
	SenderID     model.NodeID
	SenderHandle Handle
}

// ReJoin announces that SenderID, previously known, has rejoined
// after a crash and its transport handle may have changed. SenderHandle
// overwrites the recipient's stale entry for SenderID.
type ReJoin struct {
	SenderID     model.NodeID
	SenderHandle Handle
}

// Leave announces that SenderID is leaving the ring.
type Leave struct {
	SenderID model.NodeID
}

// LeaveData carries a leaving node's full storage to one of the
// nodes that become newly responsible for it.
type LeaveData struct {
	SenderID model.NodeID
	Records  storage.Records
}

// ReadRequest asks an owner of Key for its current item, correlated
// by (coordinator ID, ReqID).
type ReadRequest struct {
	SenderID model.NodeID
	ReqID    int
	Key      model.Key
}

// ReadResponse answers a ReadRequest. Item is nil to represent ∅ (a
// valid vote that still counts toward quorum).
type ReadResponse struct {
	SenderID model.NodeID
	ReqID    int
	Key      model.Key
	Item     *model.VersionedItem
}

// WriteRequest instructs an owner of Key to durably store Item. No
// reply is expected (spec.md §4.E "No reply").
type WriteRequest struct {
	SenderID model.NodeID
	ReqID    int
	Key      model.Key
	Item     model.VersionedItem
}

// TimeoutMessage is delivered by the node's own scheduler back onto
// its own mailbox; it never crosses the wire, but it satisfies
// Message so the Node Dispatcher can type-switch it alongside
// genuine peer messages.
type TimeoutMessage struct {
	ReqID int
}

func (JoinRequest) peerMessage()    {}
func (NodesList) peerMessage()      {}
func (DataRequest) peerMessage()    {}
func (JoinData) peerMessage()       {}
func (Join) peerMessage()           {}
func (ReJoin) peerMessage()         {}
func (Leave) peerMessage()          {}
func (LeaveData) peerMessage()      {}
func (ReadRequest) peerMessage()    {}
func (ReadResponse) peerMessage()   {}
func (WriteRequest) peerMessage()   {}
func (TimeoutMessage) peerMessage() {}

func init() {
	gob.Register(JoinRequest{})
	gob.Register(NodesList{})
	gob.Register(DataRequest{})
	gob.Register(JoinData{})
	gob.Register(Join{})
	gob.Register(ReJoin{})
	gob.Register(Leave{})
	gob.Register(LeaveData{})
	gob.Register(ReadRequest{})
	gob.Register(ReadResponse{})
	gob.Register(WriteRequest{})
	gob.Register(TimeoutMessage{})
}
