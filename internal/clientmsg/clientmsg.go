// Package clientmsg is the client-facing request/response vocabulary
// of spec.md §6: three requests and four responses (one per request,
// plus OperationError for any of them) a node.Dispatcher exchanges with
// whatever sits in front of it — internal/clientapi's REST handlers in
// this implementation. Unlike transport.Message, these never cross a
// Peer; they are handed to the dispatcher's own mailbox and answered
// over a reply channel, mirroring how the original Akka actor replied
// to getSender() for client-originated messages.
package clientmsg

import "github.com/ringkv/ringkv/internal/model"

// Request is the marker every client-originated request implements.
type Request interface {
	clientRequest()
}

// ReadRequest asks the coordinator for the current value of Key.
type ReadRequest struct {
	Key model.Key
}

// UpdateRequest asks the coordinator to durably set Key to Value.
type UpdateRequest struct {
	Key   model.Key
	Value string
}

// LeaveRequest asks the node to perform a graceful departure from the
// ring and then shut down.
type LeaveRequest struct{}

func (ReadRequest) clientRequest()   {}
func (UpdateRequest) clientRequest() {}
func (LeaveRequest) clientRequest()  {}

// Response is the marker every client-facing reply implements.
type Response interface {
	clientResponse()
}

// ReadResponse answers a ReadRequest. Found is false when every owner
// voted ∅.
type ReadResponse struct {
	NodeID model.NodeID
	Key    model.Key
	Value  string
	Found  bool
}

// UpdateResponse answers an UpdateRequest with the item the
// coordinator just wrote.
type UpdateResponse struct {
	NodeID model.NodeID
	Key    model.Key
	Item   model.VersionedItem
}

// LeaveResponse answers a LeaveRequest once handoff has completed.
type LeaveResponse struct {
	NodeID model.NodeID
}

// OperationError answers any request the node could not complete,
// e.g. InsufficientNodes or QuorumTimeout (spec.md §7).
type OperationError struct {
	NodeID  model.NodeID
	Message string
}

func (e OperationError) Error() string { return e.Message }

func (ReadResponse) clientResponse()     {}
func (UpdateResponse) clientResponse()   {}
func (LeaveResponse) clientResponse()    {}
func (OperationError) clientResponse()   {}
