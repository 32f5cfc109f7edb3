// Package coordinator implements the Quorum Coordinator (spec.md
// §4.E) and the Request Tables it owns (spec.md §4.C): client-facing
// read/update orchestration, replica fan-out, quorum detection,
// version assignment and timeout surfacing. It mirrors NodeActor's
// onClientReadRequest/onClientUpdateRequest/onReadResponse/onTimeout
// family in the original implementation.
package coordinator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ringkv/ringkv/internal/clientmsg"
	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/registry"
	"github.com/ringkv/ringkv/internal/ring"
	"github.com/ringkv/ringkv/internal/storage"
	"github.com/ringkv/ringkv/internal/transport"
)

// Scheduler arms a one-shot quorum timeout for a request id and
// returns a function that cancels it. The concrete implementation
// (node.Dispatcher) delivers a transport.TimeoutMessage back onto its
// own mailbox when the timer fires and is never cancelled first.
type Scheduler interface {
	Schedule(reqID int) (cancel func())
}

// readStatus is a ReadRequestStatus (spec.md §3).
type readStatus struct {
	key   model.Key
	reply chan<- clientmsg.Response
	r     int
	votes []*model.VersionedItem
	done  func()
}

func (s *readStatus) latest() *model.VersionedItem {
	var best *model.VersionedItem
	for _, v := range s.votes {
		best = model.Max(best, v)
	}
	return best
}

// writeStatus is a WriteRequestStatus (spec.md §3).
type writeStatus struct {
	key   model.Key
	value string
	reply chan<- clientmsg.Response
	r     int
	w     int
	votes []*model.VersionedItem
	done  func()
}

func (s *writeStatus) latest() *model.VersionedItem {
	var best *model.VersionedItem
	for _, v := range s.votes {
		best = model.Max(best, v)
	}
	return best
}

// Coordinator is the Quorum Coordinator. One Coordinator exists per
// node, owned and driven exclusively by that node's Dispatcher.
type Coordinator struct {
	self model.NodeID
	r, w, n int
	reg   *registry.Registry
	cache *storage.Cache
	store storage.Manager
	peer  transport.Peer
	sched Scheduler
	log   *logrus.Entry

	requestCount int
	reads        map[int]*readStatus
	writes       map[int]*writeStatus
}

// New constructs a Coordinator with quorum parameters r (read), w
// (write) and n (replication factor).
func New(self model.NodeID, r, w, n int, reg *registry.Registry, cache *storage.Cache, store storage.Manager, peer transport.Peer, sched Scheduler, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		self: self, r: r, w: w, n: n,
		reg: reg, cache: cache, store: store, peer: peer, sched: sched, log: log,
		reads:  make(map[int]*readStatus),
		writes: make(map[int]*writeStatus),
	}
}

func (c *Coordinator) owners(key model.Key) []model.NodeID {
	return ring.OwnersOf(c.reg.SortedIDs(), key, c.n)
}

// HandleClientReadRequest starts the read path (spec.md §4.E).
func (c *Coordinator) HandleClientReadRequest(ctx context.Context, req clientmsg.ReadRequest, reply chan<- clientmsg.Response) error {
	if c.r > c.reg.Len() || c.n > c.reg.Len() {
		reply <- clientmsg.OperationError{NodeID: c.self, Message: "not enough nodes"}
		return nil
	}
	c.requestCount++
	reqID := c.requestCount
	status := &readStatus{key: req.Key, reply: reply, r: c.r}
	status.done = c.sched.Schedule(reqID)
	c.reads[reqID] = status
	return c.fanOutReadRequest(ctx, reqID, req.Key)
}

// HandleClientUpdateRequest starts the update path (spec.md §4.E).
// Its read phase is identical to HandleClientReadRequest's; only what
// happens at quorum differs (see handleReadResponse).
func (c *Coordinator) HandleClientUpdateRequest(ctx context.Context, req clientmsg.UpdateRequest, reply chan<- clientmsg.Response) error {
	if c.n > c.reg.Len() {
		reply <- clientmsg.OperationError{NodeID: c.self, Message: "not enough nodes"}
		return nil
	}
	c.requestCount++
	reqID := c.requestCount
	status := &writeStatus{key: req.Key, value: req.Value, reply: reply, r: c.r, w: c.w}
	status.done = c.sched.Schedule(reqID)
	c.writes[reqID] = status
	return c.fanOutReadRequest(ctx, reqID, req.Key)
}

func (c *Coordinator) fanOutReadRequest(ctx context.Context, reqID int, key model.Key) error {
	var firstErr error
	for _, id := range c.owners(key) {
		handle, ok := c.reg.Get(id)
		if !ok {
			continue
		}
		if err := c.peer.Send(ctx, handle, transport.ReadRequest{SenderID: c.self, ReqID: reqID, Key: key}); err != nil {
			c.log.WithError(err).WithField("to", id).Warn("read request send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HandleReadResponse processes a vote for either an in-flight read or
// the read phase of an in-flight update. A reqId present in neither
// table is a stale reply and is dropped silently.
func (c *Coordinator) HandleReadResponse(ctx context.Context, msg transport.ReadResponse) error {
	if rs, ok := c.reads[msg.ReqID]; ok {
		rs.votes = append(rs.votes, msg.Item)
		if len(rs.votes) < rs.r {
			return nil
		}
		latest := rs.latest()
		if latest == nil {
			rs.reply <- clientmsg.ReadResponse{NodeID: c.self, Key: rs.key, Found: false}
		} else {
			rs.reply <- clientmsg.ReadResponse{NodeID: c.self, Key: rs.key, Value: latest.Value, Found: true}
		}
		rs.done()
		delete(c.reads, msg.ReqID)
		return nil
	}
	if ws, ok := c.writes[msg.ReqID]; ok {
		ws.votes = append(ws.votes, msg.Item)
		if len(ws.votes) < ws.r {
			return nil
		}
		newVersion := 1
		if latest := ws.latest(); latest != nil {
			newVersion = latest.Version + 1
		}
		item := model.VersionedItem{Value: ws.value, Version: newVersion}
		ws.reply <- clientmsg.UpdateResponse{NodeID: c.self, Key: ws.key, Item: item}
		if err := c.fanOutWriteRequest(ctx, ws.key, item); err != nil {
			c.log.WithError(err).Warn("write request fan-out incomplete")
		}
		ws.done()
		delete(c.writes, msg.ReqID)
		return nil
	}
	c.log.WithField("reqId", msg.ReqID).Debug("dropping stale ReadResponse")
	return nil
}

// fanOutWriteRequest sends the write phase to every *current* owner
// of key. It deliberately tags every outgoing WriteRequest with
// c.requestCount — the coordinator's live counter at the moment the
// read-phase quorum completes — rather than the completing request's
// own reqId, preserving the source's aliasing behavior documented in
// SPEC_FULL.md §9: a later request issued by this same coordinator
// before this quorum settles makes the fan-out collide with that
// newer id.
func (c *Coordinator) fanOutWriteRequest(ctx context.Context, key model.Key, item model.VersionedItem) error {
	var firstErr error
	for _, id := range c.owners(key) {
		handle, ok := c.reg.Get(id)
		if !ok {
			continue
		}
		msg := transport.WriteRequest{SenderID: c.self, ReqID: c.requestCount, Key: key, Item: item}
		if err := c.peer.Send(ctx, handle, msg); err != nil {
			c.log.WithError(err).WithField("to", id).Warn("write request send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HandleTimeout processes a TimeoutMessage. A reqId absent from both
// tables means the request already completed; this is a silent no-op.
func (c *Coordinator) HandleTimeout(msg transport.TimeoutMessage) {
	if rs, ok := c.reads[msg.ReqID]; ok {
		rs.reply <- clientmsg.OperationError{NodeID: c.self, Message: "timeout"}
		delete(c.reads, msg.ReqID)
		return
	}
	if ws, ok := c.writes[msg.ReqID]; ok {
		ws.reply <- clientmsg.OperationError{NodeID: c.self, Message: "timeout"}
		delete(c.writes, msg.ReqID)
		return
	}
}

// HandleReplicaReadRequest answers a replica-side ReadRequest
// regardless of whether this node is itself also coordinating a
// request (spec.md §4.E "Replica handler").
func (c *Coordinator) HandleReplicaReadRequest(ctx context.Context, msg transport.ReadRequest) error {
	handle, ok := c.reg.Get(msg.SenderID)
	if !ok {
		return fmt.Errorf("coordinator: read request from unknown coordinator %d", msg.SenderID)
	}
	var item *model.VersionedItem
	if v, ok := c.cache.Get(msg.Key); ok {
		vCopy := v
		item = &vCopy
	}
	return c.peer.Send(ctx, handle, transport.ReadResponse{SenderID: c.self, ReqID: msg.ReqID, Key: msg.Key, Item: item})
}

// HandleReplicaWriteRequest durably applies a replica-side
// WriteRequest. No reply is sent (spec.md §4.E).
func (c *Coordinator) HandleReplicaWriteRequest(msg transport.WriteRequest) error {
	if err := c.store.Append(msg.Key, msg.Item); err != nil {
		return fmt.Errorf("coordinator: write request: %w", err)
	}
	c.cache.Set(msg.Key, msg.Item)
	return nil
}
