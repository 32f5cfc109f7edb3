// Package membership implements the Membership Engine (spec.md §4.D):
// the per-node startup and topology state machine that drives
// bootstrap, join, recovery, rejoin announcement, graceful leave
// handoff and the post-topology purge of now-unowned keys. It is the
// only component permitted to mutate the NodeRegistry, mirroring
// NodeActor's onJoin/onJoinData/onReJoin/onLeave family in the
// original implementation.
package membership

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

// State is one of the four states of spec.md §4.D.
type State int

const (
	JoiningWaitingNodes State = iota
	JoiningWaitingData
	RecoveringWaitingNodes
	Ready
)

func (s State) String() string {
	switch s {
	case JoiningWaitingNodes:
		return "JOINING_WAITING_NODES"
	case JoiningWaitingData:
		return "JOINING_WAITING_DATA"
	case RecoveringWaitingNodes:
		return "RECOVERING_WAITING_NODES"
	case Ready:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// StartupMode selects one of the three one-shot start transitions.
type StartupMode int

const (
	StartBootstrap StartupMode = iota
	StartJoin
	StartRecover
)

// Engine is the Membership Engine. One Engine exists per node, owned
// and driven exclusively by that node's Dispatcher.
type Engine struct {
	self       model.NodeID
	selfHandle transport.Handle
	n          int
	reg        *registry.Registry
	store      storage.Manager
	cache      *storage.Cache
	peer       transport.Peer
	state      State
	log        *logrus.Entry
}

// NewEngine constructs an Engine. n is the replication factor N.
func NewEngine(self model.NodeID, selfHandle transport.Handle, n int, reg *registry.Registry, store storage.Manager, cache *storage.Cache, peer transport.Peer, log *logrus.Entry) *Engine {
	return &Engine{
		self:       self,
		selfHandle: selfHandle,
		n:          n,
		reg:        reg,
		store:      store,
		cache:      cache,
		peer:       peer,
		state:      JoiningWaitingNodes,
		log:        log,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// Start runs exactly one of the three start transitions (spec.md
// §4.D "Start transitions"). remote is ignored for StartBootstrap.
func (e *Engine) Start(ctx context.Context, mode StartupMode, remote transport.Handle) error {
	switch mode {
	case StartBootstrap:
		if err := e.store.Clear(); err != nil {
			return fmt.Errorf("membership: bootstrap: %w", err)
		}
		e.cache.Reset(storage.Records{})
		e.state = Ready
		e.log.WithField("state", e.state).Info("bootstrapped")
		return nil
	case StartJoin:
		if err := e.store.Clear(); err != nil {
			return fmt.Errorf("membership: join: %w", err)
		}
		e.cache.Reset(storage.Records{})
		e.state = JoiningWaitingNodes
		return e.peer.Send(ctx, remote, transport.JoinRequest{SenderID: e.self, SenderHandle: e.selfHandle})
	case StartRecover:
		e.state = RecoveringWaitingNodes
		return e.peer.Send(ctx, remote, transport.JoinRequest{SenderID: e.self, SenderHandle: e.selfHandle})
	default:
		return fmt.Errorf("membership: unknown startup mode %d", mode)
	}
}

// HandleNodesList processes a NodesList reply while joining or
// recovering; any other state drops it.
func (e *Engine) HandleNodesList(ctx context.Context, msg transport.NodesList) error {
	switch e.state {
	case JoiningWaitingNodes:
		e.reg.PutAll(msg.Nodes)
		succ := ring.Successor(e.reg.SortedIDs(), e.self)
		handle, ok := e.reg.Get(succ)
		if !ok {
			return fmt.Errorf("membership: successor %d has no registered handle", succ)
		}
		e.state = JoiningWaitingData
		return e.peer.Send(ctx, handle, transport.DataRequest{SenderID: e.self})
	case RecoveringWaitingNodes:
		e.reg.PutAll(msg.Nodes)
		if err := e.purgeOldKeys(); err != nil {
			return err
		}
		e.reg.Put(e.self, e.selfHandle)
		e.state = Ready
		e.log.WithField("nodes", e.reg.SortedIDs()).Info("recovered")
		return e.multicast(ctx, transport.ReJoin{SenderID: e.self, SenderHandle: e.selfHandle})
	default:
		e.log.WithField("state", e.state).Warn("dropping NodesList: unexpected state")
		return nil
	}
}

// HandleJoinData processes the successor's data handoff while joining.
func (e *Engine) HandleJoinData(ctx context.Context, msg transport.JoinData) error {
	if e.state != JoiningWaitingData {
		e.log.WithField("state", e.state).Warn("dropping JoinData: unexpected state")
		return nil
	}
	if err := e.store.AppendAll(msg.Records); err != nil {
		return fmt.Errorf("membership: join data: %w", err)
	}
	e.cache.Merge(msg.Records)
	e.state = Ready
	e.log.WithField("nodes", e.reg.SortedIDs()).Info("joined")
	return e.multicast(ctx, transport.Join{SenderID: e.self, SenderHandle: e.selfHandle})
}

// HandleJoin records a newly-joined peer. Admitted only in READY.
func (e *Engine) HandleJoin(msg transport.Join) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping Join: not ready")
		return nil
	}
	e.reg.Put(msg.SenderID, msg.SenderHandle)
	return e.purgeOldKeys()
}

// HandleReJoin records a recovered peer's fresh handle. No purge is
// run, and the recovering node sends no data along with ReJoin.
func (e *Engine) HandleReJoin(msg transport.ReJoin) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping ReJoin: not ready")
		return nil
	}
	e.reg.Put(msg.SenderID, msg.SenderHandle)
	return nil
}

// HandleLeave removes a departed peer. No purge: the leaver already
// pushed its data ahead of the announcement.
func (e *Engine) HandleLeave(msg transport.Leave) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping Leave: not ready")
		return nil
	}
	e.reg.Remove(msg.SenderID)
	return nil
}

// HandleJoinRequest answers with the current registry, or drops the
// request outside READY.
func (e *Engine) HandleJoinRequest(ctx context.Context, msg transport.JoinRequest) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping JoinRequest: not ready")
		return nil
	}
	return e.peer.Send(ctx, msg.SenderHandle, transport.NodesList{SenderID: e.self, Nodes: e.reg.Snapshot()})
}

// HandleDataRequest answers with the full local store, or drops the
// request outside READY.
func (e *Engine) HandleDataRequest(ctx context.Context, msg transport.DataRequest) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping DataRequest: not ready")
		return nil
	}
	handle, ok := e.reg.Get(msg.SenderID)
	if !ok {
		return fmt.Errorf("membership: data request from unknown node %d", msg.SenderID)
	}
	records, err := e.store.ReadAll()
	if err != nil {
		return fmt.Errorf("membership: data request: %w", err)
	}
	return e.peer.Send(ctx, handle, transport.JoinData{SenderID: e.self, Records: records})
}

// HandleLeaveData adopts the records handed off by a departing node.
func (e *Engine) HandleLeaveData(msg transport.LeaveData) error {
	if e.state != Ready {
		e.log.WithField("state", e.state).Warn("dropping LeaveData: not ready")
		return nil
	}
	if err := e.store.AppendAll(msg.Records); err != nil {
		return fmt.Errorf("membership: leave data: %w", err)
	}
	e.cache.Merge(msg.Records)
	return nil
}

// HandleClientLeaveRequest performs the graceful-leave handoff: push
// this node's full store to its N ring successors, multicast Leave,
// reply, and signal the dispatcher to shut down. shutdown is true
// whenever the LeaveResponse has been sent, regardless of whether every
// handoff send succeeded (spec.md §5 "partial-failure behavior" —
// missing replicas are absorbed silently).
func (e *Engine) HandleClientLeaveRequest(ctx context.Context, reply chan<- clientmsg.Response) (shutdown bool) {
	if e.state != Ready {
		reply <- clientmsg.OperationError{NodeID: e.self, Message: "node is not ready"}
		return false
	}
	records, err := e.store.ReadAll()
	if err != nil {
		reply <- clientmsg.OperationError{NodeID: e.self, Message: err.Error()}
		return false
	}
	for _, id := range ring.NextReplicasAfter(e.reg.SortedIDs(), e.self, e.n) {
		handle, ok := e.reg.Get(id)
		if !ok {
			continue
		}
		if err := e.peer.Send(ctx, handle, transport.LeaveData{SenderID: e.self, Records: records}); err != nil {
			e.log.WithError(err).WithField("to", id).Warn("leave data send failed")
		}
	}
	if err := e.multicast(ctx, transport.Leave{SenderID: e.self}); err != nil {
		e.log.WithError(err).Warn("leave multicast incomplete")
	}
	reply <- clientmsg.LeaveResponse{NodeID: e.self}
	e.log.Info("left the ring, shutting down")
	return true
}

// purgeOldKeys recomputes ownership for every locally stored key
// under the current NodeRegistry and rewrites storage to retain only
// what self still owns (spec.md §4.D). Idempotent.
func (e *Engine) purgeOldKeys() error {
	records, err := e.store.ReadAll()
	if err != nil {
		return fmt.Errorf("membership: purge: %w", err)
	}
	ids := e.reg.SortedIDs()
	retained := make(storage.Records, len(records))
	for key, item := range records {
		if ring.Owns(ids, e.self, key, e.n) {
			retained[key] = item
		}
	}
	if err := e.store.WriteAll(retained); err != nil {
		return fmt.Errorf("membership: purge: %w", err)
	}
	e.cache.Reset(retained)
	return nil
}

func (e *Engine) multicast(ctx context.Context, msg transport.Message) error {
	var firstErr error
	for _, id := range e.reg.IDs() {
		if id == e.self {
			continue
		}
		handle, ok := e.reg.Get(id)
		if !ok {
			continue
		}
		if err := e.peer.Send(ctx, handle, msg); err != nil {
			e.log.WithError(err).WithField("to", id).Warn("send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
