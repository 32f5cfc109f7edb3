// Package node implements the Node Dispatcher (spec.md §4.F): the
// single-threaded message loop that owns a node's private state and
// composes the Ring Topology, Storage Gateway, Membership Engine and
// Quorum Coordinator behind one mailbox. It mirrors NodeActor's
// onReceive dispatch loop in the original implementation, ported from
// an Akka actor's mailbox to a goroutine running a select loop over
// two channels.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringkv/ringkv/internal/clientmsg"
	"github.com/ringkv/ringkv/internal/coordinator"
	"github.com/ringkv/ringkv/internal/membership"
	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/registry"
	"github.com/ringkv/ringkv/internal/storage"
	"github.com/ringkv/ringkv/internal/transport"
)

const defaultQuorumTimeout = 2 * time.Second

// inboxSize bounds the backlog of undelivered peer messages a node
// will hold before a Peer.Send targeting it blocks.
const inboxSize = 4096

// clientEnvelope pairs an incoming client request with the channel its
// single response is delivered on.
type clientEnvelope struct {
	req   clientmsg.Request
	reply chan clientmsg.Response
}

// Config bundles everything needed to construct a Dispatcher.
type Config struct {
	Self          model.NodeID
	SelfHandle    transport.Handle
	R, W, N       int
	Store         storage.Manager
	Peer          transport.Peer
	QuorumTimeout time.Duration
	Log           *logrus.Entry
}

// Dispatcher is the Node Dispatcher. One Dispatcher exists per node
// and must only ever be driven by its own Run goroutine.
type Dispatcher struct {
	self  model.NodeID
	reg   *registry.Registry
	store storage.Manager
	cache *storage.Cache
	peer  transport.Peer

	engine *membership.Engine
	coord  *coordinator.Coordinator

	inbox       chan transport.Message
	clientInbox chan clientEnvelope
	shutdown    chan struct{}
	timeout     time.Duration
	log         *logrus.Entry
}

// New constructs a Dispatcher and its Registry, Cache, Membership
// Engine and Quorum Coordinator per cfg. It validates the quorum
// invariant of spec.md §3 invariant 6.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.R < 1 || cfg.W < 1 {
		return nil, fmt.Errorf("node: R and W must be >= 1 (got R=%d, W=%d)", cfg.R, cfg.W)
	}
	if cfg.R+cfg.W <= cfg.N {
		return nil, fmt.Errorf("node: R+W must be > N (got R=%d, W=%d, N=%d)", cfg.R, cfg.W, cfg.N)
	}
	timeout := cfg.QuorumTimeout
	if timeout <= 0 {
		timeout = defaultQuorumTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("node", cfg.Self)

	reg := registry.New(cfg.Self, cfg.SelfHandle)
	cache := storage.NewCache()

	d := &Dispatcher{
		self:        cfg.Self,
		reg:         reg,
		store:       cfg.Store,
		cache:       cache,
		peer:        cfg.Peer,
		inbox:       make(chan transport.Message, inboxSize),
		clientInbox: make(chan clientEnvelope, 64),
		shutdown:    make(chan struct{}),
		timeout:     timeout,
		log:         log,
	}
	d.engine = membership.NewEngine(cfg.Self, cfg.SelfHandle, cfg.N, reg, cfg.Store, cache, cfg.Peer, log.WithField("component", "membership"))
	d.coord = coordinator.New(cfg.Self, cfg.R, cfg.W, cfg.N, reg, cache, cfg.Store, cfg.Peer, d, log.WithField("component", "coordinator"))
	return d, nil
}

// Inbox is where a Peer backend (transport/local or transport/grpcpeer)
// should push every Message addressed to this node.
func (d *Dispatcher) Inbox() chan<- transport.Message { return d.inbox }

// Schedule implements coordinator.Scheduler: it arms a process timer
// that redelivers a TimeoutMessage to this node's own mailbox, the
// "process-level scheduler that delivers a message to the target
// mailbox" of spec.md §9.
func (d *Dispatcher) Schedule(reqID int) (cancel func()) {
	timer := time.AfterFunc(d.timeout, func() {
		select {
		case d.inbox <- transport.TimeoutMessage{ReqID: reqID}:
		case <-d.shutdown:
		}
	})
	return func() { timer.Stop() }
}

// Start runs the Membership Engine's one-shot startup transition.
func (d *Dispatcher) Start(ctx context.Context, mode membership.StartupMode, remote transport.Handle) error {
	return d.engine.Start(ctx, mode, remote)
}

// State returns the node's current membership state.
func (d *Dispatcher) State() membership.State { return d.engine.State() }

// Run is the node's single-threaded message loop: at most one message
// is processed at a time, and every handler runs to completion before
// the next is considered (spec.md §4.F). It returns once the node has
// shut down via a client-initiated leave, or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.inbox:
			d.dispatchPeerMessage(ctx, msg)
		case env := <-d.clientInbox:
			if d.dispatchClientRequest(ctx, env) {
				close(d.shutdown)
				return
			}
		}
	}
}

func (d *Dispatcher) dispatchPeerMessage(ctx context.Context, msg transport.Message) {
	switch m := msg.(type) {
	case transport.JoinRequest:
		if err := d.engine.HandleJoinRequest(ctx, m); err != nil {
			d.log.WithError(err).Warn("JoinRequest handling failed")
		}
	case transport.NodesList:
		if err := d.engine.HandleNodesList(ctx, m); err != nil {
			d.log.WithError(err).Warn("NodesList handling failed")
		}
	case transport.DataRequest:
		if err := d.engine.HandleDataRequest(ctx, m); err != nil {
			d.log.WithError(err).Warn("DataRequest handling failed")
		}
	case transport.JoinData:
		if err := d.engine.HandleJoinData(ctx, m); err != nil {
			d.log.WithError(err).Warn("JoinData handling failed")
		}
	case transport.Join:
		if err := d.engine.HandleJoin(m); err != nil {
			d.log.WithError(err).Warn("Join handling failed")
		}
	case transport.ReJoin:
		if err := d.engine.HandleReJoin(m); err != nil {
			d.log.WithError(err).Warn("ReJoin handling failed")
		}
	case transport.Leave:
		if err := d.engine.HandleLeave(m); err != nil {
			d.log.WithError(err).Warn("Leave handling failed")
		}
	case transport.LeaveData:
		if err := d.engine.HandleLeaveData(m); err != nil {
			d.log.WithError(err).Warn("LeaveData handling failed")
		}
	case transport.ReadRequest:
		if !d.requireReady("ReadRequest") {
			return
		}
		if err := d.coord.HandleReplicaReadRequest(ctx, m); err != nil {
			d.log.WithError(err).Warn("ReadRequest handling failed")
		}
	case transport.ReadResponse:
		if !d.requireReady("ReadResponse") {
			return
		}
		if err := d.coord.HandleReadResponse(ctx, m); err != nil {
			d.log.WithError(err).Warn("ReadResponse handling failed")
		}
	case transport.WriteRequest:
		if !d.requireReady("WriteRequest") {
			return
		}
		if err := d.coord.HandleReplicaWriteRequest(m); err != nil {
			d.log.WithError(err).Warn("WriteRequest handling failed")
		}
	case transport.TimeoutMessage:
		if !d.requireReady("TimeoutMessage") {
			return
		}
		d.coord.HandleTimeout(m)
	default:
		d.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("dropping unknown message type")
	}
}

func (d *Dispatcher) dispatchClientRequest(ctx context.Context, env clientEnvelope) (shutdown bool) {
	switch req := env.req.(type) {
	case clientmsg.ReadRequest:
		if !d.requireReady("ClientReadRequest") {
			env.reply <- clientmsg.OperationError{NodeID: d.self, Message: "node is not ready"}
			return false
		}
		if err := d.coord.HandleClientReadRequest(ctx, req, env.reply); err != nil {
			d.log.WithError(err).Warn("client read failed")
		}
		return false
	case clientmsg.UpdateRequest:
		if !d.requireReady("ClientUpdateRequest") {
			env.reply <- clientmsg.OperationError{NodeID: d.self, Message: "node is not ready"}
			return false
		}
		if err := d.coord.HandleClientUpdateRequest(ctx, req, env.reply); err != nil {
			d.log.WithError(err).Warn("client update failed")
		}
		return false
	case clientmsg.LeaveRequest:
		return d.engine.HandleClientLeaveRequest(ctx, env.reply)
	default:
		env.reply <- clientmsg.OperationError{NodeID: d.self, Message: "unknown request"}
		return false
	}
}

// requireReady enforces the blanket admission rule of spec.md §4.D:
// "READY is the only state that serves client requests and peer data
// requests" for the message kinds that have no state-specific table
// entry of their own (the Membership Engine enforces its own
// per-state table internally for JoinRequest/NodesList/JoinData/
// Join/ReJoin/Leave/LeaveData).
func (d *Dispatcher) requireReady(what string) bool {
	if d.engine.State() != membership.Ready {
		d.log.WithField("state", d.engine.State()).WithField("message", what).Warn("dropping: node not ready")
		return false
	}
	return true
}

// ClientRead submits a read request and blocks until answered or ctx
// is done.
func (d *Dispatcher) ClientRead(ctx context.Context, key model.Key) (clientmsg.Response, error) {
	return d.submit(ctx, clientmsg.ReadRequest{Key: key})
}

// ClientUpdate submits an update request and blocks until answered or
// ctx is done.
func (d *Dispatcher) ClientUpdate(ctx context.Context, key model.Key, value string) (clientmsg.Response, error) {
	return d.submit(ctx, clientmsg.UpdateRequest{Key: key, Value: value})
}

// ClientLeave submits a graceful-leave request and blocks until
// answered or ctx is done. The node's Run loop exits once it replies.
func (d *Dispatcher) ClientLeave(ctx context.Context) (clientmsg.Response, error) {
	return d.submit(ctx, clientmsg.LeaveRequest{})
}

func (d *Dispatcher) submit(ctx context.Context, req clientmsg.Request) (clientmsg.Response, error) {
	reply := make(chan clientmsg.Response, 1)
	env := clientEnvelope{req: req, reply: reply}
	select {
	case d.clientInbox <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
