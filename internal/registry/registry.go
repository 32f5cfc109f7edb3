// Package registry implements the NodeRegistry: the mapping from
// NodeID to an opaque transport handle that every component which
// needs to address a peer (the Membership Engine, the Quorum
// Coordinator) shares read access to. Only the Membership Engine
// mutates it, preserving invariant 1 of spec.md §3: self is always
// present and maps to the node's own handle.
package registry

import (
	"sort"

	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/transport"
)

// Registry is the NodeRegistry. It is not safe for concurrent use by
// design — the single-threaded Node Dispatcher is the only goroutine
// that ever touches it, exactly like the rest of a node's private
// state.
type Registry struct {
	self    model.NodeID
	entries map[model.NodeID]transport.Handle
}

// New creates a Registry containing only self, mapped to selfHandle —
// the state every NodeActor starts preStart() in.
func New(self model.NodeID, selfHandle transport.Handle) *Registry {
	r := &Registry{self: self, entries: make(map[model.NodeID]transport.Handle)}
	r.entries[self] = selfHandle
	return r
}

// Self returns this node's own ID.
func (r *Registry) Self() model.NodeID { return r.self }

// Get returns the handle for id, if known.
func (r *Registry) Get(id model.NodeID) (transport.Handle, bool) {
	h, ok := r.entries[id]
	return h, ok
}

// IDs returns every known node ID, self included, in no particular
// order. Callers that need determinism should sort the result
// themselves (ring.OwnersOf and friends do not care about order).
func (r *Registry) IDs() []model.NodeID {
	out := make([]model.NodeID, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

// SortedIDs returns IDs in ascending order. The Membership Engine and
// the Quorum Coordinator pass it to the ring functions and to logging.
func (r *Registry) SortedIDs() []model.NodeID {
	ids := r.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of known nodes, self included.
func (r *Registry) Len() int { return len(r.entries) }

// Put adds or overwrites the handle for id. Used by the Membership
// Engine to process Join/ReJoin and to re-anchor its own entry after
// a NodesList response during recovery (NodesList itself goes through
// PutAll).
func (r *Registry) Put(id model.NodeID, handle transport.Handle) {
	r.entries[id] = handle
}

// PutAll merges other into the registry, overwriting any existing
// entries with the same ID.
func (r *Registry) PutAll(other map[model.NodeID]transport.Handle) {
	for id, h := range other {
		r.entries[id] = h
	}
}

// Remove drops id from the registry. A no-op if id is not present.
func (r *Registry) Remove(id model.NodeID) {
	delete(r.entries, id)
}

// Snapshot returns a copy of the full id->handle map, e.g. to answer
// a JoinRequest with a NodesList.
func (r *Registry) Snapshot() map[model.NodeID]transport.Handle {
	out := make(map[model.NodeID]transport.Handle, len(r.entries))
	for id, h := range r.entries {
		out[id] = h
	}
	return out
}
