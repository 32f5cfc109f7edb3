// Package ring implements the pure, deterministic functions over a
// ring of node IDs that the rest of ringkv uses to decide which nodes
// are responsible for which keys.
//
// Every function here is total for a non-empty node set and agrees
// with the others regardless of the iteration order of the input —
// callers are expected to pass a snapshot of the current node set,
// never a live, mutating map.
package ring

import (
	"sort"

	"github.com/ringkv/ringkv/internal/model"
)

// Successor returns the smallest ID in ids strictly greater than me,
// wrapping to the minimum ID in ids if me is the maximum. ids must be
// non-empty and must contain at least one ID other than me for the
// wrap case to be meaningful (if ids == {me}, Successor returns me).
func Successor(ids []model.NodeID, me model.NodeID) model.NodeID {
	best := ids[0]
	haveBest := false
	min := ids[0]
	for _, id := range ids {
		if id < min {
			min = id
		}
		if id > me && (!haveBest || id < best) {
			best = id
			haveBest = true
		}
	}
	if haveBest {
		return best
	}
	return min
}

// OwnersOf returns the N node IDs responsible for key, walking
// clockwise (ascending, with wraparound) starting at key. The result
// has min(len(ids), n) distinct elements. Ordering of ids does not
// affect the result.
func OwnersOf(ids []model.NodeID, key model.Key, n int) []model.NodeID {
	sorted := make([]model.NodeID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return clockwiseLess(sorted[i], sorted[j], key)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// clockwiseLess orders ids as "ids >= key ascending, then ids < key
// ascending" — equivalent to walking clockwise from key.
func clockwiseLess(a, b model.NodeID, key model.Key) bool {
	aAfter := int(a) >= int(key)
	bAfter := int(b) >= int(key)
	if aAfter && bAfter {
		return a < b
	}
	if aAfter && !bAfter {
		return true
	}
	if !aAfter && bAfter {
		return false
	}
	return a < b
}

// Owns reports whether me is among the N owners of key under ids.
// Equivalent to: fewer than N ids lie strictly between key and me
// going clockwise.
func Owns(ids []model.NodeID, me model.NodeID, key model.Key, n int) bool {
	for _, id := range OwnersOf(ids, key, n) {
		if id == me {
			return true
		}
	}
	return false
}

// NextReplicasAfter returns the N successors of me on the ring,
// excluding me, wrapping as needed. Used on a graceful leave to find
// the nodes that will become newly responsible for me's data. If
// len(ids) < n+1 the result may contain fewer than n IDs.
func NextReplicasAfter(ids []model.NodeID, me model.NodeID, n int) []model.NodeID {
	sorted := make([]model.NodeID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	meIdx := -1
	for i, id := range sorted {
		if id == me {
			meIdx = i
			break
		}
	}
	if meIdx == -1 {
		return nil
	}

	seen := make(map[model.NodeID]bool, n)
	result := make([]model.NodeID, 0, n)
	for i := 1; i <= n && len(result) < len(sorted)-1; i++ {
		idx := (meIdx + i) % len(sorted)
		candidate := sorted[idx]
		if candidate == me || seen[candidate] {
			continue
		}
		seen[candidate] = true
		result = append(result, candidate)
	}
	return result
}
