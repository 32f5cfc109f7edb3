// Package storage implements the Storage Gateway: durable append,
// overwrite and read of (key, versioned item) records, plus the
// in-memory write-through cache every node keeps mirrored to disk.
package storage

import (
	"fmt"

	"github.com/ringkv/ringkv/internal/model"
)

// Records is a snapshot of everything persisted for one node.
type Records map[model.Key]model.VersionedItem

// Clone returns a deep copy, so callers never alias the gateway's
// internal state.
func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Manager is the capability the Membership Engine and the Quorum
// Coordinator consume to read and mutate durable storage. The cache
// each node keeps is a write-through reflection of whatever Manager
// last returned or accepted — Manager itself does not cache; callers
// own that invariant (see node.Dispatcher).
type Manager interface {
	// Clear truncates the record store.
	Clear() error

	// ReadAll parses the entire store and returns the latest item per
	// key. This is the authoritative state.
	ReadAll() (Records, error)

	// Append durably adds one record. If the key already exists, a
	// subsequent ReadAll resolves to the newly appended value; physical
	// removal of the stale record is not required.
	Append(key model.Key, item model.VersionedItem) error

	// AppendAll is the batch form of Append.
	AppendAll(records Records) error

	// WriteAll atomically replaces the store with exactly these
	// records.
	WriteAll(records Records) error
}

// ReadError wraps a failure encountered while reading the store.
type ReadError struct{ Cause error }

func (e *ReadError) Error() string { return fmt.Sprintf("storage: read failed: %v", e.Cause) }
func (e *ReadError) Unwrap() error { return e.Cause }

// WriteError wraps a failure encountered while writing the store.
type WriteError struct{ Cause error }

func (e *WriteError) Error() string { return fmt.Sprintf("storage: write failed: %v", e.Cause) }
func (e *WriteError) Unwrap() error { return e.Cause }
