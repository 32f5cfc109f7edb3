package storage

import "github.com/ringkv/ringkv/internal/model"

// Cache is the in-memory write-through mirror of durable storage
// (spec.md §4.B). A single Cache is shared by the Membership Engine
// (which replaces its contents wholesale during purge and after
// recovery) and the Quorum Coordinator (which reads and writes
// individual keys while answering ReadRequest/WriteRequest). Both only
// ever run from the node's one dispatcher goroutine, so — like
// Registry — Cache carries no internal locking.
type Cache struct {
	records Records
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{records: make(Records)}
}

// Get returns the cached item for key, if any.
func (c *Cache) Get(key model.Key) (model.VersionedItem, bool) {
	v, ok := c.records[key]
	return v, ok
}

// Set writes one key, mirroring a durable Append.
func (c *Cache) Set(key model.Key, item model.VersionedItem) {
	c.records[key] = item
}

// Merge folds records into the cache, overwriting on key collision —
// mirrors a durable AppendAll.
func (c *Cache) Merge(records Records) {
	for k, v := range records {
		c.records[k] = v
	}
}

// Reset replaces the cache wholesale with a clone of records,
// mirroring a durable WriteAll or a fresh ReadAll after recovery.
func (c *Cache) Reset(records Records) {
	c.records = records.Clone()
}

// Snapshot returns a defensive copy of the cache's full contents.
func (c *Cache) Snapshot() Records {
	return c.records.Clone()
}
