package storage

import (
	"sync"

	"github.com/ringkv/ringkv/internal/model"
)

// MemoryManager is an in-memory Manager, grounded on the teacher
// corpus's in-memory transport/storage doubles. It is used by every
// unit test that does not need to exercise real file I/O.
type MemoryManager struct {
	mu      sync.Mutex
	records Records
}

// NewMemoryManager returns an empty in-memory Manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{records: Records{}}
}

func (m *MemoryManager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = Records{}
	return nil
}

func (m *MemoryManager) ReadAll() (Records, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.Clone(), nil
}

func (m *MemoryManager) Append(key model.Key, item model.VersionedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = item
	return nil
}

func (m *MemoryManager) AppendAll(records Records) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range records {
		m.records[k] = v
	}
	return nil
}

func (m *MemoryManager) WriteAll(records Records) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records.Clone()
	return nil
}
