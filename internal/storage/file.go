package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ringkv/ringkv/internal/model"
)

// record is the on-disk representation of one append. The store is a
// flat, newline-delimited JSON file; ReadAll folds duplicate keys by
// keeping whichever record was appended last, so Append never has to
// rewrite or compact the file.
type record struct {
	Key   model.Key           `json:"key"`
	Item  model.VersionedItem `json:"item"`
}

// FileManager is the durable Manager implementation: every record
// file lives at <dir>/node-<id>.log. This is the real StorageManager
// nodes use outside of tests.
type FileManager struct {
	path string
	mu   sync.Mutex
}

// NewFileManager returns a Manager backed by a record file for nodeID
// under dir. The directory is created if it does not exist.
func NewFileManager(dir string, nodeID model.NodeID) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Cause: err}
	}
	return &FileManager{path: filepath.Join(dir, recordFileName(nodeID))}, nil
}

func recordFileName(nodeID model.NodeID) string {
	return "node-" + itoa(int(nodeID)) + ".log"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Clear truncates the record file.
func (f *FileManager) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &WriteError{Cause: err}
	}
	return wrapClose(file, nil)
}

// ReadAll parses the entire file, keeping the most recently appended
// record per key.
func (f *FileManager) ReadAll() (Records, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readAllLocked()
}

func (f *FileManager) readAllLocked() (Records, error) {
	file, err := os.OpenFile(f.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &ReadError{Cause: err}
	}
	defer file.Close()

	out := Records{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &ReadError{Cause: err}
		}
		out[rec.Key] = rec.Item
	}
	if err := scanner.Err(); err != nil {
		return nil, &ReadError{Cause: err}
	}
	return out, nil
}

// Append durably adds one record to the end of the file.
func (f *FileManager) Append(key model.Key, item model.VersionedItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked(record{Key: key, Item: item})
}

func (f *FileManager) appendLocked(rec record) error {
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &WriteError{Cause: err}
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return wrapClose(file, &WriteError{Cause: err})
	}
	line = append(line, '\n')
	if _, err := file.Write(line); err != nil {
		return wrapClose(file, &WriteError{Cause: err})
	}
	if err := file.Sync(); err != nil {
		return wrapClose(file, &WriteError{Cause: err})
	}
	return wrapClose(file, nil)
}

// AppendAll appends every record in the batch, in map-iteration order.
func (f *FileManager) AppendAll(records Records) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, item := range records {
		if err := f.appendLocked(record{Key: key, Item: item}); err != nil {
			return err
		}
	}
	return nil
}

// WriteAll atomically replaces the file with exactly these records by
// writing to a temp file in the same directory and renaming over the
// target, so a crash mid-write never leaves a half-written store.
func (f *FileManager) WriteAll(records Records) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "ringkv-*.tmp")
	if err != nil {
		return &WriteError{Cause: err}
	}
	tmpPath := tmp.Name()

	writer := bufio.NewWriter(tmp)
	for key, item := range records {
		line, err := json.Marshal(record{Key: key, Item: item})
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return &WriteError{Cause: err}
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return &WriteError{Cause: err}
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &WriteError{Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &WriteError{Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Cause: err}
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Cause: err}
	}
	return nil
}

func wrapClose(f *os.File, err error) error {
	if cerr := f.Close(); cerr != nil && err == nil {
		return &WriteError{Cause: cerr}
	}
	return err
}
