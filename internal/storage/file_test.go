package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/storage"
)

func TestFileManager_AppendThenReadAllResolvesLatestPerKey(t *testing.T) {
	dir := t.TempDir()
	mgr, err := storage.NewFileManager(dir, model.NodeID(1))
	require.NoError(t, err)

	require.NoError(t, mgr.Append(model.Key(1), model.VersionedItem{Value: "a", Version: 1}))
	require.NoError(t, mgr.Append(model.Key(1), model.VersionedItem{Value: "b", Version: 2}))
	require.NoError(t, mgr.Append(model.Key(2), model.VersionedItem{Value: "c", Version: 1}))

	records, err := mgr.ReadAll()
	require.NoError(t, err)
	require.Equal(t, model.VersionedItem{Value: "b", Version: 2}, records[model.Key(1)])
	require.Equal(t, model.VersionedItem{Value: "c", Version: 1}, records[model.Key(2)])
	require.Len(t, records, 2)
}

func TestFileManager_WriteAllReplacesContents(t *testing.T) {
	dir := t.TempDir()
	mgr, err := storage.NewFileManager(dir, model.NodeID(2))
	require.NoError(t, err)

	require.NoError(t, mgr.Append(model.Key(1), model.VersionedItem{Value: "stale", Version: 1}))
	require.NoError(t, mgr.WriteAll(storage.Records{
		model.Key(2): {Value: "fresh", Version: 1},
	}))

	records, err := mgr.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.VersionedItem{Value: "fresh", Version: 1}, records[model.Key(2)])
}

func TestFileManager_ClearTruncates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := storage.NewFileManager(dir, model.NodeID(3))
	require.NoError(t, err)

	require.NoError(t, mgr.Append(model.Key(1), model.VersionedItem{Value: "x", Version: 1}))
	require.NoError(t, mgr.Clear())

	records, err := mgr.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFileManager_SurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	first, err := storage.NewFileManager(dir, model.NodeID(4))
	require.NoError(t, err)
	require.NoError(t, first.Append(model.Key(7), model.VersionedItem{Value: "persisted", Version: 3}))

	second, err := storage.NewFileManager(dir, model.NodeID(4))
	require.NoError(t, err)
	records, err := second.ReadAll()
	require.NoError(t, err)
	require.Equal(t, model.VersionedItem{Value: "persisted", Version: 3}, records[model.Key(7)])
}

func TestMemoryManager_WriteThroughMirrorsReadAll(t *testing.T) {
	mgr := storage.NewMemoryManager()
	require.NoError(t, mgr.Append(model.Key(1), model.VersionedItem{Value: "a", Version: 1}))
	records, err := mgr.ReadAll()
	require.NoError(t, err)
	require.Equal(t, model.VersionedItem{Value: "a", Version: 1}, records[model.Key(1)])

	// Mutating the returned snapshot must not affect the manager's state.
	records[model.Key(1)] = model.VersionedItem{Value: "mutated", Version: 99}
	again, err := mgr.ReadAll()
	require.NoError(t, err)
	require.Equal(t, model.VersionedItem{Value: "a", Version: 1}, again[model.Key(1)])
}
