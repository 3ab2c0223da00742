package persist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/persist"
)

func TestWAL_AppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	w, err := persist.OpenWAL(dir, nil)
	require.NoError(t, err)

	require.NoError(t, w.Append("kg:edge", persist.Insert(tup(1, 2), 10), persist.Immediate))
	require.NoError(t, w.Append("kg:edge", persist.Delete(tup(3, 4), 20), persist.Immediate))
	require.NoError(t, w.Append("kg:node", persist.Insert(tup(1, 2), 10), persist.Immediate))

	entries, err := w.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 3, w.EntriesWritten())
}

func TestWAL_AsyncDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	w, err := persist.OpenWAL(dir, nil)
	require.NoError(t, err)

	require.NoError(t, w.Append("kg:edge", persist.Insert(tup(1, 2), 10), persist.Async))
	entries, err := w.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWAL_ClearArchivesAndResets(t *testing.T) {
	dir := t.TempDir()
	w, err := persist.OpenWAL(dir, nil)
	require.NoError(t, err)

	require.NoError(t, w.Append("kg:edge", persist.Insert(tup(1, 2), 10), persist.Immediate))
	assert.Equal(t, 1, w.EntriesWritten())

	require.NoError(t, w.Clear())
	assert.Equal(t, 0, w.EntriesWritten())

	require.NoError(t, w.Append("kg:edge", persist.Insert(tup(3, 4), 20), persist.Immediate))
	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Update.Tuple.Equal(tup(3, 4)))
}
