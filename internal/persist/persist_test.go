package persist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/persist"
	"codenerd/internal/value"
)

func edgeSchema() value.Schema {
	return value.Schema{Columns: []value.Column{
		{Name: "src", Type: value.KindInt64},
		{Name: "dst", Type: value.KindInt64},
	}}
}

func TestStore_AppendThenReadFromBuffer(t *testing.T) {
	cfg := persist.DefaultConfig(t.TempDir())
	s, err := persist.Open(cfg, nil)
	require.NoError(t, err)

	schema := edgeSchema()
	shard := persist.ShardName("kg1", "edge")
	require.NoError(t, s.Append(shard, schema, persist.Insert(tup(1, 2), 1), "insert"))
	require.NoError(t, s.Append(shard, schema, persist.Insert(tup(3, 4), 2), "insert"))

	updates, err := s.Read(shard, schema)
	require.NoError(t, err)
	current := persist.ConsolidateToCurrent(updates)
	assert.Len(t, current, 2)
}

func TestStore_FlushTriggeredByBufferSize(t *testing.T) {
	cfg := persist.DefaultConfig(t.TempDir())
	cfg.BufferSize = 2
	s, err := persist.Open(cfg, nil)
	require.NoError(t, err)

	schema := edgeSchema()
	shard := persist.ShardName("kg1", "edge")
	require.NoError(t, s.Append(shard, schema, persist.Insert(tup(1, 2), 1), "insert"))
	require.NoError(t, s.Append(shard, schema, persist.Insert(tup(3, 4), 2), "insert"))

	updates, err := s.Read(shard, schema)
	require.NoError(t, err)
	require.Len(t, updates, 2)
}

func TestStore_RecoversFromWALAfterReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := persist.DefaultConfig(dir)
	schema := edgeSchema()
	shard := persist.ShardName("kg1", "edge")

	s1, err := persist.Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Append(shard, schema, persist.Insert(tup(1, 2), 1), "insert"))

	s2, err := persist.Open(cfg, nil)
	require.NoError(t, err)
	updates, err := s2.Read(shard, schema)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Tuple.Equal(tup(1, 2)))
}

func TestStore_NotificationsPublishedOnAppend(t *testing.T) {
	cfg := persist.DefaultConfig(t.TempDir())
	s, err := persist.Open(cfg, nil)
	require.NoError(t, err)

	_, ch := s.Notifications().Subscribe()
	schema := edgeSchema()
	shard := persist.ShardName("kg1", "edge")
	require.NoError(t, s.Append(shard, schema, persist.Insert(tup(1, 2), 1), "insert"))

	note := <-ch
	assert.Equal(t, "kg1", note.KG)
	assert.Equal(t, "edge", note.Relation)
	assert.Equal(t, "insert", note.Operation)
}
