package persist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/persist"
	"codenerd/internal/value"
)

func tup(a, b int64) value.Tuple {
	return value.NewTuple(value.Int64(a), value.Int64(b))
}

func TestConsolidate_SumsAndDropsZero(t *testing.T) {
	t1 := tup(1, 2)
	updates := []persist.Update{
		persist.Insert(t1, 10),
		persist.Insert(t1, 10),
		persist.Delete(t1, 10),
	}
	out := persist.Consolidate(updates)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Diff)
	assert.Equal(t, uint64(10), out[0].Time)
}

func TestConsolidate_DistinctTimesKeptSeparate(t *testing.T) {
	t1 := tup(1, 2)
	updates := []persist.Update{
		persist.Insert(t1, 10),
		persist.Insert(t1, 20),
	}
	out := persist.Consolidate(updates)
	require.Len(t, out, 2)
}

func TestConsolidateToCurrent_IgnoresTime(t *testing.T) {
	t1 := tup(1, 2)
	updates := []persist.Update{
		persist.Insert(t1, 10),
		persist.Insert(t1, 20),
		persist.Delete(t1, 30),
	}
	out := persist.ConsolidateToCurrent(updates)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Diff)
}

func TestConsolidateToCurrent_RemovesFullyCancelledTuple(t *testing.T) {
	t1 := tup(1, 2)
	updates := []persist.Update{
		persist.Insert(t1, 10),
		persist.Delete(t1, 20),
	}
	out := persist.ConsolidateToCurrent(updates)
	assert.Empty(t, out)
}

func TestToTuples_OnlyPositiveDiffs(t *testing.T) {
	updates := []persist.Update{
		{Tuple: tup(1, 2), Time: 1, Diff: 2},
		{Tuple: tup(3, 4), Time: 1, Diff: -1},
	}
	out := persist.ToTuples(updates)
	require.Len(t, out, 1)
	assert.True(t, out[0].Equal(tup(1, 2)))
}
