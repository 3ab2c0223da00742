// Package persist implements the durable storage layer (WAL, columnar
// batch files, and shard metadata) that makes every accepted update
// survive a restart, following the differential-dataflow-style
// (tuple, time, diff) update model.
package persist

import (
	"sort"

	"codenerd/internal/value"
)

// Update is one (tuple, time, diff) change to a shard, the unit the WAL
// and batch files both carry.
type Update struct {
	Tuple value.Tuple `json:"data"`
	Time  uint64      `json:"time"`
	Diff  int64       `json:"diff"`
}

// Insert builds a +1 update.
func Insert(t value.Tuple, time uint64) Update { return Update{Tuple: t, Time: time, Diff: 1} }

// Delete builds a -1 update.
func Delete(t value.Tuple, time uint64) Update { return Update{Tuple: t, Time: time, Diff: -1} }

// Consolidate sorts by (tuple, time) and folds adjacent equal keys by
// summing diffs, dropping any result with diff == 0. It does not mutate
// its input.
func Consolidate(updates []Update) []Update {
	if len(updates) == 0 {
		return nil
	}
	sorted := make([]Update, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Tuple.Compare(sorted[j].Tuple); c != 0 {
			return c < 0
		}
		return sorted[i].Time < sorted[j].Time
	})

	out := make([]Update, 0, len(sorted))
	cur := sorted[0]
	for _, u := range sorted[1:] {
		if u.Tuple.Equal(cur.Tuple) && u.Time == cur.Time {
			cur.Diff += u.Diff
			continue
		}
		if cur.Diff != 0 {
			out = append(out, cur)
		}
		cur = u
	}
	if cur.Diff != 0 {
		out = append(out, cur)
	}
	return out
}

// ConsolidateToCurrent sorts by tuple only, ignoring time, and folds the
// same way. The result is the current observable state of a shard: one
// entry per distinct tuple with its net multiplicity.
func ConsolidateToCurrent(updates []Update) []Update {
	if len(updates) == 0 {
		return nil
	}
	sorted := make([]Update, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Tuple.Compare(sorted[j].Tuple) < 0
	})

	out := make([]Update, 0, len(sorted))
	cur := sorted[0]
	for _, u := range sorted[1:] {
		if u.Tuple.Equal(cur.Tuple) {
			cur.Diff += u.Diff
			continue
		}
		if cur.Diff != 0 {
			out = append(out, cur)
		}
		cur = u
	}
	if cur.Diff != 0 {
		out = append(out, cur)
	}
	return out
}

// ToTuples returns the tuples of every update with positive multiplicity,
// the visible fact set for a shard's current state.
func ToTuples(updates []Update) []value.Tuple {
	out := make([]value.Tuple, 0, len(updates))
	for _, u := range updates {
		if u.Diff > 0 {
			out = append(out, u.Tuple)
		}
	}
	return out
}
