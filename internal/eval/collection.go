// Package eval implements the differential, stratified, semi-naive
// evaluator of spec §4.5: it takes a set of lowered IR plans (one per
// rule clause, plus the anonymous query rule) and the current base
// relation state, and incrementally maintains every derived relation to
// a fixed point.
package eval

import "codenerd/internal/value"

// entry is one consolidated (tuple, diff) pair inside a Collection.
type entry struct {
	tuple value.Tuple
	diff  int64
}

// Collection is a time-varying collection materialized as a consolidated
// multiset: each distinct tuple key maps to its summed diff. A
// consolidated Collection never holds a zero-diff entry (spec §4.6
// consolidation).
type Collection struct {
	entries map[string]entry
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{entries: make(map[string]entry)}
}

// allCols returns [0, 1, ..., n-1], the full-row key column set.
func allCols(n int) []int {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return cols
}

func keyOf(t value.Tuple) string { return t.Key(allCols(t.Arity())) }

// Add accumulates diff into tuple's existing entry, consolidating away
// the entry entirely if the running sum reaches zero.
func (c *Collection) Add(t value.Tuple, diff int64) {
	k := keyOf(t)
	e, ok := c.entries[k]
	if !ok {
		if diff == 0 {
			return
		}
		c.entries[k] = entry{tuple: t, diff: diff}
		return
	}
	sum := e.diff + diff
	if sum == 0 {
		delete(c.entries, k)
		return
	}
	c.entries[k] = entry{tuple: t, diff: sum}
}

// DiffOf returns the current consolidated diff for a tuple (0 if absent).
func (c *Collection) DiffOf(t value.Tuple) int64 {
	e, ok := c.entries[keyOf(t)]
	if !ok {
		return 0
	}
	return e.diff
}

// Len returns the number of distinct tuples with nonzero diff.
func (c *Collection) Len() int { return len(c.entries) }

// Each invokes f for every (tuple, diff) pair. Iteration order is not
// guaranteed; callers needing determinism must sort.
func (c *Collection) Each(f func(t value.Tuple, diff int64)) {
	for _, e := range c.entries {
		f(e.tuple, e.diff)
	}
}

// Clone returns an independent copy.
func (c *Collection) Clone() *Collection {
	out := NewCollection()
	for k, e := range c.entries {
		out.entries[k] = e
	}
	return out
}

// Equal reports whether two collections hold the same consolidated
// (tuple, diff) pairs.
func (c *Collection) Equal(o *Collection) bool {
	if len(c.entries) != len(o.entries) {
		return false
	}
	for k, e := range c.entries {
		oe, ok := o.entries[k]
		if !ok || oe.diff != e.diff {
			return false
		}
	}
	return true
}

// Merge adds every (tuple, diff) of o into c in place.
func (c *Collection) Merge(o *Collection) {
	o.Each(func(t value.Tuple, diff int64) {
		c.Add(t, diff)
	})
}

// ToSlice returns every tuple with strictly positive diff, the
// caller-visible "current contents" of a relation (spec's query result
// set: only positively-present tuples are observable facts).
func (c *Collection) ToSlice() []value.Tuple {
	out := make([]value.Tuple, 0, len(c.entries))
	for _, e := range c.entries {
		if e.diff > 0 {
			out = append(out, e.tuple)
		}
	}
	return out
}
