package value

import "strings"

// Tuple is an ordered sequence of Values: the unit of storage, join, and
// query result in the engine.
type Tuple struct {
	Values []Value `json:"values"`
}

// NewTuple builds a Tuple from a variadic list of values.
func NewTuple(values ...Value) Tuple {
	return Tuple{Values: values}
}

// Arity returns the number of columns.
func (t Tuple) Arity() int { return len(t.Values) }

// Compare orders tuples lexicographically by column.
func (t Tuple) Compare(o Tuple) int {
	n := len(t.Values)
	if len(o.Values) < n {
		n = len(o.Values)
	}
	for i := 0; i < n; i++ {
		if c := Compare(t.Values[i], o.Values[i]); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(t.Values)), int64(len(o.Values)))
}

// Equal reports structural equality of every column.
func (t Tuple) Equal(o Tuple) bool {
	if len(t.Values) != len(o.Values) {
		return false
	}
	for i := range t.Values {
		if !Equal(t.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

// Hash returns a combined hash over every column, consistent with Equal.
func (t Tuple) Hash() uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis, reused as a mixing seed
	for _, v := range t.Values {
		h ^= Hash(v)
		h *= 1099511628211 // FNV prime
	}
	return h
}

// Project returns a new tuple containing only the given column indices, in
// order. Used by Map/projection IR nodes.
func (t Tuple) Project(cols []int) Tuple {
	out := make([]Value, len(cols))
	for i, c := range cols {
		out[i] = t.Values[c]
	}
	return Tuple{Values: out}
}

// Concat appends the columns of o after the columns of t, used by Join to
// build output tuples.
func (t Tuple) Concat(o Tuple) Tuple {
	out := make([]Value, 0, len(t.Values)+len(o.Values))
	out = append(out, t.Values...)
	out = append(out, o.Values...)
	return Tuple{Values: out}
}

// String renders the tuple for diagnostics, e.g. "(1, "a", 2.5)".
func (t Tuple) String() string {
	parts := make([]string, len(t.Values))
	for i, v := range t.Values {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Key extracts the columns at the given indices as a comparable map key,
// used by join/antijoin/aggregate indexes that need Go-map-friendly keys.
func (t Tuple) Key(cols []int) string {
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(t.Values[c].String())
		sb.WriteByte(0)
	}
	return sb.String()
}
