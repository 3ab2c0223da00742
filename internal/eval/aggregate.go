package eval

import (
	"fmt"
	"sort"

	"codenerd/internal/ir"
	"codenerd/internal/value"
)

// evalAggregate groups the input by GroupBy columns and applies every
// configured aggregation, emitting exactly one row per non-empty group
// (spec §4.5: "Aggregate output for an empty group is no output, never
// a zero-row").
func evalAggregate(n *ir.Aggregate, rels RelationSource) (*Collection, error) {
	input, err := Eval(n.Input, rels)
	if err != nil {
		return nil, err
	}

	type group struct {
		key  value.Tuple
		rows []entry
	}
	groups := make(map[string]*group)
	var order []string
	input.Each(func(t value.Tuple, diff int64) {
		k := t.Key(n.GroupBy)
		g, ok := groups[k]
		if !ok {
			g = &group{key: t.Project(n.GroupBy)}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, entry{tuple: t, diff: diff})
	})
	sort.Strings(order)

	out := NewCollection()
	for _, k := range order {
		g := groups[k]
		// An accumulated diff of zero across every row means the group
		// has been fully retracted; treat as empty.
		var total int64
		for _, r := range g.rows {
			total += r.diff
		}
		if total <= 0 {
			continue
		}
		outCols := make([]value.Value, 0, len(n.GroupBy)+len(n.Aggregations))
		outCols = append(outCols, g.key.Values...)
		for _, agg := range n.Aggregations {
			v, err := applyAggregation(agg, g.rows)
			if err != nil {
				return nil, err
			}
			outCols = append(outCols, v)
		}
		out.Add(value.Tuple{Values: outCols}, 1)
	}
	return out, nil
}

func applyAggregation(agg ir.Aggregation, rows []entry) (value.Value, error) {
	switch agg.Func {
	case ir.AggCount:
		var n int64
		for _, r := range rows {
			n += r.diff
		}
		return value.Int64(n), nil
	case ir.AggSum:
		return aggSum(agg, rows)
	case ir.AggAvg:
		return aggAvg(agg, rows)
	case ir.AggMin:
		return aggMinMax(agg, rows, true)
	case ir.AggMax:
		return aggMinMax(agg, rows, false)
	case ir.AggTopK:
		return aggTopK(agg, rows, false)
	case ir.AggTopKThreshold:
		return aggTopK(agg, rows, true)
	case ir.AggWithinRadius:
		return aggWithinRadius(agg, rows)
	default:
		return value.Null(), fmt.Errorf("eval: unsupported aggregate function %q", agg.Func)
	}
}

func positiveRows(rows []entry) []entry {
	out := make([]entry, 0, len(rows))
	for _, r := range rows {
		if r.diff > 0 {
			out = append(out, r)
		}
	}
	return out
}

func aggSum(agg ir.Aggregation, rows []entry) (value.Value, error) {
	var isFloat bool
	var sumF float64
	var sumI int64
	for _, r := range rows {
		v := r.tuple.Values[agg.ArgColumn]
		if f, ok := v.AsFloat64(); ok && v.Kind() == value.KindFloat64 {
			isFloat = true
			sumF += f * float64(r.diff)
		} else if i, ok := v.AsInt64(); ok {
			sumI += i * r.diff
		}
	}
	if isFloat {
		return value.Float64(sumF + float64(sumI)), nil
	}
	return value.Int64(sumI), nil
}

func aggAvg(agg ir.Aggregation, rows []entry) (value.Value, error) {
	var sum float64
	var count int64
	for _, r := range rows {
		v := r.tuple.Values[agg.ArgColumn]
		sum += asFloat(v) * float64(r.diff)
		count += r.diff
	}
	if count == 0 {
		return value.Float64(0), nil
	}
	return value.Float64(sum / float64(count)), nil
}

func aggMinMax(agg ir.Aggregation, rows []entry, wantMin bool) (value.Value, error) {
	rows = positiveRows(rows)
	if len(rows) == 0 {
		return value.Null(), nil
	}
	best := rows[0].tuple.Values[agg.ArgColumn]
	for _, r := range rows[1:] {
		v := r.tuple.Values[agg.ArgColumn]
		c := value.Compare(v, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = v
		}
	}
	return best, nil
}

// aggTopK selects up to K rows ordered by OrderCol (descending if
// agg.Descending), breaking ties by tuple-lexicographic order, and
// returns the ranked OrderCol values packed into a Vector — the single
// output column every aggregate produces. withThreshold additionally
// drops rows whose order value does not meet agg.Threshold before
// ranking.
func aggTopK(agg ir.Aggregation, rows []entry, withThreshold bool) (value.Value, error) {
	rows = positiveRows(rows)
	ordered := make([]value.Tuple, 0, len(rows))
	for _, r := range rows {
		if withThreshold {
			ov := r.tuple.Values[agg.OrderCol]
			f := asFloat(ov)
			if agg.Descending && f < agg.Threshold {
				continue
			}
			if !agg.Descending && f > agg.Threshold {
				continue
			}
		}
		ordered = append(ordered, r.tuple)
	}
	sort.Slice(ordered, func(i, j int) bool {
		c := value.Compare(ordered[i].Values[agg.OrderCol], ordered[j].Values[agg.OrderCol])
		if c == 0 {
			return ordered[i].Compare(ordered[j]) < 0
		}
		if agg.Descending {
			return c > 0
		}
		return c < 0
	})
	k := agg.K
	if k > len(ordered) {
		k = len(ordered)
	}
	vals := make([]float32, k)
	for i := 0; i < k; i++ {
		vals[i] = float32(asFloat(ordered[i].Values[agg.OrderCol]))
	}
	return value.Vector(vals), nil
}

// aggWithinRadius keeps rows whose order column is within agg.Radius of
// zero, returning the count of qualifying rows (the aggregate is used
// as a group-filtering cardinality check in practice).
func aggWithinRadius(agg ir.Aggregation, rows []entry) (value.Value, error) {
	var n int64
	for _, r := range positiveRows(rows) {
		d := asFloat(r.tuple.Values[agg.OrderCol])
		if d <= agg.Radius {
			n += r.diff
		}
	}
	return value.Int64(n), nil
}
