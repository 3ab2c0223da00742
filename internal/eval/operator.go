package eval

import (
	"fmt"
	"math"
	"strings"
	"time"

	"codenerd/internal/ir"
	"codenerd/internal/kgerrors"
	"codenerd/internal/value"
)

// RelationSource resolves a Scan's input collection, either a base
// relation maintained by persistence or a derived relation already
// computed earlier in this evaluation run.
type RelationSource interface {
	Relation(name string) *Collection
}

type mapSource map[string]*Collection

func (m mapSource) Relation(name string) *Collection {
	if c, ok := m[name]; ok {
		return c
	}
	return NewCollection()
}

// Eval computes the output Collection of an IR subtree against the
// given relation snapshot. This is a full (non-delta) recomputation per
// call; the semi-naive driver in semi_naive.go achieves incrementality
// across calls by only re-running a stratum until its relations stop
// changing, not by differencing within a single Eval call. See
// DESIGN.md for why this tradeoff was made over literal per-operator
// delta propagation.
func Eval(node ir.Node, rels RelationSource) (*Collection, error) {
	switch n := node.(type) {
	case *ir.Scan:
		return rels.Relation(n.Relation).Clone(), nil

	case *ir.Map:
		input, err := Eval(n.Input, rels)
		if err != nil {
			return nil, err
		}
		out := NewCollection()
		input.Each(func(t value.Tuple, diff int64) {
			out.Add(t.Project(n.Projection), diff)
		})
		return out, nil

	case *ir.Filter:
		input, err := Eval(n.Input, rels)
		if err != nil {
			return nil, err
		}
		out := NewCollection()
		var evalErr error
		input.Each(func(t value.Tuple, diff int64) {
			if evalErr != nil {
				return
			}
			ok, err := evalPred(n.Predicate, t)
			if err != nil {
				evalErr = err
				return
			}
			if ok {
				out.Add(t, diff)
			}
		})
		return out, evalErr

	case *ir.Join:
		return evalJoin(n, rels)

	case *ir.Antijoin:
		return evalAntijoin(n, rels)

	case *ir.Distinct:
		input, err := Eval(n.Input, rels)
		if err != nil {
			return nil, err
		}
		out := NewCollection()
		input.Each(func(t value.Tuple, diff int64) {
			if diff > 0 {
				out.Add(t, 1)
			}
		})
		return out, nil

	case *ir.Union:
		out := NewCollection()
		for _, in := range n.Inputs {
			c, err := Eval(in, rels)
			if err != nil {
				return nil, err
			}
			out.Merge(c)
		}
		return out, nil

	case *ir.Aggregate:
		return evalAggregate(n, rels)

	case *ir.Compute:
		input, err := Eval(n.Input, rels)
		if err != nil {
			return nil, err
		}
		out := NewCollection()
		var evalErr error
		input.Each(func(t value.Tuple, diff int64) {
			if evalErr != nil {
				return
			}
			row := t
			for _, col := range n.Columns {
				v, err := evalExpr(col.Expr, row)
				if err != nil {
					evalErr = err
					return
				}
				row = appendColumn(row, v)
			}
			out.Add(row, diff)
		})
		return out, evalErr

	default:
		return nil, fmt.Errorf("eval: unsupported IR node %T", node)
	}
}

// appendColumn returns a new tuple with v appended as the last column.
func appendColumn(t value.Tuple, v value.Value) value.Tuple {
	vals := make([]value.Value, len(t.Values)+1)
	copy(vals, t.Values)
	vals[len(t.Values)] = v
	return value.Tuple{Values: vals}
}

func evalJoin(n *ir.Join, rels RelationSource) (*Collection, error) {
	left, err := Eval(n.Left, rels)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, rels)
	if err != nil {
		return nil, err
	}

	rightIndex := make(map[string][]entry)
	right.Each(func(t value.Tuple, diff int64) {
		k := t.Key(n.RightKeys)
		rightIndex[k] = append(rightIndex[k], entry{tuple: t, diff: diff})
	})

	rightArity := n.Right.Schema().Arity()
	rightNonKey := nonKeyCols(rightArity, n.RightKeys)

	out := NewCollection()
	left.Each(func(lt value.Tuple, ldiff int64) {
		k := lt.Key(n.LeftKeys)
		for _, re := range rightIndex[k] {
			joined := lt.Concat(re.tuple.Project(rightNonKey))
			out.Add(joined, ldiff*re.diff)
		}
	})
	return out, nil
}

func nonKeyCols(arity int, keys []int) []int {
	keySet := make(map[int]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var out []int
	for i := 0; i < arity; i++ {
		if !keySet[i] {
			out = append(out, i)
		}
	}
	return out
}

func evalAntijoin(n *ir.Antijoin, rels RelationSource) (*Collection, error) {
	left, err := Eval(n.Left, rels)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, rels)
	if err != nil {
		return nil, err
	}

	rightCount := make(map[string]int64)
	right.Each(func(t value.Tuple, diff int64) {
		rightCount[t.Key(n.RightKeys)] += diff
	})

	out := NewCollection()
	left.Each(func(t value.Tuple, diff int64) {
		if rightCount[t.Key(n.LeftKeys)] <= 0 {
			out.Add(t, diff)
		}
	})
	return out, nil
}

func evalPred(p *ir.Pred, row value.Tuple) (bool, error) {
	switch p.Op {
	case ir.PredTrue:
		return true, nil
	case ir.PredFalse:
		return false, nil
	case ir.PredAnd:
		l, err := evalPred(p.Left, row)
		if err != nil || !l {
			return false, err
		}
		return evalPred(p.Right, row)
	case ir.PredOr:
		l, err := evalPred(p.Left, row)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalPred(p.Right, row)
	case ir.PredNot:
		r, err := evalPred(p.Left, row)
		return !r, err
	case ir.PredBetween:
		a, err := operandValue(p.A, row)
		if err != nil {
			return false, err
		}
		lo, err := operandValue(p.B, row)
		if err != nil {
			return false, err
		}
		hi, err := operandValue(p.C, row)
		if err != nil {
			return false, err
		}
		return value.Compare(a, lo) >= 0 && value.Compare(a, hi) <= 0, nil
	default:
		a, err := operandValue(p.A, row)
		if err != nil {
			return false, err
		}
		b, err := operandValue(p.B, row)
		if err != nil {
			return false, err
		}
		cmp := value.Compare(a, b)
		switch p.Op {
		case ir.PredEq:
			return value.Equal(a, b), nil
		case ir.PredNeq:
			return !value.Equal(a, b), nil
		case ir.PredLt:
			return cmp < 0, nil
		case ir.PredLe:
			return cmp <= 0, nil
		case ir.PredGt:
			return cmp > 0, nil
		case ir.PredGe:
			return cmp >= 0, nil
		}
		return false, fmt.Errorf("eval: unsupported predicate op %v", p.Op)
	}
}

func operandValue(o ir.Operand, row value.Tuple) (value.Value, error) {
	if o.IsColumn {
		if o.Column < 0 || o.Column >= len(row.Values) {
			return value.Null(), &kgerrors.Internal{Message: fmt.Sprintf("column index %d out of range for row of arity %d", o.Column, len(row.Values))}
		}
		return row.Values[o.Column], nil
	}
	return o.Const, nil
}

func evalExpr(e ir.ComputeExpr, row value.Tuple) (value.Value, error) {
	switch x := e.(type) {
	case ir.ExprCol:
		if x.Column < 0 || x.Column >= len(row.Values) {
			return value.Null(), fmt.Errorf("eval: column index %d out of range", x.Column)
		}
		return row.Values[x.Column], nil
	case ir.ExprConst:
		return x.Value, nil
	case ir.ExprBinOp:
		l, err := evalExpr(x.Left, row)
		if err != nil {
			return value.Null(), err
		}
		r, err := evalExpr(x.Right, row)
		if err != nil {
			return value.Null(), err
		}
		return evalArith(x.Op, l, r)
	case ir.ExprCallOp:
		args := make([]value.Value, len(x.Args))
		for i, a := range x.Args {
			v, err := evalExpr(a, row)
			if err != nil {
				return value.Null(), err
			}
			args[i] = v
		}
		return evalBuiltin(x.Func, args)
	}
	return value.Null(), fmt.Errorf("eval: unsupported compute expression")
}

func asFloat(v value.Value) float64 {
	if f, ok := v.AsFloat64(); ok {
		return f
	}
	if i, ok := v.AsInt64(); ok {
		return float64(i)
	}
	return math.NaN()
}

func evalArith(op string, l, r value.Value) (value.Value, error) {
	// Integer-preserving arithmetic when both sides are integral;
	// otherwise promote to float64, matching the teacher's numeric
	// coercion convention in its computed-column evaluation.
	li, lIsInt := l.AsInt64()
	ri, rIsInt := r.AsInt64()
	if lIsInt && rIsInt && l.Kind() != value.KindFloat64 && r.Kind() != value.KindFloat64 {
		switch op {
		case "+":
			return value.Int64(li + ri), nil
		case "-":
			return value.Int64(li - ri), nil
		case "*":
			return value.Int64(li * ri), nil
		case "/":
			if ri == 0 {
				return value.Null(), fmt.Errorf("eval: division by zero")
			}
			return value.Int64(li / ri), nil
		}
	}
	lf, rf := asFloat(l), asFloat(r)
	switch op {
	case "+":
		return value.Float64(lf + rf), nil
	case "-":
		return value.Float64(lf - rf), nil
	case "*":
		return value.Float64(lf * rf), nil
	case "/":
		return value.Float64(lf / rf), nil
	}
	return value.Null(), fmt.Errorf("eval: unsupported arithmetic operator %q", op)
}

func evalBuiltin(fn string, args []value.Value) (value.Value, error) {
	switch fn {
	case "len":
		if len(args) != 1 {
			return value.Null(), fmt.Errorf("len expects one argument")
		}
		if s, ok := args[0].AsString(); ok {
			return value.Int64(int64(len(s))), nil
		}
		return value.Int64(int64(args[0].Dim())), nil
	case "upper":
		s, _ := args[0].AsString()
		return value.String(strings.ToUpper(s)), nil
	case "lower":
		s, _ := args[0].AsString()
		return value.String(strings.ToLower(s)), nil
	case "abs":
		return value.Float64(math.Abs(asFloat(args[0]))), nil
	case "sqrt":
		return value.Float64(math.Sqrt(asFloat(args[0]))), nil
	case "time_now":
		return value.Timestamp(time.Now().UTC()), nil
	case "euclidean", "cosine", "dot", "manhattan":
		if len(args) != 2 {
			return value.Null(), fmt.Errorf("%s expects two vector arguments", fn)
		}
		a, aok := args[0].AsVector()
		b, bok := args[1].AsVector()
		if !aok || !bok || len(a) != len(b) {
			return value.Null(), &kgerrors.VectorDimensionMismatch{Expected: len(a), Got: len(b)}
		}
		return value.Float64(vectorDistance(fn, a, b)), nil
	default:
		return value.Null(), fmt.Errorf("eval: unknown builtin function %q", fn)
	}
}

func vectorDistance(fn string, a, b []float32) float64 {
	switch fn {
	case "euclidean":
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case "manhattan":
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i] - b[i]))
		}
		return sum
	case "dot":
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	case "cosine":
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
	return math.NaN()
}
