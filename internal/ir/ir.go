// Package ir defines the relational intermediate representation rule
// bodies lower to (spec §4.3): a small tree of Scan/Map/Filter/Join/
// Antijoin/Distinct/Union/Aggregate/Compute nodes, each carrying its own
// output schema so later passes never need to re-infer types.
package ir

import "codenerd/internal/value"

// Node is any IR tree node.
type Node interface {
	Schema() value.Schema
	isNode()
}

// Scan binds to a named base (or previously-derived) collection.
type Scan struct {
	Relation string
	schema   value.Schema
}

func NewScan(relation string, schema value.Schema) *Scan { return &Scan{Relation: relation, schema: schema} }
func (s *Scan) Schema() value.Schema                     { return s.schema }
func (*Scan) isNode()                                    {}

// Map applies a column projection, reordering and/or dropping columns.
type Map struct {
	Input      Node
	Projection []int
	schema     value.Schema
}

func NewMap(input Node, projection []int, schema value.Schema) *Map {
	return &Map{Input: input, Projection: projection, schema: schema}
}
func (m *Map) Schema() value.Schema { return m.schema }
func (*Map) isNode()                {}

// IsIdentity reports whether this Map's projection is the identity
// permutation over its own arity (the fixed point identity-map-
// elimination pass looks for this).
func (m *Map) IsIdentity() bool {
	if len(m.Projection) != m.Input.Schema().Arity() {
		return false
	}
	for i, p := range m.Projection {
		if p != i {
			return false
		}
	}
	return true
}

// PredOp enumerates the predicate tree node kinds of a Filter.
type PredOp int

const (
	PredTrue PredOp = iota
	PredFalse
	PredAnd
	PredOr
	PredNot
	PredEq
	PredNeq
	PredLt
	PredLe
	PredGt
	PredGe
	PredBetween
)

// Operand is a predicate leaf operand: a column reference or a constant.
type Operand struct {
	IsColumn bool
	Column   int
	Const    value.Value
}

func Col(i int) Operand             { return Operand{IsColumn: true, Column: i} }
func Const(v value.Value) Operand   { return Operand{Const: v} }

// Pred is one node of a Filter's boolean predicate tree.
type Pred struct {
	Op       PredOp
	Left     *Pred // And/Or/Not operand trees
	Right    *Pred
	A, B, C  Operand // leaf comparison operands; Between uses all three (A between B and C)
}

func True() *Pred  { return &Pred{Op: PredTrue} }
func False() *Pred { return &Pred{Op: PredFalse} }
func And(l, r *Pred) *Pred { return &Pred{Op: PredAnd, Left: l, Right: r} }
func Or(l, r *Pred) *Pred  { return &Pred{Op: PredOr, Left: l, Right: r} }
func Not(p *Pred) *Pred    { return &Pred{Op: PredNot, Left: p} }
func Cmp(op PredOp, a, b Operand) *Pred { return &Pred{Op: op, A: a, B: b} }
func Between(a, lo, hi Operand) *Pred   { return &Pred{Op: PredBetween, A: a, B: lo, C: hi} }

// Filter drops rows failing Predicate.
type Filter struct {
	Input     Node
	Predicate *Pred
}

func NewFilter(input Node, pred *Pred) *Filter { return &Filter{Input: input, Predicate: pred} }
func (f *Filter) Schema() value.Schema         { return f.Input.Schema() }
func (*Filter) isNode()                        {}

// Join is an equi-join on paired key columns; output concatenates left
// columns then right-minus-key columns.
type Join struct {
	Left, Right         Node
	LeftKeys, RightKeys []int
	schema              value.Schema
}

func NewJoin(left, right Node, leftKeys, rightKeys []int, schema value.Schema) *Join {
	return &Join{Left: left, Right: right, LeftKeys: leftKeys, RightKeys: rightKeys, schema: schema}
}
func (j *Join) Schema() value.Schema { return j.schema }
func (*Join) isNode()                {}

// Antijoin keeps left rows whose key has no match in right.
type Antijoin struct {
	Left, Right         Node
	LeftKeys, RightKeys []int
}

func NewAntijoin(left, right Node, leftKeys, rightKeys []int) *Antijoin {
	return &Antijoin{Left: left, Right: right, LeftKeys: leftKeys, RightKeys: rightKeys}
}
func (a *Antijoin) Schema() value.Schema { return a.Left.Schema() }
func (*Antijoin) isNode()                {}

// Distinct collapses a multiset to a set (any positive accumulated diff
// becomes +1, any non-positive becomes absent).
type Distinct struct{ Input Node }

func NewDistinct(input Node) *Distinct { return &Distinct{Input: input} }
func (d *Distinct) Schema() value.Schema { return d.Input.Schema() }
func (*Distinct) isNode()                {}

// Union is an ordered bag union of uniform-schema inputs.
type Union struct {
	Inputs []Node
	schema value.Schema
}

func NewUnion(inputs []Node, schema value.Schema) *Union { return &Union{Inputs: inputs, schema: schema} }
func (u *Union) Schema() value.Schema                    { return u.schema }
func (*Union) isNode()                                   {}

// AggFunc enumerates the supported aggregate functions.
type AggFunc string

const (
	AggCount          AggFunc = "count"
	AggSum            AggFunc = "sum"
	AggMin            AggFunc = "min"
	AggMax            AggFunc = "max"
	AggAvg            AggFunc = "avg"
	AggTopK           AggFunc = "top_k"
	AggTopKThreshold  AggFunc = "top_k_threshold"
	AggWithinRadius   AggFunc = "within_radius"
)

// Aggregation is one aggregate applied over the grouped input.
type Aggregation struct {
	Func       AggFunc
	ArgColumn  int // -1 for count<>
	OutputName string
	// Ranking-aggregate parameters (top_k / top_k_threshold / within_radius).
	K          int
	OrderCol   int
	Descending bool
	Threshold  float64
	Radius     float64
}

// Aggregate groups Input by GroupBy columns and applies Aggregations.
type Aggregate struct {
	Input        Node
	GroupBy      []int
	Aggregations []Aggregation
	schema       value.Schema
}

func NewAggregate(input Node, groupBy []int, aggs []Aggregation, schema value.Schema) *Aggregate {
	return &Aggregate{Input: input, GroupBy: groupBy, Aggregations: aggs, schema: schema}
}
func (a *Aggregate) Schema() value.Schema { return a.schema }
func (*Aggregate) isNode()                {}

// ComputeExpr is an arithmetic/builtin expression tree over column
// references and constants, mirroring lang.Expr but column-indexed.
type ComputeExpr interface{ isComputeExpr() }

type ExprCol struct{ Column int }

func (ExprCol) isComputeExpr() {}

type ExprConst struct{ Value value.Value }

func (ExprConst) isComputeExpr() {}

type ExprBinOp struct {
	Op          string
	Left, Right ComputeExpr
}

func (ExprBinOp) isComputeExpr() {}

type ExprCallOp struct {
	Func string
	Args []ComputeExpr
}

func (ExprCallOp) isComputeExpr() {}

// ComputedColumn is one `name = expr` append.
type ComputedColumn struct {
	Name string
	Expr ComputeExpr
	Type value.Kind
	Dim  int
}

// Compute appends computed columns to Input.
type Compute struct {
	Input   Node
	Columns []ComputedColumn
	schema  value.Schema
}

func NewCompute(input Node, cols []ComputedColumn, schema value.Schema) *Compute {
	return &Compute{Input: input, Columns: cols, schema: schema}
}
func (c *Compute) Schema() value.Schema { return c.schema }
func (*Compute) isNode()                {}

// Plan is one rule's lowered IR tree: Root is the final node (after the
// head-projection Map), and HeadRelation names the relation this plan
// derives (§4.3 step 7).
type Plan struct {
	HeadRelation string
	Root         Node
}
