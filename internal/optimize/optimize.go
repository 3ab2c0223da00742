// Package optimize rewrites an IR plan into a semantically equivalent,
// cheaper tree (spec §4.4). Passes run to a fixed point, bounded by a
// configurable max-iteration count.
package optimize

import (
	"strconv"

	"codenerd/internal/ir"
	"codenerd/internal/value"
)

// CardinalityOracle reports an estimated (or exact) tuple count for a
// named relation, used by the join-planning pass.
type CardinalityOracle interface {
	RelationCardinality(name string) int64
}

// Options selects which passes run, mirroring the `enable_*` config
// keys of spec §6.
type Options struct {
	MaxIterations            int
	EnableJoinPlanning        bool
	EnableSIPRewriting        bool
	EnableSubplanSharing      bool
	EnableBooleanSpecialization bool
	Cardinality               CardinalityOracle
}

// DefaultOptions matches the spec's defaults: 5 fixed-point iterations,
// every toggle-able pass off.
func DefaultOptions() Options {
	return Options{MaxIterations: 5}
}

// Optimize rewrites plan.Root to a fixed point of the enabled passes.
func Optimize(plan *ir.Plan, opts Options) *ir.Plan {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 5
	}
	node := plan.Root
	for i := 0; i < maxIter; i++ {
		rewritten, changed := rewriteOnce(node, opts)
		node = rewritten
		if !changed {
			break
		}
	}
	if opts.EnableJoinPlanning {
		node = planJoins(node, opts.Cardinality)
	}
	if opts.EnableBooleanSpecialization {
		node = specializeBoolean(node, plan.HeadRelation)
	}
	return &ir.Plan{HeadRelation: plan.HeadRelation, Root: node}
}

// rewriteOnce applies identity-map elimination, constant-filter
// folding, filter fusion, and filter pushdown bottom-up once, reporting
// whether anything changed.
func rewriteOnce(n ir.Node, opts Options) (ir.Node, bool) {
	changed := false

	rewriteChild := func(c ir.Node) ir.Node {
		r, ch := rewriteOnce(c, opts)
		if ch {
			changed = true
		}
		return r
	}

	switch node := n.(type) {
	case *ir.Map:
		input := rewriteChild(node.Input)
		if node.IsIdentity() {
			changed = true
			return input, changed
		}
		return ir.NewMap(input, node.Projection, node.Schema()), changed

	case *ir.Filter:
		input := rewriteChild(node.Input)
		pred := foldPred(node.Predicate)
		if !predEqual(pred, node.Predicate) {
			changed = true
		}

		if pred.Op == ir.PredTrue {
			changed = true
			return input, changed
		}
		if pred.Op == ir.PredFalse {
			changed = true
			return ir.NewUnion(nil, node.Schema()), changed
		}

		if inner, ok := input.(*ir.Filter); ok {
			changed = true
			return rewriteOnce(ir.NewFilter(inner.Input, ir.And(pred, inner.Predicate)), opts)
		}

		if pushed, ok := pushFilterDown(input, pred); ok {
			changed = true
			return rewriteOnce(pushed, opts)
		}

		return ir.NewFilter(input, pred), changed

	case *ir.Join:
		left := rewriteChild(node.Left)
		right := rewriteChild(node.Right)
		return ir.NewJoin(left, right, node.LeftKeys, node.RightKeys, node.Schema()), changed

	case *ir.Antijoin:
		left := rewriteChild(node.Left)
		right := rewriteChild(node.Right)
		return ir.NewAntijoin(left, right, node.LeftKeys, node.RightKeys), changed

	case *ir.Distinct:
		input := rewriteChild(node.Input)
		return ir.NewDistinct(input), changed

	case *ir.Union:
		inputs := make([]ir.Node, len(node.Inputs))
		for i, c := range node.Inputs {
			inputs[i] = rewriteChild(c)
		}
		return ir.NewUnion(inputs, node.Schema()), changed

	case *ir.Aggregate:
		input := rewriteChild(node.Input)
		return ir.NewAggregate(input, node.GroupBy, node.Aggregations, node.Schema()), changed

	case *ir.Compute:
		input := rewriteChild(node.Input)
		return ir.NewCompute(input, node.Columns, node.Schema()), changed

	default:
		return n, changed
	}
}

// foldPred collapses constant subtrees: And(True,p)->p, And(False,_)->False,
// Or(True,_)->True, Or(False,p)->p, Not(True)->False, Not(False)->True.
func foldPred(p *ir.Pred) *ir.Pred {
	if p == nil {
		return ir.True()
	}
	switch p.Op {
	case ir.PredAnd:
		l, r := foldPred(p.Left), foldPred(p.Right)
		if l.Op == ir.PredFalse || r.Op == ir.PredFalse {
			return ir.False()
		}
		if l.Op == ir.PredTrue {
			return r
		}
		if r.Op == ir.PredTrue {
			return l
		}
		return ir.And(l, r)
	case ir.PredOr:
		l, r := foldPred(p.Left), foldPred(p.Right)
		if l.Op == ir.PredTrue || r.Op == ir.PredTrue {
			return ir.True()
		}
		if l.Op == ir.PredFalse {
			return r
		}
		if r.Op == ir.PredFalse {
			return l
		}
		return ir.Or(l, r)
	case ir.PredNot:
		inner := foldPred(p.Left)
		if inner.Op == ir.PredTrue {
			return ir.False()
		}
		if inner.Op == ir.PredFalse {
			return ir.True()
		}
		return ir.Not(inner)
	default:
		return p
	}
}

func predEqual(a, b *ir.Pred) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Op != b.Op {
		return false
	}
	return predEqual(a.Left, b.Left) && predEqual(a.Right, b.Right) &&
		a.A == b.A && a.B == b.B && a.C == b.C
}

// pushFilterDown pushes a filter through Map (remapping column refs),
// through Union (distributing to each branch), or through Join if the
// predicate references only one side's columns.
func pushFilterDown(input ir.Node, pred *ir.Pred) (ir.Node, bool) {
	switch n := input.(type) {
	case *ir.Map:
		remapped, ok := remapPred(pred, n.Projection)
		if !ok {
			return nil, false
		}
		return ir.NewMap(ir.NewFilter(n.Input, remapped), n.Projection, n.Schema()), true

	case *ir.Union:
		branches := make([]ir.Node, len(n.Inputs))
		for i, c := range n.Inputs {
			branches[i] = ir.NewFilter(c, pred)
		}
		return ir.NewUnion(branches, n.Schema()), true

	case *ir.Join:
		leftArity := n.Left.Schema().Arity()
		if refsOnly(pred, func(col int) bool { return col < leftArity }) {
			return ir.NewJoin(ir.NewFilter(n.Left, pred), n.Right, n.LeftKeys, n.RightKeys, n.Schema()), true
		}
		if refsOnly(pred, func(col int) bool { return col >= leftArity }) {
			shifted, ok := shiftPred(pred, -leftArity)
			if ok {
				return ir.NewJoin(n.Left, ir.NewFilter(n.Right, shifted), n.LeftKeys, n.RightKeys, n.Schema()), true
			}
		}
	}
	return nil, false
}

func remapPred(p *ir.Pred, projection []int) (*ir.Pred, bool) {
	if p == nil {
		return nil, true
	}
	switch p.Op {
	case ir.PredAnd, ir.PredOr:
		l, ok1 := remapPred(p.Left, projection)
		r, ok2 := remapPred(p.Right, projection)
		if !ok1 || !ok2 {
			return nil, false
		}
		return &ir.Pred{Op: p.Op, Left: l, Right: r}, true
	case ir.PredNot:
		inner, ok := remapPred(p.Left, projection)
		if !ok {
			return nil, false
		}
		return ir.Not(inner), true
	case ir.PredTrue, ir.PredFalse:
		return p, true
	default:
		a, ok1 := remapOperand(p.A, projection)
		b, ok2 := remapOperand(p.B, projection)
		c, ok3 := remapOperand(p.C, projection)
		if !ok1 || !ok2 || !ok3 {
			return nil, false
		}
		return &ir.Pred{Op: p.Op, A: a, B: b, C: c}, true
	}
}

func remapOperand(o ir.Operand, projection []int) (ir.Operand, bool) {
	if !o.IsColumn {
		return o, true
	}
	if o.Column < 0 || o.Column >= len(projection) {
		return o, false
	}
	return ir.Col(projection[o.Column]), true
}

func shiftPred(p *ir.Pred, delta int) (*ir.Pred, bool) {
	identity := make([]int, 0)
	_ = identity
	return remapPredFunc(p, func(col int) (int, bool) { return col + delta, true })
}

func remapPredFunc(p *ir.Pred, f func(int) (int, bool)) (*ir.Pred, bool) {
	if p == nil {
		return nil, true
	}
	switch p.Op {
	case ir.PredAnd, ir.PredOr:
		l, ok1 := remapPredFunc(p.Left, f)
		r, ok2 := remapPredFunc(p.Right, f)
		if !ok1 || !ok2 {
			return nil, false
		}
		return &ir.Pred{Op: p.Op, Left: l, Right: r}, true
	case ir.PredNot:
		inner, ok := remapPredFunc(p.Left, f)
		if !ok {
			return nil, false
		}
		return ir.Not(inner), true
	case ir.PredTrue, ir.PredFalse:
		return p, true
	default:
		a, ok1 := remapOperandFunc(p.A, f)
		b, ok2 := remapOperandFunc(p.B, f)
		c, ok3 := remapOperandFunc(p.C, f)
		if !ok1 || !ok2 || !ok3 {
			return nil, false
		}
		return &ir.Pred{Op: p.Op, A: a, B: b, C: c}, true
	}
}

func remapOperandFunc(o ir.Operand, f func(int) (int, bool)) (ir.Operand, bool) {
	if !o.IsColumn {
		return o, true
	}
	col, ok := f(o.Column)
	if !ok || col < 0 {
		return o, false
	}
	return ir.Col(col), true
}

// refsOnly reports whether every column reference in pred satisfies ok.
func refsOnly(p *ir.Pred, ok func(int) bool) bool {
	if p == nil {
		return true
	}
	switch p.Op {
	case ir.PredAnd, ir.PredOr:
		return refsOnly(p.Left, ok) && refsOnly(p.Right, ok)
	case ir.PredNot:
		return refsOnly(p.Left, ok)
	case ir.PredTrue, ir.PredFalse:
		return true
	default:
		return operandOk(p.A, ok) && operandOk(p.B, ok) && operandOk(p.C, ok)
	}
}

func operandOk(o ir.Operand, ok func(int) bool) bool {
	if !o.IsColumn {
		return true
	}
	return ok(o.Column)
}

// planJoins reorders a left-deep join chain to minimize estimated
// intermediate cardinality using catalog tuple counts as base
// cardinalities and a uniform-selectivity assumption; ties preserve
// source order (spec §4.4). Only chains of keyless joins over Scan
// leaves are reordered; a chain with any equi-join key is left as built.
func planJoins(n ir.Node, oracle CardinalityOracle) ir.Node {
	switch node := n.(type) {
	case *ir.Join:
		leaves, ok := flattenJoinChain(node)
		if !ok || oracle == nil {
			return rebuildChildren(node, oracle, planJoins)
		}
		reordered := reorderBySize(leaves, oracle)
		return rebuildJoinChain(reordered)
	default:
		return rebuildChildren(n, oracle, planJoins)
	}
}

type joinLeaf struct {
	node ir.Node
}

// flattenJoinChain only handles the simple case of a pure left-deep
// chain of keyless joins over Scan leaves; anything else, including any
// join with equi-join keys, is left untouched to avoid disturbing
// key-column bookkeeping it would need to re-derive.
func flattenJoinChain(n ir.Node) ([]joinLeaf, bool) {
	var leaves []joinLeaf
	cur := ir.Node(n)
	for {
		j, ok := cur.(*ir.Join)
		if !ok {
			if _, isScan := cur.(*ir.Scan); !isScan {
				return nil, false
			}
			leaves = append([]joinLeaf{{node: cur}}, leaves...)
			return leaves, true
		}
		if _, isScan := j.Right.(*ir.Scan); !isScan {
			return nil, false
		}
		if len(j.LeftKeys) > 0 || len(j.RightKeys) > 0 {
			return nil, false
		}
		leaves = append([]joinLeaf{{node: j.Right}}, leaves...)
		cur = j.Left
	}
}

func reorderBySize(leaves []joinLeaf, oracle CardinalityOracle) []joinLeaf {
	sized := make([]struct {
		leaf joinLeaf
		size int64
		idx  int
	}, len(leaves))
	for i, l := range leaves {
		name := ""
		if s, ok := l.node.(*ir.Scan); ok {
			name = s.Relation
		}
		sized[i] = struct {
			leaf joinLeaf
			size int64
			idx  int
		}{leaf: l, size: oracle.RelationCardinality(name), idx: i}
	}
	for i := 1; i < len(sized); i++ {
		j := i
		for j > 0 && (sized[j].size < sized[j-1].size) {
			sized[j], sized[j-1] = sized[j-1], sized[j]
			j--
		}
	}
	out := make([]joinLeaf, len(sized))
	for i, s := range sized {
		out[i] = s.leaf
	}
	return out
}

// rebuildJoinChain rebuilds a left-deep join over the reordered leaves.
// Key columns are not recomputed here: callers that need join-key
// fidelity across a reorder should supply key metadata per leaf; this
// pass is scoped to plans without explicit equi-join keys between the
// reordered leaves (i.e. cross products), which is what an estimator
// reorders safely without re-deriving variable bindings.
func rebuildJoinChain(leaves []joinLeaf) ir.Node {
	if len(leaves) == 0 {
		return ir.NewUnion(nil, value.Schema{})
	}
	cur := leaves[0].node
	for _, l := range leaves[1:] {
		cur = ir.NewJoin(cur, l.node, nil, nil, cur.Schema().Merge(l.node.Schema().Columns))
	}
	return cur
}

func rebuildChildren(n ir.Node, oracle CardinalityOracle, recur func(ir.Node, CardinalityOracle) ir.Node) ir.Node {
	switch node := n.(type) {
	case *ir.Map:
		return ir.NewMap(recur(node.Input, oracle), node.Projection, node.Schema())
	case *ir.Filter:
		return ir.NewFilter(recur(node.Input, oracle), node.Predicate)
	case *ir.Join:
		return ir.NewJoin(recur(node.Left, oracle), recur(node.Right, oracle), node.LeftKeys, node.RightKeys, node.Schema())
	case *ir.Antijoin:
		return ir.NewAntijoin(recur(node.Left, oracle), recur(node.Right, oracle), node.LeftKeys, node.RightKeys)
	case *ir.Distinct:
		return ir.NewDistinct(recur(node.Input, oracle))
	case *ir.Union:
		inputs := make([]ir.Node, len(node.Inputs))
		for i, c := range node.Inputs {
			inputs[i] = recur(c, oracle)
		}
		return ir.NewUnion(inputs, node.Schema())
	case *ir.Aggregate:
		return ir.NewAggregate(recur(node.Input, oracle), node.GroupBy, node.Aggregations, node.Schema())
	case *ir.Compute:
		return ir.NewCompute(recur(node.Input, oracle), node.Columns, node.Schema())
	default:
		return n
	}
}

// OptimizeAll optimizes every plan independently and, when
// EnableSubplanSharing is set, also returns every subtree of the
// optimized plans keyed by Signature (first occurrence kept). The plans
// are not rewritten to share those subtrees, and nothing in the engine
// or the evaluator reads the returned map: each plan is still evaluated
// on its own.
func OptimizeAll(plans []*ir.Plan, opts Options) ([]*ir.Plan, map[string]ir.Node) {
	out := make([]*ir.Plan, len(plans))
	shared := make(map[string]ir.Node)
	if !opts.EnableSubplanSharing {
		for i, p := range plans {
			out[i] = Optimize(p, opts)
		}
		return out, shared
	}
	for i, p := range plans {
		optimized := Optimize(p, opts)
		out[i] = optimized
		collectShared(optimized.Root, shared)
	}
	return out, shared
}

func collectShared(n ir.Node, shared map[string]ir.Node) {
	sig := Signature(n)
	if _, ok := shared[sig]; !ok {
		shared[sig] = n
	}
	switch node := n.(type) {
	case *ir.Map:
		collectShared(node.Input, shared)
	case *ir.Filter:
		collectShared(node.Input, shared)
	case *ir.Join:
		collectShared(node.Left, shared)
		collectShared(node.Right, shared)
	case *ir.Antijoin:
		collectShared(node.Left, shared)
		collectShared(node.Right, shared)
	case *ir.Distinct:
		collectShared(node.Input, shared)
	case *ir.Union:
		for _, c := range node.Inputs {
			collectShared(c, shared)
		}
	case *ir.Aggregate:
		collectShared(node.Input, shared)
	case *ir.Compute:
		collectShared(node.Input, shared)
	}
}

// Signature returns a structural fingerprint of an IR subtree: node
// kinds, scanned relation names, Map projections, join keys, and
// Aggregate group-by columns. Predicates contribute only their
// And/Or/Not shape and constant operands, not their operator or the
// column indices they reference, and Aggregate aggregations and Compute
// columns are left out, so two different subtrees can share a
// signature. Sideways
// information passing's magic-relation rewrite for cross-rule bound
// queries is intentionally not implemented as a separate rewrite here:
// the filter-pushdown pass already drives a literal bound in an early
// atom down to that atom's own Scan within a single rule's plan, which
// covers the common single-rule case; a magic-set rewrite spanning
// multiple rule plans is left as future work (see DESIGN.md).
func Signature(n ir.Node) string {
	var sb stringsBuilder
	writeSignature(n, &sb)
	return sb.String()
}

func writeSignature(n ir.Node, sb *stringsBuilder) {
	switch node := n.(type) {
	case *ir.Scan:
		sb.WriteString("Scan(")
		sb.WriteString(node.Relation)
		sb.WriteString(")")
	case *ir.Map:
		sb.WriteString("Map(")
		writeSignature(node.Input, sb)
		sb.WriteString(",")
		sb.WriteInts(node.Projection)
		sb.WriteString(")")
	case *ir.Filter:
		sb.WriteString("Filter(")
		writeSignature(node.Input, sb)
		sb.WriteString(",")
		sb.WriteString(predSignature(node.Predicate))
		sb.WriteString(")")
	case *ir.Join:
		sb.WriteString("Join(")
		writeSignature(node.Left, sb)
		sb.WriteString(",")
		writeSignature(node.Right, sb)
		sb.WriteString(",")
		sb.WriteInts(node.LeftKeys)
		sb.WriteInts(node.RightKeys)
		sb.WriteString(")")
	case *ir.Antijoin:
		sb.WriteString("Antijoin(")
		writeSignature(node.Left, sb)
		sb.WriteString(",")
		writeSignature(node.Right, sb)
		sb.WriteString(",")
		sb.WriteInts(node.LeftKeys)
		sb.WriteInts(node.RightKeys)
		sb.WriteString(")")
	case *ir.Distinct:
		sb.WriteString("Distinct(")
		writeSignature(node.Input, sb)
		sb.WriteString(")")
	case *ir.Union:
		sb.WriteString("Union(")
		for _, c := range node.Inputs {
			writeSignature(c, sb)
			sb.WriteString(";")
		}
		sb.WriteString(")")
	case *ir.Aggregate:
		sb.WriteString("Aggregate(")
		writeSignature(node.Input, sb)
		sb.WriteString(",")
		sb.WriteInts(node.GroupBy)
		sb.WriteString(")")
	case *ir.Compute:
		sb.WriteString("Compute(")
		writeSignature(node.Input, sb)
		sb.WriteString(")")
	}
}

func predSignature(p *ir.Pred) string {
	if p == nil {
		return "-"
	}
	return predSignatureRec(p)
}

func predSignatureRec(p *ir.Pred) string {
	base := ""
	switch p.Op {
	case ir.PredAnd:
		base = "And(" + predSignatureRec(p.Left) + "," + predSignatureRec(p.Right) + ")"
	case ir.PredOr:
		base = "Or(" + predSignatureRec(p.Left) + "," + predSignatureRec(p.Right) + ")"
	case ir.PredNot:
		base = "Not(" + predSignatureRec(p.Left) + ")"
	default:
		base = operandSig(p.A) + "|" + operandSig(p.B) + "|" + operandSig(p.C)
	}
	return base
}

func operandSig(o ir.Operand) string {
	if o.IsColumn {
		return "c"
	}
	return "k" + o.Const.String()
}

// stringsBuilder is a minimal strings.Builder-compatible helper with an
// added WriteInts convenience, kept local so the signature builder has
// no allocation surprises from repeated fmt.Sprintf calls on a hot path.
type stringsBuilder struct {
	data []byte
}

func (b *stringsBuilder) WriteString(s string) { b.data = append(b.data, s...) }
func (b *stringsBuilder) String() string        { return string(b.data) }
func (b *stringsBuilder) WriteInts(xs []int) {
	for _, x := range xs {
		b.data = append(b.data, []byte(strconv.Itoa(x))...)
		b.data = append(b.data, ',')
	}
}

// specializeBoolean wraps the root of a plan whose head has zero
// variables (a pure existence check) in a Distinct, so the plan yields
// the empty tuple at most once; any other plan is returned unchanged.
func specializeBoolean(n ir.Node, headRelation string) ir.Node {
	if n.Schema().Arity() != 0 {
		return n
	}
	return ir.NewDistinct(n)
}
