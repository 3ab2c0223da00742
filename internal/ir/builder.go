package ir

import (
	"fmt"

	"codenerd/internal/lang"
	"codenerd/internal/value"
)

// SchemaLookup resolves a relation name to its currently-known schema,
// false if the relation has never been written. The catalog/kg façade
// implements this by tracking the schema of each relation's first
// insert (spec §4.1 "schema fixed at first write").
type SchemaLookup interface {
	RelationSchema(name string) (value.Schema, bool)
}

// builder holds the mutable state of lowering one rule: the IR tree
// built so far and where each bound variable currently lives in it.
type builder struct {
	schemas SchemaLookup
	node    Node
	varCol  map[string]int
}

// Build lowers one rule to an IR Plan following spec §4.3 steps 1-7.
func Build(rule lang.Rule, schemas SchemaLookup) (*Plan, error) {
	b := &builder{schemas: schemas, varCol: make(map[string]int)}

	for _, item := range rule.Body {
		switch bi := item.(type) {
		case lang.PosAtom:
			if err := b.addPositiveAtom(bi.Atom); err != nil {
				return nil, err
			}
		case lang.NegAtom:
			if err := b.addNegatedAtom(bi.Atom); err != nil {
				return nil, err
			}
		case lang.ConstraintItem:
			if err := b.addConstraint(bi.Constraint); err != nil {
				return nil, err
			}
		case lang.AssignItem:
			if err := b.addAssign(bi.Assign); err != nil {
				return nil, err
			}
		}
	}

	if b.node == nil {
		// A headless/fact-free rule body (e.g. a rule with only
		// constraints) has no base collection to scan; treat as an
		// empty relation.
		b.node = NewUnion(nil, value.Schema{})
	}

	root, err := b.applyHead(rule.Head)
	if err != nil {
		return nil, err
	}
	return &Plan{HeadRelation: rule.Head.Name, Root: root}, nil
}

// scanSchema returns the known schema for relation, or a positional
// placeholder schema (dynamic column types) sized to the atom's arity if
// the relation has never been written.
func (b *builder) scanSchema(atom lang.Atom) value.Schema {
	if s, ok := b.schemas.RelationSchema(atom.Name); ok && s.Arity() == len(atom.Args) {
		return s
	}
	cols := make([]value.Column, len(atom.Args))
	for i := range cols {
		cols[i] = value.Column{Name: fmt.Sprintf("c%d", i), Type: value.KindNull}
	}
	return value.Schema{Columns: cols}
}

// addPositiveAtom binds a Scan(atom) -- filtered for literal args and
// repeated variables -- and joins it into the accumulated working node
// on the variables it shares with what's already bound.
func (b *builder) addPositiveAtom(atom lang.Atom) error {
	scan := NewScan(atom.Name, b.scanSchema(atom))
	var node Node = scan

	// Column names for this atom, positionally: variable name if Var,
	// else a synthetic name (literals/filters don't need a name).
	localNames := make([]string, len(atom.Args))
	firstOccurrence := make(map[string]int)
	var pred *Pred

	for i, arg := range atom.Args {
		switch t := arg.(type) {
		case lang.Var:
			if t.Name == "_" {
				continue
			}
			localNames[i] = t.Name
			if first, seen := firstOccurrence[t.Name]; seen {
				eq := Cmp(PredEq, Col(first), Col(i))
				pred = conjoin(pred, eq)
			} else {
				firstOccurrence[t.Name] = i
			}
		case lang.Lit:
			eq := Cmp(PredEq, Col(i), Const(t.Value))
			pred = conjoin(pred, eq)
		}
	}
	if pred != nil {
		node = NewFilter(node, pred)
	}

	// localCol maps variable name -> column index within this atom's
	// (post-filter) schema, which Filter does not change.
	localCol := make(map[string]int)
	for i, name := range localNames {
		if name != "" {
			if _, ok := localCol[name]; !ok {
				localCol[name] = i
			}
		}
	}

	if b.node == nil {
		b.node = node
		b.varCol = localCol
		return nil
	}

	var leftKeys, rightKeys []int
	sharedVars := make(map[string]bool)
	for name, rightIdx := range localCol {
		if leftIdx, ok := b.varCol[name]; ok {
			leftKeys = append(leftKeys, leftIdx)
			rightKeys = append(rightKeys, rightIdx)
			sharedVars[name] = true
		}
	}

	leftArity := b.node.Schema().Arity()
	rightSchema := node.Schema()
	rightKeySet := make(map[int]bool, len(rightKeys))
	for _, k := range rightKeys {
		rightKeySet[k] = true
	}
	var extraCols []value.Column
	newVarCol := make(map[string]int, len(b.varCol)+len(localCol))
	for name, idx := range b.varCol {
		newVarCol[name] = idx
	}
	nextCol := leftArity
	for i, col := range rightSchema.Columns {
		if rightKeySet[i] {
			continue
		}
		extraCols = append(extraCols, col)
		for name, idx := range localCol {
			if idx == i && !sharedVars[name] {
				newVarCol[name] = nextCol
			}
		}
		nextCol++
	}
	joinSchema := b.node.Schema().Merge(extraCols)

	b.node = NewJoin(b.node, node, leftKeys, rightKeys, joinSchema)
	b.varCol = newVarCol
	return nil
}

// addNegatedAtom wraps the accumulated node in an Antijoin; negation
// never introduces new bindings.
func (b *builder) addNegatedAtom(atom lang.Atom) error {
	if b.node == nil {
		return fmt.Errorf("negated atom %q has nothing to filter against", atom.Name)
	}
	scan := NewScan(atom.Name, b.scanSchema(atom))
	var leftKeys, rightKeys []int
	for i, arg := range atom.Args {
		v, ok := arg.(lang.Var)
		if !ok || v.Name == "_" {
			continue
		}
		leftIdx, ok := b.varCol[v.Name]
		if !ok {
			return fmt.Errorf("negated atom %q references unbound variable %q", atom.Name, v.Name)
		}
		leftKeys = append(leftKeys, leftIdx)
		rightKeys = append(rightKeys, i)
	}
	b.node = NewAntijoin(b.node, scan, leftKeys, rightKeys)
	return nil
}

// addConstraint turns `X op Y` into a Filter over the accumulated node.
func (b *builder) addConstraint(c lang.Constraint) error {
	left, err := b.termOperand(c.Left)
	if err != nil {
		return err
	}
	right, err := b.termOperand(c.Right)
	if err != nil {
		return err
	}
	op, ok := predOpFor(c.Op)
	if !ok {
		return fmt.Errorf("unsupported constraint operator %q", c.Op)
	}
	b.node = NewFilter(b.node, Cmp(op, left, right))
	return nil
}

func predOpFor(op lang.ConstraintOp) (PredOp, bool) {
	switch op {
	case lang.OpEq:
		return PredEq, true
	case lang.OpNe:
		return PredNeq, true
	case lang.OpLt:
		return PredLt, true
	case lang.OpLe:
		return PredLe, true
	case lang.OpGt:
		return PredGt, true
	case lang.OpGe:
		return PredGe, true
	}
	return 0, false
}

func (b *builder) termOperand(t lang.Term) (Operand, error) {
	switch x := t.(type) {
	case lang.Var:
		idx, ok := b.varCol[x.Name]
		if !ok {
			return Operand{}, fmt.Errorf("constraint references unbound variable %q", x.Name)
		}
		return Col(idx), nil
	case lang.Lit:
		return Const(x.Value), nil
	}
	return Operand{}, fmt.Errorf("unsupported constraint operand")
}

// addAssign appends a Compute column for `Z = expr`.
func (b *builder) addAssign(a lang.Assign) error {
	expr, typ, err := b.lowerExpr(a.Expr)
	if err != nil {
		return err
	}
	col := ComputedColumn{Name: a.Target, Expr: expr, Type: typ}
	schema := b.node.Schema().Merge([]value.Column{{Name: a.Target, Type: typ}})
	b.node = NewCompute(b.node, []ComputedColumn{col}, schema)
	b.varCol[a.Target] = schema.Arity() - 1
	return nil
}

func (b *builder) lowerExpr(e lang.Expr) (ComputeExpr, value.Kind, error) {
	switch x := e.(type) {
	case lang.ExprVar:
		idx, ok := b.varCol[x.Name]
		if !ok {
			return nil, 0, fmt.Errorf("expression references unbound variable %q", x.Name)
		}
		return ExprCol{Column: idx}, b.node.Schema().Columns[idx].Type, nil
	case lang.ExprLit:
		return ExprConst{Value: x.Value}, x.Value.Kind(), nil
	case lang.ExprBin:
		left, lt, err := b.lowerExpr(x.Left)
		if err != nil {
			return nil, 0, err
		}
		right, _, err := b.lowerExpr(x.Right)
		if err != nil {
			return nil, 0, err
		}
		return ExprBinOp{Op: x.Op, Left: left, Right: right}, lt, nil
	case lang.ExprCall:
		args := make([]ComputeExpr, len(x.Args))
		for i, a := range x.Args {
			ae, _, err := b.lowerExpr(a)
			if err != nil {
				return nil, 0, err
			}
			args[i] = ae
		}
		return ExprCallOp{Func: x.Func, Args: args}, value.KindFloat64, nil
	}
	return nil, 0, fmt.Errorf("unsupported expression node")
}

// applyHead wraps the accumulated body node with Aggregate (if the head
// carries aggregate terms) and a final Map to the head's column order
// (spec §4.3 steps 6-7).
func (b *builder) applyHead(head lang.Atom) (Node, error) {
	var aggTerms []lang.Aggregate
	for _, arg := range head.Args {
		if agg, ok := arg.(lang.Aggregate); ok {
			aggTerms = append(aggTerms, agg)
		}
	}

	node := b.node
	varCol := b.varCol

	if len(aggTerms) > 0 {
		var groupBy []int
		var groupCols []value.Column
		for _, arg := range head.Args {
			if v, ok := arg.(lang.Var); ok {
				idx, ok := varCol[v.Name]
				if !ok {
					return nil, fmt.Errorf("head group-by variable %q is unbound", v.Name)
				}
				groupBy = append(groupBy, idx)
				groupCols = append(groupCols, node.Schema().Columns[idx])
			}
		}
		aggs := make([]Aggregation, len(aggTerms))
		aggCols := make([]value.Column, len(aggTerms))
		for i, agg := range aggTerms {
			a, col, err := lowerAggregate(agg, node.Schema(), varCol)
			if err != nil {
				return nil, err
			}
			aggs[i] = a
			aggCols[i] = col
		}
		schema := value.Schema{Columns: append(append([]value.Column{}, groupCols...), aggCols...)}
		node = NewAggregate(node, groupBy, aggs, schema)

		// Re-derive column positions after aggregation: group-by
		// variables keep their relative order, aggregate outputs follow.
		varCol = make(map[string]int)
		gi := 0
		for _, arg := range head.Args {
			if v, ok := arg.(lang.Var); ok {
				varCol[v.Name] = gi
				gi++
			}
		}
	}

	projection := make([]int, len(head.Args))
	outCols := make([]value.Column, len(head.Args))
	schema := node.Schema()
	aggOutIdx := 0
	nextAggCol := len(schema.Columns) - len(aggTerms)
	for i, arg := range head.Args {
		switch t := arg.(type) {
		case lang.Var:
			idx, ok := varCol[t.Name]
			if !ok {
				return nil, fmt.Errorf("head variable %q is unbound", t.Name)
			}
			projection[i] = idx
			outCols[i] = schema.Columns[idx]
		case lang.Aggregate:
			idx := nextAggCol + aggOutIdx
			aggOutIdx++
			projection[i] = idx
			outCols[i] = schema.Columns[idx]
		case lang.Lit:
			col := ComputedColumn{Name: fmt.Sprintf("_const%d", i), Expr: ExprConst{Value: t.Value}, Type: t.Value.Kind()}
			node = NewCompute(node, []ComputedColumn{col}, node.Schema().Merge([]value.Column{{Name: col.Name, Type: col.Type}}))
			idx := node.Schema().Arity() - 1
			projection[i] = idx
			outCols[i] = node.Schema().Columns[idx]
		default:
			return nil, fmt.Errorf("unsupported head term")
		}
	}
	return NewMap(node, projection, value.Schema{Columns: outCols}), nil
}

func lowerAggregate(agg lang.Aggregate, schema value.Schema, varCol map[string]int) (Aggregation, value.Column, error) {
	argCol := -1
	if agg.Arg != "" {
		idx, ok := varCol[agg.Arg]
		if !ok {
			return Aggregation{}, value.Column{}, fmt.Errorf("aggregate %s references unbound variable %q", agg.Func, agg.Arg)
		}
		argCol = idx
	}
	outType := value.KindInt64
	switch agg.Func {
	case "sum", "min", "max":
		if argCol >= 0 {
			outType = schema.Columns[argCol].Type
		}
	case "avg":
		outType = value.KindFloat64
	case "top_k", "top_k_threshold":
		outType = value.KindVector
	case "within_radius":
		outType = value.KindInt64
	}
	a := Aggregation{
		Func:       AggFunc(agg.Func),
		ArgColumn:  argCol,
		OutputName: agg.Func,
		K:          agg.K,
		Descending: agg.Dir == "desc",
		Threshold:  agg.Threshold,
		Radius:     agg.Radius,
	}
	if agg.OrderVar != "" {
		idx, ok := varCol[agg.OrderVar]
		if !ok {
			return Aggregation{}, value.Column{}, fmt.Errorf("aggregate %s references unbound order variable %q", agg.Func, agg.OrderVar)
		}
		a.OrderCol = idx
	}
	return a, value.Column{Name: agg.Func, Type: outType}, nil
}

func conjoin(acc, next *Pred) *Pred {
	if acc == nil {
		return next
	}
	return And(acc, next)
}
