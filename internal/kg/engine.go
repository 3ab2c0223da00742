package kg

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"codenerd/internal/catalog"
	"codenerd/internal/eval"
	"codenerd/internal/ir"
	"codenerd/internal/kgerrors"
	"codenerd/internal/lang"
	"codenerd/internal/optimize"
	"codenerd/internal/persist"
	"codenerd/internal/value"
)

// Engine is the single entry point a REPL, REST handler, or test drives:
// it owns a Registry of knowledge graphs and runs parsed programs
// through catalog registration, IR construction, optimization,
// stratified semi-naive evaluation, and persistence.
type Engine struct {
	registry *Registry
	execCfg  eval.ExecutionConfig
	optOpts  optimize.Options

	clock uint64 // monotonically increasing logical time, per process
}

// NewEngine wires a Registry to an evaluator resource configuration and
// an optimizer pass selection.
func NewEngine(registry *Registry, execCfg eval.ExecutionConfig, optOpts optimize.Options) *Engine {
	return &Engine{registry: registry, execCfg: execCfg, optOpts: optOpts}
}

// ExecResult collects everything one Exec call produced: one entry per
// statement, in source order.
type ExecResult struct {
	Notices []string
	Queries [][]value.Tuple
}

// Exec parses src and runs every statement against the named knowledge
// graph in order, auto-creating it per the registry's configuration.
func (e *Engine) Exec(ctx context.Context, kgName, src string) (*ExecResult, error) {
	prog, err := lang.Parse(src)
	if err != nil {
		return nil, err
	}
	kg, err := e.registry.Use(kgName)
	if err != nil {
		return nil, err
	}
	res := &ExecResult{}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case lang.RuleStmt:
			notice, err := e.execRule(kg, s.Rule)
			if err != nil {
				return res, err
			}
			kg.recordSession(notice)
			res.Notices = append(res.Notices, notice)
		case lang.InsertStmt:
			notice, err := e.execInsert(kg, s.Insert)
			if err != nil {
				return res, err
			}
			kg.recordSession(notice)
			res.Notices = append(res.Notices, notice)
		case lang.QueryStmt:
			tuples, err := e.execQuery(ctx, kg, s.Query)
			if err != nil {
				return res, err
			}
			kg.recordSession(fmt.Sprintf("query %s -> %d row(s)", s.Query.Atom.Name, len(tuples)))
			res.Queries = append(res.Queries, tuples)
		case lang.MetaStmt:
			notice, err := e.execMeta(ctx, kg, s.Command)
			if err != nil {
				return res, err
			}
			res.Notices = append(res.Notices, notice)
		default:
			return res, &kgerrors.Internal{Message: fmt.Sprintf("unhandled statement type %T", stmt)}
		}
	}
	return res, nil
}

func (e *Engine) execRule(kg *KnowledgeGraph, rule lang.Rule) (string, error) {
	result, err := kg.catalog.Register(rule)
	if err != nil {
		return "", err
	}
	switch result.Outcome {
	case catalog.OutcomeCreated:
		return fmt.Sprintf("rule %s created", rule.Head.Name), nil
	case catalog.OutcomeAdded:
		return fmt.Sprintf("rule %s: clause %d added", rule.Head.Name, result.ClauseIndex), nil
	default:
		return fmt.Sprintf("rule %s: duplicate clause ignored", rule.Head.Name), nil
	}
}

// execInsert converts a parsed Insert into ground tuples and appends
// them to the relation's shard, learning the schema on first write. A
// tuple already present with positive multiplicity is still appended
// (idempotent consolidation resolves it at read time, per spec
// property 4); this call reports how many of the batch were duplicates
// of the relation's current state.
func (e *Engine) execInsert(kg *KnowledgeGraph, ins lang.Insert) (string, error) {
	shard := persist.ShardName(kg.Name, ins.Relation)
	var schema value.Schema
	duplicates := 0
	for _, termRow := range ins.Tuples {
		t, err := groundTuple(termRow)
		if err != nil {
			return "", err
		}
		s, err := kg.schemaFor(ins.Relation, t)
		if err != nil {
			return "", err
		}
		schema = s
		if err := schema.Validate(t); err != nil {
			return "", err
		}

		if !ins.Retract {
			current, err := e.loadCurrent(kg, ins.Relation, schema)
			if err != nil {
				return "", err
			}
			if current.DiffOf(t) > 0 {
				duplicates++
			}
		}

		ts := atomic.AddUint64(&e.clock, 1)
		var update persist.Update
		op := "insert"
		if ins.Retract {
			update = persist.Delete(t, ts)
			op = "retract"
		} else {
			update = persist.Insert(t, ts)
		}
		if err := kg.store.Append(shard, schema, update, op); err != nil {
			return "", err
		}
	}
	verb := "inserted"
	if ins.Retract {
		verb = "retracted"
	}
	return fmt.Sprintf("%s %d tuple(s) into %s (duplicates=%d)", verb, len(ins.Tuples), ins.Relation, duplicates), nil
}

func groundTuple(terms []lang.Term) (value.Tuple, error) {
	values := make([]value.Value, len(terms))
	for i, t := range terms {
		lit, ok := t.(lang.Lit)
		if !ok {
			return value.Tuple{}, &kgerrors.SchemaViolation{Expected: "ground literal", Got: "variable"}
		}
		values[i] = lit.Value
	}
	return value.NewTuple(values...), nil
}

// loadCurrent reads a relation's persisted state (batches plus the
// still-buffered tail) and consolidates it to one entry per tuple.
func (e *Engine) loadCurrent(kg *KnowledgeGraph, relation string, schema value.Schema) (*eval.Collection, error) {
	shard := persist.ShardName(kg.Name, relation)
	updates, err := kg.store.Read(shard, schema)
	if err != nil {
		return nil, err
	}
	current := persist.ConsolidateToCurrent(updates)
	col := eval.NewCollection()
	for _, u := range current {
		col.Add(u.Tuple, u.Diff)
	}
	return col, nil
}

// schemaRegistry satisfies ir.SchemaLookup by layering a KG's learned
// base-relation schemas under the schemas already computed for earlier
// (dependency-ordered) rule plans in this build pass.
type schemaRegistry struct {
	base    *KnowledgeGraph
	derived map[string]value.Schema
}

func (r *schemaRegistry) RelationSchema(name string) (value.Schema, bool) {
	if s, ok := r.derived[name]; ok {
		return s, true
	}
	return r.base.RelationSchema(name)
}

// buildPlans lowers every catalog rule plus any extra (ad hoc query)
// rules to IR, in dependency order, threading each rule's derived
// schema forward so later rules referencing it resolve real column
// types instead of the builder's dynamic-column placeholder.
func (e *Engine) buildPlans(kg *KnowledgeGraph, extra ...lang.Rule) ([]*ir.Plan, error) {
	rules := append(append([]lang.Rule{}, kg.catalog.AllRules()...), extra...)
	reg := &schemaRegistry{base: kg, derived: make(map[string]value.Schema)}
	opts := e.optOpts
	opts.Cardinality = &storeCardinalityOracle{kg: kg}
	plans := make([]*ir.Plan, 0, len(rules))
	for _, r := range rules {
		plan, err := ir.Build(r, reg)
		if err != nil {
			return nil, err
		}
		if _, ok := reg.derived[r.Head.Name]; !ok {
			reg.derived[r.Head.Name] = plan.Root.Schema()
		}
		plan = optimize.Optimize(plan, opts)
		plans = append(plans, plan)
	}
	return plans, nil
}

// storeCardinalityOracle estimates a base relation's size from its
// current persisted+buffered state, for the optimizer's join-reordering
// pass. Derived (rule-head) relations have no persisted state and
// report 0, which the oracle-driven reordering treats like any other
// unknown-but-small relation.
type storeCardinalityOracle struct {
	kg *KnowledgeGraph
}

func (o *storeCardinalityOracle) RelationCardinality(name string) int64 {
	schema, ok := o.kg.RelationSchema(name)
	if !ok {
		return 0
	}
	shard := persist.ShardName(o.kg.Name, name)
	updates, err := o.kg.store.Read(shard, schema)
	if err != nil {
		return 0
	}
	return int64(len(persist.ConsolidateToCurrent(updates)))
}

// baseRelations returns the collections for every relation scanned by
// plans that is not itself any plan's head, i.e. every persisted base
// relation the evaluation run needs as a starting snapshot.
func (e *Engine) baseRelations(kg *KnowledgeGraph, plans []*ir.Plan) (map[string]*eval.Collection, error) {
	heads := make(map[string]bool, len(plans))
	for _, p := range plans {
		heads[p.HeadRelation] = true
	}
	names := make(map[string]bool)
	for _, p := range plans {
		collectScans(p.Root, names)
	}
	base := make(map[string]*eval.Collection)
	for name := range names {
		if heads[name] {
			continue
		}
		schema, ok := kg.RelationSchema(name)
		if !ok {
			base[name] = eval.NewCollection()
			continue
		}
		col, err := e.loadCurrent(kg, name, schema)
		if err != nil {
			return nil, err
		}
		base[name] = col
	}
	return base, nil
}

func collectScans(n ir.Node, out map[string]bool) {
	switch node := n.(type) {
	case *ir.Scan:
		out[node.Relation] = true
	case *ir.Filter:
		collectScans(node.Input, out)
	case *ir.Map:
		collectScans(node.Input, out)
	case *ir.Compute:
		collectScans(node.Input, out)
	case *ir.Aggregate:
		collectScans(node.Input, out)
	case *ir.Distinct:
		collectScans(node.Input, out)
	case *ir.Join:
		collectScans(node.Left, out)
		collectScans(node.Right, out)
	case *ir.Antijoin:
		collectScans(node.Left, out)
		collectScans(node.Right, out)
	case *ir.Union:
		for _, in := range node.Inputs {
			collectScans(in, out)
		}
	}
}

func (e *Engine) execQuery(ctx context.Context, kg *KnowledgeGraph, q lang.Query) ([]value.Tuple, error) {
	queryRule := lang.RewriteQuery(q)
	plans, err := e.buildPlans(kg, queryRule)
	if err != nil {
		return nil, err
	}
	strata, err := eval.Stratify(plans)
	if err != nil {
		return nil, err
	}
	base, err := e.baseRelations(kg, plans)
	if err != nil {
		return nil, err
	}
	mem := eval.NewMemoryTracker(e.execCfg.MaxMemoryBytes)
	relations, err := eval.Run(ctx, strata, base, e.execCfg, mem)
	if err != nil {
		return nil, err
	}
	return eval.QueryRelation(relations, lang.QueryRuleName), nil
}

// sortedRelationNames is a small helper for meta commands that list
// relations/rules deterministically.
func sortedRelationNames(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
