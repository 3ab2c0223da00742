package eval_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/eval"
	"codenerd/internal/ir"
	"codenerd/internal/lang"
	"codenerd/internal/value"
)

type noSchemas struct{}

func (noSchemas) RelationSchema(string) (value.Schema, bool) { return value.Schema{}, false }

func buildPlan(t *testing.T, src string) *ir.Plan {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	stmt := prog.Statements[0].(lang.RuleStmt)
	plan, err := ir.Build(stmt.Rule, noSchemas{})
	require.NoError(t, err)
	return plan
}

func TestRun_SimpleJoinRule(t *testing.T) {
	plan := buildPlan(t, "~grandparent(X,Z) <- parent(X,Y), parent(Y,Z).\n")
	parent := eval.NewCollection()
	parent.Add(value.NewTuple(value.String("a"), value.String("b")), 1)
	parent.Add(value.NewTuple(value.String("b"), value.String("c")), 1)

	strata, err := eval.Stratify([]*ir.Plan{plan})
	require.NoError(t, err)

	rels, err := eval.Run(context.Background(), strata, map[string]*eval.Collection{"parent": parent}, eval.DefaultExecutionConfig(), nil)
	require.NoError(t, err)

	out := eval.QueryRelation(rels, "grandparent")
	require.Len(t, out, 1)
	assert.Equal(t, "a", mustStr(out[0].Values[0]))
	assert.Equal(t, "c", mustStr(out[0].Values[1]))
}

func mustStr(v value.Value) string {
	s, _ := v.AsString()
	return s
}

func TestRun_NegationWithRangeRestriction(t *testing.T) {
	plan := buildPlan(t, "~allowed(X,N) <- person(X,N), !banned(X).\n")
	person := eval.NewCollection()
	person.Add(value.NewTuple(value.Int64(1), value.String("alice")), 1)
	person.Add(value.NewTuple(value.Int64(2), value.String("bob")), 1)
	person.Add(value.NewTuple(value.Int64(3), value.String("carol")), 1)
	banned := eval.NewCollection()
	banned.Add(value.NewTuple(value.Int64(2)), 1)

	strata, err := eval.Stratify([]*ir.Plan{plan})
	require.NoError(t, err)
	rels, err := eval.Run(context.Background(), strata, map[string]*eval.Collection{"person": person, "banned": banned}, eval.DefaultExecutionConfig(), nil)
	require.NoError(t, err)

	out := eval.QueryRelation(rels, "allowed")
	names := make([]string, len(out))
	for i, t := range out {
		names[i] = mustStr(t.Values[1])
	}
	sort.Strings(names)
	assert.Equal(t, []string{"alice", "carol"}, names)
}

func TestRun_RecursiveTransitiveClosure(t *testing.T) {
	base := buildPlan(t, "~reach(X,Y) <- edge(X,Y).\n")
	rec := buildPlan(t, "~reach(X,Z) <- reach(X,Y), edge(Y,Z).\n")

	edge := eval.NewCollection()
	edge.Add(value.NewTuple(value.String("a"), value.String("b")), 1)
	edge.Add(value.NewTuple(value.String("b"), value.String("c")), 1)
	edge.Add(value.NewTuple(value.String("c"), value.String("d")), 1)

	strata, err := eval.Stratify([]*ir.Plan{base, rec})
	require.NoError(t, err)

	rels, err := eval.Run(context.Background(), strata, map[string]*eval.Collection{"edge": edge}, eval.DefaultExecutionConfig(), nil)
	require.NoError(t, err)

	out := eval.QueryRelation(rels, "reach")
	assert.Equal(t, 6, len(out), "a->b,a->c,a->d,b->c,b->d,c->d")
}

func TestRun_AggregateSum(t *testing.T) {
	plan := buildPlan(t, "~totals(G,sum<Amt>) <- sale(G,Amt).\n")
	sale := eval.NewCollection()
	sale.Add(value.NewTuple(value.String("west"), value.Int64(10)), 1)
	sale.Add(value.NewTuple(value.String("west"), value.Int64(5)), 1)
	sale.Add(value.NewTuple(value.String("east"), value.Int64(7)), 1)

	strata, err := eval.Stratify([]*ir.Plan{plan})
	require.NoError(t, err)
	rels, err := eval.Run(context.Background(), strata, map[string]*eval.Collection{"sale": sale}, eval.DefaultExecutionConfig(), nil)
	require.NoError(t, err)

	out := eval.QueryRelation(rels, "totals")
	require.Len(t, out, 2)
	totalsByGroup := map[string]int64{}
	for _, t := range out {
		g := mustStr(t.Values[0])
		n, _ := t.Values[1].AsInt64()
		totalsByGroup[g] = n
	}
	assert.Equal(t, int64(15), totalsByGroup["west"])
	assert.Equal(t, int64(7), totalsByGroup["east"])
}
