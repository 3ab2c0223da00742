package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/ir"
	"codenerd/internal/lang"
	"codenerd/internal/value"
)

type fakeSchemas struct{ schemas map[string]value.Schema }

func (f fakeSchemas) RelationSchema(name string) (value.Schema, bool) {
	s, ok := f.schemas[name]
	return s, ok
}

func parseRule(t *testing.T, src string) lang.Rule {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	stmt, ok := prog.Statements[0].(lang.RuleStmt)
	require.True(t, ok)
	return stmt.Rule
}

func TestBuild_SingleScanWithLiteralFilter(t *testing.T) {
	rule := parseRule(t, "~young(X) <- person(X,30).\n")
	plan, err := ir.Build(rule, fakeSchemas{schemas: map[string]value.Schema{}})
	require.NoError(t, err)
	assert.Equal(t, "young", plan.HeadRelation)

	m, ok := plan.Root.(*ir.Map)
	require.True(t, ok)
	_, ok = m.Input.(*ir.Filter)
	require.True(t, ok, "literal arg should introduce a Filter under the head Map")
}

func TestBuild_TwoAtomJoin(t *testing.T) {
	rule := parseRule(t, "~grandparent(X,Z) <- parent(X,Y), parent(Y,Z).\n")
	plan, err := ir.Build(rule, fakeSchemas{schemas: map[string]value.Schema{}})
	require.NoError(t, err)

	m, ok := plan.Root.(*ir.Map)
	require.True(t, ok)
	join, ok := m.Input.(*ir.Join)
	require.True(t, ok, "shared variable Y should produce a Join")
	assert.Equal(t, []int{1}, join.LeftKeys)
	assert.Equal(t, []int{0}, join.RightKeys)
}

func TestBuild_NegationBecomesAntijoin(t *testing.T) {
	rule := parseRule(t, "~allowed(X,N) <- person(X,N), !banned(X).\n")
	plan, err := ir.Build(rule, fakeSchemas{schemas: map[string]value.Schema{}})
	require.NoError(t, err)

	m, ok := plan.Root.(*ir.Map)
	require.True(t, ok)
	_, ok = m.Input.(*ir.Antijoin)
	assert.True(t, ok)
}

func TestBuild_AggregateWrapsBeforeFinalMap(t *testing.T) {
	rule := parseRule(t, "~totals(G,sum<Amt>) <- sale(G,Amt).\n")
	plan, err := ir.Build(rule, fakeSchemas{schemas: map[string]value.Schema{}})
	require.NoError(t, err)

	m, ok := plan.Root.(*ir.Map)
	require.True(t, ok)
	agg, ok := m.Input.(*ir.Aggregate)
	require.True(t, ok)
	require.Len(t, agg.Aggregations, 1)
	assert.Equal(t, ir.AggSum, agg.Aggregations[0].Func)
}
