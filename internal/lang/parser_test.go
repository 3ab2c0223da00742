package lang_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/lang"
)

func TestParse_InsertAndRetract(t *testing.T) {
	prog, err := lang.Parse(`
+edge(1, 2).
-edge(3, 4).
`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)

	ins := prog.Statements[0].(lang.InsertStmt).Insert
	assert.Equal(t, "edge", ins.Relation)
	assert.False(t, ins.Retract)
	assert.Len(t, ins.Tuples, 1)

	ret := prog.Statements[1].(lang.InsertStmt).Insert
	assert.True(t, ret.Retract)
}

func TestParse_PersistentAndVolatileRule(t *testing.T) {
	prog, err := lang.Parse(`
+grandparent(X,Z) <- parent(X,Y), parent(Y,Z).
~reach(X,Y) <- edge(X,Y).
`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)

	r1 := prog.Statements[0].(lang.RuleStmt).Rule
	assert.True(t, r1.Persistent)
	assert.Equal(t, "grandparent", r1.Head.Name)
	require.Len(t, r1.Body, 2)

	r2 := prog.Statements[1].(lang.RuleStmt).Rule
	assert.False(t, r2.Persistent)
	assert.Equal(t, "reach", r2.Head.Name)
}

func TestParse_RuleWithNegationAndConstraint(t *testing.T) {
	prog, err := lang.Parse(`~allowed(X) <- person(X), !banned(X), X != 0.`)
	require.NoError(t, err)
	rule := prog.Statements[0].(lang.RuleStmt).Rule
	require.Len(t, rule.Body, 3)
	_, isNeg := rule.Body[1].(lang.NegAtom)
	assert.True(t, isNeg)
	_, isConstraint := rule.Body[2].(lang.ConstraintItem)
	assert.True(t, isConstraint)
}

func TestParse_Query(t *testing.T) {
	prog, err := lang.Parse(`?grandparent(X,Z).`)
	require.NoError(t, err)
	q := prog.Statements[0].(lang.QueryStmt).Query
	assert.Equal(t, "grandparent", q.Atom.Name)
}

func TestParse_MetaCommandStripsLeadingDotAndSplitsArgs(t *testing.T) {
	prog, err := lang.Parse(`.kg create other`)
	require.NoError(t, err)
	cmd := prog.Statements[0].(lang.MetaStmt).Command
	assert.Equal(t, "kg", cmd.Name)
	assert.Equal(t, []string{"create", "other"}, cmd.Args)
}

func TestParse_StringLiteralValue(t *testing.T) {
	prog, err := lang.Parse(`+city(1, "paris").`)
	require.NoError(t, err)
	ins := prog.Statements[0].(lang.InsertStmt).Insert
	lit, ok := ins.Tuples[0][1].(lang.Lit)
	require.True(t, ok)
	s, ok := lit.Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "paris", s)
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	_, err := lang.Parse(`+edge(1, 2`)
	assert.Error(t, err)
}

func TestFreeVariables_DeduplicatesAndSkipsWildcards(t *testing.T) {
	atom := lang.Atom{Name: "r", Args: []lang.Term{
		lang.Var{Name: "X"},
		lang.Var{Name: "_"},
		lang.Var{Name: "X"},
		lang.Var{Name: "Y"},
	}}
	assert.Equal(t, []string{"X", "Y"}, lang.FreeVariables(atom))
}

func TestRewriteQuery_ProducesAnonymousRuleOverQueryAtom(t *testing.T) {
	q := lang.Query{Atom: lang.Atom{Name: "reach", Args: []lang.Term{lang.Var{Name: "X"}, lang.Var{Name: "Y"}}}}
	rule := lang.RewriteQuery(q)
	assert.Equal(t, lang.QueryRuleName, rule.Head.Name)
	assert.False(t, rule.Persistent)
	require.Len(t, rule.Body, 1)
	pos := rule.Body[0].(lang.PosAtom)
	assert.Equal(t, "reach", pos.Atom.Name)
}
