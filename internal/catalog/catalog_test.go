package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/kgerrors"
	"codenerd/internal/lang"
)

func mustRule(t *testing.T, src string) lang.Rule {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	stmt, ok := prog.Statements[0].(lang.RuleStmt)
	require.True(t, ok, "expected a rule statement")
	return stmt.Rule
}

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "rules.json"))
	require.NoError(t, err)
	return c
}

func TestRegister_CreatesThenAdds(t *testing.T) {
	c := openTemp(t)

	res, err := c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 0, res.ClauseIndex)

	res, err = c.Register(mustRule(t, "+older(X,Y) <- grandparent(Y,X).\n"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, res.Outcome)
	assert.Equal(t, 1, res.ClauseIndex)

	n, err := c.RuleCount("older")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegister_DuplicateClauseSkipped(t *testing.T) {
	c := openTemp(t)
	rule := mustRule(t, "+older(X,Y) <- parent(Y,X).\n")

	_, err := c.Register(rule)
	require.NoError(t, err)

	res, err := c.Register(rule)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	n, _ := c.RuleCount("older")
	assert.Equal(t, 1, n)
}

func TestRegister_RejectsUnsafeHead(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+bad(X,Y) <- parent(Y,Z).\n"))
	require.Error(t, err)
	var unsafe *kgerrors.UnsafeRule
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, kgerrors.UnsafeHead, unsafe.Kind)
	assert.Contains(t, unsafe.Variables, "X")
}

func TestRegister_RejectsUnboundNegation(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+orphan(X) <- person(X), !parent(Y,X).\n"))
	require.Error(t, err)
	var unsafe *kgerrors.UnsafeRule
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, kgerrors.UnsafeRangeRestriction, unsafe.Kind)
}

func TestRegister_RejectsArityMismatch(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	require.NoError(t, err)

	_, err = c.Register(mustRule(t, "+older(X,Y,Z) <- parent(Y,X), parent(Z,X).\n"))
	require.Error(t, err)
	var mismatch *kgerrors.ArityMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestRegister_RejectsUnstratifiedNegation(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+p(X) <- q(X), !p(X).\n"))
	require.Error(t, err)
	// direct self-negation is caught by the self-negation check, which
	// reports as an UnsafeRule rather than Unstratified.
	var unsafe *kgerrors.UnsafeRule
	require.ErrorAs(t, err, &unsafe)
}

func TestRegister_RejectsUnstratifiedMutualNegation(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+a(X) <- base(X), !b(X).\n"))
	require.NoError(t, err)

	_, err = c.Register(mustRule(t, "+b(X) <- base(X), !a(X).\n"))
	require.Error(t, err)
	var unstrat *kgerrors.Unstratified
	require.ErrorAs(t, err, &unstrat)
}

func TestDropAndClearRules(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	require.NoError(t, err)

	require.NoError(t, c.ClearRules("older"))
	n, err := c.RuleCount("older")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, c.Drop("older"))
	_, err = c.RuleCount("older")
	require.Error(t, err)
	var nf *kgerrors.NotFound
	require.ErrorAs(t, err, &nf)
}

func TestRemoveRuleClause_DeletesDefinitionWhenEmpty(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	require.NoError(t, err)

	deleted, err := c.RemoveRuleClause("older", 0)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok := c.Get("older")
	assert.False(t, ok)
}

func TestRemoveRuleClause_KeepsDefinitionWithRemainingClauses(t *testing.T) {
	c := openTemp(t)
	c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	c.Register(mustRule(t, "+older(X,Y) <- grandparent(Y,X).\n"))

	deleted, err := c.RemoveRuleClause("older", 0)
	require.NoError(t, err)
	assert.False(t, deleted)

	n, _ := c.RuleCount("older")
	assert.Equal(t, 1, n)
}

func TestAllRules_DependencyOrder(t *testing.T) {
	c := openTemp(t)
	c.Register(mustRule(t, "+b(X) <- a(X).\n"))
	c.Register(mustRule(t, "+a(X) <- base(X).\n"))

	all := c.AllRules()
	require.Len(t, all, 2)
	aIdx, bIdx := -1, -1
	for i, r := range all {
		switch r.Head.Name {
		case "a":
			aIdx = i
		case "b":
			bIdx = i
		}
	}
	assert.Less(t, aIdx, bIdx, "a must appear before its dependent b")
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")

	c, err := Open(path)
	require.NoError(t, err)
	_, err = c.Register(mustRule(t, "+older(X,Y) <- parent(Y,X).\n"))
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	n, err := reopened.RuleCount("older")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAggregateCompatibility_RankingMismatchRejected(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+top(G,top_k<3,S,desc>) <- scored(G,S).\n"))
	require.NoError(t, err)

	_, err = c.Register(mustRule(t, "+top(G,top_k<5,S,asc>) <- other(G,S).\n"))
	require.Error(t, err)
	var incompat *kgerrors.AggregateIncompatible
	require.ErrorAs(t, err, &incompat)
}

func TestAggregateCompatibility_SimpleAggregatesMayDiffer(t *testing.T) {
	c := openTemp(t)
	_, err := c.Register(mustRule(t, "+stat(G,count<>) <- scored(G,S).\n"))
	require.NoError(t, err)

	_, err = c.Register(mustRule(t, "+stat(G,sum<S>) <- other(G,S).\n"))
	// Different simple aggregates across clauses are fine: each clause
	// contributes its own rows to the same relation.
	require.NoError(t, err)
}
