package kg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/eval"
	"codenerd/internal/kg"
	"codenerd/internal/optimize"
	"codenerd/internal/persist"
)

func newEngine(t *testing.T) *kg.Engine {
	t.Helper()
	reg, err := kg.NewRegistry(t.TempDir(), "default", true, persist.DefaultConfig(""), nil)
	require.NoError(t, err)
	return kg.NewEngine(reg, eval.DefaultExecutionConfig(), optimize.DefaultOptions())
}

func TestEngine_InsertAndQueryDerivedRelation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "default", `
+parent(1, 2).
+parent(2, 3).
~grandparent(X,Z) <- parent(X,Y), parent(Y,Z).
`)
	require.NoError(t, err)

	res, err := e.Exec(ctx, "default", `?grandparent(X,Z).`)
	require.NoError(t, err)
	require.Len(t, res.Queries, 1)
	assert.Len(t, res.Queries[0], 1)
	assert.Equal(t, "(1, 3)", res.Queries[0][0].String())
}

func TestEngine_NegationWithRangeRestriction(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "default", `
+person(1).
+person(2).
+banned(2).
~allowed(X) <- person(X), !banned(X).
`)
	require.NoError(t, err)

	res, err := e.Exec(ctx, "default", `?allowed(X).`)
	require.NoError(t, err)
	require.Len(t, res.Queries[0], 1)
	assert.Equal(t, "(1)", res.Queries[0][0].String())
}

func TestEngine_DuplicateInsertReportedAndConsolidated(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.Exec(ctx, "default", `
+edge(1, 2).
+edge(1, 2).
`)
	require.NoError(t, err)
	require.Len(t, res.Notices, 2)
	assert.Contains(t, res.Notices[1], "duplicates=1")

	q, err := e.Exec(ctx, "default", `?edge(X,Y).`)
	require.NoError(t, err)
	assert.Len(t, q.Queries[0], 1)
}

func TestEngine_RetractionCancelsFact(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "default", `
+item(1).
+item(2).
-item(1).
`)
	require.NoError(t, err)

	res, err := e.Exec(ctx, "default", `?item(X).`)
	require.NoError(t, err)
	require.Len(t, res.Queries[0], 1)
	assert.Equal(t, "(2)", res.Queries[0][0].String())
}

func TestEngine_MetaKGCreateAndUse(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.Exec(ctx, "default", `.kg create other`)
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0], "other")

	_, err = e.Exec(ctx, "other", `+fact(1).`)
	require.NoError(t, err)

	q, err := e.Exec(ctx, "other", `?fact(X).`)
	require.NoError(t, err)
	assert.Len(t, q.Queries[0], 1)

	q2, err := e.Exec(ctx, "default", `?fact(X).`)
	require.NoError(t, err)
	assert.Len(t, q2.Queries[0], 0)
}

func TestEngine_MetaStatusAndHelp(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "default", `+x(1).`)
	require.NoError(t, err)

	res, err := e.Exec(ctx, "default", `.status`)
	require.NoError(t, err)
	assert.Contains(t, res.Notices[0], "kg=default")

	res, err = e.Exec(ctx, "default", `.help`)
	require.NoError(t, err)
	assert.Contains(t, res.Notices[0], ".kg")
}

func TestEngine_PersistenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	reg1, err := kg.NewRegistry(dir, "default", true, persist.DefaultConfig(""), nil)
	require.NoError(t, err)
	e1 := kg.NewEngine(reg1, eval.DefaultExecutionConfig(), optimize.DefaultOptions())
	ctx := context.Background()
	_, err = e1.Exec(ctx, "default", `+city(1, "paris").`)
	require.NoError(t, err)

	reg2, err := kg.NewRegistry(dir, "default", true, persist.DefaultConfig(""), nil)
	require.NoError(t, err)
	e2 := kg.NewEngine(reg2, eval.DefaultExecutionConfig(), optimize.DefaultOptions())
	res, err := e2.Exec(ctx, "default", `?city(X,N).`)
	require.NoError(t, err)
	require.Len(t, res.Queries[0], 1)
	assert.Equal(t, `(1, "paris")`, res.Queries[0][0].String())
}

func TestEngine_RecursiveTransitiveClosure(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "default", `
+edge(1, 2).
+edge(2, 3).
+edge(3, 4).
~reach(X,Y) <- edge(X,Y).
~reach(X,Z) <- reach(X,Y), edge(Y,Z).
`)
	require.NoError(t, err)

	res, err := e.Exec(ctx, "default", `?reach(X,Y).`)
	require.NoError(t, err)
	assert.Len(t, res.Queries[0], 6)
}
