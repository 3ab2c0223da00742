package optimize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/ir"
	"codenerd/internal/optimize"
	"codenerd/internal/value"
)

func scanSchema(n int) value.Schema {
	cols := make([]value.Column, n)
	for i := range cols {
		cols[i] = value.Column{Name: "c", Type: value.KindNull}
	}
	return value.Schema{Columns: cols}
}

func TestOptimize_IdentityMapEliminated(t *testing.T) {
	scan := ir.NewScan("rel", scanSchema(2))
	m := ir.NewMap(scan, []int{0, 1}, scan.Schema())
	plan := &ir.Plan{HeadRelation: "q", Root: m}

	out := optimize.Optimize(plan, optimize.DefaultOptions())
	_, isMap := out.Root.(*ir.Map)
	assert.False(t, isMap, "identity map should be eliminated")
	_, isScan := out.Root.(*ir.Scan)
	assert.True(t, isScan)
}

func TestOptimize_ConstantFalseFilterBecomesEmptyUnion(t *testing.T) {
	scan := ir.NewScan("rel", scanSchema(1))
	f := ir.NewFilter(scan, ir.False())
	plan := &ir.Plan{HeadRelation: "q", Root: f}

	out := optimize.Optimize(plan, optimize.DefaultOptions())
	u, ok := out.Root.(*ir.Union)
	require.True(t, ok)
	assert.Empty(t, u.Inputs)
}

func TestOptimize_FilterFusion(t *testing.T) {
	scan := ir.NewScan("rel", scanSchema(1))
	inner := ir.NewFilter(scan, ir.Cmp(ir.PredGt, ir.Col(0), ir.Const(value.Int64(1))))
	outer := ir.NewFilter(inner, ir.Cmp(ir.PredLt, ir.Col(0), ir.Const(value.Int64(10))))
	plan := &ir.Plan{HeadRelation: "q", Root: outer}

	out := optimize.Optimize(plan, optimize.DefaultOptions())
	f, ok := out.Root.(*ir.Filter)
	require.True(t, ok)
	assert.Equal(t, ir.PredAnd, f.Predicate.Op, "fused filters should combine into one And")
	_, innerIsFilter := f.Input.(*ir.Filter)
	assert.False(t, innerIsFilter, "fusion should leave a single Filter above the scan")
}

func TestSignature_IdenticalSubtreesMatch(t *testing.T) {
	a := ir.NewScan("rel", scanSchema(2))
	b := ir.NewScan("rel", scanSchema(2))
	assert.Equal(t, optimize.Signature(a), optimize.Signature(b))

	c := ir.NewScan("other", scanSchema(2))
	assert.NotEqual(t, optimize.Signature(a), optimize.Signature(c))
}
