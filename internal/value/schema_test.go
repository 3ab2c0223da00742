package value_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/value"
)

func TestSchema_MergeAppendsColumnsWithoutMutatingReceiver(t *testing.T) {
	base := value.Schema{Columns: []value.Column{
		{Name: "id", Type: value.KindInt64},
	}}
	merged := base.Merge([]value.Column{
		{Name: "name", Type: value.KindString},
		{Name: "embedding", Type: value.KindVector, Dim: 8},
	})

	want := value.Schema{Columns: []value.Column{
		{Name: "id", Type: value.KindInt64},
		{Name: "name", Type: value.KindString},
		{Name: "embedding", Type: value.KindVector, Dim: 8},
	}}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, base.Columns, 1, "Merge must not mutate the receiver")
}

func TestSchema_ProjectRestrictsAndReordersColumns(t *testing.T) {
	s := value.Schema{Columns: []value.Column{
		{Name: "a", Type: value.KindInt64},
		{Name: "b", Type: value.KindString},
		{Name: "c", Type: value.KindBool},
	}}
	got := s.Project([]int{2, 0})

	want := value.Schema{Columns: []value.Column{
		{Name: "c", Type: value.KindBool},
		{Name: "a", Type: value.KindInt64},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Project() mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_ValidateRejectsArityAndTypeMismatches(t *testing.T) {
	s := value.Schema{Columns: []value.Column{
		{Name: "id", Type: value.KindInt64},
		{Name: "score", Type: value.KindFloat64},
	}}

	require.NoError(t, s.Validate(value.NewTuple(value.Int64(1), value.Float64(2.5))))

	err := s.Validate(value.NewTuple(value.Int64(1)))
	var arityErr *value.SchemaArityError
	assert.ErrorAs(t, err, &arityErr)

	err = s.Validate(value.NewTuple(value.Int64(1), value.String("nope")))
	var typeErr *value.SchemaTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestSchema_ValidateRejectsVectorDimensionMismatch(t *testing.T) {
	s := value.Schema{Columns: []value.Column{
		{Name: "embedding", Type: value.KindVector, Dim: 4},
	}}
	err := s.Validate(value.NewTuple(value.Vector([]float32{1, 2, 3})))
	var dimErr *value.VectorDimensionError
	assert.ErrorAs(t, err, &dimErr)
}
