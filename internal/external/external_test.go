package external_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"codenerd/internal/external"
	"codenerd/internal/kg"
)

func TestNullVectorIndex_ReportsNotImplemented(t *testing.T) {
	var idx external.VectorIndex = external.NullVectorIndex{}
	ctx := context.Background()

	err := idx.Build(ctx, "doc", "embedding")
	assert.ErrorIs(t, err, external.ErrNotImplemented)

	_, err = idx.Query(ctx, "doc", []float64{1, 2, 3}, 5)
	assert.ErrorIs(t, err, external.ErrNotImplemented)

	assert.Equal(t, external.VectorIndexStats{}, idx.Stats())
}

func TestRESTFacade_IsSatisfiedByEngine(t *testing.T) {
	var _ external.RESTFacade = (*kg.Engine)(nil)
}
