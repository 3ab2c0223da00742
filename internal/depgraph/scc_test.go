package depgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/depgraph"
)

func TestStronglyConnectedComponents_AcyclicGraphGivesOneNodePerSCC(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("reach", "edge", false)
	g.AddEdge("reach", "reach_base", false)

	sccs := depgraph.StronglyConnectedComponents(g)
	require.Len(t, sccs, 3)
	for _, s := range sccs {
		assert.Len(t, s.Members, 1)
		assert.False(t, s.HasNegativeEdge)
	}
}

func TestStronglyConnectedComponents_MutualRecursionGroupsTogether(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("even", "odd", false)
	g.AddEdge("odd", "even", false)
	g.AddEdge("even", "base", false)

	sccs := depgraph.StronglyConnectedComponents(g)
	var cyclic *depgraph.SCC
	for i := range sccs {
		if len(sccs[i].Members) > 1 {
			cyclic = &sccs[i]
		}
	}
	require.NotNil(t, cyclic)
	assert.ElementsMatch(t, []string{"even", "odd"}, cyclic.Members)
	assert.False(t, cyclic.HasNegativeEdge)
}

func TestStronglyConnectedComponents_NegativeEdgeInsideCycleIsFlagged(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("a", "b", false)
	g.AddEdge("b", "a", true)

	sccs := depgraph.StronglyConnectedComponents(g)
	require.Len(t, sccs, 1)
	assert.True(t, sccs[0].HasNegativeEdge)
	from, to := sccs[0].NegativeEdge()
	assert.Equal(t, "b", from)
	assert.Equal(t, "a", to)
}

func TestStronglyConnectedComponents_NegativeEdgeAcrossComponentsIsNotFlagged(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("allowed", "person", false)
	g.AddEdge("allowed", "banned", true)

	sccs := depgraph.StronglyConnectedComponents(g)
	for _, s := range sccs {
		assert.False(t, s.HasNegativeEdge)
	}
}

func TestTopologicalOrder_DependenciesPrecedeDependents(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("grandparent", "parent", false)
	g.AddEdge("parent", "person", false)

	sccs := depgraph.StronglyConnectedComponents(g)
	order := depgraph.TopologicalOrder(sccs)

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["parent"], pos["grandparent"])
	assert.Less(t, pos["person"], pos["parent"])
}

func TestGraph_NodesIncludesSourcesAndTargets(t *testing.T) {
	g := depgraph.Graph{}
	g.AddEdge("a", "b", false)
	nodes := depgraph.Graph(g).Nodes()
	assert.ElementsMatch(t, []string{"a", "b"}, nodes)
}
