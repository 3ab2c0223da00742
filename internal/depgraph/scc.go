// Package depgraph computes strongly-connected components and a
// topological order over a rule dependency graph. It backs both the rule
// catalog's stratification check (spec §4.2 check 6) and the evaluator's
// stratum assignment (spec §4.5) — the one algorithmic piece in the repo
// with no library home in the example corpus: no pack repo ships a
// generic SCC/Tarjan implementation, so this is a from-scratch
// implementation over plain control flow, called out in DESIGN.md.
package depgraph

// Edge is one dependency edge: Node depends on To, positively or through
// negation.
type Edge struct {
	To       string
	Negative bool
}

// Graph is an adjacency-list dependency graph keyed by node name.
type Graph map[string][]Edge

// AddEdge records that `from` depends on `to`.
func (g Graph) AddEdge(from, to string, negative bool) {
	g[from] = append(g[from], Edge{To: to, Negative: negative})
}

// Nodes returns every node mentioned either as a source or a target, in
// first-seen order across source keys then edge targets.
func (g Graph) Nodes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for from, edges := range g {
		add(from)
		for _, e := range edges {
			add(e.To)
		}
	}
	return out
}

// SCC is one strongly-connected component: its member nodes (in the order
// they are popped off Tarjan's stack, the reverse of discovery order) and
// whether any edge strictly inside the component is negative.
type SCC struct {
	Members        []string
	HasNegativeEdge bool
	negativeFrom    string
	negativeTo      string
}

// NegativeEdge returns the offending edge endpoints when HasNegativeEdge is
// true, for building an Unstratified error.
func (s SCC) NegativeEdge() (from, to string) { return s.negativeFrom, s.negativeTo }

// tarjan holds the mutable state of Tarjan's strongly-connected-components
// algorithm.
type tarjan struct {
	graph   Graph
	index   int
	indices map[string]int
	low     map[string]int
	onStack map[string]bool
	stack   []string
	sccs    []SCC
}

// StronglyConnectedComponents computes the SCCs of g in an order where
// every component appears after every component it depends on (reverse
// topological order of the condensation DAG) — i.e. Tarjan's natural
// output order.
func StronglyConnectedComponents(g Graph) []SCC {
	t := &tarjan{
		graph:   g,
		indices: make(map[string]int),
		low:     make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, n := range g.Nodes() {
		if _, ok := t.indices[n]; !ok {
			t.strongConnect(n)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(v string) {
	t.indices[v] = t.index
	t.low[v] = t.index
	t.index++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, e := range t.graph[v] {
		w := e.To
		if _, ok := t.indices[w]; !ok {
			t.strongConnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.indices[w] < t.low[v] {
				t.low[v] = t.indices[w]
			}
		}
	}

	if t.low[v] == t.indices[v] {
		var members []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		scc := SCC{Members: members}
		memberSet := make(map[string]bool, len(members))
		for _, m := range members {
			memberSet[m] = true
		}
		for _, m := range members {
			for _, e := range t.graph[m] {
				if e.Negative && memberSet[e.To] {
					scc.HasNegativeEdge = true
					scc.negativeFrom = m
					scc.negativeTo = e.To
				}
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

// TopologicalOrder flattens SCCs (as returned by StronglyConnectedComponents,
// which already emits dependency-first) into a single node list: every
// node's dependencies appear earlier, except inside a cycle, where members
// appear together in the order of SCC.Members.
func TopologicalOrder(sccs []SCC) []string {
	var out []string
	for _, s := range sccs {
		out = append(out, s.Members...)
	}
	return out
}
