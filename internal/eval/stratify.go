package eval

import (
	"codenerd/internal/depgraph"
	"codenerd/internal/ir"
	"codenerd/internal/kgerrors"
)

// Stratify groups rule plans into evaluation strata, in dependency
// order: every plan in stratum i depends (positively or negatively)
// only on relations produced in strata < i, or (positively only) on
// other plans within stratum i (spec §4.5). Base relations referenced
// by a Scan that is never any plan's HeadRelation are not assigned a
// stratum; they are simply read from the snapshot passed to Run.
//
// This recomputes the dependency SCC analysis independently of
// internal/catalog's own stratification check, rather than trusting the
// catalog blindly — consistent with the leaves-first package layering
// where eval does not import catalog.
func Stratify(plans []*ir.Plan) ([][]*ir.Plan, error) {
	g := make(depgraph.Graph)
	byHead := make(map[string][]*ir.Plan)
	for _, p := range plans {
		g[p.HeadRelation] = g[p.HeadRelation]
		byHead[p.HeadRelation] = append(byHead[p.HeadRelation], p)
		for _, dep := range planDependencies(p) {
			g.AddEdge(p.HeadRelation, dep.name, dep.negative)
		}
	}

	sccs := depgraph.StronglyConnectedComponents(g)
	strata := make([][]*ir.Plan, 0, len(sccs))
	for _, scc := range sccs {
		if scc.HasNegativeEdge {
			from, to := scc.NegativeEdge()
			return nil, &kgerrors.Unstratified{From: from, To: to, Cycle: scc.Members}
		}
		var stratum []*ir.Plan
		for _, name := range scc.Members {
			stratum = append(stratum, byHead[name]...)
		}
		if len(stratum) > 0 {
			strata = append(strata, stratum)
		}
	}
	return strata, nil
}

type dependency struct {
	name     string
	negative bool
}

// planDependencies walks a plan's IR tree collecting every Scan's
// relation name, tagged negative when it is reached only through an
// Antijoin's right subtree.
func planDependencies(p *ir.Plan) []dependency {
	var out []dependency
	walkDependencies(p.Root, false, &out)
	return out
}

func walkDependencies(n ir.Node, negated bool, out *[]dependency) {
	switch node := n.(type) {
	case *ir.Scan:
		*out = append(*out, dependency{name: node.Relation, negative: negated})
	case *ir.Map:
		walkDependencies(node.Input, negated, out)
	case *ir.Filter:
		walkDependencies(node.Input, negated, out)
	case *ir.Join:
		walkDependencies(node.Left, negated, out)
		walkDependencies(node.Right, negated, out)
	case *ir.Antijoin:
		walkDependencies(node.Left, negated, out)
		walkDependencies(node.Right, true, out)
	case *ir.Distinct:
		walkDependencies(node.Input, negated, out)
	case *ir.Union:
		for _, c := range node.Inputs {
			walkDependencies(c, negated, out)
		}
	case *ir.Aggregate:
		walkDependencies(node.Input, negated, out)
	case *ir.Compute:
		walkDependencies(node.Input, negated, out)
	}
}
