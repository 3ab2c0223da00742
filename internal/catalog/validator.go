package catalog

import (
	"fmt"

	"codenerd/internal/depgraph"
	"codenerd/internal/kgerrors"
	"codenerd/internal/lang"
)

// rankingAggregates require exact agreement across every clause of a
// relation (spec §4.2 check 5): mixing distinct parameterizations, or
// mixing a ranking aggregate with a simple one, produces inconsistent
// column semantics across clauses.
var rankingAggregates = map[string]bool{
	"top_k":             true,
	"top_k_threshold":   true,
	"within_radius":     true,
}

// Validate runs the six ordered checks of spec §4.2 against candidate,
// given the full current rule set (for stratification) and the other
// clauses already registered under the same head name (for arity and
// aggregate consistency).
func Validate(allRules []lang.Rule, candidate lang.Rule, siblingClauses []lang.Rule) error {
	if err := checkSelfNegation(candidate); err != nil {
		return err
	}
	if err := checkHeadSafety(candidate); err != nil {
		return err
	}
	if err := checkRangeRestriction(candidate); err != nil {
		return err
	}
	if err := checkArityConsistency(candidate, siblingClauses); err != nil {
		return err
	}
	if err := checkAggregateCompatibility(candidate, siblingClauses); err != nil {
		return err
	}
	if err := checkStratification(append(append([]lang.Rule{}, allRules...), candidate)); err != nil {
		return err
	}
	return nil
}

// checkSelfNegation rejects `p(X) <- ..., !p(X)` style direct
// self-negation within a single clause.
func checkSelfNegation(r lang.Rule) error {
	for _, item := range r.Body {
		if neg, ok := item.(lang.NegAtom); ok && neg.Atom.Name == r.Head.Name {
			return &kgerrors.UnsafeRule{
				Kind:      kgerrors.UnsafeRangeRestriction,
				Variables: []string{fmt.Sprintf("%s negates itself", r.Head.Name)},
			}
		}
	}
	return nil
}

// checkHeadSafety requires every head variable to be bound by some
// positive body atom (an aggregate group-by variable counts as a head
// variable; the aggregated value itself is not a variable reference).
func checkHeadSafety(r lang.Rule) error {
	bound := boundVariables(r)
	var unsafe []string
	for _, arg := range r.Head.Args {
		v, ok := arg.(lang.Var)
		if !ok || v.Name == "_" {
			continue
		}
		if !bound[v.Name] {
			unsafe = append(unsafe, v.Name)
		}
	}
	if len(unsafe) > 0 {
		return &kgerrors.UnsafeRule{Kind: kgerrors.UnsafeHead, Variables: unsafe}
	}
	return nil
}

// checkRangeRestriction requires every variable used in a negated atom,
// a constraint, or an assignment's expression to be bound by some
// positive atom earlier in (or anywhere within) the body.
func checkRangeRestriction(r lang.Rule) error {
	bound := make(map[string]bool)
	for _, item := range r.Body {
		if pos, ok := item.(lang.PosAtom); ok {
			for _, arg := range pos.Atom.Args {
				if v, ok := arg.(lang.Var); ok && v.Name != "_" {
					bound[v.Name] = true
				}
			}
		}
	}

	var unsafe []string
	requireBound := func(name string) {
		if name != "_" && !bound[name] {
			unsafe = append(unsafe, name)
		}
	}

	for _, item := range r.Body {
		switch b := item.(type) {
		case lang.NegAtom:
			for _, arg := range b.Atom.Args {
				if v, ok := arg.(lang.Var); ok {
					requireBound(v.Name)
				}
			}
		case lang.ConstraintItem:
			if v, ok := b.Constraint.Left.(lang.Var); ok {
				requireBound(v.Name)
			}
			if v, ok := b.Constraint.Right.(lang.Var); ok {
				requireBound(v.Name)
			}
		case lang.AssignItem:
			requireExprBound(b.Assign.Expr, requireBound)
		}
	}
	if len(unsafe) > 0 {
		return &kgerrors.UnsafeRule{Kind: kgerrors.UnsafeRangeRestriction, Variables: unsafe}
	}
	return nil
}

func requireExprBound(e lang.Expr, require func(string)) {
	switch x := e.(type) {
	case lang.ExprVar:
		require(x.Name)
	case lang.ExprBin:
		requireExprBound(x.Left, require)
		requireExprBound(x.Right, require)
	case lang.ExprCall:
		for _, a := range x.Args {
			requireExprBound(a, require)
		}
	}
}

func boundVariables(r lang.Rule) map[string]bool {
	bound := make(map[string]bool)
	for _, item := range r.Body {
		switch b := item.(type) {
		case lang.PosAtom:
			for _, arg := range b.Atom.Args {
				if v, ok := arg.(lang.Var); ok && v.Name != "_" {
					bound[v.Name] = true
				}
			}
		case lang.AssignItem:
			bound[b.Assign.Target] = true
		}
	}
	return bound
}

// checkArityConsistency requires every clause registered under the same
// head name to agree on head arity.
func checkArityConsistency(r lang.Rule, siblings []lang.Rule) error {
	want := effectiveHeadArity(r.Head)
	for _, s := range siblings {
		got := effectiveHeadArity(s.Head)
		if got != want {
			return &kgerrors.ArityMismatch{Existing: got, New: want}
		}
	}
	return nil
}

// checkAggregateCompatibility enforces that head-position aggregates
// agree in kind across every clause of a relation: ranking aggregates
// (top_k, top_k_threshold, within_radius) must match exactly in their
// parameters, ranking and simple aggregates may never mix, and distinct
// simple aggregates (count vs sum vs ...) may coexist across clauses
// since each clause contributes its own rows to the same relation.
func checkAggregateCompatibility(r lang.Rule, siblings []lang.Rule) error {
	cand := headAggregate(r.Head)
	for _, s := range siblings {
		sib := headAggregate(s.Head)
		if cand == nil && sib == nil {
			continue
		}
		if (cand == nil) != (sib == nil) {
			return &kgerrors.AggregateIncompatible{Existing: describeAgg(sib), New: describeAgg(cand)}
		}
		candRanking := rankingAggregates[cand.Func]
		sibRanking := rankingAggregates[sib.Func]
		if candRanking != sibRanking {
			return &kgerrors.AggregateIncompatible{Existing: describeAgg(sib), New: describeAgg(cand)}
		}
		if candRanking && sibRanking {
			if !sameRankingParams(*cand, *sib) {
				return &kgerrors.AggregateIncompatible{Existing: describeAgg(sib), New: describeAgg(cand)}
			}
		}
	}
	return nil
}

func headAggregate(head lang.Atom) *lang.Aggregate {
	for _, arg := range head.Args {
		if agg, ok := arg.(lang.Aggregate); ok {
			return &agg
		}
	}
	return nil
}

func sameRankingParams(a, b lang.Aggregate) bool {
	return a.Func == b.Func && a.K == b.K && a.Dir == b.Dir &&
		a.Threshold == b.Threshold && a.Radius == b.Radius
}

func describeAgg(a *lang.Aggregate) string {
	if a == nil {
		return "none"
	}
	return a.Func
}

// checkStratification requires no negative edge inside a strongly
// connected component of the full rule-dependency graph (spec §4.2
// check 6 / §4.5): recursion through negation cannot be given a
// well-defined stratum.
func checkStratification(allRules []lang.Rule) error {
	g := make(depgraph.Graph)
	for _, r := range allRules {
		g[r.Head.Name] = g[r.Head.Name]
		for _, dep := range bodyDependencies(r) {
			g.AddEdge(r.Head.Name, dep.name, dep.negative)
		}
	}
	for _, scc := range depgraph.StronglyConnectedComponents(g) {
		if scc.HasNegativeEdge {
			from, to := scc.NegativeEdge()
			return &kgerrors.Unstratified{From: from, To: to, Cycle: scc.Members}
		}
	}
	return nil
}
