// Package lang implements the Datalog program surface of spec §4.1: a
// line-oriented, comma-separated grammar for fact inserts/retracts, rule
// registration, queries, and meta commands, producing a Program AST the IR
// builder lowers directly.
package lang

import "codenerd/internal/value"

// Term is anything that can appear as an atom argument: a bound variable or
// a literal constant.
type Term interface{ isTerm() }

// Var is a (possibly repeated) logic variable. The wildcard "_" is encoded
// as Var{Name: "_"} and is never considered bound by the safety checker.
type Var struct{ Name string }

func (Var) isTerm() {}

// Lit is a literal constant argument.
type Lit struct{ Value value.Value }

func (Lit) isTerm() {}

// Aggregate describes a head-position aggregate term, e.g. sum<Amt> or
// top_k<3,Score,desc>.
type Aggregate struct {
	Func       string // count|sum|min|max|avg|top_k|top_k_threshold|within_radius
	Arg        string // variable bound inside the grouped rows, "" for count
	K          int    // top_k / top_k_threshold
	OrderVar   string // top_k / top_k_threshold / within_radius
	Dir        string // "asc" | "desc"
	Threshold  float64
	Radius     float64
	HasK       bool
	HasThresh  bool
	HasRadius  bool
}

func (Aggregate) isTerm() {}

// Atom is a relation name applied to a sequence of terms.
type Atom struct {
	Name string
	Args []Term
}

// Expr is an arithmetic/builtin expression tree used by `Z = expr`
// assignments and vector-similarity computations.
type Expr interface{ isExpr() }

type ExprVar struct{ Name string }

func (ExprVar) isExpr() {}

type ExprLit struct{ Value value.Value }

func (ExprLit) isExpr() {}

// ExprBin is a binary arithmetic/comparison node: +, -, *, /.
type ExprBin struct {
	Op          string
	Left, Right Expr
}

func (ExprBin) isExpr() {}

// ExprCall is a builtin function call: len, upper, abs, sqrt, time_now,
// euclidean, cosine, dot, manhattan, ...
type ExprCall struct {
	Func string
	Args []Expr
}

func (ExprCall) isExpr() {}

// Assign is a `Z = expr` computed-column body item.
type Assign struct {
	Target string
	Expr   Expr
}

// ConstraintOp enumerates comparison operators.
type ConstraintOp string

const (
	OpEq ConstraintOp = "="
	OpNe ConstraintOp = "!="
	OpLt ConstraintOp = "<"
	OpLe ConstraintOp = "<="
	OpGt ConstraintOp = ">"
	OpGe ConstraintOp = ">="
)

// Constraint is an `X op Y` body item, where operands are terms (variables
// or literals).
type Constraint struct {
	Op          ConstraintOp
	Left, Right Term
}

// BodyItem is one element of a rule body: a positive atom, a negated atom,
// a constraint, or a computed assignment.
type BodyItem interface{ isBodyItem() }

type PosAtom struct{ Atom Atom }

func (PosAtom) isBodyItem() {}

type NegAtom struct{ Atom Atom }

func (NegAtom) isBodyItem() {}

type ConstraintItem struct{ Constraint Constraint }

func (ConstraintItem) isBodyItem() {}

type AssignItem struct{ Assign Assign }

func (AssignItem) isBodyItem() {}

// Rule is `head <- body`.
type Rule struct {
	Head       Atom
	Body       []BodyItem
	Persistent bool // true for `+name(...) <- ...`, false for `~name(...) <- ...`
}

// Insert is a `+rel(...)`, `+rel[...]`, `-rel(...)`, or `-rel[...]`
// statement.
type Insert struct {
	Relation string
	Tuples   [][]Term
	Retract  bool
}

// Query is a `?atom(...)` statement.
type Query struct{ Atom Atom }

// MetaCommand is a `.` prefixed command (spec §6).
type MetaCommand struct {
	Name string
	Args []string
}

// Statement is one top-level element of a Program.
type Statement interface{ isStatement() }

type RuleStmt struct{ Rule Rule }

func (RuleStmt) isStatement() {}

type InsertStmt struct{ Insert Insert }

func (InsertStmt) isStatement() {}

type QueryStmt struct{ Query Query }

func (QueryStmt) isStatement() {}

type MetaStmt struct{ Command MetaCommand }

func (MetaStmt) isStatement() {}

// Program is the full parsed output: an ordered sequence of statements.
type Program struct {
	Statements []Statement
}

// QueryRuleName is the anonymous rule name the `?` shorthand rewrites to
// (spec §4.1: `?atom(args)` -> `__q__(V...) <- atom(V...)`).
const QueryRuleName = "__q__"

// FreeVariables returns the variables of an atom in left-to-right order,
// de-duplicated on first occurrence, skipping wildcards.
func FreeVariables(a Atom) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range a.Args {
		if v, ok := t.(Var); ok && v.Name != "_" {
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v.Name)
			}
		}
	}
	return out
}

// RewriteQuery turns a `?atom(args)` query into the anonymous rule the rest
// of the pipeline evaluates (spec §4.1).
func RewriteQuery(q Query) Rule {
	vars := FreeVariables(q.Atom)
	args := make([]Term, len(vars))
	for i, v := range vars {
		args[i] = Var{Name: v}
	}
	return Rule{
		Head:       Atom{Name: QueryRuleName, Args: args},
		Body:       []BodyItem{PosAtom{Atom: q.Atom}},
		Persistent: false,
	}
}
