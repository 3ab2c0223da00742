package lang

import (
	"fmt"
	"strings"

	"codenerd/internal/kgerrors"
	"codenerd/internal/value"
)

// Parse turns source text into a Program. On any failure it returns a
// *kgerrors.ParseError and no partial program (spec §4.1 "do not
// partial-commit").
func Parse(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, &kgerrors.ParseError{Message: err.Error()}
	}
	p := &parser{toks: toks}
	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return prog, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) errf(format string, args ...interface{}) error {
	t := p.cur()
	return &kgerrors.ParseError{Message: fmt.Sprintf(format, args...), Line: t.line, Column: t.col}
}

func (p *parser) expectPunct(text string) (token, error) {
	t := p.cur()
	if t.kind != tokPunct || t.text != text {
		return t, p.errf("expected %q, got %q", text, t.text)
	}
	return p.advance(), nil
}

func (p *parser) isPunct(text string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur().kind != tokEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}
	return prog, nil
}

func (p *parser) parseStatement() (Statement, error) {
	t := p.cur()
	switch {
	case t.kind == tokMeta:
		p.advance()
		return MetaStmt{Command: parseMetaCommand(t.text)}, nil
	case t.kind == tokPunct && t.text == "+":
		return p.parseInsertOrRule(true)
	case t.kind == tokPunct && t.text == "-":
		return p.parseInsertOrRule(false)
	case t.kind == tokPunct && t.text == "~":
		return p.parseEphemeralRule()
	case t.kind == tokPunct && t.text == "?":
		return p.parseQuery()
	case t.kind == tokPunct && t.text == ".":
		p.advance()
		return nil, nil
	default:
		return nil, p.errf("unexpected token %q starting statement", t.text)
	}
}

func parseMetaCommand(line string) MetaCommand {
	line = strings.TrimPrefix(line, ".")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return MetaCommand{}
	}
	return MetaCommand{Name: fields[0], Args: fields[1:]}
}

// parseInsertOrRule handles both `+rel(...)`/`+rel[...]` (insert) and
// `+name(...) <- body` (persistent rule registration); `sign` is true for
// '+' and false for '-'.
func (p *parser) parseInsertOrRule(sign bool) (Statement, error) {
	p.advance() // consume '+' or '-'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if p.isPunct("[") {
		tuples, err := p.parseBulkTuples()
		if err != nil {
			return nil, err
		}
		return InsertStmt{Insert: Insert{Relation: name, Tuples: tuples, Retract: !sign}}, nil
	}

	if !p.isPunct("(") {
		return nil, p.errf("expected '(' or '[' after relation name %q", name)
	}
	args, err := p.parseTermList()
	if err != nil {
		return nil, err
	}

	if p.isPunct("<-") {
		if !sign {
			return nil, p.errf("rule heads cannot be retracted with '-'")
		}
		p.advance()
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		return RuleStmt{Rule: Rule{Head: Atom{Name: name, Args: args}, Body: body, Persistent: true}}, nil
	}

	return InsertStmt{Insert: Insert{Relation: name, Tuples: [][]Term{args}, Retract: !sign}}, nil
}

func (p *parser) parseEphemeralRule() (Statement, error) {
	p.advance() // consume '~'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, "__") {
		return nil, p.errf("session rule names must not begin with '__': %q", name)
	}
	args, err := p.parseTermList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("<-"); err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return RuleStmt{Rule: Rule{Head: Atom{Name: name, Args: args}, Body: body, Persistent: false}}, nil
}

func (p *parser) parseQuery() (Statement, error) {
	p.advance() // consume '?'
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return QueryStmt{Query: Query{Atom: atom}}, nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return "", p.errf("expected identifier, got %q", t.text)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) parseAtom() (Atom, error) {
	name, err := p.expectIdent()
	if err != nil {
		return Atom{}, err
	}
	args, err := p.parseTermList()
	if err != nil {
		return Atom{}, err
	}
	return Atom{Name: name, Args: args}, nil
}

func (p *parser) parseTermList() ([]Term, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var terms []Term
	if !p.isPunct(")") {
		for {
			t, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			terms = append(terms, t)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return terms, nil
}

func (p *parser) parseBulkTuples() ([][]Term, error) {
	if _, err := p.expectPunct("["); err != nil {
		return nil, err
	}
	var tuples [][]Term
	if !p.isPunct("]") {
		for {
			terms, err := p.parseTermList()
			if err != nil {
				return nil, err
			}
			tuples = append(tuples, terms)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return tuples, nil
}

// parseTerm parses a single head/body argument: a variable, a literal, a
// bracketed vector literal, or (head position only, disambiguated by the
// caller seeing the '<' that follows an identifier) an aggregate call. We
// detect the aggregate form here by lookahead, since only relation-name-
// shaped identifiers followed immediately by '<' are aggregate calls.
func (p *parser) parseTerm() (Term, error) {
	t := p.cur()
	switch {
	case t.kind == tokVar:
		p.advance()
		return Var{Name: t.text}, nil
	case t.kind == tokIdent:
		if p.peekIsPunct(1, "<") {
			return p.parseAggregate()
		}
		p.advance()
		return Lit{Value: value.String(t.text)}, nil
	case t.kind == tokNumber:
		p.advance()
		isFloat, i, f, err := parseNumberLiteral(t.text)
		if err != nil {
			return nil, p.errf("invalid number literal %q: %v", t.text, err)
		}
		if isFloat {
			return Lit{Value: value.Float64(f)}, nil
		}
		return Lit{Value: value.Int64(i)}, nil
	case t.kind == tokString:
		p.advance()
		return Lit{Value: value.String(t.text)}, nil
	case t.kind == tokPunct && t.text == "[":
		return p.parseVectorLiteral()
	default:
		return nil, p.errf("unexpected token %q in term position", t.text)
	}
}

func (p *parser) peekIsPunct(offset int, text string) bool {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return false
	}
	t := p.toks[idx]
	return t.kind == tokPunct && t.text == text
}

func (p *parser) parseVectorLiteral() (Term, error) {
	p.advance() // '['
	var floats []float32
	if !p.isPunct("]") {
		for {
			t := p.cur()
			if t.kind != tokNumber {
				return nil, p.errf("expected number in vector literal, got %q", t.text)
			}
			p.advance()
			_, i, f, err := parseNumberLiteral(t.text)
			if err != nil {
				return nil, p.errf("invalid vector element %q: %v", t.text, err)
			}
			if strings.Contains(t.text, ".") {
				floats = append(floats, float32(f))
			} else {
				floats = append(floats, float32(i))
			}
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return Lit{Value: value.Vector(floats)}, nil
}

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "min": true, "max": true, "avg": true,
	"top_k": true, "top_k_threshold": true, "within_radius": true,
}

func (p *parser) parseAggregate() (Term, error) {
	fn := p.advance().text
	if !aggregateFuncs[fn] {
		return nil, p.errf("unknown aggregate function %q", fn)
	}
	if _, err := p.expectPunct("<"); err != nil {
		return nil, err
	}
	agg := Aggregate{Func: fn}
	var fields []token
	for !p.isPunct(">") {
		fields = append(fields, p.advance())
		if p.isPunct(",") {
			p.advance()
		}
	}
	if _, err := p.expectPunct(">"); err != nil {
		return nil, err
	}
	if err := fillAggregateFields(&agg, fields); err != nil {
		return nil, p.errf("%v", err)
	}
	return agg, nil
}

func fillAggregateFields(agg *Aggregate, fields []token) error {
	switch agg.Func {
	case "count":
		// count<> or count<Arg>
		if len(fields) > 0 {
			agg.Arg = fields[0].text
		}
	case "sum", "min", "max", "avg":
		if len(fields) != 1 {
			return fmt.Errorf("%s expects exactly one argument", agg.Func)
		}
		agg.Arg = fields[0].text
	case "top_k":
		if len(fields) < 3 {
			return fmt.Errorf("top_k expects <k,order,dir>")
		}
		k, err := parseIntField(fields[0].text)
		if err != nil {
			return err
		}
		agg.K, agg.HasK = k, true
		agg.OrderVar = fields[1].text
		agg.Dir = fields[2].text
	case "top_k_threshold":
		if len(fields) < 4 {
			return fmt.Errorf("top_k_threshold expects <k,order,threshold,dir>")
		}
		k, err := parseIntField(fields[0].text)
		if err != nil {
			return err
		}
		agg.K, agg.HasK = k, true
		agg.OrderVar = fields[1].text
		th, err := parseFloatField(fields[2].text)
		if err != nil {
			return err
		}
		agg.Threshold, agg.HasThresh = th, true
		agg.Dir = fields[3].text
	case "within_radius":
		if len(fields) < 2 {
			return fmt.Errorf("within_radius expects <radius,distance>")
		}
		r, err := parseFloatField(fields[0].text)
		if err != nil {
			return err
		}
		agg.Radius, agg.HasRadius = r, true
		agg.OrderVar = fields[1].text
	}
	return nil
}

func parseIntField(text string) (int, error) {
	_, i, _, err := parseNumberLiteral(text)
	return int(i), err
}

func parseFloatField(text string) (float64, error) {
	isFloat, i, f, err := parseNumberLiteral(text)
	if err != nil {
		return 0, err
	}
	if isFloat {
		return f, nil
	}
	return float64(i), nil
}

func (p *parser) parseBody() ([]BodyItem, error) {
	var items []BodyItem
	for {
		item, err := p.parseBodyItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *parser) parseBodyItem() (BodyItem, error) {
	if p.isPunct("!") {
		p.advance()
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return NegAtom{Atom: atom}, nil
	}

	// Disambiguate `atom(...)`, `X op Y` constraints, and `Z = expr`
	// assignments. All three start with either an identifier or a
	// variable.
	if p.cur().kind == tokIdent {
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return PosAtom{Atom: atom}, nil
	}

	if p.cur().kind == tokVar {
		// Lookahead for an assignment `Var = expr` vs a constraint
		// `Var op Var-or-literal`.
		if p.peekIsPunct(1, "=") {
			v := p.advance().text
			p.advance() // '='
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return AssignItem{Assign: Assign{Target: v, Expr: expr}}, nil
		}
		return p.parseConstraint()
	}

	return nil, p.errf("unexpected token %q in rule body", p.cur().text)
}

var constraintOps = map[string]ConstraintOp{
	"=": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

func (p *parser) parseConstraint() (BodyItem, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	opTok := p.cur()
	op, ok := constraintOps[opTok.text]
	if !ok {
		return nil, p.errf("expected comparison operator, got %q", opTok.text)
	}
	p.advance()
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return ConstraintItem{Constraint: Constraint{Op: op, Left: left, Right: right}}, nil
}

// parseExpr parses an arithmetic expression with +/- at the lowest
// precedence and */ above it, over variables, literals, and builtin calls.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseAddSub()
}

func (p *parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.advance().text
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = ExprBin{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMulDiv() (Expr, error) {
	left, err := p.parseExprAtom()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") {
		op := p.advance().text
		right, err := p.parseExprAtom()
		if err != nil {
			return nil, err
		}
		left = ExprBin{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseExprAtom() (Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tokVar:
		p.advance()
		return ExprVar{Name: t.text}, nil
	case t.kind == tokNumber:
		p.advance()
		isFloat, i, f, err := parseNumberLiteral(t.text)
		if err != nil {
			return nil, p.errf("invalid number %q: %v", t.text, err)
		}
		if isFloat {
			return ExprLit{Value: value.Float64(f)}, nil
		}
		return ExprLit{Value: value.Int64(i)}, nil
	case t.kind == tokString:
		p.advance()
		return ExprLit{Value: value.String(t.text)}, nil
	case t.kind == tokIdent && p.peekIsPunct(1, "("):
		fn := p.advance().text
		p.advance() // '('
		var args []Expr
		if !p.isPunct(")") {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return ExprCall{Func: fn, Args: args}, nil
	case t.kind == tokPunct && t.text == "(":
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, p.errf("unexpected token %q in expression", t.text)
	}
}
