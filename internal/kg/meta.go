package kg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"codenerd/internal/kgerrors"
	"codenerd/internal/lang"
	"codenerd/internal/persist"
)

// execMeta dispatches one `.`-prefixed command (spec §6) against the
// current knowledge graph. `.kg`/`.kg create`/`.kg use`/`.kg drop`
// operate on the registry rather than the current kg argument directly,
// since they can name a different graph than the one currently active.
func (e *Engine) execMeta(ctx context.Context, kg *KnowledgeGraph, cmd lang.MetaCommand) (string, error) {
	switch cmd.Name {
	case "kg":
		return e.metaKG(cmd.Args)
	case "rel":
		return e.metaRel(kg, cmd.Args)
	case "rule":
		return e.metaRule(kg, cmd.Args)
	case "session":
		return e.metaSession(kg, cmd.Args)
	case "index":
		return e.metaIndex(kg, cmd.Args)
	case "compact":
		return e.metaCompact(kg)
	case "status":
		return e.metaStatus(kg)
	case "help":
		return helpText, nil
	case "quit":
		return "goodbye", nil
	case "load":
		return e.metaLoad(ctx, kg, cmd.Args)
	default:
		return "", &kgerrors.NotFound{Kind: "meta_command", Name: cmd.Name}
	}
}

func (e *Engine) metaKG(args []string) (string, error) {
	if len(args) == 0 || args[0] == "list" {
		names, err := e.registry.List()
		if err != nil {
			return "", err
		}
		return "knowledge graphs: " + strings.Join(sortedRelationNames(names), ", "), nil
	}
	switch args[0] {
	case "create":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".kg create requires a name"}
		}
		if err := e.registry.Create(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("knowledge graph %s created", args[1]), nil
	case "use":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".kg use requires a name"}
		}
		if _, err := e.registry.Use(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("using knowledge graph %s", args[1]), nil
	case "drop":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".kg drop requires a name"}
		}
		if err := e.registry.Drop(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("knowledge graph %s dropped", args[1]), nil
	default:
		return "", &kgerrors.Internal{Message: fmt.Sprintf("unknown .kg subcommand %q", args[0])}
	}
}

func (e *Engine) metaRel(kg *KnowledgeGraph, args []string) (string, error) {
	if len(args) == 0 {
		return "relations: " + strings.Join(sortedRelationNames(kg.relationNames()), ", "), nil
	}
	schema, ok := kg.RelationSchema(args[0])
	if !ok {
		return "", &kgerrors.NotFound{Kind: "relation", Name: args[0]}
	}
	cols := make([]string, schema.Arity())
	for i, c := range schema.Columns {
		cols[i] = fmt.Sprintf("%s:%s", c.Name, c.Type)
	}
	return fmt.Sprintf("%s(%s)", args[0], strings.Join(cols, ", ")), nil
}

func (e *Engine) metaRule(kg *KnowledgeGraph, args []string) (string, error) {
	if len(args) == 0 || args[0] == "list" {
		return "rules: " + strings.Join(sortedRelationNames(kg.catalog.Names()), ", "), nil
	}
	switch args[0] {
	case "def":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".rule def requires a name"}
		}
		def, ok := kg.catalog.Get(args[1])
		if !ok {
			return "", &kgerrors.NotFound{Kind: "rule", Name: args[1]}
		}
		return fmt.Sprintf("%s: %d clause(s)", def.Name, len(def.Rules)), nil
	case "drop":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".rule drop requires a name"}
		}
		if err := kg.catalog.Drop(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("rule %s dropped", args[1]), nil
	case "clear":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".rule clear requires a name"}
		}
		if err := kg.catalog.ClearRules(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("rule %s clauses cleared", args[1]), nil
	case "remove":
		if len(args) < 3 {
			return "", &kgerrors.Internal{Message: ".rule remove requires a name and index"}
		}
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			return "", &kgerrors.Internal{Message: fmt.Sprintf("invalid clause index %q", args[2])}
		}
		deleted, err := kg.catalog.RemoveRuleClause(args[1], idx)
		if err != nil {
			return "", err
		}
		if deleted {
			return fmt.Sprintf("rule %s: clause %d removed, definition emptied", args[1], idx), nil
		}
		return fmt.Sprintf("rule %s: clause %d removed", args[1], idx), nil
	case "edit":
		if len(args) < 4 {
			return "", &kgerrors.Internal{Message: ".rule edit requires a name, index, and replacement clause"}
		}
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			return "", &kgerrors.Internal{Message: fmt.Sprintf("invalid clause index %q", args[2])}
		}
		src := strings.Join(args[3:], " ")
		prog, err := lang.Parse(src)
		if err != nil {
			return "", err
		}
		if len(prog.Statements) != 1 {
			return "", &kgerrors.Internal{Message: ".rule edit expects exactly one rule"}
		}
		rs, ok := prog.Statements[0].(lang.RuleStmt)
		if !ok {
			return "", &kgerrors.Internal{Message: ".rule edit replacement must be a rule"}
		}
		if err := kg.catalog.ReplaceRule(args[1], idx, rs.Rule); err != nil {
			return "", err
		}
		return fmt.Sprintf("rule %s: clause %d replaced", args[1], idx), nil
	default:
		def, ok := kg.catalog.Get(args[0])
		if !ok {
			return "", &kgerrors.NotFound{Kind: "rule", Name: args[0]}
		}
		return fmt.Sprintf("%s: %d clause(s)", def.Name, len(def.Rules)), nil
	}
}

func (e *Engine) metaSession(kg *KnowledgeGraph, args []string) (string, error) {
	if len(args) == 0 {
		return strings.Join(kg.sessionLines(), "\n"), nil
	}
	switch args[0] {
	case "clear":
		kg.clearSession()
		return "session cleared", nil
	case "drop":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".session drop requires an index"}
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", &kgerrors.Internal{Message: fmt.Sprintf("invalid session index %q", args[1])}
		}
		if err := kg.dropSessionLine(n); err != nil {
			return "", err
		}
		return fmt.Sprintf("session line %d dropped", n), nil
	default:
		return "", &kgerrors.Internal{Message: fmt.Sprintf("unknown .session subcommand %q", args[0])}
	}
}

// metaIndex manages the declared-index registry described in kg.go's
// IndexDef doc comment: no secondary index structure is built (spec
// Non-goals), only the declaration bookkeeping the surface requires.
func (e *Engine) metaIndex(kg *KnowledgeGraph, args []string) (string, error) {
	kg.indexMu.Lock()
	defer kg.indexMu.Unlock()
	if len(args) == 0 || args[0] == "list" {
		names := make([]string, 0, len(kg.indexes))
		for n := range kg.indexes {
			names = append(names, n)
		}
		return "indexes: " + strings.Join(sortedRelationNames(names), ", "), nil
	}
	switch args[0] {
	case "create":
		if len(args) < 4 || args[2] != "on" {
			return "", &kgerrors.Internal{Message: "usage: .index create NAME on REL(COL)"}
		}
		name := args[1]
		rel, col, err := parseIndexTarget(args[3])
		if err != nil {
			return "", err
		}
		if _, ok := kg.indexes[name]; ok {
			return "", &kgerrors.AlreadyExists{Kind: "index", Name: name}
		}
		kg.indexes[name] = IndexDef{Name: name, Relation: rel, Column: col, Options: args[4:]}
		return fmt.Sprintf("index %s created on %s(%s)", name, rel, col), nil
	case "drop":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".index drop requires a name"}
		}
		if _, ok := kg.indexes[args[1]]; !ok {
			return "", &kgerrors.NotFound{Kind: "index", Name: args[1]}
		}
		delete(kg.indexes, args[1])
		return fmt.Sprintf("index %s dropped", args[1]), nil
	case "stats":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".index stats requires a name"}
		}
		idx, ok := kg.indexes[args[1]]
		if !ok {
			return "", &kgerrors.NotFound{Kind: "index", Name: args[1]}
		}
		return fmt.Sprintf("index %s: on %s(%s), no auxiliary structure (scan-backed)", idx.Name, idx.Relation, idx.Column), nil
	case "rebuild":
		if len(args) < 2 {
			return "", &kgerrors.Internal{Message: ".index rebuild requires a name"}
		}
		if _, ok := kg.indexes[args[1]]; !ok {
			return "", &kgerrors.NotFound{Kind: "index", Name: args[1]}
		}
		return fmt.Sprintf("index %s rebuilt (no-op, scan-backed)", args[1]), nil
	default:
		return "", &kgerrors.Internal{Message: fmt.Sprintf("unknown .index subcommand %q", args[0])}
	}
}

func parseIndexTarget(s string) (relation, column string, err error) {
	open := strings.IndexByte(s, '(')
	close := strings.IndexByte(s, ')')
	if open < 0 || close < open {
		return "", "", &kgerrors.Internal{Message: fmt.Sprintf("invalid index target %q, expected REL(COL)", s)}
	}
	return s[:open], s[open+1 : close], nil
}

// metaCompact forces an immediate flush of every shard's buffer,
// following spec §4.6's consolidation semantics rather than waiting for
// buffer_size to trigger it.
func (e *Engine) metaCompact(kg *KnowledgeGraph) (string, error) {
	n := 0
	for _, rel := range kg.relationNames() {
		schema, ok := kg.RelationSchema(rel)
		if !ok {
			continue
		}
		shard := persist.ShardName(kg.Name, rel)
		if err := kg.store.Flush(shard, schema); err != nil {
			return "", err
		}
		n++
	}
	return fmt.Sprintf("compacted %d relation(s)", n), nil
}

func (e *Engine) metaStatus(kg *KnowledgeGraph) (string, error) {
	names, err := e.registry.List()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("kg=%s relations=%d rules=%d known_kgs=%d",
		kg.Name, len(kg.relationNames()), len(kg.catalog.Names()), len(names)), nil
}

const helpText = `meta commands:
  .kg [list|create NAME|use NAME|drop NAME]
  .rel [NAME]
  .rule [list|NAME|def NAME|drop NAME|edit NAME INDEX RULE|clear NAME|remove NAME INDEX]
  .session [clear|drop N]
  .index [list|create NAME on REL(COL)|drop NAME|stats NAME|rebuild NAME]
  .compact
  .status
  .help
  .quit
  .load PATH [--replace|--merge]`
