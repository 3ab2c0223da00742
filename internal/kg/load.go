package kg

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"codenerd/internal/kgerrors"
	"codenerd/internal/persist"
	"codenerd/internal/value"
)

// metaLoad implements `.load PATH [--replace|--merge]` (spec §6): PATH
// names a program source file, re-parsed and executed against the
// current knowledge graph. `--replace` drops the graph's existing rule
// clauses first and leaves its facts in place; `--merge` (the default)
// layers the loaded program on top of what is already there.
func (e *Engine) metaLoad(ctx context.Context, kg *KnowledgeGraph, args []string) (string, error) {
	if len(args) == 0 {
		return "", &kgerrors.Internal{Message: ".load requires a path"}
	}
	path := args[0]
	mode := "--merge"
	if len(args) > 1 {
		mode = args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &kgerrors.IoError{Path: path, Cause: err}
	}
	switch mode {
	case "--replace":
		// Drops every existing rule clause before replaying the loaded
		// program; facts already written to persisted shards are left in
		// place; (full fact-set replacement would need a shard-wipe
		// operation persist.Store does not expose, so --replace scopes to
		// rules, the common case for reloading a rule-set file).
		for _, name := range kg.catalog.Names() {
			if err := kg.catalog.Drop(name); err != nil {
				return "", err
			}
		}
	case "--merge":
		// default: layer the loaded program on top of existing state.
	default:
		return "", &kgerrors.Internal{Message: fmt.Sprintf("unknown .load flag %q", mode)}
	}

	res, err := e.Exec(ctx, kg.Name, string(data))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("loaded %s: %d statement notice(s), %d quer(ies)", path, len(res.Notices), len(res.Queries)), nil
}

// LoadCSV bulk-inserts the rows of a CSV file at path into relation
// within kgName, inferring each column's value.Kind from its first data
// row (int64, then float64, then bool, falling back to string). The
// first line is always treated as a header and skipped, matching the
// common CSV export convention.
func (e *Engine) LoadCSV(kgName, relation, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &kgerrors.IoError{Path: path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, &kgerrors.IoError{Path: path, Cause: err}
	}

	kg, err := e.registry.Use(kgName)
	if err != nil {
		return 0, err
	}

	shard := persist.ShardName(kgName, relation)
	n := 0
	var schema value.Schema
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if len(row) != len(header) {
			return n, &kgerrors.SchemaViolation{Expected: fmt.Sprintf("%d columns", len(header)), Got: fmt.Sprintf("%d columns", len(row))}
		}
		values := make([]value.Value, len(row))
		for i, cell := range row {
			values[i] = inferCSVValue(cell)
		}
		t := value.NewTuple(values...)
		s, err := kg.schemaFor(relation, t)
		if err != nil {
			return n, err
		}
		schema = s
		if err := schema.Validate(t); err != nil {
			return n, err
		}
		ts := uint64(n + 1)
		if err := kg.store.Append(shard, schema, persist.Insert(t, ts), "insert"); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func inferCSVValue(cell string) value.Value {
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return value.Int64(n)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return value.Float64(f)
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		return value.Bool(b)
	}
	return value.String(strings.TrimSpace(cell))
}
