// Package kg is the façade that wires the parser, rule catalog, IR
// builder, optimizer, evaluator, and persistence layer together into one
// knowledge-graph engine (spec §2). It owns the registry of knowledge
// graphs, the per-relation schema a KG learns at first write, and the
// statement dispatcher that drives every accepted program line through
// the rest of the pipeline.
package kg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"codenerd/internal/catalog"
	"codenerd/internal/kgerrors"
	"codenerd/internal/persist"
	"codenerd/internal/value"
)

// KnowledgeGraph is one named, independently-persisted Datalog
// workspace: a rule catalog, a learned relation-schema set, and the
// persistence store backing every base relation.
type KnowledgeGraph struct {
	Name string

	dir     string
	catalog *catalog.Catalog
	store   *persist.Store

	schemaMu sync.RWMutex
	schemas  map[string]value.Schema

	indexMu sync.Mutex
	indexes map[string]IndexDef

	sessionMu  sync.Mutex
	sessionLog []string
}

// IndexDef is the metadata record kept for a declared secondary index.
// Per spec's Non-goals ("secondary indexes other than those over primary
// relations"), this engine does not build an auxiliary index structure;
// it only tracks the declaration so `.index` reports something
// consistent, and query planning continues to use a plain relation scan.
type IndexDef struct {
	Name     string
	Relation string
	Column   string
	Options  []string
}

// schemaFile is the on-disk shape of a KG's learned relation schemas,
// persisted the same way internal/catalog persists rule definitions
// (JSON, atomic temp-file-plus-rename) because a restart must recover
// enough schema information to reopen every shard's batch files.
type schemaFile struct {
	Version int                      `json:"version"`
	Schemas map[string]value.Schema `json:"schemas"`
}

func openKnowledgeGraph(dir, name string, pcfg persist.Config, log *zap.Logger) (*KnowledgeGraph, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &kgerrors.IoError{Path: dir, Cause: err}
	}
	cat, err := catalog.Open(filepath.Join(dir, "catalog.json"))
	if err != nil {
		return nil, err
	}
	pcfg.DataDir = filepath.Join(dir, "persist")
	store, err := persist.Open(pcfg, log)
	if err != nil {
		return nil, err
	}
	schemas, err := loadSchemas(filepath.Join(dir, "schemas.json"))
	if err != nil {
		return nil, err
	}
	return &KnowledgeGraph{
		Name:    name,
		dir:     dir,
		catalog: cat,
		store:   store,
		schemas: schemas,
		indexes: make(map[string]IndexDef),
	}, nil
}

func loadSchemas(path string) (map[string]value.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]value.Schema), nil
		}
		return nil, &kgerrors.IoError{Path: path, Cause: err}
	}
	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, &kgerrors.CorruptFile{Path: path, Detail: err.Error()}
	}
	if sf.Schemas == nil {
		sf.Schemas = make(map[string]value.Schema)
	}
	return sf.Schemas, nil
}

func (kg *KnowledgeGraph) schemaPath() string { return filepath.Join(kg.dir, "schemas.json") }

func (kg *KnowledgeGraph) saveSchemasLocked() error {
	sf := schemaFile{Version: 1, Schemas: kg.schemas}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return &kgerrors.Internal{Message: fmt.Sprintf("marshal schemas: %v", err)}
	}
	path := kg.schemaPath()
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".schemas-*.tmp")
	if err != nil {
		return &kgerrors.IoError{Path: dir, Cause: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: tmpPath, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: tmpPath, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: tmpPath, Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: path, Cause: err}
	}
	return nil
}

// RelationSchema implements ir.SchemaLookup against a KG's learned base
// relation schemas. Derived (rule-head) relation schemas are supplied
// separately by the engine at plan-build time; see engine.go.
func (kg *KnowledgeGraph) RelationSchema(name string) (value.Schema, bool) {
	kg.schemaMu.RLock()
	defer kg.schemaMu.RUnlock()
	s, ok := kg.schemas[name]
	return s, ok
}

// schemaFor returns the schema for relation, learning (and persisting)
// it from the tuple's shape if this is the first write (spec §4.1
// "schema fixed at first write"). A later write with a mismatched shape
// is rejected by Schema.Validate.
func (kg *KnowledgeGraph) schemaFor(relation string, t value.Tuple) (value.Schema, error) {
	kg.schemaMu.Lock()
	defer kg.schemaMu.Unlock()
	if s, ok := kg.schemas[relation]; ok {
		return s, nil
	}
	cols := make([]value.Column, t.Arity())
	for i, v := range t.Values {
		cols[i] = value.Column{Name: fmt.Sprintf("c%d", i), Type: v.Kind(), Dim: v.Dim()}
	}
	s := value.Schema{Columns: cols}
	kg.schemas[relation] = s
	if err := kg.saveSchemasLocked(); err != nil {
		delete(kg.schemas, relation)
		return value.Schema{}, err
	}
	return s, nil
}

// recordSession appends one line to this KG's REPL-visible session log
// (spec §6 `.session`), an in-memory scrollback rather than a durable
// record: it has no size limit and does not survive process restart.
func (kg *KnowledgeGraph) recordSession(line string) {
	kg.sessionMu.Lock()
	defer kg.sessionMu.Unlock()
	kg.sessionLog = append(kg.sessionLog, line)
}

func (kg *KnowledgeGraph) sessionLines() []string {
	kg.sessionMu.Lock()
	defer kg.sessionMu.Unlock()
	return append([]string{}, kg.sessionLog...)
}

func (kg *KnowledgeGraph) clearSession() {
	kg.sessionMu.Lock()
	defer kg.sessionMu.Unlock()
	kg.sessionLog = nil
}

// dropSessionLine removes the 1-based-indexed line n (spec §6 `.session
// drop N` is 1-based at the I/O boundary, 0-based internally).
func (kg *KnowledgeGraph) dropSessionLine(n int) error {
	kg.sessionMu.Lock()
	defer kg.sessionMu.Unlock()
	idx := n - 1
	if idx < 0 || idx >= len(kg.sessionLog) {
		return &kgerrors.Internal{Message: fmt.Sprintf("session index %d out of range", n)}
	}
	kg.sessionLog = append(kg.sessionLog[:idx], kg.sessionLog[idx+1:]...)
	return nil
}

func (kg *KnowledgeGraph) relationNames() []string {
	kg.schemaMu.RLock()
	defer kg.schemaMu.RUnlock()
	names := make([]string, 0, len(kg.schemas))
	for n := range kg.schemas {
		names = append(names, n)
	}
	return names
}
