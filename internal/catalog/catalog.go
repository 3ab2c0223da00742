// Package catalog implements the durable, per-knowledge-graph rule
// registry of spec §4.2: it validates incoming clauses (delegating to
// validator.go), persists the clause set as one JSON file per KG with
// atomic temp-file-plus-rename writes, and serves the full rule set back
// to the evaluator in topological order.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"codenerd/internal/depgraph"
	"codenerd/internal/kgerrors"
	"codenerd/internal/lang"
)

// Definition is the full clause set registered under one head-relation
// name.
type Definition struct {
	Name        string      `json:"name"`
	Rules       []lang.Rule `json:"rules"`
	CreatedAt   time.Time   `json:"created_at"`
	Description string      `json:"description,omitempty"`
}

// fileFormat is the on-disk JSON shape: {"version":1,"rules":{name:def}}.
type fileFormat struct {
	Version int                    `json:"version"`
	Rules   map[string]*Definition `json:"rules"`
}

// Outcome distinguishes the three register() results of spec §4.2.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeAdded
	OutcomeDuplicate
)

// RegisterResult reports what register() did.
type RegisterResult struct {
	Outcome     Outcome
	ClauseIndex int
}

// Catalog is the mutex-guarded, JSON-file-backed registry for one KG.
type Catalog struct {
	mu   sync.Mutex
	path string
	defs map[string]*Definition
}

// Open loads (or initializes) the catalog file at path.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path, defs: make(map[string]*Definition)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, &kgerrors.IoError{Path: path, Cause: err}
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, &kgerrors.CorruptFile{Path: path, Detail: err.Error()}
	}
	if ff.Rules != nil {
		c.defs = ff.Rules
	}
	return c, nil
}

// saveLocked writes the catalog atomically: a temp file in the same
// directory, fsync'd, then renamed over the destination.
func (c *Catalog) saveLocked() error {
	ff := fileFormat{Version: 1, Rules: c.defs}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return &kgerrors.Internal{Message: fmt.Sprintf("marshal catalog: %v", err)}
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &kgerrors.IoError{Path: dir, Cause: err}
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
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
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: c.path, Cause: err}
	}
	return nil
}

// Register validates and appends a clause, persisting on success. A
// structurally-identical duplicate clause is silently skipped.
func (c *Catalog) Register(rule lang.Rule) (RegisterResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.defs[rule.Head.Name]
	var existingRules []lang.Rule
	if existing != nil {
		existingRules = existing.Rules
	}

	if err := Validate(c.allRulesLocked(), rule, existingRules); err != nil {
		return RegisterResult{}, err
	}

	if existing != nil {
		for _, r := range existing.Rules {
			if reflect.DeepEqual(r, rule) {
				return RegisterResult{Outcome: OutcomeDuplicate}, nil
			}
		}
		existing.Rules = append(existing.Rules, rule)
		if err := c.saveLocked(); err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{Outcome: OutcomeAdded, ClauseIndex: len(existing.Rules) - 1}, nil
	}

	c.defs[rule.Head.Name] = &Definition{
		Name:      rule.Head.Name,
		Rules:     []lang.Rule{rule},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.saveLocked(); err != nil {
		delete(c.defs, rule.Head.Name)
		return RegisterResult{}, err
	}
	return RegisterResult{Outcome: OutcomeCreated, ClauseIndex: 0}, nil
}

// Drop removes a definition entirely.
func (c *Catalog) Drop(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[name]; !ok {
		return &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	delete(c.defs, name)
	return c.saveLocked()
}

// ClearRules empties the clause list but retains the definition record.
func (c *Catalog) ClearRules(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	if !ok {
		return &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	def.Rules = nil
	return c.saveLocked()
}

// ReplaceRule replaces one clause by 0-based index.
func (c *Catalog) ReplaceRule(name string, index int, newRule lang.Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	if !ok {
		return &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	if index < 0 || index >= len(def.Rules) {
		return &kgerrors.Internal{Message: fmt.Sprintf("replace_rule: index %d out of bounds for %q (len %d)", index, name, len(def.Rules))}
	}
	others := append(append([]lang.Rule{}, def.Rules[:index]...), def.Rules[index+1:]...)
	if err := Validate(c.allRulesLocked(), newRule, others); err != nil {
		return err
	}
	def.Rules[index] = newRule
	return c.saveLocked()
}

// RemoveRuleClause removes one clause; if it was the last, the definition
// is removed entirely. ruleDeleted reports whether the definition itself
// was removed.
func (c *Catalog) RemoveRuleClause(name string, index int) (ruleDeleted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	if !ok {
		return false, &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	if index < 0 || index >= len(def.Rules) {
		return false, &kgerrors.Internal{Message: fmt.Sprintf("remove_rule_clause: index %d out of bounds for %q (len %d)", index, name, len(def.Rules))}
	}
	def.Rules = append(def.Rules[:index], def.Rules[index+1:]...)
	if len(def.Rules) == 0 {
		delete(c.defs, name)
		ruleDeleted = true
	}
	if err := c.saveLocked(); err != nil {
		return false, err
	}
	return ruleDeleted, nil
}

// RuleCount returns the number of clauses registered under name.
func (c *Catalog) RuleCount(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	if !ok {
		return 0, &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	return len(def.Rules), nil
}

// RuleArity returns the effective head arity (accounting for aggregate
// expansion) of the named clause set.
func (c *Catalog) RuleArity(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	if !ok || len(def.Rules) == 0 {
		return 0, &kgerrors.NotFound{Kind: "rule", Name: name}
	}
	return effectiveHeadArity(def.Rules[0].Head), nil
}

// AllRules flattens every definition's clauses and returns them in
// topological order: a rule's catalog-referenced dependencies appear
// earlier; cycles (recursion) are grouped together in arbitrary order.
func (c *Catalog) AllRules() []lang.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allRulesLocked()
}

func (c *Catalog) allRulesLocked() []lang.Rule {
	var all []lang.Rule
	for _, def := range c.defs {
		all = append(all, def.Rules...)
	}
	return TopologicalSort(all)
}

// Get returns the definition for name, if any.
func (c *Catalog) Get(name string) (*Definition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[name]
	return def, ok
}

// Names returns every registered head-relation name.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	return names
}

// TopologicalSort orders a flat rule list so that every rule's
// catalog-referenced dependencies (positive or negative) appear earlier,
// grouping cyclic (recursive) members together.
func TopologicalSort(rules []lang.Rule) []lang.Rule {
	g := make(depgraph.Graph)
	byHead := make(map[string][]lang.Rule)
	for _, r := range rules {
		g[r.Head.Name] = g[r.Head.Name] // ensure node exists
		byHead[r.Head.Name] = append(byHead[r.Head.Name], r)
		for _, dep := range bodyDependencies(r) {
			g.AddEdge(r.Head.Name, dep.name, dep.negative)
		}
	}
	sccs := depgraph.StronglyConnectedComponents(g)
	order := depgraph.TopologicalOrder(sccs)
	var out []lang.Rule
	seen := make(map[string]bool)
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, byHead[name]...)
	}
	return out
}

type dependency struct {
	name     string
	negative bool
}

func bodyDependencies(r lang.Rule) []dependency {
	var deps []dependency
	for _, item := range r.Body {
		switch b := item.(type) {
		case lang.PosAtom:
			deps = append(deps, dependency{name: b.Atom.Name})
		case lang.NegAtom:
			deps = append(deps, dependency{name: b.Atom.Name, negative: true})
		}
	}
	return deps
}

// effectiveHeadArity returns the number of output columns a rule head
// produces: every term counts as one column except that a bare aggregate
// still counts as exactly one output column (the aggregated value), so
// plain arity (len(Args)) already matches spec's "group-by columns plus
// one column per aggregate" definition as long as each aggregate call
// occupies a single head argument slot, which the grammar enforces.
func effectiveHeadArity(head lang.Atom) int {
	return len(head.Args)
}
