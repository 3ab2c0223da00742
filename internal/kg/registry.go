package kg

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"codenerd/internal/kgerrors"
	"codenerd/internal/kglog"
	"codenerd/internal/persist"
)

// writerPreferringLock gives pending writers priority over new readers
// (spec §5 "writer-preferring semantics"): once a writer is waiting, no
// newly-arriving reader is allowed to acquire the lock ahead of it, which
// a bare sync.RWMutex does not guarantee. This is the same shape as a
// classic readers/writers-with-writer-priority monitor, built on
// sync.Cond because the standard library has no such primitive.
type writerPreferringLock struct {
	mu             sync.Mutex
	cond           *sync.Cond
	readers        int
	writerActive   bool
	writersWaiting int
}

func newWriterPreferringLock() *writerPreferringLock {
	l := &writerPreferringLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *writerPreferringLock) RLock() {
	l.mu.Lock()
	for l.writerActive || l.writersWaiting > 0 {
		l.cond.Wait()
	}
	l.readers++
	l.mu.Unlock()
}

func (l *writerPreferringLock) RUnlock() {
	l.mu.Lock()
	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

func (l *writerPreferringLock) Lock() {
	l.mu.Lock()
	l.writersWaiting++
	for l.writerActive || l.readers > 0 {
		l.cond.Wait()
	}
	l.writersWaiting--
	l.writerActive = true
	l.mu.Unlock()
}

func (l *writerPreferringLock) Unlock() {
	l.mu.Lock()
	l.writerActive = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Registry owns every open KnowledgeGraph under one data directory,
// guarded by a writer-preferring lock: list/use/query take the read
// side, create/drop take the write side.
type Registry struct {
	lock *writerPreferringLock

	dataDir        string
	defaultName    string
	autoCreate     bool
	persistCfg     persist.Config
	log            *zap.Logger

	kgs map[string]*KnowledgeGraph
}

// NewRegistry opens (or prepares to lazily create) the registry rooted
// at dataDir. The default KG is opened eagerly; others open on first
// Create/Use.
func NewRegistry(dataDir, defaultName string, autoCreate bool, persistCfg persist.Config, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &kgerrors.IoError{Path: dataDir, Cause: err}
	}
	r := &Registry{
		lock:        newWriterPreferringLock(),
		dataDir:     dataDir,
		defaultName: defaultName,
		autoCreate:  autoCreate,
		persistCfg:  persistCfg,
		log:         log,
		kgs:         make(map[string]*KnowledgeGraph),
	}
	if _, err := r.ensure(defaultName); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) kgDir(name string) string { return filepath.Join(r.dataDir, name) }

// ensure opens name if it is not already open, creating its on-disk
// directory if needed. Callers must hold r.lock for writing.
func (r *Registry) ensure(name string) (*KnowledgeGraph, error) {
	if g, ok := r.kgs[name]; ok {
		return g, nil
	}
	cfg := r.persistCfg
	g, err := openKnowledgeGraph(r.kgDir(name), name, cfg, kglog.With(r.log, name, kglog.ComponentPersist))
	if err != nil {
		return nil, err
	}
	r.kgs[name] = g
	return g, nil
}

// Create makes a new, empty knowledge graph. Fails if one by that name
// already exists.
func (r *Registry) Create(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.kgs[name]; ok {
		return &kgerrors.AlreadyExists{Kind: "knowledge_graph", Name: name}
	}
	if _, err := os.Stat(r.kgDir(name)); err == nil {
		return &kgerrors.AlreadyExists{Kind: "knowledge_graph", Name: name}
	}
	_, err := r.ensure(name)
	return err
}

// Use returns the named KG, auto-creating it if the registry is
// configured to (storage.auto_create_knowledge_graphs) and otherwise
// reporting NotFound.
func (r *Registry) Use(name string) (*KnowledgeGraph, error) {
	r.lock.RLock()
	if g, ok := r.kgs[name]; ok {
		r.lock.RUnlock()
		return g, nil
	}
	exists := false
	if _, err := os.Stat(r.kgDir(name)); err == nil {
		exists = true
	}
	r.lock.RUnlock()

	if !exists && !r.autoCreate {
		return nil, &kgerrors.NotFound{Kind: "knowledge_graph", Name: name}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	return r.ensure(name)
}

// Drop removes a knowledge graph's on-disk state entirely. The default
// KG can never be dropped.
func (r *Registry) Drop(name string) error {
	if name == r.defaultName {
		return &kgerrors.CannotDrop{Reason: "cannot drop the default knowledge graph"}
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.kgs[name]; !ok {
		if _, err := os.Stat(r.kgDir(name)); err != nil {
			return &kgerrors.NotFound{Kind: "knowledge_graph", Name: name}
		}
	}
	delete(r.kgs, name)
	if err := os.RemoveAll(r.kgDir(name)); err != nil {
		return &kgerrors.IoError{Path: r.kgDir(name), Cause: err}
	}
	return nil
}

// List returns every knowledge graph name known either in memory or on
// disk, sorted is left to the caller.
func (r *Registry) List() ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	seen := make(map[string]bool, len(r.kgs))
	var names []string
	for n := range r.kgs {
		seen[n] = true
		names = append(names, n)
	}
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, &kgerrors.IoError{Path: r.dataDir, Cause: err}
	}
	for _, e := range entries {
		if e.IsDir() && !seen[e.Name()] {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DefaultName returns the configured default knowledge graph name.
func (r *Registry) DefaultName() string { return r.defaultName }
