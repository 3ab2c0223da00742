package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"codenerd/internal/kgerrors"
	"codenerd/internal/value"
)

// Config bounds one Store's on-disk layout and write-path behavior.
type Config struct {
	DataDir        string
	BufferSize     int // default 10000
	DurabilityMode DurabilityMode
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:        dataDir,
		BufferSize:     10000,
		DurabilityMode: Immediate,
	}
}

// Store is the persistence façade for one data directory (internal/kg
// opens one per knowledge graph), owning the WAL,
// every shard's metadata and live buffer, and the notification hub.
// Layout under cfg.DataDir:
//
//	persist/wal/current.wal
//	persist/wal/wal_<unix>.archived
//	persist/shards/<shard>.json
//	persist/batches/<batch_id>.parquet
type Store struct {
	cfg   Config
	log   *zap.Logger
	wal   *WAL
	notes *Notifier

	mu     sync.RWMutex
	shards map[string]*shardState

	nextBatchID uint64
}

// Open creates (or reopens) a Store rooted at cfg.DataDir, replaying
// its WAL into shard buffers per the recovery procedure.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.DurabilityMode == "" {
		cfg.DurabilityMode = Immediate
	}

	base := filepath.Join(cfg.DataDir, "persist")
	for _, sub := range []string{"wal", "shards", "batches"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, &kgerrors.IoError{Path: base, Cause: err}
		}
	}

	wal, err := OpenWAL(filepath.Join(base, "wal"), log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:         cfg,
		log:         log,
		wal:         wal,
		notes:       NewNotifier(),
		shards:      make(map[string]*shardState),
		nextBatchID: 1,
	}

	if err := s.loadShards(base); err != nil {
		return nil, err
	}
	if err := s.replayWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) shardsDir() string  { return filepath.Join(s.cfg.DataDir, "persist", "shards") }
func (s *Store) batchesDir() string { return filepath.Join(s.cfg.DataDir, "persist", "batches") }

func (s *Store) loadShards(base string) error {
	dir := s.shardsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &kgerrors.IoError{Path: dir, Cause: err}
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return &kgerrors.IoError{Path: path, Cause: err}
		}
		var meta ShardMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return &kgerrors.CorruptFile{Path: path, Detail: err.Error()}
		}
		for _, b := range meta.Batches {
			if id, err := strconv.ParseUint(b.ID, 10, 64); err == nil && id >= s.nextBatchID {
				s.nextBatchID = id + 1
			}
			if _, err := os.Stat(b.Path); err != nil {
				return &kgerrors.CorruptFile{Path: b.Path, Detail: "referenced batch file missing"}
			}
		}
		s.shards[meta.Name] = &shardState{meta: meta}
	}
	return nil
}

func (s *Store) replayWAL() error {
	entries, err := s.wal.ReadAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		st := s.shardStateLocked(e.Shard)
		st.mu.Lock()
		st.buffer = append(st.buffer, e.Update)
		st.mu.Unlock()
	}
	return nil
}

func (s *Store) shardStateLocked(shard string) *shardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.shards[shard]
	if !ok {
		st = &shardState{meta: ShardMeta{Name: shard}}
		s.shards[shard] = st
	}
	return st
}

// Notifications returns the Store's broadcast notification hub.
func (s *Store) Notifications() *Notifier { return s.notes }

// Append durably records one update for shard (per the configured
// durability mode), then buffers it for the shard and flushes if the
// buffer has reached BufferSize. schema describes the shard's tuple
// layout, needed only if a flush is triggered.
func (s *Store) Append(shard string, schema value.Schema, u Update, operation string) error {
	if err := s.wal.Append(shard, u, s.cfg.DurabilityMode); err != nil {
		return err
	}

	st := s.shardStateLocked(shard)
	st.mu.Lock()
	st.buffer = append(st.buffer, u)
	shouldFlush := len(st.buffer) >= s.cfg.BufferSize
	st.mu.Unlock()

	kg, relation := splitShard(shard)
	s.notes.Publish(kg, relation, operation, 1)

	if shouldFlush {
		return s.Flush(shard, schema)
	}
	return nil
}

// Flush consolidates shard's buffer into a new batch file, durably
// records the updated shard metadata, and only then discards the
// buffer and rotates the WAL — in that order, so a crash mid-flush
// never loses an update (spec §4.6 write path, step (e)).
func (s *Store) Flush(shard string, schema value.Schema) error {
	st := s.shardStateLocked(shard)
	st.mu.Lock()
	buffered := st.buffer
	st.mu.Unlock()
	if len(buffered) == 0 {
		return nil
	}

	consolidated := Consolidate(buffered)
	batchID := strconv.FormatUint(atomic.AddUint64(&s.nextBatchID, 1)-1, 10)
	path := filepath.Join(s.batchesDir(), batchID+".parquet")
	if err := WriteBatch(path, schema, consolidated); err != nil {
		return err
	}

	since, upper := batchTimeRange(consolidated)
	st.mu.Lock()
	st.meta.Batches = append(st.meta.Batches, BatchRef{ID: batchID, Path: path, Since: since, Upper: upper})
	meta := st.meta
	st.mu.Unlock()

	if err := s.saveShardMeta(meta); err != nil {
		return err
	}

	st.mu.Lock()
	st.buffer = nil
	st.mu.Unlock()

	return s.wal.Clear()
}

func (s *Store) saveShardMeta(meta ShardMeta) error {
	dir := s.shardsDir()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shard metadata: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".shard-*.tmp")
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
	dest := filepath.Join(dir, sanitize(meta.Name)+".json")
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return &kgerrors.IoError{Path: dest, Cause: err}
	}
	return nil
}

// Read returns every update currently held for shard: every batch file
// plus the live buffer, in that order. Callers wanting current state
// should pass the result through ConsolidateToCurrent.
func (s *Store) Read(shard string, schema value.Schema) ([]Update, error) {
	st := s.shardStateLocked(shard)
	st.mu.Lock()
	batches := append([]BatchRef(nil), st.meta.Batches...)
	buffered := append([]Update(nil), st.buffer...)
	st.mu.Unlock()

	var out []Update
	for _, b := range batches {
		rows, err := ReadBatch(b.Path, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	out = append(out, buffered...)
	return out, nil
}

// Shards lists every shard name known to the store.
func (s *Store) Shards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.shards))
	for name := range s.shards {
		names = append(names, name)
	}
	return names
}

func splitShard(shard string) (kg, relation string) {
	for i := 0; i < len(shard); i++ {
		if shard[i] == ':' {
			return shard[:i], shard[i+1:]
		}
	}
	return shard, ""
}

func batchTimeRange(updates []Update) (since, upper uint64) {
	if len(updates) == 0 {
		return 0, 0
	}
	since, upper = updates[0].Time, updates[0].Time
	for _, u := range updates[1:] {
		if u.Time < since {
			since = u.Time
		}
		if u.Time > upper {
			upper = u.Time
		}
	}
	return since, upper
}
