package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DurabilityMode controls how aggressively the WAL is synced to disk
// before an update is acknowledged.
type DurabilityMode string

const (
	// Immediate fsyncs the WAL after every single append.
	Immediate DurabilityMode = "immediate"
	// Batched appends without fsync; entries stay in the WAL's write
	// buffer until Sync or Clear runs. No background task calls Sync.
	Batched DurabilityMode = "batched"
	// Async skips the WAL entirely; updates live only in the shard
	// buffer until the next flush.
	Async DurabilityMode = "async"
)

// walEntry is one JSON-line record: the shard an update belongs to plus
// the update itself.
type walEntry struct {
	Shard  string `json:"shard"`
	Update Update `json:"update"`
}

// WAL is a write-ahead log of pending updates, JSON-lines over an
// append-only file, rotated into timestamped archives on Clear.
type WAL struct {
	mu      sync.Mutex
	dir     string
	current string
	file    *os.File
	writer  *bufio.Writer
	log     *zap.Logger

	entriesWritten int
}

// OpenWAL opens (creating if absent) the WAL directory dir, positioned
// at dir/current.wal.
func OpenWAL(dir string, log *zap.Logger) (*WAL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating wal directory: %w", err)
	}
	return &WAL{
		dir:     dir,
		current: filepath.Join(dir, "current.wal"),
		log:     log,
	}, nil
}

func (w *WAL) ensureWriter() error {
	if w.writer != nil {
		return nil
	}
	f, err := os.OpenFile(w.current, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening wal file: %w", err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)
	return nil
}

// Append writes one update for shard to the WAL. For Immediate
// durability the write is fsynced before returning; for Batched it is
// only buffered until the next Sync or Clear; for Async it is a no-op.
func (w *WAL) Append(shard string, u Update, mode DurabilityMode) error {
	if mode == Async {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureWriter(); err != nil {
		return err
	}
	line, err := json.Marshal(walEntry{Shard: shard, Update: u})
	if err != nil {
		return fmt.Errorf("marshaling wal entry: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("writing wal entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	w.entriesWritten++

	if mode == Immediate {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("flushing wal: %w", err)
		}
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("syncing wal: %w", err)
		}
	}
	return nil
}

// Sync flushes any buffered writes and fsyncs the WAL file. Nothing in
// this package calls it on a schedule.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// ReadAll reads every entry currently in current.wal, in append order.
func (w *WAL) ReadAll() ([]walEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readAllLocked()
}

func (w *WAL) readAllLocked() ([]walEntry, error) {
	f, err := os.Open(w.current)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening wal for read: %w", err)
	}
	defer f.Close()

	var entries []walEntry
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var e walEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("parsing wal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear closes the current WAL segment and archives it as
// wal_<unix>.archived, leaving current.wal ready to be reopened by the
// next Append.
func (w *WAL) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
		w.writer = nil
	}

	if _, err := os.Stat(w.current); err == nil {
		archive := filepath.Join(w.dir, "wal_"+strconv.FormatInt(time.Now().Unix(), 10)+".archived")
		if err := os.Rename(w.current, archive); err != nil {
			return fmt.Errorf("archiving wal segment: %w", err)
		}
		w.log.Debug("rotated wal segment", zap.String("archive", archive))
	}
	w.entriesWritten = 0
	return nil
}

// EntriesWritten reports how many entries have been appended since the
// last Clear.
func (w *WAL) EntriesWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entriesWritten
}
