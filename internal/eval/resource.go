package eval

import (
	"context"
	"sync/atomic"
	"time"

	"codenerd/internal/kgerrors"
)

// ExecutionConfig bounds one query's resource usage (spec §4.5/§6).
type ExecutionConfig struct {
	MaxRecursionDepth   int
	MaxMemoryBytes      int64
	MaxResultRows       int64
	MaxIntermediateRows int64
	MaxRowWidth         int
	Timeout             time.Duration
}

// DefaultExecutionConfig matches the spec's stated defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxRecursionDepth: 1000,
	}
}

// MemoryTracker accounts estimated intermediate-collection memory usage
// against a configured ceiling, grounded on the teacher's atomic
// counter pattern in its shard bookkeeping
// (_examples/theRebelliousNerd-codenerd/internal/mangle/engine.go uses
// plain mutex-guarded counters for similar per-query accounting).
type MemoryTracker struct {
	current int64
	peak    int64
	limit   int64
}

// NewMemoryTracker creates a tracker with the given byte ceiling (0 = unbounded).
func NewMemoryTracker(limit int64) *MemoryTracker {
	return &MemoryTracker{limit: limit}
}

// Add accounts delta bytes, returning a ResourceError if the ceiling is
// exceeded. delta may be negative when intermediate state is freed.
func (m *MemoryTracker) Add(delta int64) error {
	cur := atomic.AddInt64(&m.current, delta)
	for {
		peak := atomic.LoadInt64(&m.peak)
		if cur <= peak || atomic.CompareAndSwapInt64(&m.peak, peak, cur) {
			break
		}
	}
	if m.limit > 0 && cur > m.limit {
		return &kgerrors.ResourceError{Kind: kgerrors.ResourceMemory, Detail: "intermediate state exceeded configured memory limit"}
	}
	return nil
}

// Current returns the current estimated usage.
func (m *MemoryTracker) Current() int64 { return atomic.LoadInt64(&m.current) }

// Peak returns the highest usage observed.
func (m *MemoryTracker) Peak() int64 { return atomic.LoadInt64(&m.peak) }

// CancelHandle lets a caller abort an in-flight query; Run checks it
// between strata and between fixed-point iterations.
type CancelHandle struct {
	ctx context.Context
}

// NewCancelHandle wraps a context as a CancelHandle.
func NewCancelHandle(ctx context.Context) CancelHandle { return CancelHandle{ctx: ctx} }

func (c CancelHandle) cancelled() error {
	if c.ctx == nil {
		return nil
	}
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}

// estimateRowBytes is a coarse per-row memory estimate used by
// MemoryTracker accounting: a fixed per-column overhead plus a fixed
// per-row overhead. Vector payload sizes are not counted.
func estimateRowBytes(arity int) int64 {
	return int64(arity)*32 + 64
}
