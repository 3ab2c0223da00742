package eval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"codenerd/internal/ir"
	"codenerd/internal/kgerrors"
	"codenerd/internal/value"
)

// Run evaluates every stratum in order to a fixed point and returns the
// final state of every relation (base relations carried over from base,
// every plan's HeadRelation materialized). QueryRelation extracts the
// anonymous query rule's result with ToSlice.
func Run(ctx context.Context, strata [][]*ir.Plan, base map[string]*Collection, cfg ExecutionConfig, mem *MemoryTracker) (map[string]*Collection, error) {
	start := time.Now()
	cancel := NewCancelHandle(ctx)

	relations := make(map[string]*Collection, len(base))
	for name, c := range base {
		relations[name] = c.Clone()
	}
	for _, stratum := range strata {
		for _, p := range stratum {
			if _, ok := relations[p.HeadRelation]; !ok {
				relations[p.HeadRelation] = NewCollection()
			}
		}
	}

	maxDepth := cfg.MaxRecursionDepth
	if maxDepth <= 0 {
		maxDepth = 1000
	}

	for _, stratum := range strata {
		for iteration := 0; ; iteration++ {
			if iteration >= maxDepth {
				return nil, &kgerrors.ResourceError{Kind: kgerrors.ResourceRecursionDepth, Detail: fmt.Sprintf("stratum exceeded %d iterations without reaching a fixed point", maxDepth)}
			}
			if err := cancel.cancelled(); err != nil {
				return nil, &kgerrors.TimeoutError{Timeout: cfg.Timeout, Elapsed: time.Since(start)}
			}
			if cfg.Timeout > 0 && time.Since(start) > cfg.Timeout {
				return nil, &kgerrors.TimeoutError{Timeout: cfg.Timeout, Elapsed: time.Since(start)}
			}

			snapshot := mapSource(relations)
			results := make([]*Collection, len(stratum))

			g, gctx := errgroup.WithContext(ctx)
			for i, p := range stratum {
				i, p := i, p
				g.Go(func() error {
					select {
					case <-gctx.Done():
						return gctx.Err()
					default:
					}
					out, err := Eval(p.Root, snapshot)
					if err != nil {
						return fmt.Errorf("evaluating rule for %q: %w", p.HeadRelation, err)
					}
					results[i] = out
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			changed := false
			byHead := make(map[string]*Collection)
			for i, p := range stratum {
				merged, ok := byHead[p.HeadRelation]
				if !ok {
					merged = NewCollection()
					byHead[p.HeadRelation] = merged
				}
				merged.Merge(results[i])
			}
			for head, merged := range byHead {
				if mem != nil {
					if err := mem.Add(int64(merged.Len()) * estimateRowBytes(4)); err != nil {
						return nil, err
					}
				}
				if cfg.MaxIntermediateRows > 0 && int64(merged.Len()) > cfg.MaxIntermediateRows {
					return nil, &kgerrors.ResourceError{Kind: kgerrors.ResourceIntermediateSize, Detail: fmt.Sprintf("relation %q exceeded %d intermediate rows", head, cfg.MaxIntermediateRows)}
				}
				if existing := relations[head]; !existing.Equal(merged) {
					relations[head] = merged
					changed = true
				}
			}

			if !changed {
				break
			}
		}
	}

	return relations, nil
}

// QueryRelation returns the current contents of name's Collection, or
// nil if the relation was never produced.
func QueryRelation(relations map[string]*Collection, name string) []value.Tuple {
	c, ok := relations[name]
	if !ok {
		return nil
	}
	return c.ToSlice()
}
