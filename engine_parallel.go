package bracefmt

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/bracefmt/internal/store"
)

// checkResult is what a worker hands back to the committer.
type checkResult struct {
	item    *checkItem
	checked *checkedFile
	err     error
}

// checkFilesParallel checks files using a three-phase pipeline:
//
//	Phase A (serial):   Language filter, read, hash check.
//	Phase B (parallel): Analyze and grammar count on a worker pool.
//	Phase C (serial):   Commit every record to SQLite in one transaction,
//	                    then apply rewrites.
//
// Nothing is rewritten when the commit fails. Reports keep the input order
// of paths.
func (e *Engine) checkFilesParallel(ctx context.Context, runID string, paths []string, summary *RunSummary) error {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	type slot struct {
		cached *FileReport
		work   int // index into results, or -1
	}
	var (
		slots []slot
		items []*checkItem
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, cached, err := e.prepareFile(path)
		switch {
		case err != nil:
			errs = append(errs, e.fileError(path, err))
		case cached != nil:
			slots = append(slots, slot{cached: cached, work: -1})
		case item != nil:
			slots = append(slots, slot{work: len(items)})
			items = append(items, item)
		}
	}

	// ---- Phase B: Parallel analysis ----
	results := make([]checkResult, len(items))
	if len(items) > 0 {
		numWorkers := e.workers
		if numWorkers <= 0 {
			numWorkers = runtime.NumCPU()
		}
		numWorkers = max(1, min(numWorkers, len(items)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(numWorkers)
		for i, item := range items {
			g.Go(func() error {
				// Per-file failures land in results; only cancellation stops the group.
				c, err := e.checkFile(gctx, runID, item)
				results[i] = checkResult{item: item, checked: c, err: err}
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// ---- Phase C: Serial commit ----
	var records []*store.File
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, e.fileError(res.item.path, res.err))
			continue
		}
		records = append(records, res.checked.record)
	}
	if len(records) > 0 {
		if err := e.store.CommitFiles(records); err != nil {
			return fmt.Errorf("bracefmt: %w", err)
		}
	}
	for _, res := range results {
		if res.err != nil {
			continue
		}
		if err := e.applyRewrite(res.checked); err != nil {
			errs = append(errs, e.fileError(res.item.path, err))
		}
	}

	for _, s := range slots {
		if s.cached != nil {
			e.metrics.recordSkipped(ctx, s.cached)
			summary.add(s.cached)
			continue
		}
		res := results[s.work]
		if res.err != nil {
			continue
		}
		e.metrics.recordChecked(ctx, res.checked.report)
		summary.add(res.checked.report)
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel checking had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
