// Package harvest wires index retrieval, reconciliation, and the
// crawl scheduler into a single incremental run.
package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
	"github.com/sayouzone/edgar-harvester/internal/index"
	"github.com/sayouzone/edgar-harvester/internal/reconcile"
	"github.com/sayouzone/edgar-harvester/internal/schedule"
)

// itemBuffer smooths the handoff between the index scan and the worker
// pool without holding a whole quarter in memory.
const itemBuffer = 64

// Runner executes one harvest run end to end.
type Runner struct {
	index      *index.Fetcher
	reconciler *reconcile.Reconciler
	scheduler  *schedule.Scheduler
	store      edgar.StateStore
	selector   edgar.Selector
	logger     *zap.Logger
}

// New constructs a Runner.
func New(
	idx *index.Fetcher,
	rec *reconcile.Reconciler,
	sched *schedule.Scheduler,
	store edgar.StateStore,
	selector edgar.Selector,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		index:      idx,
		reconciler: rec,
		scheduler:  sched,
		store:      store,
		selector:   selector,
		logger:     logger,
	}
}

// Run harvests every configured period. Index retrieval failures are
// isolated per period: a quarter whose index cannot be fetched or
// decoded is logged and skipped while the rest of the run proceeds.
// On return the state store has been flushed, so a subsequent run
// observes everything this one marked.
func (r *Runner) Run(ctx context.Context, refresh bool) (edgar.RunSummary, error) {
	runID := uuid.NewString()
	r.logger.Info("harvest run starting",
		zap.String("run_id", runID),
		zap.Int("periods", len(r.selector.Periods)),
		zap.Strings("form_types", r.selector.FormTypes),
	)

	if err := r.store.Load(ctx); err != nil {
		return edgar.RunSummary{RunID: runID}, fmt.Errorf("load state: %w", err)
	}

	items := make(chan edgar.WorkItem, itemBuffer)
	var summary edgar.RunSummary
	var stats reconcile.Stats
	var skippedPeriods int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = r.scheduler.Run(gctx, runID, items)
		return err
	})
	g.Go(func() error {
		defer close(items)
		for _, p := range r.selector.Periods {
			ps, err := r.scanPeriod(gctx, p, refresh, items)
			stats.Scanned += ps.Scanned
			stats.Selected += ps.Selected
			stats.SkippedProcessed += ps.SkippedProcessed
			stats.DupSkipped += ps.DupSkipped
			stats.BadKeys += ps.BadKeys
			stats.MalformedRows += ps.MalformedRows
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				var stateErr *edgar.StateError
				if errors.As(err, &stateErr) {
					// State-store failures poison the whole run.
					return err
				}
				skippedPeriods++
				r.logger.Error("period skipped",
					zap.String("period", p.String()),
					zap.Error(err),
				)
			}
		}
		return nil
	})

	err := g.Wait()

	summary.RunID = runID
	summary.SkippedProcessed = stats.SkippedProcessed
	summary.DupSkipped = stats.DupSkipped
	summary.MalformedRows = stats.MalformedRows

	if ferr := r.store.Flush(ctx); ferr != nil && err == nil {
		err = fmt.Errorf("flush state: %w", ferr)
	}

	r.logger.Info("harvest run finished",
		zap.String("run_id", runID),
		zap.Int("scanned", stats.Scanned),
		zap.Int("selected", stats.Selected),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped_processed", summary.SkippedProcessed),
		zap.Int("dup_skipped", summary.DupSkipped),
		zap.Int("malformed_rows", summary.MalformedRows),
		zap.Int("documents_stored", summary.DocumentsStored),
		zap.Int("documents_failed", summary.DocumentsFailed),
		zap.Int("skipped_periods", skippedPeriods),
	)
	return summary, err
}

// scanPeriod fetches one period's index and feeds its unseen filings
// into the item channel.
func (r *Runner) scanPeriod(ctx context.Context, p edgar.Period, refresh bool, items chan<- edgar.WorkItem) (reconcile.Stats, error) {
	src, err := r.index.Fetch(ctx, p, refresh)
	if err != nil {
		return reconcile.Stats{}, err
	}

	stats, err := r.reconciler.Reconcile(ctx, src, r.selector, func(item edgar.WorkItem) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case items <- item:
			return nil
		}
	})
	if err != nil {
		return stats, err
	}

	r.logger.Info("period reconciled",
		zap.String("period", p.String()),
		zap.Int("scanned", stats.Scanned),
		zap.Int("selected", stats.Selected),
		zap.Int("skipped_processed", stats.SkippedProcessed),
		zap.Int("dup_skipped", stats.DupSkipped),
		zap.Int("malformed_rows", stats.MalformedRows),
	)
	return stats, nil
}
