// Package reconcile computes the minimal new-work set from a freshly
// fetched index.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// Stats summarizes one reconcile pass.
type Stats struct {
	Scanned          int
	Selected         int
	SkippedProcessed int
	DupSkipped       int
	BadKeys          int
	MalformedRows    int
}

// Reconciler yields the filings that match the selector and are not yet
// in the state store.
type Reconciler struct {
	store  edgar.StateStore
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(store edgar.StateStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile makes a single linear pass over src, applying the cheap
// selector filters first and the state-store membership check last, and
// calls emit for every unseen key. An index can list the same key more
// than once (amendment rows); the earliest row wins. A state-store
// failure aborts the pass; emit errors propagate to the caller.
func (r *Reconciler) Reconcile(ctx context.Context, src edgar.RecordSource, sel edgar.Selector, emit func(edgar.WorkItem) error) (Stats, error) {
	var stats Stats
	seen := make(map[edgar.FilingKey]struct{})

	for src.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		rec := src.Record()

		if !sel.MatchForm(rec.FormType) || !sel.MatchCIK(rec.CIK) {
			continue
		}

		key, err := rec.Key()
		if err != nil {
			stats.BadKeys++
			r.logger.Warn("index row has no derivable key",
				zap.Int64("cik", rec.CIK),
				zap.String("path", rec.Path),
				zap.Error(err),
			)
			continue
		}
		if _, dup := seen[key]; dup {
			stats.DupSkipped++
			continue
		}
		seen[key] = struct{}{}

		done, err := r.store.Contains(ctx, key)
		if err != nil {
			return stats, &edgar.StateError{Op: "contains", Err: err}
		}
		if done {
			stats.SkippedProcessed++
			continue
		}

		stats.Selected++
		if err := emit(edgar.WorkItem{Key: key, Record: rec}); err != nil {
			return stats, err
		}
	}
	if err := src.Err(); err != nil {
		return stats, err
	}
	if sk, ok := src.(interface{ Skipped() int }); ok {
		stats.MalformedRows = sk.Skipped()
	}
	return stats, nil
}
