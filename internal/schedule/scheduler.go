// Package schedule drives the fan-out from reconciled work items
// through the filing crawler and document downloads.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
	"github.com/sayouzone/edgar-harvester/internal/metrics"
)

// Crawler produces a metadata record for one work item.
type Crawler interface {
	Crawl(ctx context.Context, item edgar.WorkItem) (edgar.FilingMetadata, error)
	DocumentURL(ref edgar.DocumentRef) string
}

// Limiter admits one request per call, blocking until the shared token
// bucket allows it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config controls scheduler behavior.
type Config struct {
	// Concurrency is the number of workers pulling from the item queue.
	Concurrency int
	// SkipSuffixes drops manifest documents by name suffix before
	// download (the archive lists .html sidecars next to the real
	// documents).
	SkipSuffixes []string
}

// Scheduler executes the per-filing pipeline under a bounded worker
// pool and the shared rate limit. Its completion contract: when Run
// returns without a fatal error, every consumed item ended in exactly
// one of {processed, permanently-failed}.
type Scheduler struct {
	crawler Crawler
	fetch   edgar.Fetcher
	sink    edgar.MetadataSink
	store   edgar.StateStore
	blobs   edgar.BlobStore
	limiter Limiter
	retry   *RetryPolicy
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Scheduler.
func New(
	crawler Crawler,
	fetch edgar.Fetcher,
	sink edgar.MetadataSink,
	store edgar.StateStore,
	blobs edgar.BlobStore,
	limiter Limiter,
	retry *RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		crawler: crawler,
		fetch:   fetch,
		sink:    sink,
		store:   store,
		blobs:   blobs,
		limiter: limiter,
		retry:   retry,
		cfg:     cfg,
		logger:  logger,
	}
}

// tally is the mutable half of the run summary, shared by workers.
type tally struct {
	mu      sync.Mutex
	summary edgar.RunSummary
}

func (t *tally) processed() {
	t.mu.Lock()
	t.summary.Processed++
	t.mu.Unlock()
}

func (t *tally) failed(rec edgar.FailureRecord) {
	t.mu.Lock()
	t.summary.Failed++
	t.summary.Failures = append(t.summary.Failures, rec)
	t.mu.Unlock()
}

func (t *tally) document(stored bool, rec *edgar.FailureRecord) {
	t.mu.Lock()
	if stored {
		t.summary.DocumentsStored++
	} else {
		t.summary.DocumentsFailed++
		if rec != nil {
			t.summary.Failures = append(t.summary.Failures, *rec)
		}
	}
	t.mu.Unlock()
}

// Run consumes items until the channel closes or the context is
// canceled. A state-store failure aborts the whole run; any other
// failure is isolated to its item. Items mid-flight at cancellation
// are left unmarked so the next run retries them.
func (s *Scheduler) Run(ctx context.Context, runID string, items <-chan edgar.WorkItem) (edgar.RunSummary, error) {
	t := &tally{summary: edgar.RunSummary{RunID: runID}}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case item, ok := <-items:
					if !ok {
						return nil
					}
					metrics.IncActiveWorkers()
					err := s.process(gctx, runID, item, t)
					metrics.DecActiveWorkers()
					if err != nil {
						return err
					}
				}
			}
		})
	}

	err := g.Wait()
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Run-level cancellation is an orderly stop, not a failure.
		err = nil
	}
	return t.summary, err
}

// process runs one item to a terminal state. It returns an error only
// for failures that must stop the whole run.
func (s *Scheduler) process(ctx context.Context, runID string, item edgar.WorkItem, t *tally) error {
	md, attempts, err := s.crawlWithRetry(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			// Mid-flight at cancellation: leave the item unmarked.
			return ctx.Err()
		}
		return s.recordItemFailure(ctx, t, edgar.FailureRecord{
			RunID:    runID,
			Key:      item.Key,
			Stage:    edgar.StageCrawl,
			Attempts: attempts,
			Reason:   err.Error(),
			FailedAt: time.Now().UTC(),
		})
	}

	// Metadata is durably appended before the key enters the processed
	// set; a crash in between re-processes, never loses the record.
	if err := s.sink.Append(ctx, md); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.recordItemFailure(ctx, t, edgar.FailureRecord{
			RunID:    runID,
			Key:      item.Key,
			Stage:    edgar.StageCrawl,
			Attempts: attempts,
			Reason:   fmt.Sprintf("append metadata: %v", err),
			FailedAt: time.Now().UTC(),
		})
	}
	if err := s.store.MarkProcessed(ctx, item.Key); err != nil {
		return err
	}

	t.processed()
	metrics.ObserveFiling("processed")
	s.logger.Debug("filing processed",
		zap.String("key", item.Key.String()),
		zap.String("form", md.FormType),
		zap.Int("documents", len(md.Documents)),
	)

	s.downloadDocuments(ctx, runID, item, md, t)
	return nil
}

func (s *Scheduler) recordItemFailure(ctx context.Context, t *tally, rec edgar.FailureRecord) error {
	if err := s.store.RecordFailure(ctx, rec); err != nil {
		return err
	}
	t.failed(rec)
	metrics.ObserveFiling("failed")
	s.logger.Warn("filing permanently failed",
		zap.String("key", rec.Key.String()),
		zap.String("stage", rec.Stage),
		zap.Int("attempts", rec.Attempts),
		zap.String("reason", rec.Reason),
	)
	return nil
}

// crawlWithRetry applies the retry policy around the crawler, waiting
// on the shared limiter before every attempt.
func (s *Scheduler) crawlWithRetry(ctx context.Context, item edgar.WorkItem) (edgar.FilingMetadata, int, error) {
	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts(); attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return edgar.FilingMetadata{}, attempt, err
		}
		md, err := s.crawler.Crawl(ctx, item)
		if err == nil {
			return md, attempt + 1, nil
		}
		lastErr = err
		if !s.retry.ShouldRetry(err, attempt+1) {
			return edgar.FilingMetadata{}, attempt + 1, err
		}
		metrics.ObserveRetry()
		select {
		case <-ctx.Done():
			return edgar.FilingMetadata{}, attempt + 1, ctx.Err()
		case <-time.After(s.retry.Backoff(attempt)):
		}
	}
	return edgar.FilingMetadata{}, s.retry.MaxAttempts(), lastErr
}

// downloadDocuments fetches the manifest into the content store. The
// filing is already processed at this point; a document failure goes to
// the ledger without affecting the filing's terminal state.
func (s *Scheduler) downloadDocuments(ctx context.Context, runID string, item edgar.WorkItem, md edgar.FilingMetadata, t *tally) {
	for _, ref := range md.Documents {
		if s.skipDocument(ref.Name) {
			continue
		}
		if err := s.fetchDocument(ctx, item, ref); err != nil {
			if ctx.Err() != nil {
				return
			}
			rec := edgar.FailureRecord{
				RunID:    runID,
				Key:      item.Key,
				Stage:    edgar.StageDocument,
				Attempts: s.retry.MaxAttempts(),
				Reason:   fmt.Sprintf("%s: %v", ref.Name, err),
				FailedAt: time.Now().UTC(),
			}
			if serr := s.store.RecordFailure(ctx, rec); serr != nil {
				s.logger.Error("record document failure", zap.Error(serr))
			}
			t.document(false, &rec)
			metrics.ObserveDocument("failed")
			continue
		}
		t.document(true, nil)
		metrics.ObserveDocument("stored")
	}
}

func (s *Scheduler) fetchDocument(ctx context.Context, item edgar.WorkItem, ref edgar.DocumentRef) error {
	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts(); attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		data, err := s.fetch.Fetch(ctx, s.crawler.DocumentURL(ref))
		if err == nil {
			key := fmt.Sprintf("%d/%s/%s", item.Key.CIK, item.Key.Accession, ref.Name)
			if _, err := s.blobs.Put(ctx, key, data); err != nil {
				return fmt.Errorf("store document: %w", err)
			}
			return nil
		}
		lastErr = err
		if !s.retry.ShouldRetry(err, attempt+1) {
			return err
		}
		metrics.ObserveRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retry.Backoff(attempt)):
		}
	}
	return lastErr
}

func (s *Scheduler) skipDocument(name string) bool {
	for _, suffix := range s.cfg.SkipSuffixes {
		if suffix != "" && strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
