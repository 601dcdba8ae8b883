package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
	"github.com/sayouzone/edgar-harvester/internal/state/memory"
)

type sliceSource struct {
	records []edgar.IndexRecord
	pos     int
	skipped int
	err     error
}

func (s *sliceSource) Scan() bool {
	if s.pos >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Record() edgar.IndexRecord { return s.records[s.pos-1] }
func (s *sliceSource) Skipped() int              { return s.skipped }
func (s *sliceSource) Err() error                { return s.err }

func record(cik int64, form, accession string) edgar.IndexRecord {
	return edgar.IndexRecord{
		CIK:      cik,
		Company:  "Issuer",
		FormType: form,
		Filed:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Path:     "edgar/data/1/" + accession + ".txt",
	}
}

func runReconcile(t *testing.T, src edgar.RecordSource, store edgar.StateStore, sel edgar.Selector) (Stats, []edgar.WorkItem) {
	t.Helper()
	var items []edgar.WorkItem
	stats, err := New(store, zap.NewNop()).Reconcile(context.Background(), src, sel, func(item edgar.WorkItem) error {
		items = append(items, item)
		return nil
	})
	require.NoError(t, err)
	return stats, items
}

func TestReconcileSelectsByForm(t *testing.T) {
	src := &sliceSource{records: []edgar.IndexRecord{
		record(320193, "10-K", "0000320193-25-000008"),
		record(1045810, "10-Q", "0001045810-25-000023"),
	}}
	sel := edgar.Selector{FormTypes: []string{"10-K"}}

	stats, items := runReconcile(t, src, memory.NewStore(), sel)

	require.Equal(t, 2, stats.Scanned)
	require.Equal(t, 1, stats.Selected)
	require.Len(t, items, 1)
	require.Equal(t, edgar.FilingKey{CIK: 320193, Accession: "0000320193-25-000008"}, items[0].Key)
}

func TestReconcileSkipsProcessedKeys(t *testing.T) {
	store := memory.NewStore()
	processed := edgar.FilingKey{CIK: 320193, Accession: "0000320193-25-000008"}
	require.NoError(t, store.MarkProcessed(context.Background(), processed))

	src := &sliceSource{records: []edgar.IndexRecord{
		record(320193, "10-K", "0000320193-25-000008"),
		record(320193, "10-K", "0000320193-25-000100"),
	}}

	stats, items := runReconcile(t, src, store, edgar.Selector{})

	require.Equal(t, 1, stats.SkippedProcessed)
	require.Len(t, items, 1)
	require.NotEqual(t, processed, items[0].Key)
}

func TestReconcileEarliestRowWinsOnDuplicates(t *testing.T) {
	dup := record(320193, "10-K", "0000320193-25-000008")
	later := dup
	later.Company = "Issuer Amended"

	src := &sliceSource{records: []edgar.IndexRecord{dup, later}}
	stats, items := runReconcile(t, src, memory.NewStore(), edgar.Selector{})

	require.Equal(t, 1, stats.DupSkipped)
	require.Len(t, items, 1)
	require.Equal(t, "Issuer", items[0].Record.Company)
}

func TestReconcileCountsUnderivableKeys(t *testing.T) {
	bad := record(320193, "10-K", "x")
	bad.Path = "edgar/data/320193/"

	src := &sliceSource{records: []edgar.IndexRecord{
		bad,
		record(1045810, "10-Q", "0001045810-25-000023"),
	}}
	stats, items := runReconcile(t, src, memory.NewStore(), edgar.Selector{})

	require.Equal(t, 1, stats.BadKeys)
	require.Len(t, items, 1)
}

func TestReconcileSurfacesMalformedRowCount(t *testing.T) {
	src := &sliceSource{skipped: 7}
	stats, _ := runReconcile(t, src, memory.NewStore(), edgar.Selector{})
	require.Equal(t, 7, stats.MalformedRows)
}

func TestReconcilePropagatesSourceError(t *testing.T) {
	src := &sliceSource{err: errors.New("truncated read")}
	_, err := New(memory.NewStore(), zap.NewNop()).Reconcile(context.Background(), src, edgar.Selector{}, func(edgar.WorkItem) error {
		return nil
	})
	require.Error(t, err)
}

type failingStore struct {
	*memory.Store
}

func (f *failingStore) Contains(context.Context, edgar.FilingKey) (bool, error) {
	return false, errors.New("disk error")
}

func TestReconcileAbortsOnStateStoreFailure(t *testing.T) {
	src := &sliceSource{records: []edgar.IndexRecord{
		record(320193, "10-K", "0000320193-25-000008"),
	}}
	_, err := New(&failingStore{memory.NewStore()}, zap.NewNop()).Reconcile(context.Background(), src, edgar.Selector{}, func(edgar.WorkItem) error {
		return nil
	})

	var stateErr *edgar.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestReconcileStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &sliceSource{records: []edgar.IndexRecord{
		record(320193, "10-K", "0000320193-25-000008"),
	}}
	_, err := New(memory.NewStore(), zap.NewNop()).Reconcile(ctx, src, edgar.Selector{}, func(edgar.WorkItem) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
