package index

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/archive"
	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

type fakeFetcher struct {
	payload []byte
	err     error
	calls   int
	lastURL string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func zipWithIndex(t *testing.T, member, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(member)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetcherDownloadsAndCaches(t *testing.T) {
	payload := zipWithIndex(t, "master.idx", sampleIndex)
	ff := &fakeFetcher{payload: payload}
	dir := t.TempDir()

	f, err := NewFetcher(ff, archive.NewZip(), FetcherConfig{
		BaseURL:  "https://www.sec.gov",
		CacheDir: dir,
	}, zap.NewNop())
	require.NoError(t, err)

	period := edgar.Period{Year: 2025, Quarter: 1}
	src, err := f.Fetch(context.Background(), period, false)
	require.NoError(t, err)
	require.Equal(t, "https://www.sec.gov/Archives/edgar/full-index/2025/QTR1/master.zip", ff.lastURL)
	require.Len(t, collect(t, src), 2)

	_, err = os.Stat(filepath.Join(dir, "2025-QTR1-master.zip"))
	require.NoError(t, err)

	// Second fetch must come from cache even when the network fails.
	ff.err = errors.New("network down")
	src, err = f.Fetch(context.Background(), period, false)
	require.NoError(t, err)
	require.Len(t, collect(t, src), 2)
	require.Equal(t, 1, ff.calls)
}

func TestFetcherRefreshBypassesCache(t *testing.T) {
	payload := zipWithIndex(t, "master.idx", sampleIndex)
	ff := &fakeFetcher{payload: payload}

	f, err := NewFetcher(ff, archive.NewZip(), FetcherConfig{
		BaseURL:  "https://www.sec.gov",
		CacheDir: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)

	period := edgar.Period{Year: 2024, Quarter: 3}
	_, err = f.Fetch(context.Background(), period, false)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), period, true)
	require.NoError(t, err)
	require.Equal(t, 2, ff.calls)
}

func TestFetcherRejectsArchiveWithoutIndexMember(t *testing.T) {
	payload := zipWithIndex(t, "other.idx", sampleIndex)
	ff := &fakeFetcher{payload: payload}

	f, err := NewFetcher(ff, archive.NewZip(), FetcherConfig{
		BaseURL:  "https://www.sec.gov",
		CacheDir: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), edgar.Period{Year: 2025, Quarter: 2}, false)
	var formatErr *edgar.FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestFetcherRejectsInvalidPeriod(t *testing.T) {
	f, err := NewFetcher(&fakeFetcher{}, archive.NewZip(), FetcherConfig{
		BaseURL:  "https://www.sec.gov",
		CacheDir: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), edgar.Period{Year: 1980, Quarter: 5}, false)
	require.Error(t, err)
}
