package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// indexMember is the archive member holding the pipe-delimited index.
const indexMember = "master.idx"

// FetcherConfig controls index retrieval.
type FetcherConfig struct {
	// BaseURL is the archive root, e.g. "https://www.sec.gov".
	BaseURL string
	// CacheDir holds the raw per-period archives between runs.
	CacheDir string
}

// Fetcher retrieves one period's index archive and decodes it.
// Archives are cached on disk keyed by period so repeated runs within
// the same period do not re-fetch unless the caller forces a refresh.
type Fetcher struct {
	fetch   edgar.Fetcher
	extract edgar.ArchiveExtractor
	cfg     FetcherConfig
	logger  *zap.Logger
}

// NewFetcher constructs a Fetcher and prepares its cache directory.
func NewFetcher(fetch edgar.Fetcher, extract edgar.ArchiveExtractor, cfg FetcherConfig, logger *zap.Logger) (*Fetcher, error) {
	if fetch == nil || extract == nil {
		return nil, fmt.Errorf("fetcher and extractor are required")
	}
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{fetch: fetch, extract: extract, cfg: cfg, logger: logger}, nil
}

// Fetch returns a scanner over the period's index records. With refresh
// set, the cached archive is ignored and re-downloaded.
func (f *Fetcher) Fetch(ctx context.Context, p edgar.Period, refresh bool) (*Scanner, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid period %d/%d", p.Year, p.Quarter)
	}

	raw, err := f.archiveBytes(ctx, p, refresh)
	if err != nil {
		return nil, err
	}

	members, err := f.extract.Extract(raw)
	if err != nil {
		return nil, &edgar.FormatError{Subject: "archive " + p.String(), Err: err}
	}
	payload, ok := members[indexMember]
	if !ok {
		return nil, &edgar.FormatError{Subject: "archive " + p.String(), Err: fmt.Errorf("member %s missing", indexMember)}
	}

	return NewScanner(bytes.NewReader(payload)), nil
}

func (f *Fetcher) archiveBytes(ctx context.Context, p edgar.Period, refresh bool) ([]byte, error) {
	cachePath := filepath.Join(f.cfg.CacheDir, fmt.Sprintf("%d-QTR%d-master.zip", p.Year, p.Quarter))
	if !refresh {
		if raw, err := os.ReadFile(cachePath); err == nil {
			f.logger.Debug("index archive cache hit",
				zap.String("period", p.String()),
				zap.Int("bytes", len(raw)),
			)
			return raw, nil
		}
	}

	url := fmt.Sprintf("%s/Archives/edgar/full-index/%d/QTR%d/master.zip",
		strings.TrimRight(f.cfg.BaseURL, "/"), p.Year, p.Quarter)
	raw, err := f.fetch.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(cachePath, raw); err != nil {
		// Caching is best effort; the run proceeds on the in-memory copy.
		f.logger.Warn("cache index archive failed",
			zap.String("period", p.String()),
			zap.Error(err),
		)
	}
	return raw, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
