// Package crawl fetches filing detail pages and extracts structured
// metadata from them.
package crawl

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// Config controls detail-page crawling.
type Config struct {
	// BaseURL is the archive root, e.g. "https://www.sec.gov".
	BaseURL string
}

// Crawler turns one work item into a FilingMetadata record. Crawling is
// pure: the same page bytes always produce the same record, so retries
// are safe.
type Crawler struct {
	fetch  edgar.Fetcher
	cfg    Config
	logger *zap.Logger
}

// New constructs a Crawler.
func New(fetch edgar.Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetch: fetch, cfg: cfg, logger: logger}
}

// DetailURL returns the filing's index page URL for the given record.
func (c *Crawler) DetailURL(rec edgar.IndexRecord) string {
	path := strings.TrimSuffix(rec.Path, ".txt") + "-index.htm"
	return fmt.Sprintf("%s/Archives/%s", strings.TrimRight(c.cfg.BaseURL, "/"), path)
}

// DocumentURL returns the absolute URL of a manifest document.
func (c *Crawler) DocumentURL(ref edgar.DocumentRef) string {
	return fmt.Sprintf("%s/Archives/%s", strings.TrimRight(c.cfg.BaseURL, "/"), strings.TrimLeft(ref.Path, "/"))
}

// Crawl fetches the filing's detail page and extracts its metadata and
// document manifest. Fetch failures surface as *edgar.FetchError; a
// page that is not recognizable as a filing detail page surfaces as
// *edgar.CrawlError wrapping a FormatError. Individually missing fields
// degrade to the unknown sentinel instead of failing the crawl.
func (c *Crawler) Crawl(ctx context.Context, item edgar.WorkItem) (edgar.FilingMetadata, error) {
	url := c.DetailURL(item.Record)
	body, err := c.fetch.Fetch(ctx, url)
	if err != nil {
		return edgar.FilingMetadata{}, err
	}

	md, pageForm, err := Extract(item, body)
	if err != nil {
		return edgar.FilingMetadata{}, err
	}

	for _, field := range md.Warnings {
		c.logger.Warn("detail page field missing",
			zap.String("key", item.Key.String()),
			zap.String("field", field),
		)
	}
	if pageForm != "" && !strings.EqualFold(pageForm, strings.TrimSpace(item.Record.FormType)) {
		// The index record wins on disagreement.
		c.logger.Warn("form type mismatch between index and detail page",
			zap.String("key", item.Key.String()),
			zap.String("index_form", item.Record.FormType),
			zap.String("page_form", pageForm),
		)
	}
	return md, nil
}
