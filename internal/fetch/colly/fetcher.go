// Package collyfetch implements the fetch capability using gocolly.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
	"github.com/sayouzone/edgar-harvester/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent must identify the operator; the archive rejects
	// anonymous clients.
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
}

// Client implements edgar.Fetcher using a Colly collector. Safe for
// concurrent use; each Fetch clones the base collector.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the response body.
// Network and HTTP failures come back as *edgar.FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url); err != nil {
		metrics.ObserveFetch("error", 0)
		return nil, &edgar.FetchError{URL: url, Status: status, Err: err}
	}
	if fetchErr != nil {
		metrics.ObserveFetch("error", 0)
		return nil, &edgar.FetchError{URL: url, Status: status, Err: fetchErr}
	}
	if status >= http.StatusBadRequest {
		metrics.ObserveFetch("error", 0)
		return nil, &edgar.FetchError{URL: url, Status: status, Err: fmt.Errorf("http status %d", status)}
	}

	metrics.ObserveFetch("ok", len(body))
	return body, nil
}

// runCollector races the blocking Visit against context cancellation.
func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
