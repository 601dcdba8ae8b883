// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	filingsTotal          *prometheus.CounterVec
	indexRowsTotal        *prometheus.CounterVec
	fetchesTotal          *prometheus.CounterVec
	fetchBytesTotal       prometheus.Counter
	retriesTotal          prometheus.Counter
	documentsTotal        *prometheus.CounterVec
	rateLimitDelaySeconds prometheus.Histogram
	activeWorkers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		filingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_filings_total",
				Help: "Filings handled per run, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		indexRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_index_rows_total",
				Help: "Index rows scanned, labeled by parse result.",
			},
			[]string{"result"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_fetches_total",
				Help: "HTTP fetches against the archive, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgar_fetch_bytes_total",
				Help: "Total bytes fetched from the archive.",
			},
		)

		retriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgar_retries_total",
				Help: "Retry attempts scheduled after transient failures.",
			},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_documents_total",
				Help: "Filing documents handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgar_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter admission waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgar_active_workers",
				Help: "Workers currently processing a filing.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFiling increments the filing counter for the given outcome.
func ObserveFiling(outcome string) {
	if filingsTotal != nil {
		filingsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveIndexRow counts one scanned index row.
func ObserveIndexRow(result string) {
	if indexRowsTotal != nil {
		indexRowsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveFetch counts one HTTP fetch and its payload size.
func ObserveFetch(outcome string, bytesFetched int) {
	if fetchesTotal != nil {
		fetchesTotal.WithLabelValues(outcome).Inc()
	}
	if fetchBytesTotal != nil && bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveRetry counts one scheduled retry.
func ObserveRetry() {
	if retriesTotal != nil {
		retriesTotal.Inc()
	}
}

// ObserveDocument counts one document download outcome.
func ObserveDocument(outcome string) {
	if documentsTotal != nil {
		documentsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRateLimitDelay records one rate limiter admission wait.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.Observe(d.Seconds())
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
