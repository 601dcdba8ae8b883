package cmd

import (
	"fmt"
	"net/http"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sayouzone/edgar-harvester/internal/archive"
	"github.com/sayouzone/edgar-harvester/internal/config"
	"github.com/sayouzone/edgar-harvester/internal/crawl"
	"github.com/sayouzone/edgar-harvester/internal/edgar"
	collyfetch "github.com/sayouzone/edgar-harvester/internal/fetch/colly"
	"github.com/sayouzone/edgar-harvester/internal/harvest"
	"github.com/sayouzone/edgar-harvester/internal/index"
	"github.com/sayouzone/edgar-harvester/internal/logging"
	"github.com/sayouzone/edgar-harvester/internal/metrics"
	"github.com/sayouzone/edgar-harvester/internal/ratelimit"
	"github.com/sayouzone/edgar-harvester/internal/reconcile"
	"github.com/sayouzone/edgar-harvester/internal/schedule"
	"github.com/sayouzone/edgar-harvester/internal/sink/csvsink"
	"github.com/sayouzone/edgar-harvester/internal/state/sqlite"
	"github.com/sayouzone/edgar-harvester/internal/storage/gcs"
	"github.com/sayouzone/edgar-harvester/internal/storage/local"
)

// newHarvestCmd creates the 'harvest' subcommand, which executes one
// incremental run over the configured period range.
func newHarvestCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one incremental harvest over the configured period range",
		Long: `Fetches the quarterly index for each configured period, reconciles it
against the processed set, and crawls every filing not seen before.
Metadata lands in the CSV ledger and documents in the content store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, refresh)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-download index archives even when cached")

	return cmd
}

func runHarvest(cmd *cobra.Command, refresh bool) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	fetch := collyfetch.New(collyfetch.Config{
		UserAgent:     cfg.Source.UserAgent,
		Timeout:       cfg.Timeout(),
		RespectRobots: cfg.Source.RespectRobots,
	})

	idx, err := index.NewFetcher(fetch, archive.NewZip(), index.FetcherConfig{
		BaseURL:  cfg.Source.BaseURL,
		CacheDir: cfg.Source.CacheDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("build index fetcher: %w", err)
	}

	store, err := sqlite.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close state store", zap.Error(cerr))
		}
	}()

	sink, err := csvsink.Open(cfg.Sink.CSVPath)
	if err != nil {
		return fmt.Errorf("open metadata sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("close metadata sink", zap.Error(cerr))
		}
	}()

	blobs, err := buildBlobStore(cmd, cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Limits.RequestsPerSecond,
		Burst:             cfg.Limits.Burst,
	})
	retry := schedule.NewRetryPolicy(cfg.Limits.MaxAttempts, cfg.BackoffInitial(), cfg.BackoffMax())
	crawler := crawl.New(fetch, crawl.Config{BaseURL: cfg.Source.BaseURL}, logger)

	sched := schedule.New(crawler, fetch, sink, store, blobs, limiter, retry, schedule.Config{
		Concurrency:  cfg.Limits.Concurrency,
		SkipSuffixes: cfg.Harvest.SkipSuffixes,
	}, logger)

	sel, err := cfg.Selector()
	if err != nil {
		return err
	}

	runner := harvest.New(idx, reconcile.New(store, logger), sched, store, sel, logger)

	summary, err := runner.Run(ctx, refresh)
	if err != nil {
		return fmt.Errorf("harvest run %s: %w", summary.RunID, err)
	}
	if summary.Failed > 0 || summary.DocumentsFailed > 0 {
		return fmt.Errorf("harvest run %s completed with %d failed filings and %d failed documents",
			summary.RunID, summary.Failed, summary.DocumentsFailed)
	}
	return nil
}

func buildBlobStore(cmd *cobra.Command, cfg config.Config) (edgar.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.Bucket,
			Prefix: cfg.Storage.Prefix,
		})
	default:
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	}
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listener starting", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
