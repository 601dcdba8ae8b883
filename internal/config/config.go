// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	State   StateConfig   `mapstructure:"state"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SourceConfig describes the archive host and how to talk to it.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// UserAgent must carry operator identity ("company contact-email");
	// the archive rejects anonymous clients.
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	CacheDir       string `mapstructure:"cache_dir"`
}

// HarvestConfig selects which filings a run targets.
type HarvestConfig struct {
	FormTypes    []string `mapstructure:"form_types"`
	CIKs         []int64  `mapstructure:"ciks"`
	FromYear     int      `mapstructure:"from_year"`
	FromQuarter  int      `mapstructure:"from_quarter"`
	ToYear       int      `mapstructure:"to_year"`
	ToQuarter    int      `mapstructure:"to_quarter"`
	SkipSuffixes []string `mapstructure:"skip_suffixes"`
}

// LimitsConfig bounds concurrency, rate, and retries.
type LimitsConfig struct {
	Concurrency       int     `mapstructure:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
}

// StateConfig locates the processed-set database.
type StateConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SinkConfig locates the metadata ledger.
type SinkConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// StorageConfig selects and parameterizes the document content store.
type StorageConfig struct {
	// Backend is one of "local" or "gcs".
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.sec.gov")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.respect_robots", false)
	v.SetDefault("source.cache_dir", "data/cache")
	v.SetDefault("harvest.form_types", []string{"10-K", "10-Q"})
	v.SetDefault("limits.concurrency", 4)
	v.SetDefault("limits.requests_per_second", 5)
	v.SetDefault("limits.burst", 1)
	v.SetDefault("limits.max_attempts", 3)
	v.SetDefault("limits.backoff_initial_ms", 250)
	v.SetDefault("limits.backoff_max_ms", 5000)
	v.SetDefault("state.db_path", "data/state.db")
	v.SetDefault("sink.csv_path", "data/filings.csv")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/documents")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.UserAgent) == "" {
		return fmt.Errorf("source.user_agent must identify the operator")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Limits.Concurrency <= 0 {
		return fmt.Errorf("limits.concurrency must be > 0")
	}
	// 10 req/s is the archive's published ceiling.
	if c.Limits.RequestsPerSecond <= 0 || c.Limits.RequestsPerSecond > 10 {
		return fmt.Errorf("limits.requests_per_second must be in (0, 10]")
	}
	if c.Limits.MaxAttempts <= 0 {
		return fmt.Errorf("limits.max_attempts must be > 0")
	}
	if c.Harvest.FromYear == 0 || c.Harvest.ToYear == 0 {
		return fmt.Errorf("harvest.from_year and harvest.to_year are required")
	}
	if _, err := c.Periods(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or gcs")
	}
	return nil
}

// Periods enumerates the configured quarter range in order.
func (c Config) Periods() ([]edgar.Period, error) {
	from := edgar.Period{Year: c.Harvest.FromYear, Quarter: c.Harvest.FromQuarter}
	to := edgar.Period{Year: c.Harvest.ToYear, Quarter: c.Harvest.ToQuarter}
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("harvest period bounds %s..%s are invalid", from, to)
	}
	if from.Year > to.Year || (from.Year == to.Year && from.Quarter > to.Quarter) {
		return nil, fmt.Errorf("harvest period range %s..%s is reversed", from, to)
	}
	var periods []edgar.Period
	for p := from; p.Year < to.Year || (p.Year == to.Year && p.Quarter <= to.Quarter); {
		periods = append(periods, p)
		p.Quarter++
		if p.Quarter > 4 {
			p.Quarter = 1
			p.Year++
		}
	}
	return periods, nil
}

// Selector converts the harvest section into the run's selector.
func (c Config) Selector() (edgar.Selector, error) {
	periods, err := c.Periods()
	if err != nil {
		return edgar.Selector{}, err
	}
	return edgar.Selector{
		FormTypes: c.Harvest.FormTypes,
		CIKs:      c.Harvest.CIKs,
		Periods:   periods,
	}, nil
}

// Timeout converts the configured fetch timeout to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the configured initial backoff to a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Limits.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the configured backoff ceiling to a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Limits.BackoffMaxMs) * time.Millisecond
}
