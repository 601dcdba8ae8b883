package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

func validConfig() Config {
	return Config{
		Source: SourceConfig{
			BaseURL:        "https://www.sec.gov",
			UserAgent:      "sayouzone data-eng@sayouzone.com",
			TimeoutSeconds: 30,
			CacheDir:       "data/cache",
		},
		Harvest: HarvestConfig{
			FormTypes:   []string{"10-K"},
			FromYear:    2024,
			FromQuarter: 3,
			ToYear:      2025,
			ToQuarter:   2,
		},
		Limits: LimitsConfig{
			Concurrency:       4,
			RequestsPerSecond: 5,
			Burst:             1,
			MaxAttempts:       3,
			BackoffInitialMs:  250,
			BackoffMaxMs:      5000,
		},
		State:   StateConfig{DBPath: "data/state.db"},
		Sink:    SinkConfig{CSVPath: "data/filings.csv"},
		Storage: StorageConfig{Backend: "local", BaseDir: "data/documents"},
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing user agent", func(c *Config) { c.Source.UserAgent = "   " }},
		{"zero concurrency", func(c *Config) { c.Limits.Concurrency = 0 }},
		{"rate above ceiling", func(c *Config) { c.Limits.RequestsPerSecond = 11 }},
		{"zero rate", func(c *Config) { c.Limits.RequestsPerSecond = 0 }},
		{"zero attempts", func(c *Config) { c.Limits.MaxAttempts = 0 }},
		{"missing years", func(c *Config) { c.Harvest.FromYear = 0 }},
		{"reversed range", func(c *Config) { c.Harvest.FromYear = 2026 }},
		{"invalid quarter", func(c *Config) { c.Harvest.FromQuarter = 5 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"gcs without bucket", func(c *Config) {
			c.Storage.Backend = "gcs"
			c.Storage.Bucket = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestPeriodsSpanQuarters(t *testing.T) {
	cfg := validConfig()
	periods, err := cfg.Periods()
	require.NoError(t, err)
	require.Equal(t, []edgar.Period{
		{Year: 2024, Quarter: 3},
		{Year: 2024, Quarter: 4},
		{Year: 2025, Quarter: 1},
		{Year: 2025, Quarter: 2},
	}, periods)
}

func TestPeriodsSingleQuarter(t *testing.T) {
	cfg := validConfig()
	cfg.Harvest.FromYear, cfg.Harvest.FromQuarter = 2025, 1
	cfg.Harvest.ToYear, cfg.Harvest.ToQuarter = 2025, 1

	periods, err := cfg.Periods()
	require.NoError(t, err)
	require.Equal(t, []edgar.Period{{Year: 2025, Quarter: 1}}, periods)
}

func TestSelectorCarriesHarvestSection(t *testing.T) {
	cfg := validConfig()
	cfg.Harvest.CIKs = []int64{320193}

	sel, err := cfg.Selector()
	require.NoError(t, err)
	require.Equal(t, []string{"10-K"}, sel.FormTypes)
	require.Equal(t, []int64{320193}, sel.CIKs)
	require.Len(t, sel.Periods, 4)
}

func TestLoadFromFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `source:
  user_agent: "sayouzone data-eng@sayouzone.com"
harvest:
  from_year: 2025
  from_quarter: 1
  to_year: 2025
  to_quarter: 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Unset keys fall back to defaults.
	require.Equal(t, "https://www.sec.gov", cfg.Source.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Timeout())
	require.Equal(t, 4, cfg.Limits.Concurrency)
	require.Equal(t, float64(5), cfg.Limits.RequestsPerSecond)
	require.Equal(t, 250*time.Millisecond, cfg.BackoffInitial())
	require.Equal(t, 5*time.Second, cfg.BackoffMax())
	require.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// Valid YAML, invalid config: the rate ceiling is enforced.
	body := `source:
  user_agent: "sayouzone data-eng@sayouzone.com"
harvest:
  from_year: 2025
  from_quarter: 1
  to_year: 2025
  to_quarter: 1
limits:
  requests_per_second: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
