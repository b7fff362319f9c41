package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
// Driver is "postgres" or "sqlite"; sqlite keeps small installs and
// tests self-contained.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SourceConfig describes the upstream booking system.
type SourceConfig struct {
	BaseURL           string            `yaml:"base_url"`
	Headers           map[string]string `yaml:"headers"`
	TimeoutSeconds    int               `yaml:"timeout_seconds"`
	RequestIntervalMS int               `yaml:"request_interval_ms"`
	RequestInterval   time.Duration     `yaml:"-"`
	Retries           int               `yaml:"retries"`
	RetryBackoffMS    int               `yaml:"retry_backoff_ms"`
	RetryBackoff      time.Duration     `yaml:"-"`
}

// TrackerConfig controls the refresh scheduler and fetch batcher.
type TrackerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	WindowDays      int           `yaml:"window_days"`
	FetchDays       int           `yaml:"fetch_days"`
	BatchSize       int           `yaml:"batch_size"`

	// Minimum re-check intervals per priority tier, in minutes.
	HighPriorityMinutes     int `yaml:"high_priority_minutes"`
	MediumPriorityMinutes   int `yaml:"medium_priority_minutes"`
	LowPriorityMinutes      int `yaml:"low_priority_minutes"`
	InactivePriorityMinutes int `yaml:"inactive_priority_minutes"`
}

// Load reads the configuration from the given path and applies
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with defaults and derives the
// duration fields from their integer counterparts.
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 300
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}

	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Source.RequestIntervalMS <= 0 {
		c.Source.RequestIntervalMS = 100
	}
	c.Source.RequestInterval = time.Duration(c.Source.RequestIntervalMS) * time.Millisecond
	if c.Source.Retries <= 0 {
		c.Source.Retries = 3
	}
	if c.Source.RetryBackoffMS <= 0 {
		c.Source.RetryBackoffMS = 1000
	}
	c.Source.RetryBackoff = time.Duration(c.Source.RetryBackoffMS) * time.Millisecond

	if c.Tracker.IntervalSeconds <= 0 {
		c.Tracker.IntervalSeconds = 900
	}
	c.Tracker.Interval = time.Duration(c.Tracker.IntervalSeconds) * time.Second
	if c.Tracker.WindowDays <= 0 {
		c.Tracker.WindowDays = 14
	}
	if c.Tracker.FetchDays <= 0 {
		c.Tracker.FetchDays = 90
	}
	if c.Tracker.BatchSize <= 0 {
		c.Tracker.BatchSize = 25
	}
	if c.Tracker.HighPriorityMinutes <= 0 {
		c.Tracker.HighPriorityMinutes = 30
	}
	if c.Tracker.MediumPriorityMinutes <= 0 {
		c.Tracker.MediumPriorityMinutes = 180
	}
	if c.Tracker.LowPriorityMinutes <= 0 {
		c.Tracker.LowPriorityMinutes = 1440
	}
	if c.Tracker.InactivePriorityMinutes <= 0 {
		c.Tracker.InactivePriorityMinutes = 10080
	}
}
