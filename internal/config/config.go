package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eduszlak/zipline/types"
)

// Config is the top-level configuration for the zipline binary.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Journal  JournalConfig  `yaml:"journal"`
	Run      RunConfig      `yaml:"run"`
	Logging  LoggingConfig  `yaml:"logging"`
	Report   ReportConfig   `yaml:"report"`
}

// DatabaseConfig points at the Postgres price store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// JournalConfig holds the run-journal location. An empty path disables
// journaling.
type JournalConfig struct {
	Path string `yaml:"path,omitempty"`
}

// RunConfig holds the parameters of one simulated run.
type RunConfig struct {
	Tickers     []string `yaml:"tickers"`
	Interval    string   `yaml:"interval"`
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	InitialCash float64  `yaml:"initial_cash"`
	FastWindow  int      `yaml:"fast_window"`
	SlowWindow  int      `yaml:"slow_window"`
	OrderSize   int      `yaml:"order_size"`
	Progress    bool     `yaml:"progress"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ReportConfig controls report output. An empty path skips the CSV export.
type ReportConfig struct {
	CSVPath string `yaml:"csv_path,omitempty"`
}

// Span parses the run window. Timestamps accept RFC3339 or a plain date.
func (r RunConfig) Span() (time.Time, time.Time, error) {
	start, err := parseTimestamp(r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run.start: %w", err)
	}
	end, err := parseTimestamp(r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run.end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("run.end must be after run.start")
	}
	return start, end, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if len(c.Run.Tickers) == 0 {
		return fmt.Errorf("run.tickers is required")
	}
	if _, ok := types.IntervalToTime[types.Interval(c.Run.Interval)]; !ok {
		return fmt.Errorf("unknown interval: %s", c.Run.Interval)
	}
	if _, _, err := c.Run.Span(); err != nil {
		return err
	}
	if c.Run.InitialCash <= 0 {
		return fmt.Errorf("run.initial_cash must be positive")
	}
	if c.Run.FastWindow <= 0 {
		return fmt.Errorf("run.fast_window must be positive")
	}
	if c.Run.SlowWindow <= c.Run.FastWindow {
		return fmt.Errorf("run.slow_window must be greater than run.fast_window")
	}
	if c.Run.OrderSize <= 0 {
		return fmt.Errorf("run.order_size must be positive")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "postgres://localhost:5432/zipline",
		},
		Journal: JournalConfig{
			Path: "./runs.db",
		},
		Run: RunConfig{
			Tickers:     []string{"AAPL"},
			Interval:    string(types.Day),
			Start:       "2024-01-01",
			End:         "2024-06-01",
			InitialCash: 100000,
			FastWindow:  10,
			SlowWindow:  30,
			OrderSize:   10,
			Progress:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
