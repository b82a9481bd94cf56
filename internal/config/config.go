// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StrategyConfig holds the signal engine thresholds. The entry thresholds
// are calibrated against the aggregation window; changing the sampling
// cadence without re-bucketing changes the strategy's sensitivity.
type StrategyConfig struct {
	StrikeStep        float64 `mapstructure:"strike_step"`
	MomentumThreshold float64 `mapstructure:"momentum_threshold"` // r2/r0 ratio, e.g. 1.03
	OIGrowthThreshold float64 `mapstructure:"oi_growth_threshold"` // oi2/oi1 ratio, e.g. 1.05
	MinLTP            float64 `mapstructure:"min_ltp"`
	Cooldown          int     `mapstructure:"cooldown"` // sequence-steps between entries
	StopLossPct       float64 `mapstructure:"stop_loss_pct"`
	MinHoldSequences  int     `mapstructure:"min_hold_sequences"`
}

// PortfolioConfig holds ledger and persistence configuration.
type PortfolioConfig struct {
	File           string  `mapstructure:"file"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	LotSize        int     `mapstructure:"lot_size"`
	GitSync        bool    `mapstructure:"git_sync"`
	GitRemote      string  `mapstructure:"git_remote"`
	GitBranch      string  `mapstructure:"git_branch"`
}

// DatabaseConfig holds the snapshot source configuration.
type DatabaseConfig struct {
	Path   string `mapstructure:"path"`
	Ticker string `mapstructure:"ticker"`
}

// MonitorConfig holds the polling loop configuration. SnapshotWindow limits
// how many recent snapshots are loaded per poll; 0 loads the full history,
// which keeps sequence numbering stable across polls and restarts so the
// persisted last-buy cooldown stays meaningful.
type MonitorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SnapshotWindow    int           `mapstructure:"snapshot_window"`
	AggregationWindow time.Duration `mapstructure:"aggregation_window"`
	Aggregate         bool          `mapstructure:"aggregate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/oi-trader"
	}
	return filepath.Join(home, ".config", "oi-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("strategy.strike_step", 50.0)
	v.SetDefault("strategy.momentum_threshold", 1.03)
	v.SetDefault("strategy.oi_growth_threshold", 1.05)
	v.SetDefault("strategy.min_ltp", 5.0)
	v.SetDefault("strategy.cooldown", 20)
	v.SetDefault("strategy.stop_loss_pct", 0.5)
	v.SetDefault("strategy.min_hold_sequences", 7)

	v.SetDefault("portfolio.file", filepath.Join(configDir, "portfolio.json"))
	v.SetDefault("portfolio.initial_balance", 100000.0)
	v.SetDefault("portfolio.lot_size", 150)
	v.SetDefault("portfolio.git_sync", false)
	v.SetDefault("portfolio.git_remote", "origin")
	v.SetDefault("portfolio.git_branch", "main")

	v.SetDefault("database.path", filepath.Join(configDir, "optionchain.db"))
	v.SetDefault("database.ticker", "NIFTY")

	v.SetDefault("monitor.poll_interval", time.Minute)
	v.SetDefault("monitor.snapshot_window", 0)
	v.SetDefault("monitor.aggregation_window", 180*time.Second)
	v.SetDefault("monitor.aggregate", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "oi-trader.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OI_TRADER_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TICKER"); v != "" {
		cfg.Database.Ticker = v
	}
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Monitor.PollInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("OI_TRADER_PORTFOLIO"); v != "" {
		cfg.Portfolio.File = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Strategy.StrikeStep <= 0 {
		return fmt.Errorf("strike_step must be positive")
	}
	if c.Strategy.MomentumThreshold < 1 {
		return fmt.Errorf("momentum_threshold must be >= 1 (ratio of r2 to r0)")
	}
	if c.Strategy.OIGrowthThreshold < 1 {
		return fmt.Errorf("oi_growth_threshold must be >= 1 (ratio of oi2 to oi1)")
	}
	if c.Strategy.StopLossPct <= 0 || c.Strategy.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be between 0 and 1")
	}
	if c.Strategy.MinHoldSequences < 0 {
		return fmt.Errorf("min_hold_sequences must be non-negative")
	}
	if c.Strategy.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative")
	}
	if c.Portfolio.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive")
	}
	if c.Portfolio.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive")
	}
	if c.Monitor.SnapshotWindow != 0 && c.Monitor.SnapshotWindow < 3 {
		return fmt.Errorf("snapshot_window must be 0 (full history) or at least 3")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Monitor.Aggregate && c.Monitor.AggregationWindow <= 0 {
		return fmt.Errorf("aggregation_window must be positive when aggregation is enabled")
	}
	return nil
}
