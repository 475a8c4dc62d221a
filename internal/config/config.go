// Package config provides centralized configuration for the fusion engine
// and its provider adapters. Configuration loads from an optional YAML file
// with environment variable overrides on top of built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"candlefuse/internal/timeframe"
)

// AppConfig is the complete application configuration.
type AppConfig struct {
	AppName string `yaml:"app_name"`

	Fusion    FusionConfig    `yaml:"fusion"`
	Providers ProvidersConfig `yaml:"providers"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FusionConfig configures the fusion engine. Durations are strings in Go
// duration syntax ("2m", "5m", "15s").
type FusionConfig struct {
	Pair                 string   `yaml:"pair"`
	Timeframes           []string `yaml:"timeframes"`
	MinDataSources       int      `yaml:"min_data_sources"`
	AnomalyThreshold     float64  `yaml:"anomaly_threshold"`
	MaxDataAge           string   `yaml:"max_data_age"`
	FetchInterval        string   `yaml:"fetch_interval"`
	FetchTimeout         string   `yaml:"fetch_timeout"`
	MaxConsecutiveErrors int      `yaml:"max_consecutive_errors"`
	GapFillEnabled       bool     `yaml:"gap_fill_enabled"`
	MaxSeriesLength      int      `yaml:"max_series_length"`
}

// ProvidersConfig configures the four provider adapters. Disabled providers
// are never registered.
type ProvidersConfig struct {
	Binance      BinanceProviderConfig      `yaml:"binance"`
	Yahoo        YahooProviderConfig        `yaml:"yahoo"`
	AlphaVantage AlphaVantageProviderConfig `yaml:"alphavantage"`
	TwelveData   TwelveDataProviderConfig   `yaml:"twelvedata"`
}

// BinanceProviderConfig configures the Binance klines adapter.
type BinanceProviderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Symbol        string `yaml:"symbol"`
	Limit         int    `yaml:"limit"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// YahooProviderConfig configures the Yahoo Finance chart adapter.
type YahooProviderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Symbol        string `yaml:"symbol"`
	Range         string `yaml:"range"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// AlphaVantageProviderConfig configures the Alpha Vantage FX adapter.
type AlphaVantageProviderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	FromSymbol     string `yaml:"from_symbol"`
	ToSymbol       string `yaml:"to_symbol"`
	APIKey         string `yaml:"api_key"`
	RequestsPerDay int    `yaml:"requests_per_day"`
}

// TwelveDataProviderConfig configures the Twelve Data time-series adapter.
type TwelveDataProviderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Symbol         string `yaml:"symbol"`
	APIKey         string `yaml:"api_key"`
	Limit          int    `yaml:"limit"`
	RequestsPerDay int    `yaml:"requests_per_day"`
}

// ServerConfig configures the optional HTTP status surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, text
	Output     string `yaml:"output"`      // stdout, stderr, file
	FilePath   string `yaml:"file_path"`   // required when output is file
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the built-in defaults: all four providers enabled
// for EUR/USD across every supported timeframe.
func DefaultConfig() *AppConfig {
	tfs := make([]string, 0, len(timeframe.All()))
	for _, tf := range timeframe.All() {
		tfs = append(tfs, string(tf))
	}

	return &AppConfig{
		AppName: "candlefuse",
		Fusion: FusionConfig{
			Pair:                 "EUR/USD",
			Timeframes:           tfs,
			MinDataSources:       2,
			AnomalyThreshold:     0.05,
			MaxDataAge:           "5m",
			FetchInterval:        "2m",
			FetchTimeout:         "15s",
			MaxConsecutiveErrors: 5,
			GapFillEnabled:       true,
			MaxSeriesLength:      500,
		},
		Providers: ProvidersConfig{
			// Keyed providers default to disabled; enabling them without an
			// API key fails validation.
			Binance:      BinanceProviderConfig{Enabled: true, Symbol: "EURUSDT", Limit: 100, RatePerMinute: 60},
			Yahoo:        YahooProviderConfig{Enabled: true, Symbol: "EURUSD=X", Range: "1d", RatePerMinute: 30},
			AlphaVantage: AlphaVantageProviderConfig{FromSymbol: "EUR", ToSymbol: "USD", RequestsPerDay: 500},
			TwelveData:   TwelveDataProviderConfig{Symbol: "EUR/USD", Limit: 100, RequestsPerDay: 800},
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8090",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// Load builds the configuration with priority order:
// 1. Environment variables (highest)
// 2. YAML file at configPath (skipped when empty or missing)
// 3. Built-in defaults (lowest)
func Load(configPath string, logger *slog.Logger) (*AppConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath, logger); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("configuration loaded",
		"config_path", configPath,
		"pair", cfg.Fusion.Pair,
		"timeframes", len(cfg.Fusion.Timeframes),
		"log_level", cfg.Logging.Level,
	)
	return cfg, nil
}

func loadFromFile(cfg *AppConfig, path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("config file does not exist, using defaults", "path", path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *AppConfig) {
	if val := os.Getenv("CANDLEFUSE_PAIR"); val != "" {
		cfg.Fusion.Pair = val
	}
	if val := os.Getenv("CANDLEFUSE_FETCH_INTERVAL"); val != "" {
		cfg.Fusion.FetchInterval = val
	}
	if val := os.Getenv("CANDLEFUSE_MIN_DATA_SOURCES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Fusion.MinDataSources = n
		}
	}
	if val := os.Getenv("ALPHAVANTAGE_API_KEY"); val != "" {
		cfg.Providers.AlphaVantage.APIKey = val
	}
	if val := os.Getenv("TWELVEDATA_API_KEY"); val != "" {
		cfg.Providers.TwelveData.APIKey = val
	}
	if val := os.Getenv("CANDLEFUSE_SERVER_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		cfg.Logging.FilePath = val
	}
}

// Validate checks the assembled configuration.
func (c *AppConfig) Validate() error {
	if c.Fusion.Pair == "" {
		return fmt.Errorf("fusion.pair is required")
	}
	if len(c.Fusion.Timeframes) == 0 {
		return fmt.Errorf("fusion.timeframes must not be empty")
	}
	for _, raw := range c.Fusion.Timeframes {
		if _, err := timeframe.Parse(raw); err != nil {
			return fmt.Errorf("fusion.timeframes: %w", err)
		}
	}
	if c.Fusion.MinDataSources < 1 {
		return fmt.Errorf("fusion.min_data_sources must be >= 1")
	}
	if c.Fusion.AnomalyThreshold <= 0 || c.Fusion.AnomalyThreshold > 1 {
		return fmt.Errorf("fusion.anomaly_threshold must be in (0,1]")
	}
	for name, raw := range map[string]string{
		"fusion.max_data_age":   c.Fusion.MaxDataAge,
		"fusion.fetch_interval": c.Fusion.FetchInterval,
		"fusion.fetch_timeout":  c.Fusion.FetchTimeout,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, raw)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	enabled := c.EnabledProviderCount()
	if enabled < c.Fusion.MinDataSources {
		return fmt.Errorf("only %d providers enabled, need at least %d (fusion.min_data_sources)",
			enabled, c.Fusion.MinDataSources)
	}
	if c.Providers.AlphaVantage.Enabled && c.Providers.AlphaVantage.APIKey == "" {
		return fmt.Errorf("providers.alphavantage.api_key is required when enabled")
	}
	if c.Providers.TwelveData.Enabled && c.Providers.TwelveData.APIKey == "" {
		return fmt.Errorf("providers.twelvedata.api_key is required when enabled")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	switch c.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging.file_path is required when output is 'file'")
		}
	default:
		return fmt.Errorf("logging.output must be stdout, stderr, or file")
	}

	return nil
}

// EnabledProviderCount counts the providers that will be registered.
func (c *AppConfig) EnabledProviderCount() int {
	n := 0
	if c.Providers.Binance.Enabled {
		n++
	}
	if c.Providers.Yahoo.Enabled {
		n++
	}
	if c.Providers.AlphaVantage.Enabled {
		n++
	}
	if c.Providers.TwelveData.Enabled {
		n++
	}
	return n
}

// ParsedTimeframes converts the configured timeframe tokens.
func (c *AppConfig) ParsedTimeframes() ([]timeframe.Timeframe, error) {
	out := make([]timeframe.Timeframe, 0, len(c.Fusion.Timeframes))
	for _, raw := range c.Fusion.Timeframes {
		tf, err := timeframe.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// MaxDataAgeDuration returns the parsed max data age.
func (c *FusionConfig) MaxDataAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.MaxDataAge)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// FetchIntervalDuration returns the parsed fetch interval.
func (c *FusionConfig) FetchIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.FetchInterval)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// FetchTimeoutDuration returns the parsed per-fetch timeout.
func (c *FusionConfig) FetchTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}
