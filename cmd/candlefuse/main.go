// Candle Fusion Engine CLI
// This application maintains fused, reconciled OHLCV candle series for a
// currency pair by fetching from multiple market data providers, repairing
// cross-source anomalies, and serving the result over a small HTTP surface.
//
// Usage:
//
//	candlefuse run [--config candlefuse.yaml]
//	candlefuse health [--config candlefuse.yaml]
//	candlefuse version
//
// For detailed help use: candlefuse <command> --help
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candlefuse/internal/config"
	"candlefuse/internal/fusion"
	"candlefuse/internal/logger"
	"candlefuse/internal/provider"
	"candlefuse/internal/timeframe"
)

const (
	Version = "1.0.0"
	AppName = "candlefuse"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitRuntimeErr  = 3
	ExitInterrupt   = 130
)

// CLI wires the configured components together for one process.
type CLI struct {
	config *config.AppConfig
	logMgr *logger.Manager
	logger *slog.Logger
	engine *fusion.Engine
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		os.Exit(runCommand(ctx, args, true))
	case "health":
		os.Exit(runCommand(ctx, args, false))
	case "version":
		fmt.Printf("%s version %s\n", AppName, Version)
		os.Exit(ExitSuccess)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(ExitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

func printUsage() {
	fmt.Printf(`%s - multi-source candle fusion engine

Usage:
  %s <command> [flags]

Commands:
  run       Start continuous fusion with the HTTP status server
  health    Run a single fusion cycle and print the health report
  version   Print version information

Flags:
  --config  Path to the YAML configuration file (default %s.yaml)
`, AppName, AppName, AppName)
}

func runCommand(ctx context.Context, args []string, continuous bool) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", AppName+".yaml", "path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	cli, err := initialize(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		return ExitConfigError
	}
	defer cli.logMgr.Close()

	if continuous {
		return cli.runContinuous(ctx)
	}
	return cli.runOnce(ctx)
}

// initialize loads configuration, builds the logger, registers the enabled
// provider adapters, and constructs the engine.
func initialize(configPath string) (*CLI, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath, bootstrap)
	if err != nil {
		return nil, err
	}

	logMgr, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return nil, err
	}
	log := logMgr.Logger()

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		logMgr.Close()
		return nil, err
	}

	tfs, err := cfg.ParsedTimeframes()
	if err != nil {
		logMgr.Close()
		return nil, err
	}

	engineCfg := &fusion.Config{
		Pair:                 cfg.Fusion.Pair,
		Timeframes:           tfs,
		MinDataSources:       cfg.Fusion.MinDataSources,
		AnomalyThreshold:     cfg.Fusion.AnomalyThreshold,
		MaxDataAge:           cfg.Fusion.MaxDataAgeDuration(),
		FetchInterval:        cfg.Fusion.FetchIntervalDuration(),
		FetchTimeout:         cfg.Fusion.FetchTimeoutDuration(),
		MaxConsecutiveErrors: cfg.Fusion.MaxConsecutiveErrors,
		GapFillEnabled:       cfg.Fusion.GapFillEnabled,
		MaxSeriesLength:      cfg.Fusion.MaxSeriesLength,
		Logger:               log,
	}

	engine, err := fusion.New(engineCfg, registry, nil)
	if err != nil {
		logMgr.Close()
		return nil, err
	}

	return &CLI{config: cfg, logMgr: logMgr, logger: log, engine: engine}, nil
}

func buildRegistry(cfg *config.AppConfig, log *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	// Registration order fixes the primary source preference.
	if p := cfg.Providers.Binance; p.Enabled {
		adapter := provider.NewBinanceAdapter(provider.BinanceConfig{
			Symbol:        p.Symbol,
			Limit:         p.Limit,
			RatePerMinute: p.RatePerMinute,
			Logger:        log,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if p := cfg.Providers.Yahoo; p.Enabled {
		adapter := provider.NewYahooAdapter(provider.YahooConfig{
			Symbol:        p.Symbol,
			Range:         p.Range,
			RatePerMinute: p.RatePerMinute,
			Logger:        log,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if p := cfg.Providers.AlphaVantage; p.Enabled {
		adapter := provider.NewAlphaVantageAdapter(provider.AlphaVantageConfig{
			FromSymbol:     p.FromSymbol,
			ToSymbol:       p.ToSymbol,
			APIKey:         p.APIKey,
			RequestsPerDay: p.RequestsPerDay,
			Logger:         log,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if p := cfg.Providers.TwelveData; p.Enabled {
		adapter := provider.NewTwelveDataAdapter(provider.TwelveDataConfig{
			Symbol:         p.Symbol,
			APIKey:         p.APIKey,
			Limit:          p.Limit,
			RequestsPerDay: p.RequestsPerDay,
			Logger:         log,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// runContinuous starts the fusion loop, the daily budget reset, and the
// HTTP status server, then blocks until interrupted.
func (c *CLI) runContinuous(ctx context.Context) int {
	c.logger.Info("starting candle fusion engine",
		"version", Version,
		"pair", c.config.Fusion.Pair,
		"providers", c.config.EnabledProviderCount(),
	)

	if err := c.engine.StartRealTimeUpdates(); err != nil {
		c.logger.Error("failed to start updates", "error", err)
		return ExitRuntimeErr
	}

	stopReset := c.startDailyBudgetReset(ctx)

	var srv *http.Server
	if c.config.Server.Enabled {
		srv = c.startStatusServer()
	}

	<-ctx.Done()
	c.logger.Info("shutdown signal received")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("status server shutdown failed", "error", err)
		}
	}
	stopReset()
	if err := c.engine.StopRealTimeUpdates(); err != nil {
		c.logger.Warn("failed to stop updates", "error", err)
	}

	c.logger.Info("shutdown complete")
	return ExitInterrupt
}

// runOnce drives a single fusion cycle and prints the health report.
func (c *CLI) runOnce(ctx context.Context) int {
	cycleCtx, cancel := context.WithTimeout(ctx, c.config.Fusion.FetchIntervalDuration())
	defer cancel()

	if err := c.engine.RunCycle(cycleCtx); err != nil {
		c.logger.Error("fusion cycle failed", "error", err)
		return ExitRuntimeErr
	}

	health := c.engine.GetSystemHealth()
	out, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		c.logger.Error("failed to encode health report", "error", err)
		return ExitRuntimeErr
	}
	fmt.Println(string(out))

	if !health.Healthy {
		return ExitRuntimeErr
	}
	return ExitSuccess
}

// startDailyBudgetReset clears daily provider budgets at midnight UTC.
func (c *CLI) startDailyBudgetReset(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			now := time.Now().UTC()
			next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
				c.engine.ResetDailyBudgets()
				c.logger.Info("daily provider budgets reset")
			case <-ctx.Done():
				timer.Stop()
				close(done)
				return
			}
		}
	}()
	return func() { <-done }
}

// startStatusServer serves health, latest data, and metrics as JSON.
func (c *CLI) startStatusServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/data", c.handleAllData)
	mux.HandleFunc("/data/", c.handleData)
	mux.HandleFunc("/metrics", c.handleMetrics)

	srv := &http.Server{
		Addr:         c.config.Server.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		c.logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("status server failed", "error", err)
		}
	}()
	return srv
}

func (c *CLI) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := c.engine.GetSystemHealth()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (c *CLI) handleAllData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.engine.GetLatestData())
}

func (c *CLI) handleData(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/data/")
	tf, err := timeframe.Parse(token)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	data, err := c.engine.GetTimeframeData(tf)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (c *CLI) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.engine.Metrics())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
