// Package fusion implements the multi-source candle fusion engine: it
// orchestrates concurrent provider fetches per timeframe, reconciles the
// returned series through cross-source anomaly detection and median
// consensus repair, fills gaps, scores quality, and exposes the pull API
// consumed by downstream prediction collaborators.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"candlefuse/internal/metrics"
	"candlefuse/internal/models"
	"candlefuse/internal/provider"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/store"
	"candlefuse/internal/timeframe"
)

// Default engine parameters.
const (
	DefaultMinDataSources   = 2
	DefaultAnomalyThreshold = 0.05
	DefaultMaxDataAge       = 5 * time.Minute
	DefaultFetchInterval    = 2 * time.Minute
	DefaultFetchTimeout     = 15 * time.Second

	// gapToleranceFactor is the slack on the expected candle spacing before
	// a delta counts as a gap.
	gapToleranceFactor = 1.5
)

// Config configures one engine instance. An engine owns all state for a
// single currency pair; run one instance per pair.
type Config struct {
	// Pair names the currency pair the engine tracks (e.g. "EUR/USD").
	Pair string

	// Timeframes lists the granularities to maintain.
	Timeframes []timeframe.Timeframe

	// MinDataSources is the minimum number of qualifying providers for a
	// timeframe to be fused this cycle.
	MinDataSources int

	// AnomalyThreshold is the maximum relative close deviation (fraction)
	// before median consensus repair kicks in.
	AnomalyThreshold float64

	// MaxDataAge bounds freshness scoring.
	MaxDataAge time.Duration

	// FetchInterval is the periodic trigger spacing.
	FetchInterval time.Duration

	// FetchTimeout bounds each adapter call.
	FetchTimeout time.Duration

	// MaxConsecutiveErrors is the provider deactivation threshold.
	MaxConsecutiveErrors int

	// GapFillEnabled turns synthetic gap interpolation on.
	GapFillEnabled bool

	// MaxSeriesLength caps the per-timeframe fused buffers.
	MaxSeriesLength int

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Pair:                 "EUR/USD",
		Timeframes:           timeframe.All(),
		MinDataSources:       DefaultMinDataSources,
		AnomalyThreshold:     DefaultAnomalyThreshold,
		MaxDataAge:           DefaultMaxDataAge,
		FetchInterval:        DefaultFetchInterval,
		FetchTimeout:         DefaultFetchTimeout,
		MaxConsecutiveErrors: ratelimit.DefaultMaxConsecutiveErrors,
		GapFillEnabled:       true,
		MaxSeriesLength:      store.DefaultMaxCandles,
		Logger:               slog.Default(),
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.Pair == "" {
		return fmt.Errorf("pair is required")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	for _, tf := range c.Timeframes {
		if !tf.IsValid() {
			return fmt.Errorf("unsupported timeframe: %s", tf)
		}
	}
	if c.MinDataSources < 1 {
		return fmt.Errorf("min_data_sources must be >= 1, got %d", c.MinDataSources)
	}
	if c.AnomalyThreshold <= 0 || c.AnomalyThreshold > 1 {
		return fmt.Errorf("anomaly_threshold must be in (0,1], got %g", c.AnomalyThreshold)
	}
	if c.FetchInterval <= 0 {
		return fmt.Errorf("fetch_interval must be positive")
	}
	return nil
}

// Engine is the fusion engine. All mutable state (series buffers, budget
// counters, health statistics) is owned by the instance; there is no
// package-level state, so independent engines can coexist in one process.
type Engine struct {
	config   *Config
	registry *provider.Registry
	limiter  *ratelimit.Limiter
	tracker  *ratelimit.Tracker
	store    *store.SeriesStore
	metrics  *metrics.Collector
	logger   *slog.Logger

	// healthy is the engine-wide flag; it clears when the active-healthy
	// provider count drops below MinDataSources.
	healthy   bool
	healthyMu sync.RWMutex

	// cycleMu serializes fusion cycles. The scheduler never overlaps
	// triggers, but callers may also drive RunCycle directly.
	cycleMu sync.Mutex

	sched *scheduler

	// nowFn is the clock, overridable in tests.
	nowFn func() time.Time
}

// New builds an engine over the registered adapters. Each adapter's budget
// regime is installed into the rate limiter and its identifier into the
// health tracker.
func New(cfg *Config, registry *provider.Registry, mc *metrics.Collector) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.NewCollector()
	}

	names := registry.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("no provider adapters registered")
	}

	logger := cfg.Logger.With("component", "fusion_engine", "pair", cfg.Pair)
	limiter := ratelimit.NewLimiter(cfg.Logger)
	tracker := ratelimit.NewTracker(cfg.MaxConsecutiveErrors, cfg.Logger)

	for _, name := range names {
		adapter, _ := registry.Get(name)
		if err := limiter.Register(name, adapter.Budget()); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
		tracker.Register(name)
	}

	e := &Engine{
		config:   cfg,
		registry: registry,
		limiter:  limiter,
		tracker:  tracker,
		store:    store.NewSeriesStore(cfg.MaxSeriesLength),
		metrics:  mc,
		logger:   logger,
		healthy:  len(names) >= cfg.MinDataSources,
		nowFn:    time.Now,
	}
	e.sched = newScheduler(e)
	return e, nil
}

// fetchResult carries one adapter call outcome through the fan-in channel.
type fetchResult struct {
	provider string
	candles  []models.Candle
	err      error
	elapsed  time.Duration
	skipped  bool
}

// RunCycle executes one full fetch-and-fuse pass across all configured
// timeframes. Per-timeframe failures are soft: the previous fused series is
// retained and the cycle continues. The returned error covers only caller
// cancellation.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	cycleID := uuid.NewString()
	started := e.nowFn()
	logger := e.logger.With("cycle_id", cycleID)

	logger.Debug("fusion cycle started", "timeframes", len(e.config.Timeframes))

	for _, tf := range e.config.Timeframes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.fuseTimeframe(ctx, logger, tf)
	}

	e.updateSystemHealth(logger)
	e.metrics.RecordCycle()

	logger.Debug("fusion cycle completed", "duration", e.nowFn().Sub(started))
	return nil
}

// fuseTimeframe runs the fetch, reconcile, gap-fill, score, and store steps
// for a single timeframe.
func (e *Engine) fuseTimeframe(ctx context.Context, logger *slog.Logger, tf timeframe.Timeframe) {
	now := e.nowFn()
	results := e.fetchAll(ctx, tf)

	active := e.tracker.ActiveProviders()
	qualifying := make([]providerSeries, 0, len(results))
	for _, res := range results {
		if res.skipped {
			continue
		}
		if res.err != nil {
			logger.Warn("provider fetch failed",
				"provider", res.provider,
				"timeframe", tf,
				"error", res.err,
			)
			continue
		}
		if len(res.candles) == 0 {
			continue
		}
		e.store.ReplaceRaw(res.provider, tf, res.candles, now)
		qualifying = append(qualifying, providerSeries{name: res.provider, candles: res.candles})
	}

	if len(qualifying) < e.config.MinDataSources {
		// Soft failure: keep the previous fused series as stale-but-available.
		e.metrics.RecordSoftFailure()
		logger.Warn("insufficient qualifying sources, timeframe left untouched",
			"timeframe", tf,
			"qualifying", len(qualifying),
			"required", e.config.MinDataSources,
		)
		return
	}

	fused, stats := e.reconcile(tf, qualifying, len(active))

	if e.config.GapFillEnabled {
		var filled int
		fused, filled = fillGaps(fused, tf.Duration())
		if filled > 0 {
			e.metrics.RecordGapsFilled(filled)
			logger.Debug("gap filling inserted synthetic candles",
				"timeframe", tf,
				"inserted", filled,
			)
		}
	}

	e.metrics.RecordConsensusRepairs(stats.repairs)
	e.metrics.RecordCandlesFused(len(fused))

	quality := scoreTimeframe(len(fused), now, now, e.config.MaxDataAge, stats)
	e.store.ReplaceFused(tf, fused, quality, now)

	logger.Debug("timeframe fused",
		"timeframe", tf,
		"candles", len(fused),
		"sources", len(qualifying),
		"repairs", stats.repairs,
		"overall_quality", quality.Overall,
	)
}

// fetchAll calls every active provider's adapter concurrently. Each fetch
// is independent: a slow or failing adapter affects only its own entry.
// Results come back in registration order so the primary designation is
// deterministic.
func (e *Engine) fetchAll(ctx context.Context, tf timeframe.Timeframe) []fetchResult {
	names := e.registry.Names()

	resultCh := make(chan fetchResult, len(names))
	var wg sync.WaitGroup

	for _, name := range names {
		if !e.tracker.IsActive(name) {
			continue
		}
		adapter, ok := e.registry.Get(name)
		if !ok {
			continue
		}

		// Local budget denial skips the provider without booking a failure;
		// only real request outcomes feed the health statistics.
		if !e.limiter.CanRequest(name) {
			resultCh <- fetchResult{provider: name, skipped: true}
			continue
		}

		wg.Add(1)
		go func(name string, adapter provider.Adapter) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
			defer cancel()

			started := time.Now()
			candles, err := adapter.Fetch(fetchCtx, tf)
			elapsed := time.Since(started)

			success := err == nil
			e.tracker.RecordResult(name, success, elapsed)
			e.metrics.RecordFetch(success)

			resultCh <- fetchResult{provider: name, candles: candles, err: err, elapsed: elapsed}
		}(name, adapter)
	}

	wg.Wait()
	close(resultCh)

	byName := make(map[string]fetchResult, len(names))
	for res := range resultCh {
		byName[res.provider] = res
	}

	ordered := make([]fetchResult, 0, len(byName))
	for _, name := range names {
		if res, ok := byName[name]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered
}

// updateSystemHealth clears the engine-wide flag when the active-healthy
// provider pool shrinks below the minimum. The flag is restored only when
// an operator reactivation brings the pool back over the threshold.
func (e *Engine) updateSystemHealth(logger *slog.Logger) {
	_, healthyCount, _ := e.tracker.Counts()

	e.healthyMu.Lock()
	defer e.healthyMu.Unlock()

	wasHealthy := e.healthy
	e.healthy = healthyCount >= e.config.MinDataSources

	if wasHealthy && !e.healthy {
		logger.Error("system health degraded: healthy provider count below minimum",
			"healthy", healthyCount,
			"required", e.config.MinDataSources,
		)
	}
}
