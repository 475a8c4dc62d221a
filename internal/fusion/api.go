package fusion

import (
	"fmt"
	"time"

	"candlefuse/internal/metrics"
	"candlefuse/internal/models"
	"candlefuse/internal/timeframe"
)

// TimeframeData is one timeframe's fused series with its quality report.
type TimeframeData struct {
	Timeframe  timeframe.Timeframe     `json:"timeframe"`
	Candles    []models.FusedCandle    `json:"candles"`
	Quality    models.TimeframeQuality `json:"quality"`
	LastUpdate time.Time               `json:"last_update"`
}

// LatestData aggregates every fused timeframe for pull consumers.
type LatestData struct {
	Pair            string                                `json:"pair"`
	Timeframes      map[timeframe.Timeframe]TimeframeData `json:"timeframes"`
	LastUpdate      time.Time                             `json:"last_update"`
	ActiveProviders []string                              `json:"active_providers"`
	Healthy         bool                                  `json:"healthy"`
}

// SystemHealth is the pull-API view of overall engine health.
type SystemHealth struct {
	Healthy          bool                                            `json:"healthy"`
	Pair             string                                          `json:"pair"`
	ActiveProviders  int                                             `json:"active_providers"`
	HealthyProviders int                                             `json:"healthy_providers"`
	Providers        map[string]models.ProviderHealth                `json:"providers"`
	Timeframes       map[timeframe.Timeframe]models.TimeframeQuality `json:"timeframes"`
	Metrics          metrics.Snapshot                                `json:"metrics"`
}

// GetTimeframeData returns the fused series for one timeframe. It fails
// when the timeframe is unsupported or has never been fused.
func (e *Engine) GetTimeframeData(tf timeframe.Timeframe) (*TimeframeData, error) {
	if !tf.IsValid() {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}

	candles, quality, lastUpdate, ok := e.store.Fused(tf)
	if !ok {
		return nil, fmt.Errorf("no fused data available for timeframe %s", tf)
	}

	return &TimeframeData{
		Timeframe:  tf,
		Candles:    candles,
		Quality:    quality,
		LastUpdate: lastUpdate,
	}, nil
}

// GetLatestData returns every non-empty timeframe's fused series, the most
// recent update stamp across them, and the active provider roster.
func (e *Engine) GetLatestData() *LatestData {
	out := &LatestData{
		Pair:            e.config.Pair,
		Timeframes:      make(map[timeframe.Timeframe]TimeframeData),
		ActiveProviders: e.tracker.ActiveProviders(),
		Healthy:         e.GetSystemHealth().Healthy,
	}

	for _, tf := range e.store.Timeframes() {
		candles, quality, lastUpdate, ok := e.store.Fused(tf)
		if !ok {
			continue
		}
		out.Timeframes[tf] = TimeframeData{
			Timeframe:  tf,
			Candles:    candles,
			Quality:    quality,
			LastUpdate: lastUpdate,
		}
		if lastUpdate.After(out.LastUpdate) {
			out.LastUpdate = lastUpdate
		}
	}
	return out
}

// IsDataFresh reports whether every configured timeframe has been fused
// within maxAge. A single stale or never-fused timeframe makes the whole
// engine report stale.
func (e *Engine) IsDataFresh(maxAge time.Duration) bool {
	now := e.nowFn()
	for _, tf := range e.config.Timeframes {
		lastUpdate, ok := e.store.LastUpdate(tf)
		if !ok {
			return false
		}
		if now.Sub(lastUpdate) >= maxAge {
			return false
		}
	}
	return true
}

// GetSystemHealth returns the engine health flag combined with per-provider
// statistics, per-timeframe quality, and activity counters.
func (e *Engine) GetSystemHealth() SystemHealth {
	activeCount, healthyCount, _ := e.tracker.Counts()

	e.healthyMu.RLock()
	flag := e.healthy
	e.healthyMu.RUnlock()

	quality := make(map[timeframe.Timeframe]models.TimeframeQuality)
	for _, tf := range e.store.Timeframes() {
		if _, q, _, ok := e.store.Fused(tf); ok {
			quality[tf] = q
		}
	}

	return SystemHealth{
		Healthy:          flag && healthyCount >= e.config.MinDataSources,
		Pair:             e.config.Pair,
		ActiveProviders:  activeCount,
		HealthyProviders: healthyCount,
		Providers:        e.tracker.Snapshot(),
		Timeframes:       quality,
		Metrics:          e.metrics.GetSnapshot(),
	}
}

// ReactivateProvider restores a deactivated provider. Providers never
// recover on their own; this is the explicit operator path back into
// rotation.
func (e *Engine) ReactivateProvider(providerID string) error {
	if err := e.tracker.Reactivate(providerID); err != nil {
		return err
	}

	_, healthyCount, _ := e.tracker.Counts()
	e.healthyMu.Lock()
	e.healthy = healthyCount >= e.config.MinDataSources
	e.healthyMu.Unlock()

	e.logger.Info("provider reactivated", "provider", providerID)
	return nil
}

// ResetDailyBudgets clears the consumed request counts of all daily-regime
// providers. Call at the providers' budget rollover (midnight UTC).
func (e *Engine) ResetDailyBudgets() {
	e.limiter.ResetDaily()
}

// StartRealTimeUpdates launches the periodic fusion loop. It fails when the
// loop is already running.
func (e *Engine) StartRealTimeUpdates() error {
	if !e.sched.start() {
		return fmt.Errorf("real-time updates already running")
	}
	return nil
}

// StopRealTimeUpdates stops the periodic loop and waits for an in-flight
// cycle to finish. It fails when the loop is not running.
func (e *Engine) StopRealTimeUpdates() error {
	if !e.sched.stop() {
		return fmt.Errorf("real-time updates not running")
	}
	return nil
}

// Metrics exposes the engine's activity counters.
func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.GetSnapshot()
}
