// Package store provides bounded in-memory buffers for fused and raw candle
// series, keyed by timeframe. Buffers are replaced wholesale each fusion
// cycle; readers always observe either the previous cycle's complete series
// or the new one, never a partial mix.
package store

import (
	"sync"
	"time"

	"candlefuse/internal/models"
	"candlefuse/internal/timeframe"
)

// DefaultMaxCandles bounds each fused buffer when no cap is configured.
const DefaultMaxCandles = 500

// fusedSeries holds one timeframe's reconciled output.
type fusedSeries struct {
	candles    []models.FusedCandle
	quality    models.TimeframeQuality
	lastUpdate time.Time
}

// rawSeries holds one provider's latest normalized series for a timeframe.
type rawSeries struct {
	candles    []models.Candle
	lastUpdate time.Time
}

// SeriesStore owns all per-timeframe buffers for a single engine instance.
// It is safe for concurrent readers against the cycle writer.
type SeriesStore struct {
	mu         sync.RWMutex
	maxCandles int
	fused      map[timeframe.Timeframe]*fusedSeries
	raw        map[string]map[timeframe.Timeframe]*rawSeries
}

// NewSeriesStore creates a store whose fused buffers are capped at
// maxCandles (DefaultMaxCandles when <= 0).
func NewSeriesStore(maxCandles int) *SeriesStore {
	if maxCandles <= 0 {
		maxCandles = DefaultMaxCandles
	}
	return &SeriesStore{
		maxCandles: maxCandles,
		fused:      make(map[timeframe.Timeframe]*fusedSeries),
		raw:        make(map[string]map[timeframe.Timeframe]*rawSeries),
	}
}

// ReplaceFused swaps in a timeframe's new fused series, trimming to the
// buffer cap (newest candles win) and stamping lastUpdate.
func (s *SeriesStore) ReplaceFused(tf timeframe.Timeframe, candles []models.FusedCandle, quality models.TimeframeQuality, now time.Time) {
	if len(candles) > s.maxCandles {
		candles = candles[len(candles)-s.maxCandles:]
	}
	// Copy so later caller mutations cannot leak into the store.
	buf := make([]models.FusedCandle, len(candles))
	copy(buf, candles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fused[tf] = &fusedSeries{candles: buf, quality: quality, lastUpdate: now}
}

// Fused returns a copy of the timeframe's fused series with its quality and
// lastUpdate stamp. ok is false when the timeframe has never been fused.
func (s *SeriesStore) Fused(tf timeframe.Timeframe) (candles []models.FusedCandle, quality models.TimeframeQuality, lastUpdate time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, exists := s.fused[tf]
	if !exists {
		return nil, models.TimeframeQuality{}, time.Time{}, false
	}
	out := make([]models.FusedCandle, len(fs.candles))
	copy(out, fs.candles)
	return out, fs.quality, fs.lastUpdate, true
}

// LastUpdate returns the timeframe's fused lastUpdate stamp.
func (s *SeriesStore) LastUpdate(tf timeframe.Timeframe) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, exists := s.fused[tf]
	if !exists {
		return time.Time{}, false
	}
	return fs.lastUpdate, true
}

// Timeframes lists every timeframe holding a non-empty fused series.
func (s *SeriesStore) Timeframes() []timeframe.Timeframe {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]timeframe.Timeframe, 0, len(s.fused))
	for tf, fs := range s.fused {
		if len(fs.candles) > 0 {
			out = append(out, tf)
		}
	}
	return out
}

// ReplaceRaw swaps in a provider's latest normalized series for a
// timeframe. Raw buffers share the fused cap.
func (s *SeriesStore) ReplaceRaw(providerID string, tf timeframe.Timeframe, candles []models.Candle, now time.Time) {
	if len(candles) > s.maxCandles {
		candles = candles[len(candles)-s.maxCandles:]
	}
	buf := make([]models.Candle, len(candles))
	copy(buf, candles)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw[providerID] == nil {
		s.raw[providerID] = make(map[timeframe.Timeframe]*rawSeries)
	}
	s.raw[providerID][tf] = &rawSeries{candles: buf, lastUpdate: now}
}

// Raw returns a copy of the provider's latest series for the timeframe.
func (s *SeriesStore) Raw(providerID string, tf timeframe.Timeframe) ([]models.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTF, exists := s.raw[providerID]
	if !exists {
		return nil, false
	}
	rs, exists := byTF[tf]
	if !exists {
		return nil, false
	}
	out := make([]models.Candle, len(rs.candles))
	copy(out, rs.candles)
	return out, true
}
