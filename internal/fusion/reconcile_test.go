package fusion

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlefuse/internal/models"
	"candlefuse/internal/timeframe"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Engine{
		config: cfg,
		logger: cfg.Logger,
		nowFn:  time.Now,
	}
}

func flatCandle(ts time.Time, close, volume float64) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    volume,
	}
}

func TestReconcileKeepsPrimaryWithinThreshold(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Max close deviation from the mean is about 1.8%, under the 5% default.
	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
		{name: "yahoo", candles: []models.Candle{flatCandle(base, 1.1001, 100)}},
		{name: "twelvedata", candles: []models.Candle{flatCandle(base, 1.1300, 100)}},
	}

	fused, stats := e.reconcile(timeframe.M5, series, 3)
	require.Len(t, fused, 1)

	assert.Equal(t, 1.1000, fused[0].Close, "primary values survive agreement")
	assert.True(t, fused[0].Quality.Verified)
	assert.Equal(t, 3, fused[0].Quality.SourceCount)
	assert.InDelta(t, 100.0, fused[0].Quality.Confidence, 1e-9)
	assert.Zero(t, stats.repairs)
	assert.Equal(t, 1, stats.sampled)
	assert.Zero(t, stats.deviating)
}

func TestReconcileRepairsWithMedianBeyondThreshold(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// One source is far off: deviation exceeds 5%, so the per-field median
	// replaces the primary values.
	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
		{name: "yahoo", candles: []models.Candle{flatCandle(base, 1.1001, 100)}},
		{name: "twelvedata", candles: []models.Candle{flatCandle(base, 1.2500, 100)}},
	}

	fused, stats := e.reconcile(timeframe.M5, series, 3)
	require.Len(t, fused, 1)

	assert.Equal(t, 1.1001, fused[0].Close, "odd count takes the middle value")
	assert.False(t, fused[0].Quality.Verified)
	assert.Equal(t, 1, stats.repairs)
	assert.Equal(t, 1, stats.deviating)
}

func TestReconcileEvenCountMedianAveragesMiddleValues(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
		{name: "yahoo", candles: []models.Candle{flatCandle(base, 1.2500, 100)}},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 2)
	require.Len(t, fused, 1)

	assert.InDelta(t, 1.1750, fused[0].Close, 1e-9)
	assert.False(t, fused[0].Quality.Verified)
}

func TestReconcileConfidenceReflectsCoverageAndVolumeDispersion(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two of four active sources contributed: base confidence 50. Volume
	// dispersion of 60% from the mean triggers the reduction.
	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
		{name: "yahoo", candles: []models.Candle{flatCandle(base, 1.1001, 400)}},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 4)
	require.Len(t, fused, 1)
	assert.InDelta(t, 40.0, fused[0].Quality.Confidence, 1e-9)
}

func TestReconcileAlignsByTimestampNotIndex(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	interval := timeframe.M5.Duration()

	// The secondary series is missing the first candle and carries slight
	// clock skew on the second; index alignment would pair wrong candles.
	primary := []models.Candle{
		flatCandle(base, 1.1000, 100),
		flatCandle(base.Add(interval), 1.1010, 100),
	}
	secondary := []models.Candle{
		flatCandle(base.Add(interval).Add(30*time.Second), 1.1012, 100),
	}

	series := []providerSeries{
		{name: "binance", candles: primary},
		{name: "yahoo", candles: secondary},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 2)
	require.Len(t, fused, 2)

	assert.Equal(t, 1, fused[0].Quality.SourceCount, "no secondary candle near the first position")
	assert.Equal(t, 2, fused[1].Quality.SourceCount, "skewed candle aligns within half an interval")
}

func TestReconcileIgnoresCandlesBeyondHalfInterval(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
		{name: "yahoo", candles: []models.Candle{flatCandle(base.Add(4*time.Minute), 1.1001, 100)}},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 2)
	require.Len(t, fused, 1)
	assert.Equal(t, 1, fused[0].Quality.SourceCount)
}

func TestReconcileSingleSourcePassThrough(t *testing.T) {
	e := testEngine(t)
	e.config.MinDataSources = 1
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	series := []providerSeries{
		{name: "binance", candles: []models.Candle{flatCandle(base, 1.1000, 100)}},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 2)
	require.Len(t, fused, 1)

	assert.Equal(t, 1.1000, fused[0].Close)
	assert.True(t, fused[0].Quality.Verified, "a lone source cannot deviate from itself")
	assert.Equal(t, 1, fused[0].Quality.SourceCount)
	assert.InDelta(t, 50.0, fused[0].Quality.Confidence, 1e-9)
}

func TestReconcileRepairedCandleKeepsOHLCInvariant(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	series := []providerSeries{
		{name: "binance", candles: []models.Candle{{
			Timestamp: base, Open: 1.10, High: 1.30, Low: 1.05, Close: 1.28, Volume: 100,
		}}},
		{name: "yahoo", candles: []models.Candle{{
			Timestamp: base, Open: 1.12, High: 1.13, Low: 1.02, Close: 1.03, Volume: 100,
		}}},
	}

	fused, _ := e.reconcile(timeframe.M5, series, 2)
	require.Len(t, fused, 1)
	require.False(t, fused[0].Quality.Verified)

	c := fused[0].Candle
	assert.NoError(t, c.Validate())
	assert.GreaterOrEqual(t, c.High, c.Open)
	assert.GreaterOrEqual(t, c.High, c.Close)
	assert.LessOrEqual(t, c.Low, c.Open)
	assert.LessOrEqual(t, c.Low, c.Close)
}

func TestReconcileConsistencySamplesTrailingPositions(t *testing.T) {
	e := testEngine(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	interval := timeframe.M1.Duration()

	primary := make([]models.Candle, 15)
	secondary := make([]models.Candle, 15)
	for i := range primary {
		ts := base.Add(time.Duration(i) * interval)
		primary[i] = flatCandle(ts, 1.10, 100)
		secondary[i] = flatCandle(ts, 1.10, 100)
	}
	// Disagreement only on the final position.
	secondary[14] = flatCandle(primary[14].Timestamp, 1.30, 100)

	series := []providerSeries{
		{name: "binance", candles: primary},
		{name: "yahoo", candles: secondary},
	}

	_, stats := e.reconcile(timeframe.M1, series, 2)
	assert.Equal(t, consistencySampleSize, stats.sampled)
	assert.Equal(t, 1, stats.deviating)
	assert.Equal(t, 1, stats.repairs)
}
