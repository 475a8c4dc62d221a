package provider

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlefuse/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candleAt(ts time.Time, close float64) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    100,
	}
}

func TestParsePrice(t *testing.T) {
	v, err := parsePrice("1.08525")
	require.NoError(t, err)
	assert.InDelta(t, 1.08525, v, 1e-9)

	_, err = parsePrice("not-a-number")
	assert.Error(t, err)

	_, err = parsePrice("")
	assert.Error(t, err)
}

func TestNormalizeSeriesSortsAscending(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	candles := []models.Candle{
		candleAt(base.Add(10*time.Minute), 1.2),
		candleAt(base, 1.0),
		candleAt(base.Add(5*time.Minute), 1.1),
	}

	out := normalizeSeries(testLogger(), "test", candles)
	require.Len(t, out, 3)
	assert.Equal(t, base, out[0].Timestamp)
	assert.Equal(t, base.Add(5*time.Minute), out[1].Timestamp)
	assert.Equal(t, base.Add(10*time.Minute), out[2].Timestamp)
}

func TestNormalizeSeriesDeduplicatesTimestamps(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	candles := []models.Candle{
		candleAt(base, 1.0),
		candleAt(base, 9.9),
		candleAt(base.Add(time.Minute), 1.1),
	}

	out := normalizeSeries(testLogger(), "test", candles)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Close, "first occurrence wins on duplicate timestamps")
}

func TestNormalizeSeriesDropsInvalidCandles(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	broken := candleAt(base.Add(time.Minute), 1.1)
	broken.High = 0.5 // violates high >= max(open, close)

	out := normalizeSeries(testLogger(), "test", []models.Candle{
		candleAt(base, 1.0),
		broken,
	})

	require.Len(t, out, 1)
	assert.Equal(t, base, out[0].Timestamp)
}

func TestNormalizeSeriesEmptyInput(t *testing.T) {
	assert.Empty(t, normalizeSeries(testLogger(), "test", nil))
}
