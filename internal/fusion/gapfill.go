package fusion

import (
	"time"

	"candlefuse/internal/models"
)

// fillGaps walks a fused series and inserts synthetic flat candles wherever
// consecutive timestamps are further apart than 1.5 times the expected
// interval. Synthetic candles carry the previous close for all four prices,
// zero volume, and quality marking them interpolated and unverified. The
// second return value is the number of candles inserted.
func fillGaps(series []models.FusedCandle, interval time.Duration) ([]models.FusedCandle, int) {
	if len(series) < 2 || interval <= 0 {
		return series, 0
	}

	tolerance := time.Duration(float64(interval) * gapToleranceFactor)

	out := make([]models.FusedCandle, 0, len(series))
	inserted := 0

	out = append(out, series[0])
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		next := series[i]

		if next.Timestamp.Sub(prev.Timestamp) > tolerance {
			for ts := prev.Timestamp.Add(interval); ts.Before(next.Timestamp); ts = ts.Add(interval) {
				out = append(out, syntheticCandle(ts, prev.Close))
				inserted++
			}
		}
		out = append(out, next)
	}

	return out, inserted
}

// syntheticCandle builds a flat gap-filler at ts carrying the preceding
// close as all four prices.
func syntheticCandle(ts time.Time, prevClose float64) models.FusedCandle {
	return models.FusedCandle{
		Candle: models.Candle{
			Timestamp: ts,
			Open:      prevClose,
			High:      prevClose,
			Low:       prevClose,
			Close:     prevClose,
			Volume:    0,
		},
		Quality: models.CandleQuality{
			SourceCount:  0,
			Verified:     false,
			Confidence:   0,
			Interpolated: true,
		},
	}
}
