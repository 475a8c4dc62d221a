package provider

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"candlefuse/internal/models"
)

// parsePrice coerces a provider's decimal string to float64. Going through
// shopspring/decimal rejects exotic notations (hex floats, trailing junk)
// that strconv would sometimes let through via ParseFloat extensions.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric field %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// normalizeSeries enforces the adapter output contract: candles sorted
// strictly ascending by timestamp, duplicate timestamps removed (first
// occurrence wins), and candles that violate the OHLC invariant dropped
// with a warning. Returns the cleaned series.
func normalizeSeries(logger *slog.Logger, providerName string, candles []models.Candle) []models.Candle {
	if len(candles) == 0 {
		return candles
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	out := candles[:0]
	for i := range candles {
		c := candles[i]
		if len(out) > 0 && !c.Timestamp.After(out[len(out)-1].Timestamp) {
			continue
		}
		if err := c.Validate(); err != nil {
			logger.Warn("dropping invalid candle",
				"provider", providerName,
				"timestamp", c.Timestamp,
				"error", err,
			)
			continue
		}
		out = append(out, c)
	}

	return out
}
