// Package models provides the core data structures for fused market data:
// candles, fusion quality annotations, provider health snapshots, and
// per-timeframe quality scores.
package models

import (
	"fmt"
	"time"
)

// Candle represents OHLCV price and volume data for one interval of a
// currency pair. Timestamp is the candle open time in UTC.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ValidationError reports a candle field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the OHLC ordering invariant and basic field sanity:
// all prices positive, volume non-negative, high >= max(open, close),
// low <= min(open, close), and a non-zero timestamp.
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}
	if c.Open <= 0 {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if c.High <= 0 {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if c.Low <= 0 {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if c.Close <= 0 {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if c.Volume < 0 {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOC := c.Open
	if c.Close > maxOC {
		maxOC = c.Close
	}
	if c.High < maxOC {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%g) must be greater than or equal to max(open, close) (%g)", c.High, maxOC),
		}
	}

	minOC := c.Open
	if c.Close < minOC {
		minOC = c.Close
	}
	if c.Low > minOC {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%g) must be less than or equal to min(open, close) (%g)", c.Low, minOC),
		}
	}

	return nil
}

// EpochMS returns the candle open time as milliseconds since the Unix epoch,
// the representation used on the pull API wire.
func (c *Candle) EpochMS() int64 {
	return c.Timestamp.UnixMilli()
}

// IsBullish reports whether the close exceeds the open.
func (c *Candle) IsBullish() bool {
	return c.Close > c.Open
}

// String implements fmt.Stringer.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Timestamp: %s, O: %g, H: %g, L: %g, C: %g, V: %g}",
		c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// CandleQuality annotates a fused candle with its reconciliation outcome.
// The annotation is set once at fusion time and never mutated; the next
// cycle produces a new FusedCandle.
type CandleQuality struct {
	// SourceCount is the number of providers that contributed to this candle.
	SourceCount int `json:"source_count"`

	// Verified is true when the cross-source close deviation stayed within
	// the anomaly threshold and the primary provider's values were kept.
	Verified bool `json:"verified"`

	// Confidence is a 0-100 score derived from source coverage and volume
	// agreement.
	Confidence float64 `json:"confidence"`

	// Interpolated marks synthetic candles inserted by gap filling.
	Interpolated bool `json:"interpolated"`
}

// FusedCandle is a reconciled candle together with its quality annotation.
type FusedCandle struct {
	Candle
	Quality CandleQuality `json:"quality"`
}
