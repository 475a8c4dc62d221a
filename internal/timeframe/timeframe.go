// Package timeframe defines the candle granularity vocabulary shared by the
// fusion engine and its provider adapters, along with the per-provider
// interval token mappings. The mappings are configuration data: adding a
// provider means adding a table here, not changing engine control flow.
package timeframe

import (
	"fmt"
	"time"
)

// Timeframe is a named candle granularity (e.g. "5m", "1h").
type Timeframe string

// The engine's timeframe vocabulary.
const (
	M1  Timeframe = "1m"
	M3  Timeframe = "3m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	M30 Timeframe = "30m"
	H1  Timeframe = "1h"
	H4  Timeframe = "4h"
)

// All lists every supported timeframe in ascending granularity order.
func All() []Timeframe {
	return []Timeframe{M1, M3, M5, M15, M30, H1, H4}
}

var durations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M3:  3 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
}

// Parse validates a timeframe token and returns the typed value.
func Parse(token string) (Timeframe, error) {
	tf := Timeframe(token)
	if _, ok := durations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %s", token)
	}
	return tf, nil
}

// Duration returns the expected candle spacing for the timeframe.
// Unknown timeframes fall back to one hour, matching the most common
// provider default.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := durations[tf]; ok {
		return d
	}
	return time.Hour
}

// IsValid reports whether the timeframe is part of the engine vocabulary.
func (tf Timeframe) IsValid() bool {
	_, ok := durations[tf]
	return ok
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Per-provider interval vocabularies. A missing entry means the provider
// cannot serve that granularity and its adapter must fail the fetch with a
// typed error rather than silently substituting a different interval.

var binanceIntervals = map[Timeframe]string{
	M1:  "1m",
	M3:  "3m",
	M5:  "5m",
	M15: "15m",
	M30: "30m",
	H1:  "1h",
	H4:  "4h",
}

var yahooIntervals = map[Timeframe]string{
	M1:  "1m",
	M5:  "5m",
	M15: "15m",
	M30: "30m",
	H1:  "60m",
}

var alphaVantageIntervals = map[Timeframe]string{
	M1:  "1min",
	M5:  "5min",
	M15: "15min",
	M30: "30min",
	H1:  "60min",
}

var twelveDataIntervals = map[Timeframe]string{
	M1:  "1min",
	M5:  "5min",
	M15: "15min",
	M30: "30min",
	H1:  "1h",
	H4:  "4h",
}

// BinanceInterval maps an engine timeframe to the Binance klines interval.
func BinanceInterval(tf Timeframe) (string, bool) {
	s, ok := binanceIntervals[tf]
	return s, ok
}

// YahooInterval maps an engine timeframe to the Yahoo Finance chart interval.
func YahooInterval(tf Timeframe) (string, bool) {
	s, ok := yahooIntervals[tf]
	return s, ok
}

// AlphaVantageInterval maps an engine timeframe to the Alpha Vantage
// FX_INTRADAY interval.
func AlphaVantageInterval(tf Timeframe) (string, bool) {
	s, ok := alphaVantageIntervals[tf]
	return s, ok
}

// TwelveDataInterval maps an engine timeframe to the Twelve Data time_series
// interval.
func TwelveDataInterval(tf Timeframe) (string, bool) {
	s, ok := twelveDataIntervals[tf]
	return s, ok
}
