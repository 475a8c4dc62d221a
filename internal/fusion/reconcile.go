package fusion

import (
	"math"
	"sort"
	"time"

	"candlefuse/internal/models"
	"candlefuse/internal/timeframe"
)

// consistencySampleSize bounds how many trailing positions feed the
// consistency score each cycle.
const consistencySampleSize = 10

// volumeDeviationLimit is the relative volume dispersion above which a
// candle's confidence is reduced.
const volumeDeviationLimit = 0.5

// confidencePenaltyFactor scales confidence down when volume dispersion
// exceeds the limit.
const confidencePenaltyFactor = 0.8

// providerSeries pairs a qualifying provider with its normalized series for
// the timeframe being fused. Order follows adapter registration order; the
// first entry is the primary source.
type providerSeries struct {
	name    string
	candles []models.Candle
}

// cycleStats summarizes one timeframe's reconciliation pass for quality
// scoring.
type cycleStats struct {
	qualifying int
	active     int
	sampled    int
	deviating  int
	repairs    int
}

// reconcile merges the qualifying provider series into one fused series.
// The primary provider's timeline drives alignment: for each primary
// candle, every other series contributes its candle whose timestamp falls
// within half an interval. Positions whose close prices disagree beyond the
// anomaly threshold are repaired with the per-field median.
func (e *Engine) reconcile(tf timeframe.Timeframe, series []providerSeries, totalActive int) ([]models.FusedCandle, cycleStats) {
	primary := series[0]
	interval := tf.Duration()
	halfInterval := interval / 2

	stats := cycleStats{
		qualifying: len(series),
		active:     totalActive,
	}
	if totalActive < 1 {
		totalActive = 1
	}

	fused := make([]models.FusedCandle, 0, len(primary.candles))
	deviated := make([]bool, 0, len(primary.candles))

	for _, base := range primary.candles {
		aligned := make([]models.Candle, 1, len(series))
		aligned[0] = base
		for _, other := range series[1:] {
			if match, ok := nearestCandle(other.candles, base.Timestamp, halfInterval); ok {
				aligned = append(aligned, match)
			}
		}

		candle := base
		verified := true
		maxDev := closeDeviation(aligned)
		if maxDev > e.config.AnomalyThreshold {
			candle = medianCandle(aligned, base.Timestamp)
			verified = false
			stats.repairs++
		}
		deviated = append(deviated, maxDev > e.config.AnomalyThreshold)

		fused = append(fused, models.FusedCandle{
			Candle: candle,
			Quality: models.CandleQuality{
				SourceCount: len(aligned),
				Verified:    verified,
				Confidence:  confidence(aligned, totalActive),
			},
		})
	}

	// Consistency samples the trailing positions of the freshly fused
	// series, where disagreement matters most for downstream consumers.
	start := len(deviated) - consistencySampleSize
	if start < 0 {
		start = 0
	}
	for _, d := range deviated[start:] {
		stats.sampled++
		if d {
			stats.deviating++
		}
	}

	return fused, stats
}

// nearestCandle finds the candle in the sorted series closest to target,
// accepting it only within the given tolerance.
func nearestCandle(candles []models.Candle, target time.Time, tolerance time.Duration) (models.Candle, bool) {
	if len(candles) == 0 {
		return models.Candle{}, false
	}

	idx := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Timestamp.Before(target)
	})

	best := -1
	var bestDelta time.Duration
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(candles) {
			continue
		}
		delta := candles[i].Timestamp.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if best == -1 || delta < bestDelta {
			best, bestDelta = i, delta
		}
	}

	if best == -1 || bestDelta > tolerance {
		return models.Candle{}, false
	}
	return candles[best], true
}

// closeDeviation returns the maximum relative deviation of any close price
// from the mean close across the aligned candles.
func closeDeviation(aligned []models.Candle) float64 {
	if len(aligned) < 2 {
		return 0
	}

	var sum float64
	for _, c := range aligned {
		sum += c.Close
	}
	mean := sum / float64(len(aligned))
	if mean == 0 {
		return 0
	}

	var maxDev float64
	for _, c := range aligned {
		dev := math.Abs(c.Close-mean) / mean
		if dev > maxDev {
			maxDev = dev
		}
	}
	return maxDev
}

// medianCandle builds the consensus candle from per-field medians across
// the aligned candles, keeping the primary timestamp.
func medianCandle(aligned []models.Candle, ts time.Time) models.Candle {
	n := len(aligned)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range aligned {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	candle := models.Candle{
		Timestamp: ts,
		Open:      median(opens),
		High:      median(highs),
		Low:       median(lows),
		Close:     median(closes),
		Volume:    median(volumes),
	}

	// Independent per-field medians can break the OHLC envelope; re-clamp
	// so high/low still bound open and close.
	candle.High = math.Max(candle.High, math.Max(candle.Open, candle.Close))
	candle.Low = math.Min(candle.Low, math.Min(candle.Open, candle.Close))
	return candle
}

// median returns the middle value of vals, or the mean of the two middle
// values for an even count. vals is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

// confidence scores a fused candle from its source coverage, reduced when
// the sources disagree strongly on volume.
func confidence(aligned []models.Candle, totalActive int) float64 {
	score := 100 * float64(len(aligned)) / float64(totalActive)

	if len(aligned) >= 2 {
		var sum float64
		for _, c := range aligned {
			sum += c.Volume
		}
		mean := sum / float64(len(aligned))
		if mean > 0 {
			var maxDev float64
			for _, c := range aligned {
				dev := math.Abs(c.Volume-mean) / mean
				if dev > maxDev {
					maxDev = dev
				}
			}
			if maxDev > volumeDeviationLimit {
				score *= confidencePenaltyFactor
			}
		}
	}
	return score
}
