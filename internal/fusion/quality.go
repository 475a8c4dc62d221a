package fusion

import (
	"time"

	"candlefuse/internal/models"
)

// consistencyPenalty is deducted from the consistency score for each
// sampled position whose sources deviated beyond the anomaly threshold.
const consistencyPenalty = 10.0

// staleFreshnessScore is the freshness score for a series older than the
// configured maximum age. Stale data is degraded, not useless.
const staleFreshnessScore = 50.0

// scoreTimeframe computes a timeframe's quality report from the fused
// series shape and the reconciliation statistics of the latest cycle. It is
// a pure function of its inputs so scores are reproducible in tests.
func scoreTimeframe(seriesLen int, lastUpdate, now time.Time, maxDataAge time.Duration, stats cycleStats) models.TimeframeQuality {
	q := models.TimeframeQuality{}

	if seriesLen > 0 {
		q.Completeness = 100
	}

	q.Consistency = 100 - consistencyPenalty*float64(stats.deviating)
	if q.Consistency < 0 {
		q.Consistency = 0
	}

	if now.Sub(lastUpdate) < maxDataAge {
		q.Freshness = 100
	} else {
		q.Freshness = staleFreshnessScore
	}

	if stats.active > 0 {
		q.SourceReliability = 100 * float64(stats.qualifying) / float64(stats.active)
	}

	q.Overall = (q.Completeness + q.Consistency + q.Freshness + q.SourceReliability) / 4
	return q
}
