package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScoreTimeframeAllHealthy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := cycleStats{qualifying: 4, active: 4, sampled: 10, deviating: 0}

	q := scoreTimeframe(100, now, now, 5*time.Minute, stats)

	assert.Equal(t, 100.0, q.Completeness)
	assert.Equal(t, 100.0, q.Consistency)
	assert.Equal(t, 100.0, q.Freshness)
	assert.Equal(t, 100.0, q.SourceReliability)
	assert.Equal(t, 100.0, q.Overall)
}

func TestScoreTimeframeEmptySeries(t *testing.T) {
	now := time.Now().UTC()
	q := scoreTimeframe(0, now, now, 5*time.Minute, cycleStats{})
	assert.Zero(t, q.Completeness)
}

func TestScoreTimeframeConsistencyPenalty(t *testing.T) {
	now := time.Now().UTC()

	q := scoreTimeframe(10, now, now, 5*time.Minute, cycleStats{
		qualifying: 2, active: 2, sampled: 10, deviating: 3,
	})
	assert.Equal(t, 70.0, q.Consistency)

	// The score floors at zero even with every sample deviating.
	q = scoreTimeframe(10, now, now, 5*time.Minute, cycleStats{
		qualifying: 2, active: 2, sampled: 12, deviating: 12,
	})
	assert.Zero(t, q.Consistency)
}

func TestScoreTimeframeFreshnessBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 5 * time.Minute
	stats := cycleStats{qualifying: 2, active: 2}

	q := scoreTimeframe(10, now.Add(-maxAge+time.Second), now, maxAge, stats)
	assert.Equal(t, 100.0, q.Freshness)

	// Exactly at the boundary counts as stale.
	q = scoreTimeframe(10, now.Add(-maxAge), now, maxAge, stats)
	assert.Equal(t, 50.0, q.Freshness)

	q = scoreTimeframe(10, now.Add(-time.Hour), now, maxAge, stats)
	assert.Equal(t, 50.0, q.Freshness)
}

func TestScoreTimeframeSourceReliability(t *testing.T) {
	now := time.Now().UTC()

	q := scoreTimeframe(10, now, now, 5*time.Minute, cycleStats{qualifying: 3, active: 4})
	assert.Equal(t, 75.0, q.SourceReliability)

	// No active providers yields zero rather than a division error.
	q = scoreTimeframe(10, now, now, 5*time.Minute, cycleStats{qualifying: 0, active: 0})
	assert.Zero(t, q.SourceReliability)
}

func TestScoreTimeframeOverallIsUnweightedMean(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Completeness 100, consistency 80, freshness 50, reliability 50.
	q := scoreTimeframe(10, now.Add(-time.Hour), now, 5*time.Minute, cycleStats{
		qualifying: 2, active: 4, sampled: 10, deviating: 2,
	})

	assert.Equal(t, 100.0, q.Completeness)
	assert.Equal(t, 80.0, q.Consistency)
	assert.Equal(t, 50.0, q.Freshness)
	assert.Equal(t, 50.0, q.SourceReliability)
	assert.Equal(t, 70.0, q.Overall)
}
