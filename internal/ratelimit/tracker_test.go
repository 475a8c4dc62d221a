package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRegisterInitialState(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("binance")

	h, ok := tr.Health("binance")
	require.True(t, ok)
	assert.True(t, h.Healthy)
	assert.Equal(t, float64(100), h.SuccessRate)
	assert.Zero(t, h.ConsecutiveErrors)
	assert.True(t, tr.IsActive("binance"))
}

func TestTrackerRegisterIsIdempotent(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("yahoo")
	tr.RecordResult("yahoo", false, 0)

	tr.Register("yahoo")
	h, _ := tr.Health("yahoo")
	assert.Equal(t, 1, h.ConsecutiveErrors, "re-registration must not wipe statistics")
}

func TestTrackerDeactivatesAtThreshold(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("alphavantage")

	for i := 0; i < 4; i++ {
		tr.RecordResult("alphavantage", false, 0)
	}
	assert.True(t, tr.IsActive("alphavantage"), "four failures stay under the threshold")

	tr.RecordResult("alphavantage", false, 0)
	assert.False(t, tr.IsActive("alphavantage"), "fifth consecutive failure deactivates")

	h, _ := tr.Health("alphavantage")
	assert.False(t, h.Healthy)
	assert.Equal(t, 5, h.ConsecutiveErrors)
}

func TestTrackerSuccessResetsConsecutiveErrors(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("binance")

	for i := 0; i < 4; i++ {
		tr.RecordResult("binance", false, 0)
	}
	tr.RecordResult("binance", true, 100*time.Millisecond)

	h, _ := tr.Health("binance")
	assert.Zero(t, h.ConsecutiveErrors)
	assert.True(t, tr.IsActive("binance"))

	// The streak starts over, so four more failures still do not deactivate.
	for i := 0; i < 4; i++ {
		tr.RecordResult("binance", false, 0)
	}
	assert.True(t, tr.IsActive("binance"))
}

func TestTrackerNoAutomaticRecovery(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("twelvedata")

	for i := 0; i < 5; i++ {
		tr.RecordResult("twelvedata", false, 0)
	}
	require.False(t, tr.IsActive("twelvedata"))

	// A later success must not restore activity on its own.
	tr.RecordResult("twelvedata", true, 50*time.Millisecond)
	assert.False(t, tr.IsActive("twelvedata"))

	h, _ := tr.Health("twelvedata")
	assert.False(t, h.Healthy)
}

func TestTrackerReactivate(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("yahoo")

	for i := 0; i < 5; i++ {
		tr.RecordResult("yahoo", false, 0)
	}
	require.False(t, tr.IsActive("yahoo"))

	require.NoError(t, tr.Reactivate("yahoo"))
	assert.True(t, tr.IsActive("yahoo"))

	h, _ := tr.Health("yahoo")
	assert.True(t, h.Healthy)
	assert.Zero(t, h.ConsecutiveErrors)

	assert.Error(t, tr.Reactivate("unknown"))
}

func TestTrackerSuccessRateAndResponseTime(t *testing.T) {
	tr := NewTracker(5, testLogger())
	tr.Register("binance")

	tr.RecordResult("binance", true, 100*time.Millisecond)
	tr.RecordResult("binance", true, 300*time.Millisecond)
	tr.RecordResult("binance", false, 0)

	h, _ := tr.Health("binance")
	assert.Equal(t, int64(3), h.TotalRequests)
	assert.Equal(t, int64(1), h.FailedRequests)
	assert.InDelta(t, 66.67, h.SuccessRate, 0.01)
	assert.Equal(t, 200*time.Millisecond, h.AvgResponseTime)
}

func TestTrackerCountsAndActiveProviders(t *testing.T) {
	tr := NewTracker(2, testLogger())
	tr.Register("binance")
	tr.Register("yahoo")
	tr.Register("alphavantage")

	tr.RecordResult("yahoo", false, 0)
	tr.RecordResult("yahoo", false, 0)

	active, healthy, unhealthy := tr.Counts()
	assert.Equal(t, 2, active)
	assert.Equal(t, 2, healthy)
	assert.Equal(t, 1, unhealthy)

	assert.Equal(t, []string{"alphavantage", "binance"}, tr.ActiveProviders())

	snap := tr.Snapshot()
	assert.Len(t, snap, 3)
	assert.False(t, snap["yahoo"].Healthy)
}
