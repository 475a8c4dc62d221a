package ratelimit

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBudgetValidate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		wantErr bool
	}{
		{"valid daily", Budget{Regime: RegimeDaily, RequestsPerDay: 500}, false},
		{"valid per-minute", Budget{Regime: RegimePerMinute, RatePerMinute: 60}, false},
		{"daily without count", Budget{Regime: RegimeDaily}, true},
		{"per-minute without rate", Budget{Regime: RegimePerMinute}, true},
		{"unknown regime", Budget{Regime: "hourly", RequestsPerDay: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLimiterDailyRegime(t *testing.T) {
	l := NewLimiter(testLogger())
	require.NoError(t, l.Register("alphavantage", Budget{Regime: RegimeDaily, RequestsPerDay: 2}))

	assert.True(t, l.CanRequest("alphavantage"))
	assert.True(t, l.CanRequest("alphavantage"))
	assert.False(t, l.CanRequest("alphavantage"), "third request should exceed the daily budget")
	assert.Equal(t, 0, l.Remaining("alphavantage"))

	// Only the explicit reset restores the budget.
	l.ResetDaily()
	assert.Equal(t, 2, l.Remaining("alphavantage"))
	assert.True(t, l.CanRequest("alphavantage"))
}

func TestLimiterPerMinuteRegime(t *testing.T) {
	l := NewLimiter(testLogger())
	require.NoError(t, l.Register("binance", Budget{Regime: RegimePerMinute, RatePerMinute: 60}))

	// Rate 60/min means one request per second; the immediate second call
	// must be spaced out.
	assert.True(t, l.CanRequest("binance"))
	assert.False(t, l.CanRequest("binance"))

	// Per-minute providers expose no countable remainder.
	assert.Equal(t, -1, l.Remaining("binance"))
}

func TestLimiterUnknownProviderDenied(t *testing.T) {
	l := NewLimiter(testLogger())
	assert.False(t, l.CanRequest("nope"))
	assert.Equal(t, -1, l.Remaining("nope"))
}

func TestLimiterRegisterInvalidBudget(t *testing.T) {
	l := NewLimiter(testLogger())
	err := l.Register("broken", Budget{Regime: RegimeDaily})
	assert.Error(t, err)
}

func TestLimiterReRegisterResetsState(t *testing.T) {
	l := NewLimiter(testLogger())
	require.NoError(t, l.Register("twelvedata", Budget{Regime: RegimeDaily, RequestsPerDay: 1}))
	assert.True(t, l.CanRequest("twelvedata"))
	assert.False(t, l.CanRequest("twelvedata"))

	require.NoError(t, l.Register("twelvedata", Budget{Regime: RegimeDaily, RequestsPerDay: 1}))
	assert.True(t, l.CanRequest("twelvedata"), "re-registration should reset the consumed budget")
}
