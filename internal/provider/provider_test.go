package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlefuse/internal/models"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/timeframe"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Budget() ratelimit.Budget {
	return ratelimit.Budget{Regime: ratelimit.RegimePerMinute, RatePerMinute: 10}
}

func (s *stubAdapter) Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error) {
	return nil, nil
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"binance", "yahoo", "alphavantage", "twelvedata"} {
		require.NoError(t, r.Register(&stubAdapter{name: name}))
	}

	assert.Equal(t, []string{"binance", "yahoo", "alphavantage", "twelvedata"}, r.Names())

	a, ok := r.Get("yahoo")
	require.True(t, ok)
	assert.Equal(t, "yahoo", a.Name())

	_, ok = r.Get("kraken")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "binance"}))
	assert.Error(t, r.Register(&stubAdapter{name: "binance"}))
	assert.Len(t, r.Names(), 1)
}

func TestErrorMatching(t *testing.T) {
	err := NewError("binance", ErrKindRateLimited, fmt.Errorf("status 429"))

	assert.True(t, errors.Is(err, &Error{Kind: ErrKindRateLimited}))
	assert.True(t, errors.Is(err, &Error{Provider: "binance", Kind: ErrKindRateLimited}))
	assert.False(t, errors.Is(err, &Error{Provider: "yahoo", Kind: ErrKindRateLimited}))
	assert.False(t, errors.Is(err, &Error{Kind: ErrKindTimeout}))

	wrapped := fmt.Errorf("fetch failed: %w", err)
	var pe *Error
	require.ErrorAs(t, wrapped, &pe)
	assert.Equal(t, ErrKindRateLimited, pe.Kind)
}
