package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"candlefuse/internal/models"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/timeframe"
)

const (
	binanceName    = "binance"
	binanceBaseURL = "https://api.binance.com"
	binanceKlines  = "/api/v3/klines"
)

// BinanceAdapter fetches klines from the Binance spot API. Binance allows a
// generous request rate, so it runs under the per-minute regime.
type BinanceAdapter struct {
	symbol     string
	limit      int
	ratePerMin int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// BinanceConfig configures the Binance adapter.
type BinanceConfig struct {
	// Symbol is the Binance market symbol for the tracked pair
	// (e.g. "EURUSDT").
	Symbol string

	// Limit caps the number of candles per fetch. Defaults to 100.
	Limit int

	// RatePerMinute is the per-minute request budget. Defaults to 60.
	RatePerMinute int

	// BaseURL overrides the API host, used by tests.
	BaseURL string

	Logger *slog.Logger
}

// NewBinanceAdapter creates a Binance klines adapter.
func NewBinanceAdapter(cfg BinanceConfig) *BinanceAdapter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = binanceBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BinanceAdapter{
		symbol:     cfg.Symbol,
		limit:      cfg.Limit,
		ratePerMin: cfg.RatePerMinute,
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(),
		logger:     cfg.Logger.With("component", "provider", "provider", binanceName),
	}
}

// Name implements Adapter.
func (b *BinanceAdapter) Name() string { return binanceName }

// Budget implements Adapter.
func (b *BinanceAdapter) Budget() ratelimit.Budget {
	return ratelimit.Budget{Regime: ratelimit.RegimePerMinute, RatePerMinute: b.ratePerMin}
}

// Fetch implements Adapter.
func (b *BinanceAdapter) Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error) {
	interval, ok := timeframe.BinanceInterval(tf)
	if !ok {
		return nil, NewError(binanceName, ErrKindUnsupported,
			fmt.Errorf("no interval mapping for timeframe %s", tf))
	}

	params := url.Values{}
	params.Set("symbol", b.symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(b.limit))

	body, err := fetchJSON(ctx, b.httpClient, binanceName, b.baseURL+binanceKlines+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	// Klines come back as positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, NewError(binanceName, ErrKindMalformed,
			fmt.Errorf("unexpected klines payload: %w", err))
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, NewError(binanceName, ErrKindMalformed,
				fmt.Errorf("kline row has %d fields, want at least 6", len(row)))
		}

		var openMS int64
		if err := json.Unmarshal(row[0], &openMS); err != nil {
			return nil, NewError(binanceName, ErrKindMalformed,
				fmt.Errorf("invalid kline open time: %w", err))
		}

		fields := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			var s string
			if err := json.Unmarshal(row[i], &s); err != nil {
				return nil, NewError(binanceName, ErrKindMalformed,
					fmt.Errorf("invalid kline field %d: %w", i, err))
			}
			v, err := parsePrice(s)
			if err != nil {
				return nil, NewError(binanceName, ErrKindMalformed, err)
			}
			fields[i-1] = v
		}

		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(openMS).UTC(),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}

	return normalizeSeries(b.logger, binanceName, candles), nil
}
