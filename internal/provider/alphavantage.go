package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"candlefuse/internal/models"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/timeframe"
)

const (
	alphaVantageName    = "alphavantage"
	alphaVantageBaseURL = "https://www.alphavantage.co"
	alphaVantageQuery   = "/query"

	// Alpha Vantage timestamps look like "2024-03-01 14:35:00" in UTC.
	alphaVantageTimeLayout = "2006-01-02 15:04:05"
)

// AlphaVantageAdapter fetches FX_INTRADAY series from Alpha Vantage. The
// free tier is capped per day, so it runs under the daily-budget regime.
// Alpha Vantage reports no volume for FX pairs; candles carry Volume=0.
type AlphaVantageAdapter struct {
	fromSymbol string
	toSymbol   string
	apiKey     string
	dailyLimit int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// AlphaVantageConfig configures the Alpha Vantage adapter.
type AlphaVantageConfig struct {
	// FromSymbol and ToSymbol form the currency pair (e.g. "EUR", "USD").
	FromSymbol string
	ToSymbol   string

	// APIKey authenticates the request.
	APIKey string

	// RequestsPerDay is the daily budget. Defaults to 500 (free tier).
	RequestsPerDay int

	// BaseURL overrides the API host, used by tests.
	BaseURL string

	Logger *slog.Logger
}

// NewAlphaVantageAdapter creates an Alpha Vantage FX adapter.
func NewAlphaVantageAdapter(cfg AlphaVantageConfig) *AlphaVantageAdapter {
	if cfg.RequestsPerDay <= 0 {
		cfg.RequestsPerDay = 500
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = alphaVantageBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AlphaVantageAdapter{
		fromSymbol: cfg.FromSymbol,
		toSymbol:   cfg.ToSymbol,
		apiKey:     cfg.APIKey,
		dailyLimit: cfg.RequestsPerDay,
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(),
		logger:     cfg.Logger.With("component", "provider", "provider", alphaVantageName),
	}
}

// Name implements Adapter.
func (a *AlphaVantageAdapter) Name() string { return alphaVantageName }

// Budget implements Adapter.
func (a *AlphaVantageAdapter) Budget() ratelimit.Budget {
	return ratelimit.Budget{Regime: ratelimit.RegimeDaily, RequestsPerDay: a.dailyLimit}
}

type alphaVantageBar struct {
	Open  string `json:"1. open"`
	High  string `json:"2. high"`
	Low   string `json:"3. low"`
	Close string `json:"4. close"`
}

// Fetch implements Adapter.
func (a *AlphaVantageAdapter) Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error) {
	interval, ok := timeframe.AlphaVantageInterval(tf)
	if !ok {
		return nil, NewError(alphaVantageName, ErrKindUnsupported,
			fmt.Errorf("no interval mapping for timeframe %s", tf))
	}

	params := url.Values{}
	params.Set("function", "FX_INTRADAY")
	params.Set("from_symbol", a.fromSymbol)
	params.Set("to_symbol", a.toSymbol)
	params.Set("interval", interval)
	params.Set("outputsize", "compact")
	params.Set("apikey", a.apiKey)

	body, err := fetchJSON(ctx, a.httpClient, alphaVantageName, a.baseURL+alphaVantageQuery+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	// The series key embeds the interval ("Time Series FX (5min)"), so the
	// payload is decoded generically and the key located by prefix.
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(alphaVantageName, ErrKindMalformed,
			fmt.Errorf("unexpected payload: %w", err))
	}

	if note, ok := payload["Note"]; ok {
		return nil, NewError(alphaVantageName, ErrKindRateLimited,
			fmt.Errorf("throttled: %s", string(note)))
	}
	if msg, ok := payload["Error Message"]; ok {
		return nil, NewError(alphaVantageName, ErrKindUnavailable,
			fmt.Errorf("remote error: %s", string(msg)))
	}

	var series map[string]alphaVantageBar
	for key, raw := range payload {
		if strings.HasPrefix(key, "Time Series FX") {
			if err := json.Unmarshal(raw, &series); err != nil {
				return nil, NewError(alphaVantageName, ErrKindMalformed,
					fmt.Errorf("invalid FX series: %w", err))
			}
			break
		}
	}
	if series == nil {
		return nil, NewError(alphaVantageName, ErrKindMalformed,
			fmt.Errorf("payload has no FX time series"))
	}

	candles := make([]models.Candle, 0, len(series))
	for stamp, bar := range series {
		ts, err := time.ParseInLocation(alphaVantageTimeLayout, stamp, time.UTC)
		if err != nil {
			return nil, NewError(alphaVantageName, ErrKindMalformed,
				fmt.Errorf("invalid series timestamp %q: %w", stamp, err))
		}

		open, err := parsePrice(bar.Open)
		if err != nil {
			return nil, NewError(alphaVantageName, ErrKindMalformed, err)
		}
		high, err := parsePrice(bar.High)
		if err != nil {
			return nil, NewError(alphaVantageName, ErrKindMalformed, err)
		}
		low, err := parsePrice(bar.Low)
		if err != nil {
			return nil, NewError(alphaVantageName, ErrKindMalformed, err)
		}
		closePrice, err := parsePrice(bar.Close)
		if err != nil {
			return nil, NewError(alphaVantageName, ErrKindMalformed, err)
		}

		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    0, // FX feed carries no volume
		})
	}

	return normalizeSeries(a.logger, alphaVantageName, candles), nil
}
