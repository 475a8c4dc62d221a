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
	twelveDataName    = "twelvedata"
	twelveDataBaseURL = "https://api.twelvedata.com"
	twelveDataSeries  = "/time_series"

	twelveDataTimeLayout = "2006-01-02 15:04:05"
)

// TwelveDataAdapter fetches time_series candles from Twelve Data. The free
// tier is credit-capped per day, so it runs under the daily-budget regime.
type TwelveDataAdapter struct {
	symbol     string
	apiKey     string
	limit      int
	dailyLimit int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// TwelveDataConfig configures the Twelve Data adapter.
type TwelveDataConfig struct {
	// Symbol is the Twelve Data pair notation (e.g. "EUR/USD").
	Symbol string

	// APIKey authenticates the request.
	APIKey string

	// Limit caps the number of candles per fetch. Defaults to 100.
	Limit int

	// RequestsPerDay is the daily budget. Defaults to 800 (free tier).
	RequestsPerDay int

	// BaseURL overrides the API host, used by tests.
	BaseURL string

	Logger *slog.Logger
}

// NewTwelveDataAdapter creates a Twelve Data time-series adapter.
func NewTwelveDataAdapter(cfg TwelveDataConfig) *TwelveDataAdapter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.RequestsPerDay <= 0 {
		cfg.RequestsPerDay = 800
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twelveDataBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TwelveDataAdapter{
		symbol:     cfg.Symbol,
		apiKey:     cfg.APIKey,
		limit:      cfg.Limit,
		dailyLimit: cfg.RequestsPerDay,
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(),
		logger:     cfg.Logger.With("component", "provider", "provider", twelveDataName),
	}
}

// Name implements Adapter.
func (t *TwelveDataAdapter) Name() string { return twelveDataName }

// Budget implements Adapter.
func (t *TwelveDataAdapter) Budget() ratelimit.Budget {
	return ratelimit.Budget{Regime: ratelimit.RegimeDaily, RequestsPerDay: t.dailyLimit}
}

type twelveDataResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

// Fetch implements Adapter.
func (t *TwelveDataAdapter) Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error) {
	interval, ok := timeframe.TwelveDataInterval(tf)
	if !ok {
		return nil, NewError(twelveDataName, ErrKindUnsupported,
			fmt.Errorf("no interval mapping for timeframe %s", tf))
	}

	params := url.Values{}
	params.Set("symbol", t.symbol)
	params.Set("interval", interval)
	params.Set("outputsize", strconv.Itoa(t.limit))
	params.Set("timezone", "UTC")
	params.Set("apikey", t.apiKey)

	body, err := fetchJSON(ctx, t.httpClient, twelveDataName, t.baseURL+twelveDataSeries+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp twelveDataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewError(twelveDataName, ErrKindMalformed,
			fmt.Errorf("unexpected payload: %w", err))
	}
	if resp.Status == "error" {
		kind := ErrKindUnavailable
		if resp.Code == http.StatusTooManyRequests {
			kind = ErrKindRateLimited
		}
		return nil, NewError(twelveDataName, kind,
			fmt.Errorf("remote error %d: %s", resp.Code, resp.Message))
	}

	candles := make([]models.Candle, 0, len(resp.Values))
	for _, v := range resp.Values {
		ts, err := time.ParseInLocation(twelveDataTimeLayout, v.Datetime, time.UTC)
		if err != nil {
			return nil, NewError(twelveDataName, ErrKindMalformed,
				fmt.Errorf("invalid datetime %q: %w", v.Datetime, err))
		}

		open, err := parsePrice(v.Open)
		if err != nil {
			return nil, NewError(twelveDataName, ErrKindMalformed, err)
		}
		high, err := parsePrice(v.High)
		if err != nil {
			return nil, NewError(twelveDataName, ErrKindMalformed, err)
		}
		low, err := parsePrice(v.Low)
		if err != nil {
			return nil, NewError(twelveDataName, ErrKindMalformed, err)
		}
		closePrice, err := parsePrice(v.Close)
		if err != nil {
			return nil, NewError(twelveDataName, ErrKindMalformed, err)
		}

		// FX series omit volume entirely.
		volume := 0.0
		if v.Volume != "" {
			if volume, err = parsePrice(v.Volume); err != nil {
				return nil, NewError(twelveDataName, ErrKindMalformed, err)
			}
		}

		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	return normalizeSeries(t.logger, twelveDataName, candles), nil
}
