package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"candlefuse/internal/models"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/timeframe"
)

const (
	yahooName    = "yahoo"
	yahooBaseURL = "https://query1.finance.yahoo.com"
	yahooChart   = "/v8/finance/chart/"
)

// YahooAdapter fetches candles from the Yahoo Finance chart endpoint.
// Yahoo's forex feeds report no per-candle volume; those candles carry
// Volume=0 per the adapter contract.
type YahooAdapter struct {
	symbol     string
	rangeToken string
	ratePerMin int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// YahooConfig configures the Yahoo Finance adapter.
type YahooConfig struct {
	// Symbol is the Yahoo ticker for the tracked pair (e.g. "EURUSD=X").
	Symbol string

	// Range is the chart range token. Defaults to "1d".
	Range string

	// RatePerMinute is the per-minute request budget. Defaults to 30.
	RatePerMinute int

	// BaseURL overrides the API host, used by tests.
	BaseURL string

	Logger *slog.Logger
}

// NewYahooAdapter creates a Yahoo Finance chart adapter.
func NewYahooAdapter(cfg YahooConfig) *YahooAdapter {
	if cfg.Range == "" {
		cfg.Range = "1d"
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = yahooBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &YahooAdapter{
		symbol:     cfg.Symbol,
		rangeToken: cfg.Range,
		ratePerMin: cfg.RatePerMinute,
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(),
		logger:     cfg.Logger.With("component", "provider", "provider", yahooName),
	}
}

// Name implements Adapter.
func (y *YahooAdapter) Name() string { return yahooName }

// Budget implements Adapter.
func (y *YahooAdapter) Budget() ratelimit.Budget {
	return ratelimit.Budget{Regime: ratelimit.RegimePerMinute, RatePerMinute: y.ratePerMin}
}

// yahooChartResponse mirrors the subset of the chart payload the adapter
// consumes. Quote arrays are positionally aligned with the timestamp array
// and may contain nulls for missing ticks.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements Adapter.
func (y *YahooAdapter) Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error) {
	interval, ok := timeframe.YahooInterval(tf)
	if !ok {
		return nil, NewError(yahooName, ErrKindUnsupported,
			fmt.Errorf("no interval mapping for timeframe %s", tf))
	}

	params := url.Values{}
	params.Set("interval", interval)
	params.Set("range", y.rangeToken)
	params.Set("includePrePost", "false")

	requestURL := y.baseURL + yahooChart + url.PathEscape(y.symbol) + "?" + params.Encode()
	body, err := fetchJSON(ctx, y.httpClient, yahooName, requestURL)
	if err != nil {
		return nil, err
	}

	var resp yahooChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewError(yahooName, ErrKindMalformed,
			fmt.Errorf("unexpected chart payload: %w", err))
	}
	if resp.Chart.Error != nil {
		return nil, NewError(yahooName, ErrKindUnavailable,
			fmt.Errorf("chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, NewError(yahooName, ErrKindMalformed,
			fmt.Errorf("chart payload has no quote data"))
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	candles := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Yahoo pads missing ticks with nulls; skip incomplete positions.
		if i >= len(quote.Open) || quote.Open[i] == nil ||
			i >= len(quote.High) || quote.High[i] == nil ||
			i >= len(quote.Low) || quote.Low[i] == nil ||
			i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}

		volume := 0.0
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		candles = append(candles, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    volume,
		})
	}

	return normalizeSeries(y.logger, yahooName, candles), nil
}
