package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	requestTimeout    = 10 * time.Second
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	retryMultiplier   = 2.0
	retryJitter       = 0.5
)

// newHTTPClient builds the shared HTTP client configuration used by all
// adapters: bounded request timeout and a modest idle connection pool.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// fetchJSON issues a GET with exponential-backoff retries and returns the
// response body. Server errors and network failures retry; client errors
// and rate-limit rejections are permanent so the cycle fails fast and the
// health tracker books the failure.
func fetchJSON(ctx context.Context, client *http.Client, providerName, url string) ([]byte, error) {
	var body []byte

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialRetryDelay
	bo.MaxInterval = maxRetryDelay
	bo.Multiplier = retryMultiplier
	bo.RandomizationFactor = retryJitter
	bo.MaxElapsedTime = 0 // bounded by ctx and client timeout

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(NewError(providerName, ErrKindMalformed, err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "candlefuse/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return classifyTransportError(providerName, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return backoff.Permanent(NewError(providerName, ErrKindRateLimited,
				fmt.Errorf("remote rejected request with status %d", resp.StatusCode)))
		}
		if resp.StatusCode >= 500 {
			return NewError(providerName, ErrKindUnavailable,
				fmt.Errorf("server error %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(NewError(providerName, ErrKindUnavailable,
				fmt.Errorf("client error %d", resp.StatusCode)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return NewError(providerName, ErrKindMalformed,
				fmt.Errorf("failed to read response body: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, classifyTransportError(providerName, err)
	}

	return body, nil
}

// classifyTransportError maps network-level failures to the uniform error
// taxonomy. Deadline expiry counts as a timeout; everything else is an
// availability failure.
func classifyTransportError(providerName string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(providerName, ErrKindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(providerName, ErrKindTimeout, err)
	}
	return NewError(providerName, ErrKindUnavailable, err)
}
