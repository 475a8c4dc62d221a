// Package ratelimit provides per-provider request budget enforcement and
// rolling health statistics for the fusion engine. Two limiting regimes
// coexist: a daily budget that only resets via an explicit daily reset, and
// a sliding per-minute regime built on golang.org/x/time/rate.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Regime selects which budget rule applies to a provider.
type Regime string

const (
	// RegimeDaily caps total requests per day; the counter resets only
	// through ResetDaily.
	RegimeDaily Regime = "daily"

	// RegimePerMinute enforces a minimum spacing between requests of
	// one minute divided by the configured rate.
	RegimePerMinute Regime = "per_minute"
)

// Budget declares a provider's limiting regime and its parameters.
type Budget struct {
	Regime         Regime
	RequestsPerDay int
	RatePerMinute  int
}

// Validate checks that the budget parameters match the declared regime.
func (b Budget) Validate() error {
	switch b.Regime {
	case RegimeDaily:
		if b.RequestsPerDay <= 0 {
			return fmt.Errorf("daily regime requires requests_per_day > 0, got %d", b.RequestsPerDay)
		}
	case RegimePerMinute:
		if b.RatePerMinute <= 0 {
			return fmt.Errorf("per-minute regime requires rate_per_minute > 0, got %d", b.RatePerMinute)
		}
	default:
		return fmt.Errorf("unknown rate limit regime: %q", b.Regime)
	}
	return nil
}

// Limiter enforces request budgets for a set of registered providers.
// All state is scoped to the owning engine instance; there is no ambient
// global limiter.
type Limiter struct {
	mu      sync.Mutex
	budgets map[string]Budget
	daily   map[string]int
	minute  map[string]*rate.Limiter
	logger  *slog.Logger
}

// NewLimiter creates an empty limiter.
func NewLimiter(logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		budgets: make(map[string]Budget),
		daily:   make(map[string]int),
		minute:  make(map[string]*rate.Limiter),
		logger:  logger.With("component", "ratelimit"),
	}
}

// Register declares a provider's budget. Registering an already known
// provider replaces its budget and resets its limiter state.
func (l *Limiter) Register(providerID string, b Budget) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid budget for provider %s: %w", providerID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.budgets[providerID] = b
	delete(l.daily, providerID)
	delete(l.minute, providerID)

	if b.Regime == RegimePerMinute {
		interval := time.Minute / time.Duration(b.RatePerMinute)
		l.minute[providerID] = rate.NewLimiter(rate.Every(interval), 1)
	}

	return nil
}

// CanRequest reports whether the provider has budget for one request and,
// when it does, consumes that budget slot. Unknown providers are denied.
func (l *Limiter) CanRequest(providerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[providerID]
	if !ok {
		return false
	}

	switch b.Regime {
	case RegimeDaily:
		if l.daily[providerID] >= b.RequestsPerDay {
			l.logger.Debug("daily budget exhausted",
				"provider", providerID,
				"used", l.daily[providerID],
				"budget", b.RequestsPerDay,
			)
			return false
		}
		l.daily[providerID]++
		return true

	case RegimePerMinute:
		allowed := l.minute[providerID].Allow()
		if !allowed {
			l.logger.Debug("per-minute budget rejected request", "provider", providerID)
		}
		return allowed
	}

	return false
}

// Remaining returns the unused daily budget for a daily-regime provider.
// Per-minute providers report -1: their budget is a spacing, not a count.
func (l *Limiter) Remaining(providerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[providerID]
	if !ok || b.Regime != RegimeDaily {
		return -1
	}
	return b.RequestsPerDay - l.daily[providerID]
}

// ResetDaily clears every daily counter. Intended to be invoked once per
// calendar day by the operator or an external cron collaborator.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id := range l.daily {
		l.daily[id] = 0
	}
	l.logger.Info("daily rate limit counters reset")
}
