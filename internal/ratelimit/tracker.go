package ratelimit

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"candlefuse/internal/models"
)

// DefaultMaxConsecutiveErrors is the failure threshold at which a provider
// is deactivated.
const DefaultMaxConsecutiveErrors = 5

// providerState holds one provider's rolling statistics. The active flag is
// distinct from health: an operator can only restore activity explicitly.
type providerState struct {
	health models.ProviderHealth
	active bool
}

// Tracker maintains rolling success/failure statistics per provider and
// implements the engine's sole circuit breaker: a provider whose
// consecutive-error count reaches the threshold is deactivated and stays
// deactivated until an operator re-enables it.
type Tracker struct {
	mu                   sync.RWMutex
	maxConsecutiveErrors int
	providers            map[string]*providerState
	logger               *slog.Logger
}

// NewTracker creates a tracker with the given deactivation threshold.
// A threshold of zero or less falls back to DefaultMaxConsecutiveErrors.
func NewTracker(maxConsecutiveErrors int, logger *slog.Logger) *Tracker {
	if maxConsecutiveErrors <= 0 {
		maxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		maxConsecutiveErrors: maxConsecutiveErrors,
		providers:            make(map[string]*providerState),
		logger:               logger.With("component", "health_tracker"),
	}
}

// Register adds a provider in the active, healthy state. Registering an
// existing provider is a no-op so restarts do not wipe statistics.
func (t *Tracker) Register(providerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.providers[providerID]; exists {
		return
	}
	t.providers[providerID] = &providerState{
		health: models.ProviderHealth{Healthy: true, SuccessRate: 100},
		active: true,
	}
}

// RecordResult folds one request outcome into the provider's statistics.
// Success resets the consecutive-error count; failure increments it and
// deactivates the provider once the threshold is reached.
func (t *Tracker) RecordResult(providerID string, success bool, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[providerID]
	if !ok {
		return
	}

	h := &st.health
	h.TotalRequests++
	if success {
		h.ConsecutiveErrors = 0
		if responseTime > 0 {
			if h.AvgResponseTime == 0 {
				h.AvgResponseTime = responseTime
			} else {
				h.AvgResponseTime = (h.AvgResponseTime + responseTime) / 2
			}
		}
	} else {
		h.FailedRequests++
		h.ConsecutiveErrors++
	}
	h.SuccessRate = float64(h.TotalRequests-h.FailedRequests) / float64(h.TotalRequests) * 100

	if h.ConsecutiveErrors >= t.maxConsecutiveErrors && st.active {
		h.Healthy = false
		st.active = false
		t.logger.Warn("provider deactivated after consecutive failures",
			"provider", providerID,
			"consecutive_errors", h.ConsecutiveErrors,
			"threshold", t.maxConsecutiveErrors,
		)
	}
}

// Health returns the provider's current health snapshot.
func (t *Tracker) Health(providerID string) (models.ProviderHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.providers[providerID]
	if !ok {
		return models.ProviderHealth{}, false
	}
	return st.health, true
}

// IsActive reports whether the provider has not been deactivated.
func (t *Tracker) IsActive(providerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.providers[providerID]
	return ok && st.active
}

// ActiveProviders returns the sorted identifiers of all active providers.
func (t *Tracker) ActiveProviders() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.providers))
	for id, st := range t.providers {
		if st.active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of active, healthy, and unhealthy providers.
func (t *Tracker) Counts() (active, healthy, unhealthy int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, st := range t.providers {
		if st.active {
			active++
		}
		if st.health.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}
	return active, healthy, unhealthy
}

// Snapshot returns a copy of every provider's health keyed by identifier.
func (t *Tracker) Snapshot() map[string]models.ProviderHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]models.ProviderHealth, len(t.providers))
	for id, st := range t.providers {
		out[id] = st.health
	}
	return out
}

// Reactivate restores a deactivated provider. This is the explicit operator
// action required by the no-auto-recovery policy: the consecutive-error
// count is cleared and the provider rejoins the active set.
func (t *Tracker) Reactivate(providerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[providerID]
	if !ok {
		return fmt.Errorf("unknown provider: %s", providerID)
	}

	st.active = true
	st.health.Healthy = true
	st.health.ConsecutiveErrors = 0
	t.logger.Info("provider reactivated by operator", "provider", providerID)
	return nil
}
