// Package provider defines the adapter contract the fusion engine consumes
// and the four concrete remote-source adapters that implement it. Adapters
// are registered in a Registry rather than dispatched by name, so adding a
// source never changes engine control flow.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"candlefuse/internal/models"
	"candlefuse/internal/ratelimit"
	"candlefuse/internal/timeframe"
)

// Adapter encapsulates one remote source: its request shape, payload
// parsing, and interval vocabulary.
//
// Implementations must:
//   - map the engine timeframe to the provider's own interval token and
//     fail with ErrKindUnsupported when no mapping exists
//   - issue a single bounded-timeout network call, honoring ctx
//   - translate provider-specific failures into a typed *Error
//   - return candles sorted ascending by timestamp with numeric fields
//     coerced to float64 and Volume set to 0 when the source omits it
type Adapter interface {
	// Name returns the provider identifier used for health and budget
	// bookkeeping.
	Name() string

	// Budget declares which limiting regime applies to this provider.
	Budget() ratelimit.Budget

	// Fetch retrieves the most recent candle series for the timeframe.
	Fetch(ctx context.Context, tf timeframe.Timeframe) ([]models.Candle, error)
}

// ErrorKind classifies adapter failures for health bookkeeping and retry
// decisions.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindMalformed   ErrorKind = "malformed"
	ErrKindUnavailable ErrorKind = "unavailable"
	ErrKindUnsupported ErrorKind = "unsupported"
)

// Error is the uniform failure type adapters return. Every provider-specific
// error condition is folded into one of the ErrorKind values.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on provider and kind so tests can assert failure classes.
func (e *Error) Is(target error) bool {
	var pe *Error
	if errors.As(target, &pe) {
		return (pe.Provider == "" || pe.Provider == e.Provider) && pe.Kind == e.Kind
	}
	return false
}

// NewError builds a typed adapter error.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Registry holds the registered adapters in registration order. Order
// matters: the engine designates the first qualifying provider's candle as
// the primary candidate during reconciliation.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Duplicate names are rejected.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter already registered: %s", name)
	}
	r.adapters[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	return a, ok
}

// Names returns adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
