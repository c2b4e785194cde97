package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// entry pairs one backend with its dedicated breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup routes calls across an ordered list of interchangeable
// backends. Each backend gets its own circuit breaker; an open breaker is
// skipped, a failure falls through to the next entry.
type FallbackGroup[T any] struct {
	cfg     BreakerConfig
	entries []entry[T]
}

// NewFallbackGroup creates an empty group. cfg is the breaker template
// applied to every added backend (the Name field is overridden per entry).
// Register backends with Add, primary first.
func NewFallbackGroup[T any](cfg BreakerConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends a backend. Entries are tried in registration order.
func (g *FallbackGroup[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{
		name:    name,
		value:   v,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of registered backends.
func (g *FallbackGroup[T]) Len() int { return len(g.entries) }

// Do tries fn against each backend in order until one succeeds. Returns
// [ErrAllFailed] wrapping the last error when none does.
func (g *FallbackGroup[T]) Do(fn func(T) error) error {
	_, err := DoWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoWithResult is [FallbackGroup.Do] for calls that produce a value. It is a
// package-level function because methods cannot introduce type parameters.
func DoWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(e.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", e.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", e.name, "err", err)
		}
	}
	var zero R
	if lastErr == nil {
		return zero, fmt.Errorf("%w: no backends registered", ErrAllFailed)
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
