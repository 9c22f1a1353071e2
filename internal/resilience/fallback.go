package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] failed or was
// skipped by an open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig configures the breaker created for each [Chain] entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain is an ordered list of interchangeable backends, each behind its own
// [CircuitBreaker]. Entries are tried in the order they were added.
//
// Entries must be added before the chain is shared between goroutines.
type Chain[T any] struct {
	cfg     FallbackConfig
	entries []chainEntry[T]
}

// NewChain returns a chain whose first entry is primary.
func NewChain[T any](primaryName string, primary T, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback entry.
func (c *Chain[T]) Add(name string, value T) {
	bc := c.cfg.CircuitBreaker
	bc.Name = name
	c.entries = append(c.entries, chainEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Len returns the number of entries.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Each calls fn for every entry in order.
func (c *Chain[T]) Each(fn func(name string, value T, state State)) {
	for _, e := range c.entries {
		fn(e.name, e.value, e.breaker.State())
	}
}

// Call runs fn against each entry of c until one succeeds and returns its
// result together with the name of the entry that produced it. When every
// entry fails the error wraps [ErrAllFailed] and the last failure.
func Call[T, R any](c *Chain[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		e := &c.entries[i]
		var res R
		err := e.breaker.Execute(func() error {
			var ferr error
			res, ferr = fn(e.value)
			return ferr
		})
		if err == nil {
			return res, e.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", e.name)
			continue
		}
		slog.Warn("backend failed, trying next", "backend", e.name, "err", err)
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
