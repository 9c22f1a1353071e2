package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/sonoscribe/internal/resilience"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps names to constructors for STT backends and capture sources.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	stt     map[string]func(ProviderEntry) (stt.Factory, error)
	sources map[CaptureSource]func(CaptureConfig) (audio.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:     make(map[string]func(ProviderEntry) (stt.Factory, error)),
		sources: make(map[CaptureSource]func(CaptureConfig) (audio.Source, error)),
	}
}

// RegisterSTT registers an STT backend under name. The registered function
// validates the entry and returns the (lazy) engine factory.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Factory, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterSource registers a capture source constructor.
func (r *Registry) RegisterSource(name CaptureSource, factory func(CaptureConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSTT returns the engine factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no backend has that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Factory, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSource instantiates the capture source selected by cfg.Source.
func (r *Registry) CreateSource(cfg CaptureConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrProviderNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// STTFactory resolves the preferred backend and every fallback and returns
// one factory that builds them all. With fallbacks configured the engine it
// builds is a [resilience.STTFallback]; a fallback that fails to load is
// logged and left out, while a failing preferred backend is only fatal when
// no fallback could be loaded either.
func (r *Registry) STTFactory(s STTConfig) (stt.Factory, error) {
	entries := append([]ProviderEntry{s.Provider}, s.Fallbacks...)
	factories := make([]stt.Factory, len(entries))
	for i, e := range entries {
		f, err := r.CreateSTT(e)
		if err != nil {
			return nil, err
		}
		factories[i] = f
	}
	if len(entries) == 1 {
		return factories[0], nil
	}

	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  s.Breaker.MaxFailures,
			ResetTimeout: s.Breaker.ResetTimeout,
		},
	}

	return func(ctx context.Context, primaryCfg stt.EngineConfig) (stt.Engine, error) {
		var (
			chain *resilience.STTFallback
			errs  []error
		)
		for i, e := range entries {
			cfg := s.EngineConfig(e)
			if i == 0 {
				cfg = primaryCfg
			}
			eng, err := factories[i](ctx, cfg)
			if err != nil {
				slog.Warn("stt backend unavailable", "name", e.Name, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
				continue
			}
			if chain == nil {
				chain = resilience.NewSTTFallback(e.Name, eng, fcfg)
				chain.OnServed = func(name string) {
					slog.Debug("stt served", "backend", name)
				}
				continue
			}
			chain.AddFallback(e.Name, eng)
		}
		if chain == nil {
			return nil, errors.Join(errs...)
		}
		return chain, nil
	}, nil
}
