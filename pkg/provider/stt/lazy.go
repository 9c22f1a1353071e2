package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a [Lazy] engine.
type State int

const (
	// Uninitialized means Load has not succeeded yet.
	Uninitialized State = iota
	// Ready means the engine is loaded and accepts Transcribe calls.
	Ready
	// Closed means Close was called. The engine cannot be reloaded.
	Closed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotLoaded is returned by [Lazy.Transcribe] before a successful Load.
var ErrNotLoaded = errors.New("stt: engine not loaded")

// Compile-time assertion that Lazy satisfies Engine.
var _ Engine = (*Lazy)(nil)

// Lazy defers engine construction until Load and tears it down on Close.
// A failed Load leaves the wrapper Uninitialized so it may be retried.
type Lazy struct {
	factory Factory
	cfg     EngineConfig

	mu     sync.Mutex
	state  State
	engine Engine
}

// NewLazy returns an Uninitialized wrapper that will build its engine with
// factory(ctx, cfg).
func NewLazy(factory Factory, cfg EngineConfig) *Lazy {
	return &Lazy{factory: factory, cfg: cfg}
}

// State returns the current lifecycle state.
func (l *Lazy) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load constructs the engine. It is a no-op when already Ready and returns
// [ErrClosed] after Close.
func (l *Lazy) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Ready:
		return nil
	case Closed:
		return ErrClosed
	}
	if l.factory == nil {
		return errors.New("stt: no engine factory configured")
	}
	e, err := l.factory(ctx, l.cfg)
	if err != nil {
		return fmt.Errorf("stt: load engine: %w", err)
	}
	l.engine = e
	l.state = Ready
	return nil
}

// Transcribe implements [Engine]. The lock is released before the call so a
// concurrent Close only waits for state bookkeeping, not for inference.
func (l *Lazy) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts TranscribeOptions) ([]Segment, error) {
	l.mu.Lock()
	state, e := l.state, l.engine
	l.mu.Unlock()
	switch state {
	case Uninitialized:
		return nil, ErrNotLoaded
	case Closed:
		return nil, ErrClosed
	}
	return e.Transcribe(ctx, samples, sampleRate, opts)
}

// Close implements [Engine]. Closing an Uninitialized wrapper moves it to
// Closed without constructing anything.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Closed {
		return nil
	}
	l.state = Closed
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}
