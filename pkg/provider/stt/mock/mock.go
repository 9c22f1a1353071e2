// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to script the segments (or errors) returned for successive
// utterances and to inspect which audio was submitted.
//
// Example:
//
//	eng := &mock.Engine{
//	    Responses: []mock.Response{
//	        {Segments: []stt.Segment{{Text: " probe shows 엘엔비 "}}},
//	        {Err: errors.New("decoder fault")},
//	    },
//	}
//	lazy := stt.NewLazy(eng.Factory(), stt.EngineConfig{Model: "tiny"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// Response is one scripted Transcribe result.
type Response struct {
	Segments []stt.Segment
	Err      error
}

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the submitted audio.
	Samples    []float32
	SampleRate int
	Opts       stt.TranscribeOptions
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Responses are consumed in order, one per Transcribe call. When exhausted,
	// Default is returned.
	Responses []Response

	// Default is returned once Responses is exhausted.
	Default Response

	// OnTranscribe, if set, runs at the start of every Transcribe call outside
	// the mock's lock. Tests use it to block, sleep or panic.
	OnTranscribe func(samples []float32)

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// FactoryErr, if non-nil, makes the function returned by Factory fail.
	FactoryErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// FactoryConfigs records the EngineConfig passed to every factory call.
	FactoryConfigs []stt.EngineConfig

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the next scripted response.
func (e *Engine) Transcribe(_ context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	if hook := e.hook(); hook != nil {
		hook(samples)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Samples: cp, SampleRate: sampleRate, Opts: opts})

	resp := e.Default
	if len(e.Responses) > 0 {
		resp = e.Responses[0]
		e.Responses = e.Responses[1:]
	}
	return resp.Segments, resp.Err
}

func (e *Engine) hook() func([]float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.OnTranscribe
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// Factory returns an stt.Factory that hands out this Engine, or FactoryErr.
func (e *Engine) Factory() stt.Factory {
	return func(_ context.Context, cfg stt.EngineConfig) (stt.Engine, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.FactoryConfigs = append(e.FactoryConfigs, cfg)
		if e.FactoryErr != nil {
			return nil, e.FactoryErr
		}
		return e, nil
	}
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (e *Engine) TranscribeCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.TranscribeCalls)
}

// Calls returns a snapshot of the recorded Transcribe calls. Thread-safe.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TranscribeCall, len(e.TranscribeCalls))
	copy(out, e.TranscribeCalls)
	return out
}

// Ensure Engine implements stt.Engine at compile time.
var _ stt.Engine = (*Engine)(nil)
