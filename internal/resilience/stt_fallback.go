package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// STTFallback is an [stt.Engine] that transcribes with the first healthy
// engine of a [Chain].
type STTFallback struct {
	chain *Chain[stt.Engine]

	// OnServed, if set, is called with the name of the engine that produced
	// each successful result.
	OnServed func(name string)
}

var _ stt.Engine = (*STTFallback)(nil)

// NewSTTFallback returns a fallback engine with primary as the preferred
// backend.
func NewSTTFallback(primaryName string, primary stt.Engine, cfg FallbackConfig) *STTFallback {
	return &STTFallback{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback appends an engine tried after all earlier ones.
func (f *STTFallback) AddFallback(name string, e stt.Engine) {
	f.chain.Add(name, e)
}

// Transcribe implements [stt.Engine]. A cancelled ctx stops the failover
// instead of tripping every breaker.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	segs, name, err := Call(f.chain, func(e stt.Engine) ([]stt.Segment, error) {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return e.Transcribe(ctx, samples, sampleRate, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("stt fallback: %w", err)
	}
	if f.OnServed != nil {
		f.OnServed(name)
	}
	return segs, nil
}

// Close implements [stt.Engine] and closes every engine in the chain.
func (f *STTFallback) Close() error {
	var errs []error
	f.chain.Each(func(name string, e stt.Engine, _ State) {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}
