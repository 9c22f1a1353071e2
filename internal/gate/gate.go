// Package gate turns a stream of fixed-size capture chunks into utterances
// worth transcribing.
//
// A [Gate] accumulates chunks until at least [Config.TargetSamples] samples
// are buffered. It then concatenates and clears the buffer and applies an
// energy gate: buffers whose RMS is below the threshold are dropped, louder
// ones are peak-normalised and returned as an [Utterance].
//
// The accumulator is cleared before the energy test, so a rejected stretch of
// audio is never retested.
package gate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/sonoscribe/pkg/audio"
)

// Defaults for [Config]. DefaultMinSeconds applies to the out-of-process
// worker; the in-process worker historically used InProcessMinSeconds.
const (
	DefaultSampleRate      = 16000
	DefaultMinSeconds      = 2.5
	InProcessMinSeconds    = 1.5
	DefaultEnergyThreshold = 0.005
)

// Config parameterises a [Gate].
type Config struct {
	// SampleRate of the incoming chunks in Hz.
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	// MinSeconds is the minimum amount of buffered audio before an emission
	// attempt.
	MinSeconds float64 `json:"min_seconds" yaml:"min_seconds"`

	// EnergyThreshold is the RMS below which a buffer is discarded as too
	// quiet. Must be in [0, 1].
	EnergyThreshold float64 `json:"energy_threshold" yaml:"energy_threshold"`
}

// DefaultConfig returns the out-of-process defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:      DefaultSampleRate,
		MinSeconds:      DefaultMinSeconds,
		EnergyThreshold: DefaultEnergyThreshold,
	}
}

// TargetSamples is SampleRate*MinSeconds, truncated.
func (c Config) TargetSamples() int {
	return int(float64(c.SampleRate) * c.MinSeconds)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("gate: sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.MinSeconds <= 0 {
		errs = append(errs, fmt.Errorf("gate: min_seconds must be positive, got %g", c.MinSeconds))
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("gate: energy_threshold must be in [0, 1], got %g", c.EnergyThreshold))
	}
	if len(errs) == 0 && c.TargetSamples() < 1 {
		errs = append(errs, errors.New("gate: min_seconds too small for sample_rate"))
	}
	return errors.Join(errs...)
}

// Utterance is one normalised buffer ready for transcription.
type Utterance struct {
	Samples    []float32
	SampleRate int

	// RMS and Peak are measured before normalisation.
	RMS  float64
	Peak float64
}

// Duration returns the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Outcome classifies the result of [Gate.TryEmit].
type Outcome int

const (
	// Accumulating means not enough audio is buffered yet.
	Accumulating Outcome = iota
	// Emitted means an utterance was produced.
	Emitted
	// TooQuiet means the buffer was long enough but below the energy
	// threshold and has been discarded.
	TooQuiet
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Accumulating:
		return "accumulating"
	case Emitted:
		return "emitted"
	case TooQuiet:
		return "too_quiet"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Verdict is returned by [Gate.TryEmit]. RMS is only meaningful for Emitted
// and TooQuiet.
type Verdict struct {
	Outcome Outcome
	RMS     float64
}

// Gate is the buffering/gating state machine. All methods are safe for
// concurrent use, though in practice a single worker owns it.
type Gate struct {
	cfg    Config
	target int

	mu       sync.Mutex
	chunks   []audio.Chunk
	buffered int
}

// New validates cfg and returns an empty Gate.
func New(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg, target: cfg.TargetSamples()}, nil
}

// Config returns the configuration the gate was built with.
func (g *Gate) Config() Config { return g.cfg }

// Push appends chunk to the accumulator. Empty chunks are ignored.
func (g *Gate) Push(chunk audio.Chunk) {
	if len(chunk.Samples) == 0 {
		return
	}
	g.mu.Lock()
	g.chunks = append(g.chunks, chunk)
	g.buffered += len(chunk.Samples)
	g.mu.Unlock()
}

// Buffered returns the number of samples currently accumulated.
func (g *Gate) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buffered
}

// TryEmit checks whether enough audio is buffered. If so the accumulator is
// drained and energy-gated; the returned Utterance is only valid when the
// verdict is Emitted.
func (g *Gate) TryEmit() (Utterance, Verdict) {
	g.mu.Lock()
	if g.buffered < g.target {
		g.mu.Unlock()
		return Utterance{}, Verdict{Outcome: Accumulating}
	}
	samples := audio.Concat(g.chunks)
	g.chunks = nil
	g.buffered = 0
	g.mu.Unlock()

	rms := audio.RMS(samples)
	if rms < g.cfg.EnergyThreshold {
		return Utterance{}, Verdict{Outcome: TooQuiet, RMS: rms}
	}
	peak := audio.Normalize(samples)
	return Utterance{
		Samples:    samples,
		SampleRate: g.cfg.SampleRate,
		RMS:        rms,
		Peak:       peak,
	}, Verdict{Outcome: Emitted, RMS: rms}
}

// Reset discards all buffered audio.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.chunks = nil
	g.buffered = 0
	g.mu.Unlock()
}
