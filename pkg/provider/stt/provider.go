// Package stt defines the Engine interface for Speech-to-Text backends.
//
// An STT engine is a batch recogniser: it consumes one complete mono float32
// utterance plus its sample rate and returns the recognised segments. There is
// no partial or streaming decoding; the dictation worker decides when enough
// audio has accumulated and calls Transcribe once per utterance.
//
// Engines are expensive to construct (model weights are loaded into memory),
// so construction is deferred behind [Lazy], which models the explicit
// Uninitialized → Ready → Closed lifecycle.
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by Engine methods called after Close.
var ErrClosed = errors.New("stt: engine is closed")

// EngineConfig describes how an engine should be constructed. Fields that a
// backend does not understand are ignored.
type EngineConfig struct {
	// Model identifies the acoustic model: a size name ("tiny", "base",
	// "small") or a filesystem path to a model file.
	Model string

	// Device selects the compute device ("cpu", "cuda"). Default: "cpu".
	Device string

	// ComputeType is the numeric precision of the model ("int8", "float16").
	ComputeType string

	// Threads is the number of CPU threads used per transcription.
	Threads int

	// Workers is the number of concurrent transcriptions the engine may run.
	Workers int
}

// TranscribeOptions carries the per-call recognition hints.
type TranscribeOptions struct {
	// Language is an ISO-639-1 code ("ko", "en"). An empty string or "auto"
	// asks the engine to detect the language.
	Language string

	// BeamSize is the beam search width. Values below 1 are treated as 1
	// (greedy decoding).
	BeamSize int

	// VADFilter asks the engine to drop non-speech regions before decoding,
	// when supported.
	VADFilter bool

	// InitialPrompt biases the decoder towards the vocabulary it contains.
	InitialPrompt string
}

// AutoDetect reports whether opts requests automatic language detection.
func (opts TranscribeOptions) AutoDetect() bool {
	return opts.Language == "" || strings.EqualFold(opts.Language, "auto")
}

// Engine is the abstraction over any batch STT backend.
//
// Implementations must be safe for concurrent use, although the dictation
// worker only ever issues one Transcribe call at a time.
type Engine interface {
	// Transcribe recognises samples (mono float32 in [-1, 1]) recorded at
	// sampleRate Hz. A nil or empty result with a nil error means no speech was
	// recognised. Transcribe may be slow and is not guaranteed to observe ctx
	// cancellation mid-call.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts TranscribeOptions) ([]Segment, error)

	// Close releases the model. Calling Close more than once is safe.
	Close() error
}

// Factory constructs an Engine. It is called at most once per [Lazy].
type Factory func(ctx context.Context, cfg EngineConfig) (Engine, error)
