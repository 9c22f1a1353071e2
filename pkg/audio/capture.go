// Package audio defines the capture abstractions and sample-level helpers used
// by the sonoscribe dictation pipeline.
//
// The two primary abstractions are:
//
//   - [Source]: opens a mono input [Stream] at a given sample rate and block
//     duration.
//   - [Stream]: an opened device (or file) that invokes a [Callback] with each
//     fixed-size [Chunk] once started.
//
// Implementations are provided by adapter packages (audio/portaudio for live
// microphones, audio/wavfile for replaying recordings). The interfaces are
// narrow; the worker never sees device details.
package audio

import (
	"errors"
	"time"
)

// ErrStreamClosed is returned by [Stream] methods called after Close.
var ErrStreamClosed = errors.New("audio: stream is closed")

// Callback receives each captured chunk. It is invoked on a capture-owned
// goroutine (often a real-time audio thread) and must never block: enqueue the
// chunk and return immediately.
type Callback func(Chunk)

// StreamConfig describes the input stream a [Source] should open.
type StreamConfig struct {
	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int

	// BlockMs is the duration of every chunk delivered to the callback in
	// milliseconds. Default: 250.
	BlockMs int

	// Device selects the input device by index. A negative value selects the
	// system default input.
	Device int
}

// BlockSize returns the number of samples per chunk implied by cfg.
func (cfg StreamConfig) BlockSize() int {
	return int(float64(cfg.SampleRate) * float64(cfg.BlockMs) / 1000.0)
}

// BlockDuration returns the configured chunk duration.
func (cfg StreamConfig) BlockDuration() time.Duration {
	return time.Duration(cfg.BlockMs) * time.Millisecond
}

// Stream is an opened capture stream. All methods must be safe to call from a
// goroutine other than the one running the callback. Close implies Stop and is
// idempotent.
type Stream interface {
	// Start begins delivering chunks to the callback.
	Start() error

	// Stop pauses delivery. A stopped stream may be started again.
	Stop() error

	// Close stops the stream and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Source is the entry point for a capture backend.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Open prepares a mono input stream. The callback is not invoked until
	// [Stream.Start] is called. Returns an error when the device cannot be
	// opened (missing device, unsupported rate, driver failure).
	Open(cfg StreamConfig, cb Callback) (Stream, error)
}
