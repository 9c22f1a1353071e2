// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	stream, _ := src.Open(audio.StreamConfig{SampleRate: 16000, BlockMs: 250}, cb)
//	_ = stream.Start()
//	src.Emit(audio.Chunk{Samples: samples, SampleRate: 16000})
package mock

import (
	"sync"

	"github.com/MrWong99/sonoscribe/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenError is returned by Open when non-nil.
	OpenError error

	// StartError is returned by the opened stream's Start.
	StartError error

	// OpenCalls records the configuration passed to every Open invocation.
	OpenCalls []audio.StreamConfig

	// Streams holds every stream returned by Open, in order.
	Streams []*Stream
}

// Open implements [audio.Source]. Records the call and returns a new [Stream]
// bound to cb, or OpenError.
func (s *Source) Open(cfg audio.StreamConfig, cb audio.Callback) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, cfg)
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	st := &Stream{cb: cb, startErr: s.StartError}
	s.Streams = append(s.Streams, st)
	return st, nil
}

// Emit delivers chunk to the most recently opened stream. It is a no-op when no
// stream is open or the stream is not running.
func (s *Source) Emit(chunk audio.Chunk) {
	s.mu.Lock()
	var st *Stream
	if n := len(s.Streams); n > 0 {
		st = s.Streams[n-1]
	}
	s.mu.Unlock()
	if st != nil {
		st.Emit(chunk)
	}
}

// Last returns the most recently opened stream, or nil.
func (s *Source) Last() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Streams) == 0 {
		return nil
	}
	return s.Streams[len(s.Streams)-1]
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu       sync.Mutex
	cb       audio.Callback
	startErr error
	running  bool
	closed   bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Start implements [audio.Stream].
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.closed {
		return audio.ErrStreamClosed
	}
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

// Stop implements [audio.Stream].
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.running = false
	return nil
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.running = false
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit invokes the stream callback with chunk when the stream is running.
func (s *Stream) Emit(chunk audio.Chunk) {
	s.mu.Lock()
	running, cb := s.running, s.cb
	s.mu.Unlock()
	if running && cb != nil {
		cb(chunk)
	}
}
