// Package wavfile reads and writes WAV recordings and exposes a recording as
// an [audio.Source] so that the dictation pipeline can be driven from a file
// instead of a microphone.
package wavfile

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/sonoscribe/pkg/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Read decodes the WAV file at path into interleaved float32 samples in
// [-1.0, 1.0] and returns them with the file's format.
func Read(path string) ([]float32, audio.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("wavfile: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, audio.Format{}, fmt.Errorf("wavfile: %q is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}

	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples, audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// Write encodes mono float32 samples as a 16-bit PCM WAV file at path.
func Write(path string, samples []float32, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("wavfile: invalid sample rate %d", sampleRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("wavfile: close %q: %w", path, cerr)
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(audio.FloatToInt16(s))
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("wavfile: encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: finalise %q: %w", path, err)
	}
	return nil
}

// Option is a functional option for [New].
type Option func(*Source)

// WithRealtime paces chunk delivery at the block duration, mimicking a live
// microphone. Without it chunks are delivered as fast as the callback returns.
func WithRealtime(realtime bool) Option {
	return func(s *Source) { s.realtime = realtime }
}

// Source replays a WAV recording. Every Open decodes the file afresh and
// converts it to mono at the requested sample rate.
type Source struct {
	path     string
	realtime bool
}

// New returns a Source that replays the WAV file at path.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open implements [audio.Source].
func (s *Source) Open(cfg audio.StreamConfig, cb audio.Callback) (audio.Stream, error) {
	if cb == nil {
		return nil, errors.New("wavfile: callback must not be nil")
	}
	if cfg.SampleRate <= 0 || cfg.BlockSize() <= 0 {
		return nil, fmt.Errorf("wavfile: invalid stream config (rate=%d block_ms=%d)", cfg.SampleRate, cfg.BlockMs)
	}
	raw, format, err := Read(s.path)
	if err != nil {
		return nil, err
	}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: cfg.SampleRate, Channels: 1}}
	mono := conv.Convert(raw, format)

	return &Stream{
		samples:  mono.Samples,
		rate:     cfg.SampleRate,
		block:    cfg.BlockSize(),
		interval: cfg.BlockDuration(),
		realtime: s.realtime,
		cb:       cb,
		done:     make(chan struct{}),
	}, nil
}

// Stream is an opened WAV replay. It implements [audio.Stream].
type Stream struct {
	samples  []float32
	rate     int
	block    int
	interval time.Duration
	realtime bool
	cb       audio.Callback

	mu      sync.Mutex
	offset  int
	halt    chan struct{}
	stopped chan struct{}
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
}

// Done is closed once every sample of the recording has been delivered.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Start implements [audio.Stream]. Delivery resumes from where a previous Stop
// left off.
func (st *Stream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return audio.ErrStreamClosed
	}
	if st.halt != nil {
		return nil
	}
	st.halt = make(chan struct{})
	st.stopped = make(chan struct{})
	go st.run(st.halt, st.stopped)
	return nil
}

func (st *Stream) run(halt, stopped chan struct{}) {
	defer close(stopped)

	var tick *time.Ticker
	if st.realtime && st.interval > 0 {
		tick = time.NewTicker(st.interval)
		defer tick.Stop()
	}

	for {
		select {
		case <-halt:
			return
		default:
		}

		st.mu.Lock()
		start := st.offset
		if start >= len(st.samples) {
			st.mu.Unlock()
			st.doneOnce.Do(func() { close(st.done) })
			return
		}
		end := min(start+st.block, len(st.samples))
		st.offset = end
		st.mu.Unlock()

		chunk := make([]float32, end-start)
		copy(chunk, st.samples[start:end])
		st.cb(audio.Chunk{
			Samples:    chunk,
			SampleRate: st.rate,
			Timestamp:  time.Duration(start) * time.Second / time.Duration(st.rate),
		})

		if tick != nil {
			select {
			case <-halt:
				return
			case <-tick.C:
			}
		}
	}
}

// Stop implements [audio.Stream].
func (st *Stream) Stop() error {
	st.mu.Lock()
	halt, stopped := st.halt, st.stopped
	st.halt, st.stopped = nil, nil
	st.mu.Unlock()
	if halt == nil {
		return nil
	}
	close(halt)
	<-stopped
	return nil
}

// Close implements [audio.Stream].
func (st *Stream) Close() error {
	if err := st.Stop(); err != nil {
		return err
	}
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
	return nil
}
