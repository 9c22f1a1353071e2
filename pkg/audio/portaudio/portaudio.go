// Package portaudio implements [audio.Source] on top of the PortAudio C
// library via github.com/gordonklaus/portaudio. The PortAudio shared library
// must be installed and CGO enabled at build time.
//
// Each opened stream is a mono float32 input stream with a fixed block size.
// PortAudio invokes the callback on its real-time audio thread; the callback
// copies the buffer (PortAudio reuses it) and hands the chunk to the user
// callback, which must not block.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/sonoscribe/pkg/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Source opens microphone streams through PortAudio.
type Source struct{}

// New returns a PortAudio-backed [Source].
func New() *Source { return &Source{} }

// Open initialises PortAudio and opens a mono input stream. cfg.Device selects
// an input device by index into [pa.Devices]; negative values use the default
// input device.
func (s *Source) Open(cfg audio.StreamConfig, cb audio.Callback) (audio.Stream, error) {
	if cb == nil {
		return nil, errors.New("portaudio: callback must not be nil")
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	st := &stream{
		sampleRate: cfg.SampleRate,
		cb:         cb,
	}

	params, err := inputParameters(cfg)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}

	paStream, err := pa.OpenStream(params, st.process)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	st.s = paStream
	return st, nil
}

// inputParameters resolves the input device and builds low-latency mono
// parameters for it.
func inputParameters(cfg audio.StreamConfig) (pa.StreamParameters, error) {
	var dev *pa.DeviceInfo
	if cfg.Device < 0 {
		d, err := pa.DefaultInputDevice()
		if err != nil {
			return pa.StreamParameters{}, fmt.Errorf("portaudio: default input device: %w", err)
		}
		dev = d
	} else {
		devices, err := pa.Devices()
		if err != nil {
			return pa.StreamParameters{}, fmt.Errorf("portaudio: list devices: %w", err)
		}
		if cfg.Device >= len(devices) {
			return pa.StreamParameters{}, fmt.Errorf("portaudio: input device %d out of range (%d devices)", cfg.Device, len(devices))
		}
		dev = devices[cfg.Device]
		if dev.MaxInputChannels < 1 {
			return pa.StreamParameters{}, fmt.Errorf("portaudio: device %d (%s) has no input channels", cfg.Device, dev.Name)
		}
	}

	p := pa.LowLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = cfg.BlockSize()
	slog.Debug("portaudio: opening input",
		"device", dev.Name,
		"sample_rate", cfg.SampleRate,
		"frames_per_buffer", p.FramesPerBuffer,
	)
	return p, nil
}

// stream wraps a *pa.Stream and implements audio.Stream.
type stream struct {
	s          *pa.Stream
	sampleRate int
	cb         audio.Callback

	// delivered counts samples handed to cb; only touched by process.
	delivered int64

	mu     sync.Mutex
	closed bool
}

// process is the PortAudio callback. It runs on the audio thread.
func (st *stream) process(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)
	var ts time.Duration
	if st.sampleRate > 0 {
		ts = time.Duration(st.delivered) * time.Second / time.Duration(st.sampleRate)
	}
	st.delivered += int64(len(samples))
	st.cb(audio.Chunk{
		Samples:    samples,
		SampleRate: st.sampleRate,
		Timestamp:  ts,
	})
}

// Start implements audio.Stream.
func (st *stream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return audio.ErrStreamClosed
	}
	if err := st.s.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	return nil
}

// Stop implements audio.Stream.
func (st *stream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	if err := st.s.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop stream: %w", err)
	}
	return nil
}

// Close implements audio.Stream. It stops the stream, closes it and releases
// the PortAudio reference taken in Open.
func (st *stream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true

	var errs []error
	// Stop fails harmlessly if the stream was never started.
	_ = st.s.Stop()
	if err := st.s.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	if err := pa.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}

// ListInputDevices returns "index: name" descriptions for every device with at
// least one input channel. It initialises and terminates PortAudio itself.
func ListInputDevices() ([]string, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer pa.Terminate()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var out []string
	for i, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, fmt.Sprintf("%d: %s (%.0f Hz)", i, d.Name, d.DefaultSampleRate))
	}
	return out, nil
}
