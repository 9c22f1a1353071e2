// This file contains the Native engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.Engine.
var _ stt.Engine = (*Native)(nil)

// Native implements stt.Engine using whisper.cpp Go bindings. The model is
// loaded once; every Transcribe call creates a fresh context from it because
// contexts are not safe for concurrent use.
type Native struct {
	model   whisperlib.Model
	threads int

	// slots bounds the number of concurrent inferences.
	slots chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NativeOption is a functional option for configuring a Native engine.
type NativeOption func(*Native)

// WithThreads sets the number of CPU threads whisper.cpp uses per inference.
// Values below 1 keep the library default.
func WithThreads(n int) NativeOption {
	return func(e *Native) { e.threads = n }
}

// WithWorkers sets how many Transcribe calls may run in parallel. Defaults to 1.
func WithWorkers(n int) NativeOption {
	return func(e *Native) {
		if n > 0 {
			e.slots = make(chan struct{}, n)
		}
	}
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the engine is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Native{
		model: model,
		slots: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NativeFactory returns an stt.Factory building Native engines. cfg.Model is
// resolved against modelDir with [ResolveModelPath]; Device and ComputeType
// are fixed by how libwhisper was compiled and are only logged.
func NativeFactory(modelDir string) stt.Factory {
	return func(_ context.Context, cfg stt.EngineConfig) (stt.Engine, error) {
		path, err := ResolveModelPath(cfg.Model, modelDir)
		if err != nil {
			return nil, err
		}
		slog.Info("whisper: loading native model",
			"path", path,
			"device", cfg.Device,
			"compute_type", cfg.ComputeType,
			"threads", cfg.Threads,
		)
		return NewNative(path, WithThreads(cfg.Threads), WithWorkers(cfg.Workers))
	}
}

// ResolveModelPath maps a model identifier to a ggml model file. An existing
// file path is used as-is; otherwise a size name such as "tiny" resolves to
// modelDir/ggml-tiny.bin.
func ResolveModelPath(model, modelDir string) (string, error) {
	if model == "" {
		return "", errors.New("whisper: model must not be empty")
	}
	if fi, err := os.Stat(model); err == nil && !fi.IsDir() {
		return model, nil
	}
	candidate := filepath.Join(modelDir, "ggml-"+model+".bin")
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("whisper: model %q not found (tried %s): %w", model, candidate, err)
	}
	return candidate, nil
}

// Close releases the whisper model. Calling Close more than once is safe.
func (e *Native) Close() error {
	e.closeOnce.Do(func() {
		if e.model != nil {
			e.closeErr = e.model.Close()
		}
	})
	return e.closeErr
}

// Transcribe runs whisper.cpp inference over samples. Audio at a rate other
// than 16 kHz is resampled first.
func (e *Native) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if sampleRate != whisperlib.SampleRate {
		samples = audio.Resample(samples, sampleRate, whisperlib.SampleRate)
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := opts.Language
	if opts.AutoDetect() {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(uint(e.threads))
	}
	wctx.SetBeamSize(max(opts.BeamSize, 1))
	if opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(opts.InitialPrompt)
	}
	if opts.VADFilter {
		slog.Debug("whisper: vad_filter requested; native engine relies on the energy gate instead")
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, stt.Segment{
			Text:  segment.Text,
			Start: segment.Start,
			End:   segment.End,
		})
	}
	return segs, nil
}
