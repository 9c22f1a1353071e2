package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/internal/observe"
	"github.com/MrWong99/sonoscribe/internal/queue"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/audio/wavfile"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// Sentinel errors returned by [Worker.Run] for the two fatal faults.
var (
	ErrEngineLoad  = errors.New("worker: stt engine failed to load")
	ErrCaptureOpen = errors.New("worker: capture stream failed to open")

	// ErrPanic wraps a panic recovered from the worker loop.
	ErrPanic = errors.New("worker: panic")
)

// Deps are the collaborators of a [Worker].
type Deps struct {
	// Factory builds the STT engine. Required.
	Factory stt.Factory

	// Source opens the capture stream. Required.
	Source audio.Source

	// Metrics records worker metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Worker runs one capture, gate and transcription session. A Worker is
// single-use: Run may be called once.
type Worker struct {
	cfg     Config
	deps    Deps
	gate    *gate.Gate
	meter   gate.LevelMeter
	metrics *observe.Metrics
	log     *slog.Logger

	phase   atomic.Int32
	started atomic.Bool

	okCount    int
	emptyCount int
	dumped     int
}

// New validates cfg and returns an idle worker.
func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Factory == nil {
		return nil, errors.New("worker: factory must not be nil")
	}
	if deps.Source == nil {
		return nil, errors.New("worker: source must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	g, err := gate.New(cfg.Gate)
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	w := &Worker{
		cfg:     cfg,
		deps:    deps,
		gate:    g,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w, nil
}

// Phase returns the current lifecycle phase.
func (w *Worker) Phase() Phase { return Phase(w.phase.Load()) }

func (w *Worker) setPhase(p Phase) {
	if old := Phase(w.phase.Swap(int32(p))); old != p {
		w.log.Debug("worker phase", "from", old, "to", p)
	}
}

// Run executes the session until stop is closed, ctx is cancelled or a
// fatal fault occurs. Every message goes to out, which must be safe for
// concurrent use: capture faults are reported from the audio callback.
//
// The stop signal is checked before the engine loads, after it loads and
// then at least every PollInterval. A transcription in flight is finished
// before stop takes effect. A panic inside the loop is reported as a fatal
// error and returned as [ErrPanic]. "Stopped." is always the last message.
func (w *Worker) Run(ctx context.Context, out Emitter, stop <-chan struct{}) (err error) {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("worker: Run called twice")
	}
	defer func() {
		if r := recover(); r != nil {
			w.fatal(ctx, out, "panic", fmt.Sprintf("worker panic: %v", r))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		w.setPhase(PhaseStopped)
		out.Emit(Status("Stopped."))
		w.log.Info("worker stopped", "ok", w.okCount, "no_speech", w.emptyCount, "err", err)
	}()

	halted := func() bool {
		select {
		case <-stop:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	if halted() {
		return nil
	}

	// Loading
	w.setPhase(PhaseLoading)
	out.Emit(Statusf("Loading STT model (%s)...", w.cfg.ModelLabel()))
	engine := stt.NewLazy(w.deps.Factory, w.cfg.Engine)
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			w.log.Warn("worker: close stt engine", "err", cerr)
		}
	}()
	if lerr := engine.Load(ctx); lerr != nil {
		w.fatal(ctx, out, "engine", fmt.Sprintf("Failed to load STT model: %v", lerr))
		return fmt.Errorf("%w: %w", ErrEngineLoad, lerr)
	}
	out.Emit(Status("STT model loaded."))
	if halted() {
		return nil
	}

	// Capture
	chunks := queue.New[audio.Chunk]()
	stream, serr := w.openStream(ctx, out, chunks)
	if serr != nil {
		w.fatal(ctx, out, "capture", fmt.Sprintf("Failed to start InputStream: %v", serr))
		return fmt.Errorf("%w: %w", ErrCaptureOpen, serr)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			w.log.Warn("worker: close capture stream", "err", cerr)
		}
	}()

	w.setPhase(PhaseListening)
	out.Emit(Status("Listening..."))

	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
		}
		close(done)
	}()

	lastLevel := time.Now()
	for {
		if now := time.Now(); now.Sub(lastLevel) >= w.cfg.LevelInterval {
			lvl := w.meter.Level()
			out.Emit(AudioLevel(lvl))
			w.metrics.AudioLevel.Record(ctx, lvl)
			lastLevel = now
		}
		if halted() {
			break
		}

		chunk, ok := chunks.Dequeue(w.cfg.PollInterval, done)
		if !ok {
			continue
		}
		w.gate.Push(chunk)

		utt, verdict := w.gate.TryEmit()
		switch verdict.Outcome {
		case gate.Accumulating:
			continue
		case gate.TooQuiet:
			w.metrics.RecordUtterance(ctx, verdict.Outcome.String())
			out.Emit(Statusf("Too quiet (rms=%.4f)", verdict.RMS))
			continue
		}
		w.metrics.RecordUtterance(ctx, verdict.Outcome.String())
		w.dump(utt)

		w.setPhase(PhaseTranscribing)
		out.Emit(Status("Transcribing..."))
		w.transcribe(ctx, engine, utt, out)
		w.setPhase(PhaseListening)
	}

	w.setPhase(PhaseStopping)
	if serr := stream.Stop(); serr != nil {
		w.log.Warn("worker: stop capture stream", "err", serr)
	}
	if n := chunks.Clear(); n > 0 {
		w.log.Debug("worker: discarded pending audio", "chunks", n, "buffered_samples", w.gate.Buffered())
	}
	w.gate.Reset()
	return nil
}

// openStream opens and starts the capture stream. The callback never
// blocks: it records the level, enqueues the chunk and returns.
func (w *Worker) openStream(ctx context.Context, out Emitter, chunks *queue.Queue[audio.Chunk]) (audio.Stream, error) {
	cb := func(chunk audio.Chunk) {
		defer func() {
			if r := recover(); r != nil {
				w.metrics.RecordWorkerError(ctx, "capture")
				out.Emit(Error(fmt.Sprintf("audio callback error: %v", r)))
			}
		}()
		w.meter.Observe(chunk)
		chunks.Enqueue(chunk)
	}
	stream, err := w.deps.Source.Open(w.cfg.Capture, cb)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return stream, nil
}

// transcribe runs one utterance through the engine. Failures are reported
// and the loop carries on.
func (w *Worker) transcribe(ctx context.Context, engine stt.Engine, utt gate.Utterance, out Emitter) {
	ctx, span := observe.StartSpan(ctx, "worker.transcribe",
		trace.WithAttributes(
			attribute.String("stt.provider", w.cfg.Provider),
			attribute.Int("audio.samples", len(utt.Samples)),
			attribute.Float64("audio.rms", utt.RMS),
		),
	)
	start := time.Now()
	segs, err := engine.Transcribe(ctx, utt.Samples, utt.SampleRate, w.cfg.Transcribe)
	dt := time.Since(start)
	observe.EndSpan(span, err)
	w.metrics.STTDuration.Record(ctx, dt.Seconds())

	if err != nil {
		w.metrics.RecordProviderRequest(ctx, w.cfg.Provider, "error")
		w.metrics.RecordWorkerError(ctx, "transcribe")
		observe.Logger(ctx).Warn("worker: transcribe failed", "err", err, "duration", dt)
		out.Emit(Error(fmt.Sprintf("transcribe error: %v", err)))
		return
	}
	w.metrics.RecordProviderRequest(ctx, w.cfg.Provider, "ok")

	text := stt.JoinSegments(segs)
	if text == "" {
		w.emptyCount++
		out.Emit(Statusf("No speech (%d) in %.2fs", w.emptyCount, dt.Seconds()))
		return
	}
	w.okCount++
	out.Emit(Statusf("OK (%d) in %.2fs", w.okCount, dt.Seconds()))
	out.Emit(Text(text))
}

func (w *Worker) fatal(ctx context.Context, out Emitter, kind, msg string) {
	w.metrics.RecordWorkerError(ctx, kind)
	w.log.Error("worker: "+msg, "kind", kind)
	out.Emit(Fatal(msg))
}

// dump writes utt to DumpDir. Failures are logged only.
func (w *Worker) dump(utt gate.Utterance) {
	if w.cfg.DumpDir == "" {
		return
	}
	w.dumped++
	path := filepath.Join(w.cfg.DumpDir, fmt.Sprintf("utterance-%04d.wav", w.dumped))
	if err := os.MkdirAll(w.cfg.DumpDir, 0o755); err != nil {
		w.log.Warn("worker: create dump dir", "dir", w.cfg.DumpDir, "err", err)
		return
	}
	if err := wavfile.Write(path, utt.Samples, utt.SampleRate); err != nil {
		w.log.Warn("worker: dump utterance", "path", path, "err", err)
		return
	}
	w.log.Debug("worker: dumped utterance", "path", path, "duration", utt.Duration())
}
