package worker_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/sonoscribe/internal/worker"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	audiomock "github.com/MrWong99/sonoscribe/pkg/audio/mock"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonoscribe/pkg/provider/stt/mock"
)

type harness struct {
	w      *worker.Worker
	eng    *sttmock.Engine
	src    *audiomock.Source
	rec    *recorder
	stop   chan struct{}
	result chan error
}

func startWorker(t *testing.T, cfg worker.Config, eng *sttmock.Engine, src *audiomock.Source, deps ...func(*worker.Deps)) *harness {
	t.Helper()
	d := worker.Deps{Factory: eng.Factory(), Source: src}
	for _, f := range deps {
		f(&d)
	}
	w, err := worker.New(cfg, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := &harness{w: w, eng: eng, src: src, rec: &recorder{}, stop: make(chan struct{}), result: make(chan error, 1)}
	go func() { h.result <- w.Run(context.Background(), h.rec, h.stop) }()
	return h
}

func (h *harness) stopAndWait(t *testing.T) error {
	t.Helper()
	close(h.stop)
	return h.wait(t)
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	h.rec.waitFor(t, "worker exit", func(ms []worker.Message) bool {
		return len(ms) > 0 && ms[len(ms)-1].Text == "Stopped."
	})
	return <-h.result
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{}
	src := &audiomock.Source{}

	if _, err := worker.New(testConfig(), worker.Deps{Source: src}); err == nil {
		t.Error("expected error without factory")
	}
	if _, err := worker.New(testConfig(), worker.Deps{Factory: eng.Factory()}); err == nil {
		t.Error("expected error without source")
	}
	cfg := testConfig()
	cfg.Capture.BlockMs = 0
	if _, err := worker.New(cfg, worker.Deps{Factory: eng.Factory(), Source: src}); err == nil {
		t.Error("expected error for zero block size")
	}
}

func TestRun_StopBeforeStart(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{}
	src := &audiomock.Source{}
	w, err := worker.New(testConfig(), worker.Deps{Factory: eng.Factory(), Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.Phase() != worker.PhaseIdle {
		t.Fatalf("Phase = %v, want idle", w.Phase())
	}

	stop := make(chan struct{})
	close(stop)
	rec := &recorder{}
	if err := w.Run(context.Background(), rec, stop); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.texts(); len(got) != 1 || got[0] != "status:Stopped." {
		t.Errorf("messages = %v, want only Stopped.", got)
	}
	if len(eng.FactoryConfigs) != 0 || len(src.OpenCalls) != 0 {
		t.Error("nothing should be loaded or opened after an early stop")
	}
	if w.Phase() != worker.PhaseStopped {
		t.Errorf("Phase = %v, want stopped", w.Phase())
	}
	if err := w.Run(context.Background(), rec, stop); err == nil {
		t.Error("second Run should fail")
	}
}

func TestRun_EngineLoadFailure(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{FactoryErr: errors.New("model missing")}
	src := &audiomock.Source{}
	m, reader := newTestMetrics(t)
	h := startWorker(t, testConfig(), eng, src, func(d *worker.Deps) { d.Metrics = m })

	err := h.wait(t)
	if !errors.Is(err, worker.ErrEngineLoad) {
		t.Fatalf("err = %v, want ErrEngineLoad", err)
	}
	got := h.rec.texts()
	want := []string{
		"status:Loading STT model (tiny)...",
		"error:Failed to load STT model: stt: load engine: model missing",
		"status:Stopped.",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("messages =\n%v\nwant\n%v", got, want)
	}
	if !h.rec.all()[1].Fatal {
		t.Error("load failure must be fatal")
	}
	if len(src.OpenCalls) != 0 {
		t.Error("capture must not open after a load failure")
	}
	if n := counterSum(t, reader, "sonoscribe.worker.errors", "kind", "engine"); n != 1 {
		t.Errorf("worker.errors{engine} = %d, want 1", n)
	}
}

func TestRun_CaptureFailure(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{}
	src := &audiomock.Source{OpenError: errors.New("no device")}
	h := startWorker(t, testConfig(), eng, src)

	err := h.wait(t)
	if !errors.Is(err, worker.ErrCaptureOpen) {
		t.Fatalf("err = %v, want ErrCaptureOpen", err)
	}
	ms := h.rec.all()
	i := indexOf(ms, worker.KindError, "Failed to start InputStream: no device")
	if i < 0 || !ms[i].Fatal {
		t.Fatalf("missing fatal capture error in %v", h.rec.texts())
	}
	if indexOf(ms, worker.KindStatus, "Listening") >= 0 {
		t.Error("worker must not reach Listening")
	}
	if eng.CloseCallCount != 1 {
		t.Errorf("engine closed %d times, want 1", eng.CloseCallCount)
	}
}

func TestRun_StartFailureClosesStream(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{StartError: errors.New("busy")}
	h := startWorker(t, testConfig(), &sttmock.Engine{}, src)

	if err := h.wait(t); !errors.Is(err, worker.ErrCaptureOpen) {
		t.Fatalf("err = %v, want ErrCaptureOpen", err)
	}
	if st := src.Last(); st == nil || !st.Closed() {
		t.Error("stream that failed to start must be closed")
	}
}

func TestRun_TranscribesUtterance(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{Responses: []sttmock.Response{
		{Segments: []stt.Segment{{Text: " probe shows "}, {Text: "엘엔비 today "}}},
	}}
	src := &audiomock.Source{}
	m, reader := newTestMetrics(t)
	h := startWorker(t, testConfig(), eng, src, func(d *worker.Deps) { d.Metrics = m })

	h.rec.waitText(t, worker.KindStatus, "Listening...")
	src.Emit(constChunk(4000, 0.2))
	src.Emit(constChunk(4000, 0.2))
	h.rec.waitText(t, worker.KindText, "probe")

	ms := h.rec.all()
	iTrans := indexOf(ms, worker.KindStatus, "Transcribing...")
	iOK := indexOf(ms, worker.KindStatus, "OK (1) in ")
	iText := indexOf(ms, worker.KindText, "probe shows 엘엔비 today")
	if iTrans < 0 || iOK < 0 || iText < 0 || !(iTrans < iOK && iOK < iText) {
		t.Fatalf("want Transcribing < OK < Text, got %v", h.rec.texts())
	}

	calls := eng.Calls()
	if len(calls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(calls))
	}
	if len(calls[0].Samples) != 8000 || calls[0].SampleRate != 16000 {
		t.Errorf("call: %d samples at %d Hz", len(calls[0].Samples), calls[0].SampleRate)
	}
	if got := audio.Peak(calls[0].Samples); math.Abs(got-1) > 1e-6 {
		t.Errorf("utterance peak = %f, want normalised 1.0", got)
	}

	if err := h.stopAndWait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := src.Last(); !st.Closed() || st.CallCountStop == 0 {
		t.Error("capture stream must be stopped and closed")
	}
	if eng.CloseCallCount != 1 {
		t.Errorf("engine closed %d times, want 1", eng.CloseCallCount)
	}
	if h.w.Phase() != worker.PhaseStopped {
		t.Errorf("Phase = %v", h.w.Phase())
	}
	if n := counterSum(t, reader, "sonoscribe.utterances", "verdict", "emitted"); n != 1 {
		t.Errorf("utterances{emitted} = %d, want 1", n)
	}
	if n := counterSum(t, reader, "sonoscribe.provider.requests", "status", "ok"); n != 1 {
		t.Errorf("provider.requests{ok} = %d, want 1", n)
	}
}

func TestRun_TooQuiet(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{}
	src := &audiomock.Source{}
	h := startWorker(t, testConfig(), eng, src)

	h.rec.waitText(t, worker.KindStatus, "Listening...")
	src.Emit(constChunk(8000, 0.001))
	h.rec.waitText(t, worker.KindStatus, "Too quiet (rms=0.0010)")
	if err := h.stopAndWait(t); err != nil {
		t.Fatal(err)
	}
	if eng.TranscribeCallCount() != 0 {
		t.Error("quiet audio must not be transcribed")
	}
}

func TestRun_TranscribeErrorAndNoSpeechAreRecoverable(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{Responses: []sttmock.Response{
		{Err: errors.New("decoder crashed")},
		{Segments: []stt.Segment{{Text: "   "}}},
		{Segments: []stt.Segment{{Text: "thyroid nodule"}}},
	}}
	src := &audiomock.Source{}
	h := startWorker(t, testConfig(), eng, src)
	h.rec.waitText(t, worker.KindStatus, "Listening...")

	src.Emit(constChunk(8000, 0.3))
	h.rec.waitText(t, worker.KindError, "transcribe error: decoder crashed")
	src.Emit(constChunk(8000, 0.3))
	h.rec.waitText(t, worker.KindStatus, "No speech (1) in ")
	src.Emit(constChunk(8000, 0.3))
	h.rec.waitText(t, worker.KindText, "thyroid nodule")

	ms := h.rec.all()
	if i := indexOf(ms, worker.KindError, "transcribe error"); ms[i].Fatal {
		t.Error("per-utterance failures must not be fatal")
	}
	// The success counter only counts recognised text.
	if indexOf(ms, worker.KindStatus, "OK (1) in ") < 0 {
		t.Errorf("missing OK (1) status: %v", h.rec.texts())
	}
	if err := h.stopAndWait(t); err != nil {
		t.Fatal(err)
	}
}

func TestRun_ReportsAudioLevel(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{}
	h := startWorker(t, testConfig(), &sttmock.Engine{}, src)
	h.rec.waitText(t, worker.KindStatus, "Listening...")

	src.Emit(constChunk(100, 0.3))
	h.rec.waitFor(t, "audio level 0.3", func(ms []worker.Message) bool {
		for _, m := range ms {
			if m.Kind == worker.KindAudioLevel && math.Abs(m.RMS-0.3) < 1e-6 {
				return true
			}
		}
		return false
	})
	if err := h.stopAndWait(t); err != nil {
		t.Fatal(err)
	}
}

func TestRun_PanicIsContained(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{OnTranscribe: func([]float32) { panic("native fault") }}
	src := &audiomock.Source{}
	h := startWorker(t, testConfig(), eng, src)
	h.rec.waitText(t, worker.KindStatus, "Listening...")

	src.Emit(constChunk(8000, 0.3))
	err := h.wait(t)
	if !errors.Is(err, worker.ErrPanic) {
		t.Fatalf("err = %v, want ErrPanic", err)
	}
	ms := h.rec.all()
	i := indexOf(ms, worker.KindError, "worker panic: native fault")
	if i < 0 || !ms[i].Fatal || i != len(ms)-2 {
		t.Errorf("want fatal panic error right before Stopped., got %v", h.rec.texts())
	}
	if !src.Last().Closed() {
		t.Error("capture stream must be closed after a panic")
	}
}

func TestRun_ContextCancelStops(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{}
	w, err := worker.New(testConfig(), worker.Deps{Factory: (&sttmock.Engine{}).Factory(), Source: src})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	result := make(chan error, 1)
	go func() { result <- w.Run(ctx, rec, nil) }()

	rec.waitText(t, worker.KindStatus, "Listening...")
	cancel()
	if err := <-result; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_DumpsUtterances(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "dump")
	cfg := testConfig()
	cfg.DumpDir = dir
	eng := &sttmock.Engine{Default: sttmock.Response{Segments: []stt.Segment{{Text: "x"}}}}
	src := &audiomock.Source{}
	h := startWorker(t, cfg, eng, src)
	h.rec.waitText(t, worker.KindStatus, "Listening...")

	src.Emit(constChunk(8000, 0.3))
	h.rec.waitText(t, worker.KindText, "x")
	if err := h.stopAndWait(t); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "utterance-0001.wav")); err != nil {
		t.Errorf("dumped utterance missing: %v", err)
	}
}
