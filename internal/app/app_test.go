package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/worker"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	audiomock "github.com/MrWong99/sonoscribe/pkg/audio/mock"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonoscribe/pkg/provider/stt/mock"
)

const dictV1 = `
terms:
  - key: thy_nod
    canonical: thyroid nodule
    aliases: [thyroidnodule]
categories:
  lesion: [thy_nod]
`

const dictV2 = `
terms:
  - key: thy_nod
    canonical: thyroid nodule
    aliases: [thyroidnodule]
  - key: lnb
    canonical: LNB
    aliases: [엘엔비]
categories:
  lesion: [thy_nod, lnb]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testConfig returns a validated goroutine-mode config with a dictionary
// written to a temp dir.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	dictPath := filepath.Join(dir, "terms.yaml")
	writeFile(t, dictPath, dictV1)

	cfg := config.Default()
	cfg.STT.Provider.Name = "mock"
	cfg.Worker.Mode = config.ModeGoroutine
	cfg.Worker.PollInterval = 10 * time.Millisecond
	cfg.Worker.LevelInterval = time.Hour
	cfg.Gate.MinSeconds = 0.1
	cfg.Correction.Dictionary = dictPath
	return cfg, dir
}

// testRegistry registers a mock STT backend and a mock capture source.
func testRegistry(eng *sttmock.Engine, src *audiomock.Source) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Factory, error) { return eng.Factory(), nil })
	reg.RegisterSource(config.SourcePortAudio, func(config.CaptureConfig) (audio.Source, error) { return src, nil })
	return reg
}

func TestNew_LoadsDictionary(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if got := a.Corrector().Correct("thyroidnodule").Corrected; got != "thyroid nodule" {
		t.Errorf("Correct = %q", got)
	}
	if !strings.HasPrefix(a.Prompt(), "You are transcribing an ultrasound medical dictation.") {
		t.Errorf("Prompt = %q", a.Prompt())
	}
	if a.Session().Running() {
		t.Error("New must not start a worker")
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config, string)
	}{
		{"missing dictionary", func(c *config.Config, dir string) { c.Correction.Dictionary = filepath.Join(dir, "nope.yaml") }},
		{"bad similarity", func(c *config.Config, _ string) { c.Correction.Similarity = "soundex" }},
		{"unreadable examples", func(c *config.Config, dir string) { c.Correction.Examples = dir }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, dir := testConfig(t)
			tt.mutate(cfg, dir)
			if _, err := app.New(context.Background(), cfg, config.NewRegistry()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_WithoutDictionary(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.Correction.Dictionary = ""
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())
	if got := a.Corrector().Correct("thyroidnodule").Corrected; got != "thyroidnodule" {
		t.Errorf("text should pass through, got %q", got)
	}
}

func TestDictation_GoroutineMode(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	eng := &sttmock.Engine{Default: sttmock.Response{Segments: []stt.Segment{{Text: "thyroidnodule"}}}}
	src := &audiomock.Source{}
	a, err := app.New(context.Background(), cfg, testRegistry(eng, src))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())

	s := a.Session()
	if err := s.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.StatusLine() != "Listening..." {
		if time.Now().After(deadline) {
			t.Fatalf("status = %q", s.StatusLine())
		}
		s.Tick(context.Background())
		time.Sleep(5 * time.Millisecond)
	}

	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.3
	}
	src.Emit(audio.Chunk{Samples: samples, SampleRate: 16000})
	for s.Live() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("no text, status %q", s.StatusLine())
		}
		s.Tick(context.Background())
		time.Sleep(5 * time.Millisecond)
	}
	if s.Live() != "thyroid nodule" {
		t.Errorf("Live = %q", s.Live())
	}
	calls := eng.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Opts.InitialPrompt, "ultrasound") {
		t.Errorf("transcribe calls = %+v", calls)
	}
	s.Stop()
}

func TestDictation_UnknownBackendIsFatal(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())

	err = a.Session().Start(context.Background())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("Start = %v, want ErrProviderNotRegistered", err)
	}
	if ns := a.Session().Notifications(); len(ns) != 1 || !ns[0].Fatal {
		t.Errorf("notifications = %+v", ns)
	}
}

func TestWithRunner(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	built := 0
	r := &worker.GoroutineRunner{Build: func() (*worker.Worker, error) {
		built++
		return worker.New(app.WorkerConfig(cfg, ""), worker.Deps{
			Factory: (&sttmock.Engine{}).Factory(),
			Source:  &audiomock.Source{},
		})
	}}
	a, err := app.New(context.Background(), cfg, config.NewRegistry(), app.WithRunner(r))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Session().Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if built != 1 || a.Session().Running() {
		t.Errorf("built = %d running = %v", built, a.Session().Running())
	}
}

func TestWorkerConfig(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.STT.Language = "ko"
	cfg.STT.BeamSize = 3
	cfg.Worker.DumpDir = "/tmp/dump"

	w := app.WorkerConfig(cfg, "prompt")
	if w.Provider != "mock" || w.Engine.Model != config.DefaultModel {
		t.Errorf("engine = %q %+v", w.Provider, w.Engine)
	}
	if w.Transcribe.Language != "ko" || w.Transcribe.BeamSize != 3 || w.Transcribe.InitialPrompt != "prompt" {
		t.Errorf("transcribe = %+v", w.Transcribe)
	}
	if w.Capture.SampleRate != 16000 || w.Gate.SampleRate != 16000 || w.Gate.MinSeconds != 0.1 {
		t.Errorf("capture = %+v gate = %+v", w.Capture, w.Gate)
	}
	if w.PollInterval != 10*time.Millisecond || w.DumpDir != "/tmp/dump" {
		t.Errorf("intervals = %+v", w)
	}
	if err := w.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestDictionaryHotReload(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.Correction.WatchInterval = 10 * time.Millisecond
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())

	if got := a.Corrector().Correct("엘엔비").Corrected; got != "엘엔비" {
		t.Fatalf("before reload: %q", got)
	}
	writeFile(t, cfg.Correction.Dictionary, dictV2)
	// Some filesystems have coarse mtimes; make sure the change is visible.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(cfg.Correction.Dictionary, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Corrector().Correct("엘엔비").Corrected != "LNB" {
		if time.Now().After(deadline) {
			t.Fatal("dictionary was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.Session().SetEditable("LNB")
	rec, ok := a.Session().Extract()
	if !ok || rec.Lesion == nil || *rec.Lesion != "LNB" {
		t.Errorf("extractor not reloaded: %+v", rec)
	}
}

func TestConfigHotReload(t *testing.T) {
	t.Parallel()
	cfg, dir := testConfig(t)
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "stt:\n  provider:\n    name: whisper-native\ncorrection:\n  dictionary: "+cfg.Correction.Dictionary+"\n  watch_interval: 10ms\n")
	loaded, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	a, err := app.New(context.Background(), loaded, config.NewRegistry(), app.WithConfigPath(cfgPath))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())
	if th := loaded.Correction.Threshold; th != 0.86 {
		t.Fatalf("default threshold = %v", th)
	}

	writeFile(t, cfgPath, "stt:\n  provider:\n    name: whisper-native\ncorrection:\n  dictionary: "+cfg.Correction.Dictionary+"\n  watch_interval: 10ms\n  threshold: 0.5\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(cfgPath, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Config().Correction.Threshold != 0.5 {
		if time.Now().After(deadline) {
			t.Fatal("config was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	for {
		if c := a.Corrector().Load(); c != nil && c.Threshold() == 0.5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("corrector was not rebuilt")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
