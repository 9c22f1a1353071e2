package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/resilience"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	audiomock "github.com/MrWong99/sonoscribe/pkg/audio/mock"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonoscribe/pkg/provider/stt/mock"
)

func registryWith(engines map[string]*sttmock.Engine) *config.Registry {
	reg := config.NewRegistry()
	for name, e := range engines {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Factory, error) {
			return e.Factory(), nil
		})
	}
	return reg
}

func TestRegistry_CreateSTT_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateSource(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	src := &audiomock.Source{}
	var got config.CaptureConfig
	reg.RegisterSource(config.SourceWAVFile, func(c config.CaptureConfig) (audio.Source, error) {
		got = c
		return src, nil
	})

	s, err := reg.CreateSource(config.CaptureConfig{Source: config.SourceWAVFile, File: "a.wav"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if s != src || got.File != "a.wav" {
		t.Errorf("unexpected source or config: %v %+v", s, got)
	}
	if _, err := reg.CreateSource(config.CaptureConfig{Source: config.SourcePortAudio}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_STTFactory_SingleBackend(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{}
	reg := registryWith(map[string]*sttmock.Engine{"whisper-native": eng})

	f, err := reg.STTFactory(config.STTConfig{Provider: config.ProviderEntry{Name: "whisper-native"}})
	if err != nil {
		t.Fatalf("STTFactory: %v", err)
	}
	got, err := f(context.Background(), stt.EngineConfig{Model: "tiny"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if got != eng {
		t.Errorf("expected the backend engine itself without a fallback wrapper, got %T", got)
	}
}

func TestRegistry_STTFactory_UnknownFallback(t *testing.T) {
	t.Parallel()
	reg := registryWith(map[string]*sttmock.Engine{"whisper-native": {}})
	_, err := reg.STTFactory(config.STTConfig{
		Provider:  config.ProviderEntry{Name: "whisper-native"},
		Fallbacks: []config.ProviderEntry{{Name: "missing"}},
	})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_STTFactory_FallbackChain(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{Default: sttmock.Response{Err: errors.New("server down")}}
	backup := &sttmock.Engine{Default: sttmock.Response{Segments: []stt.Segment{{Text: "hello"}}}}
	reg := registryWith(map[string]*sttmock.Engine{"whisper": primary, "whisper-native": backup})

	s := config.STTConfig{
		Provider:  config.ProviderEntry{Name: "whisper", Model: "base"},
		Fallbacks: []config.ProviderEntry{{Name: "whisper-native", Model: "tiny"}},
		Threads:   2,
	}
	f, err := reg.STTFactory(s)
	if err != nil {
		t.Fatalf("STTFactory: %v", err)
	}
	eng, err := f(context.Background(), s.EngineConfig(s.Provider))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := eng.(*resilience.STTFallback); !ok {
		t.Fatalf("engine is %T, want *resilience.STTFallback", eng)
	}

	segs, err := eng.Transcribe(context.Background(), []float32{0.1}, 16000, stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if stt.JoinSegments(segs) != "hello" {
		t.Errorf("segments = %+v", segs)
	}
	if len(backup.FactoryConfigs) != 1 || backup.FactoryConfigs[0].Model != "tiny" || backup.FactoryConfigs[0].Threads != 2 {
		t.Errorf("fallback built with %+v", backup.FactoryConfigs)
	}
}

func TestRegistry_STTFactory_PrimaryLoadFailure(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{FactoryErr: errors.New("no model")}
	backup := &sttmock.Engine{}
	reg := registryWith(map[string]*sttmock.Engine{"whisper": primary, "whisper-native": backup})

	f, err := reg.STTFactory(config.STTConfig{
		Provider:  config.ProviderEntry{Name: "whisper"},
		Fallbacks: []config.ProviderEntry{{Name: "whisper-native"}},
	})
	if err != nil {
		t.Fatalf("STTFactory: %v", err)
	}
	if _, err := f(context.Background(), stt.EngineConfig{}); err != nil {
		t.Fatalf("expected the fallback to serve, got %v", err)
	}

	backup.FactoryErr = errors.New("no model either")
	if _, err := f(context.Background(), stt.EngineConfig{}); err == nil {
		t.Fatal("expected error when no backend loads")
	}
}
