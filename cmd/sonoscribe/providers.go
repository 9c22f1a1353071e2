package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/health"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/audio/portaudio"
	"github.com/MrWong99/sonoscribe/pkg/audio/wavfile"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt/openai"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in STT backends and capture
// sources into reg. modelDir is where the native backend looks for
// ggml-<model>.bin files.
func registerBuiltinProviders(reg *config.Registry, modelDir string) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Factory, error) {
		dir := modelDir
		if d := optString(entry.Options, "model_dir"); d != "" {
			dir = d
		}
		return whisper.NativeFactory(dir), nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Factory, error) {
		if entry.BaseURL == "" {
			return nil, errors.New("whisper: base_url is required")
		}
		return func(_ context.Context, cfg stt.EngineConfig) (stt.Engine, error) {
			var opts []whisper.Option
			if cfg.Model != "" {
				opts = append(opts, whisper.WithModel(cfg.Model))
			}
			return whisper.NewServer(entry.BaseURL, opts...)
		}, nil
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Factory, error) {
		var opts []deepgram.Option
		if entry.Model != "" && entry.Model != config.DefaultModel {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ep := optString(entry.Options, "endpoint"); ep != "" {
			opts = append(opts, deepgram.WithEndpoint(ep))
		}
		eng, err := deepgram.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return func(context.Context, stt.EngineConfig) (stt.Engine, error) { return eng, nil }, nil
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Factory, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		model := entry.Model
		if model == config.DefaultModel {
			model = ""
		}
		eng, err := openai.New(entry.APIKey, model, opts...)
		if err != nil {
			return nil, err
		}
		return func(context.Context, stt.EngineConfig) (stt.Engine, error) { return eng, nil }, nil
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterSource(config.SourcePortAudio, func(config.CaptureConfig) (audio.Source, error) {
		return portaudio.New(), nil
	})

	reg.RegisterSource(config.SourceWAVFile, func(c config.CaptureConfig) (audio.Source, error) {
		if c.File == "" {
			return nil, errors.New("wavfile: capture.file is required")
		}
		return wavfile.New(c.File, wavfile.WithRealtime(c.Realtime)), nil
	})

	slog.Debug("registered providers",
		"stt", config.ValidProviderNames,
		"capture", []config.CaptureSource{config.SourcePortAudio, config.SourceWAVFile},
	)
}

// serverProbes returns a /readyz checker for every whisper-server backend
// in the STT chain.
func serverProbes(c config.STTConfig) []health.Checker {
	var checks []health.Checker
	entries := append([]config.ProviderEntry{c.Provider}, c.Fallbacks...)
	for i, e := range entries {
		if e.Name != "whisper" || e.BaseURL == "" {
			continue
		}
		srv, err := whisper.NewServer(e.BaseURL)
		if err != nil {
			continue
		}
		checks = append(checks, health.Ping(fmt.Sprintf("stt_server_%d", i), srv))
	}
	return checks
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
