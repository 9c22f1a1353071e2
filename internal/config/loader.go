package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

// ValidProviderNames lists the STT backend names known to this build.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"whisper-native", "whisper", "deepgram", "openai"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultModel         = "tiny"
	DefaultDevice        = "cpu"
	DefaultComputeType   = "int8"
	DefaultBeamSize      = 1
	DefaultBlockMs       = 500
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultLevelInterval = time.Second
	DefaultStopTimeout   = 3 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is [LoadFromReader] over an in-memory document. It matches the
// signature expected by [filewatch.New].
func Parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field that has a default. Fields set
// explicitly are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.STT
	if s.Provider.Name == "" {
		s.Provider.Name = "whisper-native"
	}
	if s.Provider.Model == "" {
		s.Provider.Model = DefaultModel
	}
	if s.Device == "" {
		s.Device = DefaultDevice
	}
	if s.ComputeType == "" {
		s.ComputeType = DefaultComputeType
	}
	if s.BeamSize <= 0 {
		s.BeamSize = DefaultBeamSize
	}

	c := &cfg.Capture
	if c.Source == "" {
		c.Source = SourcePortAudio
		if c.File != "" {
			c.Source = SourceWAVFile
		}
	}
	if c.SampleRate == 0 {
		c.SampleRate = gate.DefaultSampleRate
	}
	if c.BlockMs == 0 {
		c.BlockMs = DefaultBlockMs
	}

	w := &cfg.Worker
	if w.Mode == "" {
		w.Mode = ModeProcess
	}
	if w.PollInterval == 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.LevelInterval == 0 {
		w.LevelInterval = DefaultLevelInterval
	}
	if w.StopTimeout == 0 {
		w.StopTimeout = DefaultStopTimeout
	}

	// The in-process worker historically emitted shorter utterances.
	if cfg.Gate.MinSeconds == 0 {
		cfg.Gate.MinSeconds = gate.DefaultMinSeconds
		if w.Mode == ModeGoroutine {
			cfg.Gate.MinSeconds = gate.InProcessMinSeconds
		}
	}
	if cfg.Gate.EnergyThreshold == 0 {
		cfg.Gate.EnergyThreshold = gate.DefaultEnergyThreshold
	}

	if cfg.Correction.Threshold == 0 {
		cfg.Correction.Threshold = transcript.DefaultThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// STT
	if cfg.STT.Provider.Name == "" {
		errs = append(errs, errors.New("stt.provider.name is required"))
	}
	validateProviderName("stt.provider", cfg.STT.Provider)
	for i, fb := range cfg.STT.Fallbacks {
		prefix := fmt.Sprintf("stt.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, fb)
	}
	for _, e := range append([]ProviderEntry{cfg.STT.Provider}, cfg.STT.Fallbacks...) {
		if e.Name == "whisper" && e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("stt: provider %q requires base_url", e.Name))
		}
		if (e.Name == "deepgram" || e.Name == "openai") && e.APIKey == "" {
			errs = append(errs, fmt.Errorf("stt: provider %q requires api_key", e.Name))
		}
	}
	if cfg.STT.Threads < 0 {
		errs = append(errs, fmt.Errorf("stt.threads %d must not be negative", cfg.STT.Threads))
	}
	if cfg.STT.Workers < 0 {
		errs = append(errs, fmt.Errorf("stt.workers %d must not be negative", cfg.STT.Workers))
	}
	if cfg.STT.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("stt.breaker.max_failures %d must not be negative", cfg.STT.Breaker.MaxFailures))
	}

	// Capture
	if cfg.Capture.Source != "" && !cfg.Capture.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: portaudio, wavfile", cfg.Capture.Source))
	}
	if cfg.Capture.Source == SourceWAVFile && cfg.Capture.File == "" {
		errs = append(errs, errors.New("capture.file is required when capture.source is wavfile"))
	}
	if cfg.Capture.BlockMs < 0 {
		errs = append(errs, fmt.Errorf("capture.block_ms %d must be positive", cfg.Capture.BlockMs))
	}

	// Gate
	if err := cfg.GateConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gate: %w", err))
	}

	// Correction
	if t := cfg.Correction.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("correction.threshold %.2f is out of range [0, 1]", t))
	}
	if _, err := transcript.SimilarityByName(cfg.Correction.Similarity); err != nil {
		errs = append(errs, fmt.Errorf("correction.similarity: %w", err))
	}
	if cfg.Correction.MaxWindow < 0 || cfg.Correction.MinCandidateLen < 0 {
		errs = append(errs, errors.New("correction.max_window and correction.min_candidate_len must not be negative"))
	}
	if cfg.Correction.Dictionary == "" {
		slog.Warn("correction.dictionary is empty; transcripts will not be corrected")
	}

	// Worker
	if cfg.Worker.Mode != "" && !cfg.Worker.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("worker.mode %q is invalid; valid values: goroutine, process", cfg.Worker.Mode))
	}
	for name, d := range map[string]time.Duration{
		"worker.poll_interval":  cfg.Worker.PollInterval,
		"worker.level_interval": cfg.Worker.LevelInterval,
		"worker.stop_timeout":   cfg.Worker.StopTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", name, d))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if the entry's name is non-empty and
// not in [ValidProviderNames].
func validateProviderName(field string, e ProviderEntry) {
	if e.Name == "" || slices.Contains(ValidProviderNames, e.Name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", e.Name,
		"known", ValidProviderNames,
	)
}
