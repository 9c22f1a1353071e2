// Package config provides the configuration schema, loader, and provider
// registry for the sonoscribe dictation service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureSource selects where microphone audio comes from.
type CaptureSource string

const (
	// SourcePortAudio captures from a live input device.
	SourcePortAudio CaptureSource = "portaudio"

	// SourceWAVFile replays a WAV recording as if it were a microphone.
	SourceWAVFile CaptureSource = "wavfile"
)

// IsValid reports whether s is a recognised capture source.
func (s CaptureSource) IsValid() bool {
	return s == SourcePortAudio || s == SourceWAVFile
}

// WorkerMode selects the execution context the dictation worker runs in.
type WorkerMode string

const (
	// ModeGoroutine runs the worker inside the current process.
	ModeGoroutine WorkerMode = "goroutine"

	// ModeProcess re-executes the binary and runs the worker in a child
	// process, so a crash in the native STT engine cannot take down the
	// display side.
	ModeProcess WorkerMode = "process"
)

// IsValid reports whether m is a recognised worker mode.
func (m WorkerMode) IsValid() bool {
	return m == ModeGoroutine || m == ModeProcess
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	STT        STTConfig        `yaml:"stt"`
	Capture    CaptureConfig    `yaml:"capture"`
	Gate       GateConfig       `yaml:"gate"`
	Correction CorrectionConfig `yaml:"correction"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the health and metrics endpoint
	// (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry is the common configuration block for a named STT backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation ("whisper-native",
	// "whisper", "deepgram", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted backends.
	APIKey string `yaml:"api_key"`

	// BaseURL is the endpoint of server-based backends. Optional for
	// "openai".
	BaseURL string `yaml:"base_url"`

	// Model is a model size name ("tiny", "base") or a path to a model file.
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// STTConfig configures speech recognition.
type STTConfig struct {
	// Provider is the preferred backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the preferred backend fails or its
	// circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// ModelDir is searched for model files named by size
	// (ggml-<model>.bin).
	ModelDir string `yaml:"model_dir"`

	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`
	Threads     int    `yaml:"threads"`
	Workers     int    `yaml:"workers"`
	BeamSize    int    `yaml:"beam_size"`
	VADFilter   bool   `yaml:"vad_filter"`

	// Language is an ISO-639-1 code; empty or "auto" detects per utterance.
	Language string `yaml:"language"`

	// Breaker tunes the per-backend circuit breakers of the fallback chain.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes circuit breakers.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// CaptureConfig configures the audio input.
type CaptureConfig struct {
	Source CaptureSource `yaml:"source"`

	// Device is the PortAudio input device index. Unset or negative selects
	// the system default.
	Device *int `yaml:"device"`

	SampleRate int `yaml:"sample_rate"`
	BlockMs    int `yaml:"block_ms"`

	// File is the WAV recording replayed by the wavfile source.
	File string `yaml:"file"`

	// Realtime paces wavfile replay at the recording's natural speed.
	Realtime bool `yaml:"realtime"`
}

// DeviceIndex returns the configured device index, or -1 for the default
// input device.
func (c CaptureConfig) DeviceIndex() int {
	if c.Device == nil || *c.Device < 0 {
		return -1
	}
	return *c.Device
}

// GateConfig configures utterance accumulation and the silence gate.
type GateConfig struct {
	MinSeconds      float64 `yaml:"min_seconds"`
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

// CorrectionConfig configures transcript correction.
type CorrectionConfig struct {
	// Dictionary is the path of the term dictionary (YAML or JSON).
	Dictionary string `yaml:"dictionary"`

	// Examples is the path of the example sentences used to build the STT
	// initial prompt. Optional.
	Examples string `yaml:"examples"`

	// Threshold is the minimum similarity for a fuzzy replacement.
	Threshold float64 `yaml:"threshold"`

	// Similarity names the similarity measure ("indel", "levenshtein",
	// "jaro_winkler", "phonetic").
	Similarity string `yaml:"similarity"`

	MaxWindow       int `yaml:"max_window"`
	MinCandidateLen int `yaml:"min_candidate_len"`

	// WatchInterval is how often the dictionary file is polled for changes.
	// Zero disables hot reload.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// WorkerConfig configures the dictation worker and its coordinator.
type WorkerConfig struct {
	Mode WorkerMode `yaml:"mode"`

	PollInterval  time.Duration `yaml:"poll_interval"`
	LevelInterval time.Duration `yaml:"level_interval"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`

	// DumpDir, when set, receives every emitted utterance as a WAV file.
	DumpDir string `yaml:"dump_dir"`
}
