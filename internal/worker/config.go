package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// Defaults for [Config].
const (
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultLevelInterval = time.Second
)

// Config is everything a [Worker] needs besides its collaborators. It is
// plain data so it can be handed to a child process as JSON.
type Config struct {
	// Provider labels metrics and logs with the STT backend name.
	Provider string `json:"provider"`

	Engine     stt.EngineConfig      `json:"engine"`
	Transcribe stt.TranscribeOptions `json:"transcribe"`
	Capture    audio.StreamConfig    `json:"capture"`
	Gate       gate.Config           `json:"gate"`

	// PollInterval bounds how long the loop waits for audio before it
	// re-checks the stop signal.
	PollInterval time.Duration `json:"poll_interval"`

	// LevelInterval is the audio level report cadence.
	LevelInterval time.Duration `json:"level_interval"`

	// DumpDir, when set, receives every emitted utterance as a WAV file.
	DumpDir string `json:"dump_dir,omitempty"`
}

// withDefaults fills zero intervals.
func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = DefaultLevelInterval
	}
	if c.Gate.SampleRate == 0 {
		c.Gate.SampleRate = c.Capture.SampleRate
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture sample rate %d must be positive", c.Capture.SampleRate))
	}
	if c.Capture.BlockMs <= 0 {
		errs = append(errs, fmt.Errorf("capture block %dms must be positive", c.Capture.BlockMs))
	}
	if c.Gate.SampleRate != 0 && c.Gate.SampleRate != c.Capture.SampleRate {
		errs = append(errs, fmt.Errorf("gate sample rate %d differs from capture rate %d", c.Gate.SampleRate, c.Capture.SampleRate))
	}
	if err := c.withDefaults().Gate.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ModelLabel is the model name shown in the loading status.
func (c Config) ModelLabel() string {
	if c.Engine.Model == "" {
		return "default"
	}
	return c.Engine.Model
}
