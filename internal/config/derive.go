package config

import (
	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/internal/transcript"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// GateConfig returns the gate parameters at the capture sample rate.
func (c *Config) GateConfig() gate.Config {
	return gate.Config{
		SampleRate:      c.Capture.SampleRate,
		MinSeconds:      c.Gate.MinSeconds,
		EnergyThreshold: c.Gate.EnergyThreshold,
	}
}

// StreamConfig returns the capture stream parameters.
func (c *Config) StreamConfig() audio.StreamConfig {
	return audio.StreamConfig{
		SampleRate: c.Capture.SampleRate,
		BlockMs:    c.Capture.BlockMs,
		Device:     c.Capture.DeviceIndex(),
	}
}

// EngineConfig returns the construction parameters for the backend e.
func (s STTConfig) EngineConfig(e ProviderEntry) stt.EngineConfig {
	return stt.EngineConfig{
		Model:       e.Model,
		Device:      s.Device,
		ComputeType: s.ComputeType,
		Threads:     s.Threads,
		Workers:     s.Workers,
	}
}

// TranscribeOptions returns the per-utterance recognition options.
// initialPrompt is built separately from the examples file.
func (s STTConfig) TranscribeOptions(initialPrompt string) stt.TranscribeOptions {
	return stt.TranscribeOptions{
		Language:      s.Language,
		BeamSize:      s.BeamSize,
		VADFilter:     s.VADFilter,
		InitialPrompt: initialPrompt,
	}
}

// CorrectorOptions translates the correction section into
// [transcript.Option]s.
func (c CorrectionConfig) CorrectorOptions() ([]transcript.Option, error) {
	sim, err := transcript.SimilarityByName(c.Similarity)
	if err != nil {
		return nil, err
	}
	opts := []transcript.Option{
		transcript.WithThreshold(c.Threshold),
		transcript.WithSimilarity(sim),
	}
	if c.MaxWindow > 0 {
		opts = append(opts, transcript.WithMaxWindow(c.MaxWindow))
	}
	if c.MinCandidateLen > 0 {
		opts = append(opts, transcript.WithMinCandidateLen(c.MinCandidateLen))
	}
	return opts, nil
}
