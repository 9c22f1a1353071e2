// Package openai provides an STT engine backed by the OpenAI audio
// transcription API (or any server exposing the same /audio/transcriptions
// route).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "whisper-1"

var _ stt.Engine = (*Engine)(nil)

// Engine implements stt.Engine using the OpenAI API.
type Engine struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often a failed request is retried. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs an Engine. If model is empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Engine{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Close implements stt.Engine.
func (e *Engine) Close() error { return nil }

// Transcribe uploads the utterance as a WAV file. The API returns one text
// for the whole upload, so the result is a single untimed segment.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("openai stt: invalid sample rate %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(audio.EncodeWAV(samples, sampleRate)), "utterance.wav", "audio/wav"),
		Model:          oai.AudioModel(e.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if !opts.AutoDetect() {
		params.Language = param.NewOpt(opts.Language)
	}
	if opts.InitialPrompt != "" {
		params.Prompt = param.NewOpt(opts.InitialPrompt)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, nil
	}
	return []stt.Segment{{Text: text}}, nil
}
