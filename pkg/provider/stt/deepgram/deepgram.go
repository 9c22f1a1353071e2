// Package deepgram provides a Deepgram-backed STT engine using the Deepgram
// streaming WebSocket API.
//
// Each Transcribe call opens one streaming session, sends the whole utterance
// as 16-bit PCM, asks the server to flush with CloseStream and collects the
// final results until the server closes the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// frameBytes is the size of each binary audio frame (about 250 ms of
	// 16 kHz mono PCM).
	frameBytes = 8000
)

var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring the Deepgram Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLanguage sets the language used when a call does not name one.
func WithLanguage(language string) Option {
	return func(e *Engine) { e.language = language }
}

// WithEndpoint overrides the streaming endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(e *Engine) { e.endpoint = endpoint }
}

// Engine implements stt.Engine backed by the Deepgram streaming API.
type Engine struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a new Deepgram Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close implements stt.Engine. The engine holds no connection between calls.
func (e *Engine) Close() error { return nil }

// Transcribe implements stt.Engine.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	wsURL, err := e.buildURL(sampleRate, opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	pcm := audio.Float32ToPCM16(samples)
	var segs []stt.Segment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for off := 0; off < len(pcm); off += frameBytes {
			end := min(off+frameBytes, len(pcm))
			if err := conn.Write(gctx, websocket.MessageBinary, pcm[off:end]); err != nil {
				return fmt.Errorf("deepgram: send audio: %w", err)
			}
		}
		if err := conn.Write(gctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
			return fmt.Errorf("deepgram: close stream: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			_, msg, err := conn.Read(gctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil
				}
				return fmt.Errorf("deepgram: read: %w", err)
			}
			if seg, ok := parseResult(msg); ok {
				segs = append(segs, seg)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segs, nil
}

// buildURL constructs the streaming endpoint URL for one utterance.
func (e *Engine) buildURL(sampleRate int, opts stt.TranscribeOptions) (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", e.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")

	lang := opts.Language
	if opts.AutoDetect() {
		lang = e.language
	}
	if lang == "" || strings.EqualFold(lang, "auto") {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", lang)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// result is the JSON structure returned by Deepgram for a Results event.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResult turns a final Results message into a segment. Metadata,
// interim and empty results are ignored.
func parseResult(data []byte) (stt.Segment, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Segment{}, false
	}
	if r.Type != "Results" || !r.IsFinal || len(r.Channel.Alternatives) == 0 {
		return stt.Segment{}, false
	}
	text := strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
	if text == "" {
		return stt.Segment{}, false
	}
	return stt.Segment{
		Text:  text,
		Start: secondsToDuration(r.Start),
		End:   secondsToDuration(r.Start + r.Duration),
	}, true
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
