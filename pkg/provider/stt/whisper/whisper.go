// Package whisper provides whisper.cpp-backed STT engines.
//
// Two backends are available:
//
//   - [Server] talks to a running whisper-server binary, which exposes a REST
//     API at POST /inference. Each utterance is encoded as a 16-bit PCM WAV
//     file and uploaded as multipart/form-data.
//   - [Native] links whisper.cpp through its CGO bindings and runs inference
//     in-process. It requires libwhisper at link time.
//
// Both implement [stt.Engine] and transcribe one complete utterance per call.
//
// Usage:
//
//	eng, err := whisper.NewServer("http://localhost:8080")
//	segs, err := eng.Transcribe(ctx, samples, 16000, stt.TranscribeOptions{Language: "ko", BeamSize: 1})
//	text := stt.JoinSegments(segs)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

const defaultHTTPTimeout = 60 * time.Second

// Compile-time assertion that Server implements stt.Engine.
var _ stt.Engine = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with; this is the default.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// Server implements stt.Engine backed by a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// NewServer creates an engine that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close implements stt.Engine. The server engine holds no resources.
func (s *Server) Close() error { return nil }

// inferenceResponse covers both the "json" and "verbose_json" response
// formats of whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe encodes samples as a WAV file and POSTs it to the /inference
// endpoint as multipart/form-data.
func (s *Server) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts stt.TranscribeOptions) ([]stt.Segment, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("whisper: invalid sample rate %d", sampleRate)
	}
	wav := audio.EncodeWAV(samples, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := opts.Language
	if opts.AutoDetect() {
		lang = "auto"
	}
	fields := [][2]string{
		{"language", lang},
		{"response_format", "verbose_json"},
		{"beam_size", strconv.Itoa(max(opts.BeamSize, 1))},
	}
	if opts.InitialPrompt != "" {
		fields = append(fields, [2]string{"prompt", opts.InitialPrompt})
	}
	if opts.VADFilter {
		fields = append(fields, [2]string{"vad", "true"})
	}
	if s.model != "" {
		fields = append(fields, [2]string{"model", s.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	if len(result.Segments) == 0 {
		if result.Text == "" {
			return nil, nil
		}
		return []stt.Segment{{Text: result.Text}}, nil
	}
	segs := make([]stt.Segment, 0, len(result.Segments))
	for _, rs := range result.Segments {
		segs = append(segs, stt.Segment{
			Text:  rs.Text,
			Start: secondsToDuration(rs.Start),
			End:   secondsToDuration(rs.End),
		})
	}
	return segs, nil
}

// Ping checks that the server is reachable. Any HTTP response counts as
// reachable; whisper-server has no dedicated health endpoint.
func (s *Server) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: ping: %w", err)
	}
	resp.Body.Close()
	return nil
}

// ---- helpers ----------------------------------------------------------------

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
