// Package dictation is the display side of a live dictation: it owns the
// worker [worker.Coordinator], turns worker messages into a status line and
// two transcripts, and structures the edited text on demand.
//
// A Session has no event loop of its own. The caller invokes [Session.Tick]
// on a fixed cadence ([TickInterval]); everything the worker produced since
// the previous tick is applied then.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/observe"
	"github.com/MrWong99/sonoscribe/internal/structure"
	"github.com/MrWong99/sonoscribe/internal/transcript"
	"github.com/MrWong99/sonoscribe/internal/worker"
)

// TickInterval is the cadence at which [Session.Tick] is meant to be called.
const TickInterval = 100 * time.Millisecond

// Status lines set by the session itself.
const (
	StatusIdle      = "Idle"
	StatusStarting  = "Starting STT worker..."
	StatusStopped   = "Stopped."
	StatusReset     = "Reset."
	StatusNoText    = "No text to report."
	StatusExtracted = "Report generated."
	StatusExiting   = "Previous STT worker is still exiting..."
)

// Notification is an error the user should see.
type Notification struct {
	Text  string
	Fatal bool
	At    time.Time
}

// Listener receives session updates. Any field may be nil. Callbacks run on
// the goroutine that calls Tick and must not call back into the Session.
type Listener struct {
	Status func(line string)
	Text   func(res transcript.Result)
	Notify func(n Notification)
}

// Coordinator is the part of [worker.Coordinator] the session drives.
type Coordinator interface {
	Start(ctx context.Context) (bool, error)
	Stop()
	Poll() []worker.Message
	Reap() (worker.Exit, bool)
	Alive() bool
}

var _ Coordinator = (*worker.Coordinator)(nil)

// Option configures a [Session].
type Option func(*Session)

// WithListener sets the update callbacks.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session is the headless dictation window. All methods are safe for
// concurrent use.
type Session struct {
	coord     Coordinator
	corrector *transcript.Holder
	metrics   *observe.Metrics
	log       *slog.Logger
	listener  Listener

	// tickMu serializes Tick with the status changes of Start, Stop and
	// Reset, so listener callbacks see messages in worker order.
	tickMu sync.Mutex

	mu            sync.Mutex
	extractor     *structure.Extractor
	status        string
	live          []string
	editable      []string
	notifications []Notification
	lastRecord    *structure.Record
}

// New returns an idle session that corrects text with corrector and
// structures it against dict. dict may be nil.
func New(coord Coordinator, corrector *transcript.Holder, dict *dictionary.Dictionary, opts ...Option) *Session {
	s := &Session{
		coord:     coord,
		corrector: corrector,
		extractor: structure.NewExtractor(dict),
		status:    StatusIdle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.corrector == nil {
		s.corrector = transcript.NewHolder(nil)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Start launches the worker unless it is already running. While a stopped
// worker is still exiting, Start only reports that in the status line.
func (s *Session) Start(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.coord.Alive() {
		if _, err := s.coord.Start(ctx); errors.Is(err, worker.ErrStillExiting) {
			s.setStatus(StatusExiting)
		}
		return nil
	}
	s.setStatus(StatusStarting)
	started, err := s.coord.Start(ctx)
	if errors.Is(err, worker.ErrStillExiting) {
		s.setStatus(StatusExiting)
		return nil
	}
	if err != nil {
		s.notify(Notification{Text: fmt.Sprintf("Failed to start STT worker: %v", err), Fatal: true})
		return fmt.Errorf("dictation: start worker: %w", err)
	}
	if started {
		s.log.Info("dictation: worker started")
	}
	return nil
}

// Stop stops the worker, waiting for it as [worker.Coordinator.Stop] does,
// and applies whatever it reported on the way out.
func (s *Session) Stop() {
	s.coord.Stop()
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.tick(context.Background())
	s.setStatus(StatusStopped)
}

// Toggle stops a running worker or starts a new one.
func (s *Session) Toggle(ctx context.Context) error {
	if s.coord.Alive() {
		s.Stop()
		return nil
	}
	return s.Start(ctx)
}

// Reset stops the worker and clears both transcripts.
func (s *Session) Reset() {
	s.coord.Stop()
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	_ = s.coord.Poll()
	s.mu.Lock()
	s.live, s.editable, s.lastRecord = nil, nil, nil
	s.mu.Unlock()
	s.setStatus(StatusReset)
}

// Tick surfaces a worker that exited on its own, then applies every pending
// message in order. A message that cannot be handled is logged and skipped.
// Concurrent calls run one after the other.
func (s *Session) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.tick(ctx)
}

func (s *Session) tick(ctx context.Context) {
	exit, exited := s.coord.Reap()
	for _, m := range s.coord.Poll() {
		s.handleSafely(ctx, m)
	}
	if exited {
		s.log.Info("dictation: worker exited", "worker_id", exit.ID, "code", exit.Code, "err", exit.Err)
		s.setStatus(fmt.Sprintf("STT worker exited (code %d)", exit.Code))
	}
}

// Run calls Tick every [TickInterval] until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

func (s *Session) handleSafely(ctx context.Context, m worker.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dictation: message handling error", "kind", m.Kind, "panic", r)
		}
	}()
	s.handle(ctx, m)
}

func (s *Session) handle(ctx context.Context, m worker.Message) {
	switch m.Kind {
	case worker.KindStatus:
		s.log.Debug("dictation: status", "msg", m.Text)
		s.setStatus(m.Text)
	case worker.KindAudioLevel:
		s.setStatus(fmt.Sprintf("Listening... mic rms=%.4f", m.RMS))
	case worker.KindError:
		s.log.Warn("dictation: worker error", "msg", m.Text, "fatal", m.Fatal)
		at := m.At
		if at.IsZero() {
			at = time.Now()
		}
		s.notify(Notification{Text: m.Text, Fatal: m.Fatal, At: at})
	case worker.KindText:
		if strings.TrimSpace(m.Text) == "" {
			return
		}
		res := s.correct(ctx, m.Text)
		s.mu.Lock()
		s.live = append(s.live, res.Corrected)
		s.editable = append(s.editable, res.Corrected)
		s.mu.Unlock()
		s.log.Info("dictation: text", "text", res.Corrected, "corrections", len(res.Corrections))
		if s.listener.Text != nil {
			s.listener.Text(res)
		}
	default:
		s.log.Warn("dictation: unknown message", "kind", m.Kind)
	}
}

func (s *Session) correct(ctx context.Context, text string) transcript.Result {
	ctx, span := observe.StartSpan(ctx, "dictation.correct",
		trace.WithAttributes(attribute.Int("text.length", len(text))),
	)
	start := time.Now()
	res := s.corrector.Correct(text)
	s.metrics.CorrectionDuration.Record(ctx, time.Since(start).Seconds())
	for _, c := range res.Corrections {
		s.metrics.RecordCorrection(ctx, c.Method)
	}
	span.SetAttributes(attribute.Int("corrections", len(res.Corrections)))
	observe.EndSpan(span, nil)
	return res
}

// Extract structures the editable transcript. It returns false, and sets
// the "No text to report." status, when there is nothing to structure.
func (s *Session) Extract() (structure.Record, bool) {
	text := s.Editable()
	if text == "" {
		s.setStatus(StatusNoText)
		return structure.Record{}, false
	}
	s.mu.Lock()
	rec := s.extractor.Extract(text)
	s.lastRecord = &rec
	s.mu.Unlock()
	s.setStatus(StatusExtracted)
	return rec, true
}

// ReloadDictionary structures future extractions against dict. Correction
// follows the [transcript.Holder] the session was built with, which the
// caller swaps separately.
func (s *Session) ReloadDictionary(dict *dictionary.Dictionary) {
	s.mu.Lock()
	s.extractor = structure.NewExtractor(dict)
	s.mu.Unlock()
	s.log.Info("dictation: dictionary reloaded")
}

// SetEditable replaces the editable transcript, as a user edit would.
func (s *Session) SetEditable(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editable = nil
	if text = strings.TrimSpace(text); text != "" {
		s.editable = strings.Split(text, "\n")
	}
}

// Live returns the read-only transcript, one corrected line per utterance.
func (s *Session) Live() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.live, "\n")
}

// Editable returns the user-editable transcript, trimmed.
func (s *Session) Editable() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(strings.Join(s.editable, "\n"))
}

// StatusLine returns the current status line.
func (s *Session) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Notifications returns every error reported so far, oldest first.
func (s *Session) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

// LastRecord returns the most recent extraction, if any.
func (s *Session) LastRecord() (structure.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRecord == nil {
		return structure.Record{}, false
	}
	return *s.lastRecord, true
}

// Running reports whether the worker is alive.
func (s *Session) Running() bool { return s.coord.Alive() }

func (s *Session) setStatus(line string) {
	s.mu.Lock()
	s.status = line
	s.mu.Unlock()
	if s.listener.Status != nil {
		s.listener.Status(line)
	}
}

func (s *Session) notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
	if s.listener.Notify != nil {
		s.listener.Notify(n)
	}
}
