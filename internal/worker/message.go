// Package worker runs the capture, gate and transcription loop and carries
// its progress to the display side as a stream of [Message]s.
//
// A [Worker] owns one microphone stream and one STT engine. It reports
// through an [Emitter]: status lines, periodic audio levels, recognised text
// and errors. The [Coordinator] starts and stops workers through a [Runner],
// which decides the execution context (a goroutine in this process, or a
// child process speaking JSON lines over stdio), and buffers their messages
// in a [Mailbox] until the display polls them.
package worker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the message discriminator.
type Kind string

const (
	KindStatus     Kind = "status"
	KindAudioLevel Kind = "audio_level"
	KindText       Kind = "text"
	KindError      Kind = "error"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindStatus, KindAudioLevel, KindText, KindError:
		return true
	}
	return false
}

// Message is one worker-to-display event.
//
// Text carries the status line for KindStatus, the recognised text for
// KindText and the description for KindError. RMS is only set for
// KindAudioLevel. Fatal marks errors after which the worker exits.
type Message struct {
	Kind  Kind
	Text  string
	RMS   float64
	Fatal bool
	At    time.Time
}

// Status returns a status message.
func Status(msg string) Message { return Message{Kind: KindStatus, Text: msg, At: time.Now()} }

// Statusf formats a status message.
func Statusf(format string, args ...any) Message { return Status(fmt.Sprintf(format, args...)) }

// AudioLevel returns a level report.
func AudioLevel(rms float64) Message {
	return Message{Kind: KindAudioLevel, RMS: rms, At: time.Now()}
}

// Text returns a transcript message.
func Text(text string) Message { return Message{Kind: KindText, Text: text, At: time.Now()} }

// Error returns a recoverable error message.
func Error(msg string) Message { return Message{Kind: KindError, Text: msg, At: time.Now()} }

// Fatal returns an error message after which the worker stops.
func Fatal(msg string) Message {
	m := Error(msg)
	m.Fatal = true
	return m
}

// String renders m for logs.
func (m Message) String() string {
	switch m.Kind {
	case KindAudioLevel:
		return fmt.Sprintf("audio_level rms=%.4f", m.RMS)
	case KindError:
		if m.Fatal {
			return "fatal error: " + m.Text
		}
		return "error: " + m.Text
	default:
		return string(m.Kind) + ": " + m.Text
	}
}

// wireMessage is the JSON layout: {"type":"status","msg":"..."},
// {"type":"audio_level","rms":0.01}, {"type":"text","text":"..."} and
// {"type":"error","msg":"...","fatal":true}.
type wireMessage struct {
	Type  Kind     `json:"type"`
	Msg   string   `json:"msg,omitempty"`
	Text  string   `json:"text,omitempty"`
	RMS   *float64 `json:"rms,omitempty"`
	Fatal bool     `json:"fatal,omitempty"`
	At    int64    `json:"at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Kind, Fatal: m.Fatal}
	if !m.At.IsZero() {
		w.At = m.At.UnixMilli()
	}
	switch m.Kind {
	case KindText:
		w.Text = m.Text
	case KindAudioLevel:
		rms := m.RMS
		w.RMS = &rms
	default:
		w.Msg = m.Text
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown types are rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.IsValid() {
		return fmt.Errorf("worker: unknown message type %q", w.Type)
	}
	*m = Message{Kind: w.Type, Fatal: w.Fatal}
	if w.At != 0 {
		m.At = time.UnixMilli(w.At)
	}
	switch w.Type {
	case KindText:
		m.Text = w.Text
	case KindAudioLevel:
		if w.RMS != nil {
			m.RMS = *w.RMS
		}
	default:
		m.Text = w.Msg
	}
	return nil
}
