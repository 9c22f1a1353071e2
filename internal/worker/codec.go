package worker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrBadLine is wrapped by [Decoder.Decode] when a line is not valid JSON
// for the target. The decoder stays usable.
var ErrBadLine = errors.New("worker: bad line")

// maxLineSize bounds one JSON line. Transcripts of a few seconds of speech
// are far below it.
const maxLineSize = 1 << 20

// Encoder writes messages as newline-delimited JSON. It is safe for
// concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

// Emit implements [Emitter]. Write failures are dropped: a worker whose
// reader went away has nobody left to tell.
func (e *Encoder) Emit(m Message) { _ = e.Encode(m) }

// Decoder reads newline-delimited JSON.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{sc: sc}
}

// Decode reads the next non-empty line into v. It returns io.EOF at the end
// of the stream.
func (d *Decoder) Decode(v any) error {
	for d.sc.Scan() {
		d.line++
		b := d.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("%w %d: %w", ErrBadLine, d.line, err)
		}
		return nil
	}
	if err := d.sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Next reads the next raw line, skipping empty ones.
func (d *Decoder) Next() (string, error) {
	for d.sc.Scan() {
		d.line++
		if b := d.sc.Bytes(); len(b) > 0 {
			return string(b), nil
		}
	}
	if err := d.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
