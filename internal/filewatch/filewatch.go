// Package filewatch reloads a file whenever it changes on disk.
//
// A [Watcher] checks the file whenever fsnotify reports activity in its
// directory and, as a fallback, on a fixed polling interval. A check compares
// the modification time and, when it moved, the SHA-256 of the content
// against the last accepted version. Only content that actually changed and
// parses successfully replaces the current value; parse failures are logged
// and the previous value stays in effect.
package filewatch

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 2 * time.Second

// ParseFunc turns raw file contents into a value. It should validate fully:
// whatever it returns without error becomes the current value.
type ParseFunc[T any] func(data []byte) (T, error)

// Watcher holds the latest successfully parsed version of a file.
type Watcher[T any] struct {
	path     string
	kind     string
	parse    ParseFunc[T]
	onChange func(old, new T)
	interval time.Duration

	// checkMu serialises whole checks; mu guards the fields below.
	checkMu sync.Mutex
	mu      sync.Mutex
	current T
	mtime   time.Time
	sum     [sha256.Size]byte

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a [Watcher].
type Option func(*options)

type options struct {
	interval time.Duration
	kind     string
	notify   bool
}

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithNotify toggles fsnotify. When disabled, or when fsnotify cannot watch
// the directory, the watcher only polls. Default: enabled.
func WithNotify(enabled bool) Option {
	return func(o *options) { o.notify = enabled }
}

// WithKind labels log records ("dictionary", "config").
func WithKind(kind string) Option {
	return func(o *options) { o.kind = kind }
}

// New parses path once and starts polling it. A missing or invalid initial
// file is an error. onChange may be nil; it runs on the polling goroutine.
func New[T any](path string, parse ParseFunc[T], onChange func(old, new T), opts ...Option) (*Watcher[T], error) {
	o := options{interval: DefaultInterval, kind: "file", notify: true}
	for _, opt := range opts {
		opt(&o)
	}
	w := &Watcher[T]{
		path:     path,
		kind:     o.kind,
		parse:    parse,
		onChange: onChange,
		interval: o.interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	data, mtime, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("filewatch: initial read of %q: %w", path, err)
	}
	v, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("filewatch: initial parse of %q: %w", path, err)
	}
	w.current, w.mtime, w.sum = v, mtime, sha256.Sum256(data)

	var events *fsnotify.Watcher
	if o.notify {
		events = w.notifier()
	}
	go w.loop(events)
	return w, nil
}

// notifier watches the file's directory, which keeps working when editors
// replace the file by renaming a temporary one over it. It returns nil when
// fsnotify is unavailable.
func (w *Watcher[T]) notifier() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("filewatch: fsnotify unavailable, polling only", "kind", w.kind, "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Debug("filewatch: cannot watch directory, polling only", "kind", w.kind, "path", w.path, "err", err)
		_ = fw.Close()
		return nil
	}
	return fw
}

// Current returns the most recently accepted value.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for the polling goroutine to exit. It is safe
// to call more than once.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher[T]) loop(fw *fsnotify.Watcher) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()

	// A nil channel blocks forever, which disables the event cases.
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.Check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				w.Check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("filewatch: fsnotify error", "kind", w.kind, "path", w.path, "err", err)
		}
	}
}

// Check performs one poll immediately. It is exported so callers can force a
// reload (for example on SIGHUP) without waiting for the next tick.
func (w *Watcher[T]) Check() {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("filewatch: cannot stat file", "kind", w.kind, "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if same {
		return
	}

	data, mtime, err := read(w.path)
	if err != nil {
		slog.Warn("filewatch: cannot read file", "kind", w.kind, "path", w.path, "err", err)
		return
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	// Remember the mtime even on failure so a broken file is parsed once,
	// not on every tick.
	w.mtime = mtime
	if sum == w.sum {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	v, err := w.parse(data)
	if err != nil {
		slog.Warn("filewatch: rejected invalid file", "kind", w.kind, "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current, w.sum = v, sum
	w.mu.Unlock()

	slog.Info("filewatch: reloaded", "kind", w.kind, "path", w.path)
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

func read(path string) ([]byte, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, info.ModTime(), err
	}
	return data, info.ModTime(), nil
}
