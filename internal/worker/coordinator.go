package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sonoscribe/internal/observe"
)

// DefaultStopTimeout is how long Stop waits for a cooperative exit before
// killing the worker.
const DefaultStopTimeout = 3 * time.Second

// ErrStillExiting is returned by Start while a stopped worker has not exited
// yet.
var ErrStillExiting = errors.New("worker: previous worker still exiting")

// CoordinatorOption configures a [Coordinator].
type CoordinatorOption func(*Coordinator)

// WithStopTimeout overrides [DefaultStopTimeout].
func WithStopTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// Exit describes a worker that has gone away.
type Exit struct {
	ID   string
	Err  error
	Code int
}

// Coordinator is the display-side owner of at most one worker at a time.
// Messages are buffered in a [Mailbox] and collected with Poll; nothing is
// pushed to the display.
type Coordinator struct {
	runner      Runner
	mailbox     *Mailbox
	stopTimeout time.Duration
	metrics     *observe.Metrics

	mu      sync.Mutex
	id      string
	handle  Handle
	exitErr error
	// stopping is the worker Stop is waiting on or gave up on. It is kept
	// until Done closes.
	stopping Handle
}

// NewCoordinator returns an idle coordinator that starts workers with r.
func NewCoordinator(r Runner, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		runner:      r,
		mailbox:     NewMailbox(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Start launches a worker unless one is already alive, in which case it
// returns false without doing anything. While a stopped worker is still
// exiting it returns [ErrStillExiting]. The worker inherits ctx.
func (c *Coordinator) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil && !isDone(c.handle) {
		return false, nil
	}
	if c.stopping != nil {
		if !isDone(c.stopping) {
			return false, ErrStillExiting
		}
		c.exitErr = c.stopping.Err()
		c.stopping = nil
	}

	id := uuid.NewString()
	h, err := c.runner.Start(ctx, id, c.mailbox)
	if err != nil {
		return false, err
	}
	c.id, c.handle, c.exitErr = id, h, nil
	c.metrics.ActiveWorkers.Add(ctx, 1)
	go func() {
		<-h.Done()
		c.metrics.ActiveWorkers.Add(context.Background(), -1)
	}()
	return true, nil
}

// Stop asks the worker to stop, waits up to the stop timeout and kills it
// if it is still alive. It returns once the worker is gone, or after a
// second timeout if even Kill cannot reach it (an in-process worker stuck
// in a native call). Such a worker still counts as alive and blocks Start
// until it exits. Stop without a worker is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	h, id := c.handle, c.id
	c.handle = nil
	if h != nil {
		c.stopping = h
	}
	c.mu.Unlock()
	if h == nil {
		return
	}

	log := slog.With("worker_id", id)
	h.Stop()
	select {
	case <-h.Done():
	case <-time.After(c.stopTimeout):
		log.Warn("worker did not stop in time, killing", "timeout", c.stopTimeout)
		h.Kill()
		select {
		case <-h.Done():
		case <-time.After(c.stopTimeout):
			log.Error("worker did not exit after kill, abandoning it")
			return
		}
	}

	c.mu.Lock()
	c.exitErr = h.Err()
	c.stopping = nil
	c.mu.Unlock()
}

// Poll returns every message received since the last call. It never blocks.
func (c *Coordinator) Poll() []Message { return c.mailbox.Drain() }

// Reap reports a worker that exited on its own and forgets its handle. It
// returns ok=false while the worker runs or when none was started. Every
// message of a reaped worker is already in the mailbox, so callers should
// Reap first and Poll afterwards.
func (c *Coordinator) Reap() (Exit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil || !isDone(c.handle) {
		return Exit{}, false
	}
	err := c.handle.Err()
	e := Exit{ID: c.id, Err: err, Code: ExitCode(err)}
	c.handle = nil
	c.exitErr = err
	return e, true
}

// Alive reports whether a worker is running, including one that was
// stopped but has not exited yet.
func (c *Coordinator) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping != nil && !isDone(c.stopping) {
		return true
	}
	return c.handle != nil && !isDone(c.handle)
}

// ID returns the id of the current or most recent worker.
func (c *Coordinator) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// ExitErr returns the exit error of the most recently finished worker.
func (c *Coordinator) ExitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

func isDone(h Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
