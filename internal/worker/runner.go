package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// StopCommand is the control line that asks a child worker to stop.
const StopCommand = "stop"

// Handle controls one running worker.
type Handle interface {
	// Stop asks the worker to finish cooperatively. It does not wait.
	Stop()

	// Kill terminates the worker without waiting for it to notice Stop.
	Kill()

	// Done is closed once the worker has exited and every message it
	// produced has been delivered to the Emitter.
	Done() <-chan struct{}

	// Err is the exit error. Only valid after Done is closed.
	Err() error
}

// Runner is the execution-context policy: it decides where a worker runs.
type Runner interface {
	// Start launches a worker that reports to out. id labels logs.
	Start(ctx context.Context, id string, out Emitter) (Handle, error)
}

// ─── goroutine ──────────────────────────────────────────────────────────────

// BuildFunc constructs a fresh worker for one session.
type BuildFunc func() (*Worker, error)

// GoroutineRunner runs workers on a dedicated goroutine in this process.
// Panics are contained and reported as fatal errors, but a crash inside
// native code still takes the whole process down; use [ProcessRunner] when
// that matters.
type GoroutineRunner struct {
	Build BuildFunc
}

var _ Runner = (*GoroutineRunner)(nil)

// Start implements [Runner].
func (r *GoroutineRunner) Start(ctx context.Context, id string, out Emitter) (Handle, error) {
	if r.Build == nil {
		return nil, errors.New("worker: goroutine runner has no build function")
	}
	w, err := r.Build()
	if err != nil {
		return nil, fmt.Errorf("worker: build: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &goroutineHandle{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	log := slog.With("worker_id", id)
	go func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("worker: panic outside the run loop", "panic", rec)
				out.Emit(Fatal(fmt.Sprintf("worker panic: %v", rec)))
				h.err = fmt.Errorf("%w: %v", ErrPanic, rec)
			}
		}()
		log.Info("worker started", "mode", "goroutine")
		h.err = w.Run(ctx, out, h.stop)
	}()
	return h, nil
}

type goroutineHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
	err      error
}

func (h *goroutineHandle) Stop()                 { h.stopOnce.Do(func() { close(h.stop) }) }
func (h *goroutineHandle) Kill()                 { h.Stop(); h.cancel() }
func (h *goroutineHandle) Done() <-chan struct{} { return h.done }
func (h *goroutineHandle) Err() error            { return h.err }

// ─── process ────────────────────────────────────────────────────────────────

// Envelope is the first line a child worker reads from stdin.
type Envelope struct {
	ID     string `json:"id"`
	Config Config `json:"config"`
}

// ProcessRunner runs each worker in a child process, by default the current
// executable with the "worker" sub-command. The child reads an [Envelope]
// and then control lines from stdin, writes messages as JSON lines to
// stdout and logs to stderr, which is forwarded into slog.
type ProcessRunner struct {
	// Path of the executable. Defaults to os.Executable().
	Path string

	// Args passed to the executable. Defaults to ["worker"].
	Args []string

	// Env is appended to the parent's environment.
	Env []string

	// Config is sent to the child in the envelope.
	Config Config
}

var _ Runner = (*ProcessRunner)(nil)

// Start implements [Runner].
func (r *ProcessRunner) Start(ctx context.Context, id string, out Emitter) (Handle, error) {
	path := r.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("worker: resolve executable: %w", err)
		}
		path = exe
	}
	args := r.Args
	if args == nil {
		args = []string{"worker"}
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start %s: %w", path, err)
	}

	log := slog.With("worker_id", id, "pid", cmd.Process.Pid)
	h := &processHandle{cmd: cmd, stdin: stdin, done: make(chan struct{}), log: log}

	if err := NewEncoder(stdin).Encode(Envelope{ID: id, Config: r.Config}); err != nil {
		h.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("worker: send envelope: %w", err)
	}
	log.Info("worker started", "mode", "process")

	var pipes sync.WaitGroup
	pipes.Go(func() { readMessages(stdout, out, log) })
	pipes.Go(func() { forwardLogs(stderr, log) })
	go func() {
		pipes.Wait()
		h.err = cmd.Wait()
		log.Info("worker exited", "code", ExitCode(h.err))
		close(h.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.done:
		}
	}()
	return h, nil
}

// readMessages forwards every decodable line of r to out. Undecodable lines
// are logged and skipped.
func readMessages(r io.Reader, out Emitter, log *slog.Logger) {
	dec := NewDecoder(r)
	for {
		var m Message
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Warn("worker: bad message line", "err", err)
			if !errors.Is(err, ErrBadLine) {
				// Scanner failure; the stream is unusable.
				_, _ = io.Copy(io.Discard, r)
				return
			}
			continue
		}
		out.Emit(m)
	}
}

// forwardLogs copies the child's stderr into slog line by line.
func forwardLogs(r io.Reader, log *slog.Logger) {
	dec := NewDecoder(r)
	for {
		line, err := dec.Next()
		if err != nil {
			return
		}
		log.Info(line, "source", "worker")
	}
}

type processHandle struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stopOnce sync.Once
	done     chan struct{}
	err      error
	log      *slog.Logger
}

func (h *processHandle) Stop() {
	h.stopOnce.Do(func() {
		if _, err := io.WriteString(h.stdin, StopCommand+"\n"); err != nil {
			h.log.Debug("worker: send stop", "err", err)
		}
		_ = h.stdin.Close()
	})
}

func (h *processHandle) Kill() {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn("worker: kill", "err", err)
	}
}

func (h *processHandle) Done() <-chan struct{} { return h.done }
func (h *processHandle) Err() error            { return h.err }

// ExitCode maps a Handle.Err value to a process-style exit code: 0 for nil,
// the child's code for *exec.ExitError and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}

// ServeProcess is the child side of [ProcessRunner]. It reads the envelope
// from in, builds the worker and runs it, writing messages to out. The
// worker stops on a stop line or when in reaches EOF, which is what
// happens when the parent dies.
func ServeProcess(ctx context.Context, in io.Reader, out io.Writer, build func(Envelope) (*Worker, error)) error {
	dec := NewDecoder(in)
	enc := NewEncoder(out)

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return fmt.Errorf("worker: read envelope: %w", err)
	}
	w, err := build(env)
	if err != nil {
		enc.Emit(Fatal(fmt.Sprintf("Failed to start worker: %v", err)))
		enc.Emit(Status("Stopped."))
		return err
	}

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for {
			line, err := dec.Next()
			if err != nil {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), StopCommand) {
				return
			}
			slog.Warn("worker: unknown control line", "line", line)
		}
	}()
	return w.Run(ctx, enc, stop)
}
