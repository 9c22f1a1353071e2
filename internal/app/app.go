// Package app wires the sonoscribe subsystems into a running dictation
// service.
//
// The App struct owns the full lifecycle: New loads the dictionary, builds
// the corrector and the worker coordinator, Run drives the dictation session
// next to the health endpoint and the file watchers, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options ([WithRunner],
// [WithMetrics]). When an option is not provided, New builds the real
// implementation from the config and the provider registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/dictation"
	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/filewatch"
	"github.com/MrWong99/sonoscribe/internal/health"
	"github.com/MrWong99/sonoscribe/internal/observe"
	"github.com/MrWong99/sonoscribe/internal/transcript"
	"github.com/MrWong99/sonoscribe/internal/worker"
)

// App owns all subsystem lifetimes of one dictation service.
type App struct {
	reg        *config.Registry
	configPath string
	levelVar   *slog.LevelVar

	// mu guards cfg, dict and prompt, which config and dictionary reloads
	// replace.
	mu     sync.RWMutex
	cfg    *config.Config
	dict   *dictionary.Dictionary
	prompt string

	runner   worker.Runner
	metrics  *observe.Metrics
	listener dictation.Listener
	checks   []health.Checker

	holder  *transcript.Holder
	coord   *worker.Coordinator
	session *dictation.Session

	watchMu     sync.Mutex
	watchDone   bool
	dictWatcher *dictionary.Watcher
	cfgWatcher  *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRunner injects the worker runner instead of choosing one from
// worker.mode.
func WithRunner(r worker.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithMetrics injects the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener forwards dictation updates to l.
func WithListener(l dictation.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithConfigPath names the file cfg was loaded from. It is handed to child
// workers and, with WithLevelVar, enables config hot reload.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithReadiness adds checkers to /readyz, such as a probe of a remote STT
// server.
func WithReadiness(checks ...health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, checks...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. reg resolves the STT backends and capture
// sources named in cfg. cfg must already be validated.
//
// New performs all initialisation synchronously: dictionary load, corrector
// construction, prompt assembly and coordinator setup. No worker is started.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Dictionary + corrector ────────────────────────────────────────
	a.holder = transcript.NewHolder(nil)
	if err := a.initDictionary(); err != nil {
		return nil, fmt.Errorf("app: init dictionary: %w", err)
	}

	// ── 2. STT initial prompt ────────────────────────────────────────────
	prompt, err := dictation.BuildPrompt(cfg.Correction.Examples)
	if err != nil {
		return nil, fmt.Errorf("app: build prompt: %w", err)
	}
	a.prompt = prompt

	// ── 3. Coordinator + session ─────────────────────────────────────────
	if a.runner == nil {
		a.runner = runnerFunc(a.startWorker)
	}
	a.coord = worker.NewCoordinator(a.runner,
		worker.WithStopTimeout(cfg.Worker.StopTimeout),
		worker.WithMetrics(a.metrics),
	)
	a.session = dictation.New(a.coord, a.holder, a.dict,
		dictation.WithListener(a.listener),
		dictation.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, func() error {
		a.coord.Stop()
		return a.coord.ExitErr()
	})

	// ── 4. Watchers ──────────────────────────────────────────────────────
	if err := a.initWatchers(); err != nil {
		return nil, fmt.Errorf("app: init watchers: %w", err)
	}

	slog.Info("app initialised",
		"stt", cfg.STT.Provider.Name,
		"model", cfg.STT.Provider.Model,
		"worker_mode", cfg.Worker.Mode,
		"capture", cfg.Capture.Source,
	)
	return a, nil
}

// initDictionary loads the configured dictionary and publishes a corrector
// built from it. Without a dictionary, text passes through uncorrected.
func (a *App) initDictionary() error {
	path := a.cfg.Correction.Dictionary
	if path == "" {
		slog.Warn("no dictionary configured, transcripts will not be corrected")
		return nil
	}
	dict, err := dictionary.Load(path)
	if err != nil {
		return err
	}
	c, err := NewCorrector(dict, a.cfg.Correction)
	if err != nil {
		return err
	}
	a.dict = dict
	a.holder.Store(c)
	slog.Info("dictionary loaded", "path", path, "terms", c.Terms(), "categories", dict.Categories.Names(), "threshold", c.Threshold())
	return nil
}

// initWatchers starts the dictionary and config file watchers configured
// with a positive watch interval.
func (a *App) initWatchers() error {
	interval := a.cfg.Correction.WatchInterval
	if interval <= 0 {
		return nil
	}
	if _, err := a.watchDictionary(a.cfg.Correction.Dictionary, interval); err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		a.watchMu.Lock()
		a.watchDone = true
		a.watchMu.Unlock()
		_, err := a.watchDictionary("", 0)
		return err
	})
	if a.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.configPath, a.onConfigChange, filewatch.WithInterval(interval))
	if err != nil {
		return err
	}
	a.cfgWatcher = w
	a.closers = append(a.closers, func() error { w.Stop(); return nil })
	return nil
}

// watchDictionary replaces the dictionary watcher with one for path and
// returns it, or nil when path is empty.
func (a *App) watchDictionary(path string, interval time.Duration) (*dictionary.Watcher, error) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.dictWatcher != nil {
		a.dictWatcher.Stop()
		a.dictWatcher = nil
	}
	if path == "" || a.watchDone {
		return nil, nil
	}
	w, err := dictionary.NewWatcher(path, func(_, next *dictionary.Dictionary) {
		a.applyDictionary(next)
	}, filewatch.WithInterval(interval))
	if err != nil {
		return nil, err
	}
	a.dictWatcher = w
	return w, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Session returns the dictation session.
func (a *App) Session() *dictation.Session { return a.session }

// Corrector returns the holder of the current corrector.
func (a *App) Corrector() *transcript.Holder { return a.holder }

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Prompt returns the STT initial prompt handed to new workers.
func (a *App) Prompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prompt
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run ticks the dictation session and serves the health endpoint until ctx
// is cancelled. When ctx is done, Run returns context.Canceled (or the
// underlying cause).
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.session.Run(ctx) })

	if addr := a.Config().Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("health endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running")
	return g.Wait()
}

// Handler returns the /healthz, /readyz and /metrics routes.
func (a *App) Handler() http.Handler {
	checks := []health.Checker{
		health.Flag("dictionary", func() bool {
			return a.Config().Correction.Dictionary == "" || a.holder.Load() != nil
		}, "dictionary not loaded"),
		health.Flag("worker", func() bool {
			return a.coord.Alive() || a.coord.ExitErr() == nil
		}, "dictation worker failed"),
	}
	h := health.New(append(checks, a.checks...)...)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the worker and the watchers. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// NewCorrector builds a corrector for dict with the correction settings.
func NewCorrector(dict *dictionary.Dictionary, cc config.CorrectionConfig) (*transcript.Corrector, error) {
	opts, err := cc.CorrectorOptions()
	if err != nil {
		return nil, err
	}
	return transcript.NewCorrector(dict, opts...)
}

// LevelFor maps a config log level onto slog.
func LevelFor(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
