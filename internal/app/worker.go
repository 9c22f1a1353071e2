package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/worker"
)

// WorkerCommand is the hidden sub-command a [worker.ProcessRunner] child is
// started with.
const WorkerCommand = "worker"

// runnerFunc adapts a function to [worker.Runner].
type runnerFunc func(ctx context.Context, id string, out worker.Emitter) (worker.Handle, error)

func (f runnerFunc) Start(ctx context.Context, id string, out worker.Emitter) (worker.Handle, error) {
	return f(ctx, id, out)
}

// startWorker launches a worker with the configuration current at the time
// of the call, so config reloads apply to the next dictation.
func (a *App) startWorker(ctx context.Context, id string, out worker.Emitter) (worker.Handle, error) {
	a.mu.RLock()
	cfg, prompt := a.cfg, a.prompt
	a.mu.RUnlock()

	wcfg := WorkerConfig(cfg, prompt)
	var r worker.Runner
	switch cfg.Worker.Mode {
	case config.ModeGoroutine:
		r = &worker.GoroutineRunner{Build: func() (*worker.Worker, error) {
			return BuildWorker(cfg, a.reg, wcfg, a.workerDeps())
		}}
	default:
		args := []string{WorkerCommand}
		if a.configPath != "" {
			args = append(args, "--config", a.configPath)
		}
		r = &worker.ProcessRunner{Args: args, Config: wcfg}
	}
	return r.Start(ctx, id, out)
}

func (a *App) workerDeps() worker.Deps {
	return worker.Deps{Metrics: a.metrics}
}

// WorkerConfig derives the worker parameters from cfg.
func WorkerConfig(cfg *config.Config, prompt string) worker.Config {
	return worker.Config{
		Provider:      cfg.STT.Provider.Name,
		Engine:        cfg.STT.EngineConfig(cfg.STT.Provider),
		Transcribe:    cfg.STT.TranscribeOptions(prompt),
		Capture:       cfg.StreamConfig(),
		Gate:          cfg.GateConfig(),
		PollInterval:  cfg.Worker.PollInterval,
		LevelInterval: cfg.Worker.LevelInterval,
		DumpDir:       cfg.Worker.DumpDir,
	}
}

// BuildWorker resolves the STT backends and the capture source of cfg
// through reg and returns a worker running wcfg. deps.Factory and
// deps.Source are filled in; the other fields are kept.
func BuildWorker(cfg *config.Config, reg *config.Registry, wcfg worker.Config, deps worker.Deps) (*worker.Worker, error) {
	factory, err := reg.STTFactory(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("stt backend: %w", err)
	}
	src, err := reg.CreateSource(cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture source: %w", err)
	}
	deps.Factory, deps.Source = factory, src
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return worker.New(wcfg, deps)
}
