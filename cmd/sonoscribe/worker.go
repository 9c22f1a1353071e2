package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/worker"
)

// Exit codes of the worker sub-command, surfaced as "exited (code N)".
const (
	exitWorkerFailed = 1
	exitEngineLoad   = 2
	exitCaptureOpen  = 3
	exitWorkerPanic  = 4
)

func newWorkerCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:    app.WorkerCommand,
		Short:  "Run a dictation worker over stdin/stdout (started by run)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := env.Load()
			if err != nil {
				return err
			}
			reg := env.Registry(cfg)
			err = worker.ServeProcess(cmd.Context(), os.Stdin, os.Stdout, func(e worker.Envelope) (*worker.Worker, error) {
				slog.SetDefault(slog.Default().With("worker_id", e.ID))
				return app.BuildWorker(cfg, reg, e.Config, worker.Deps{})
			})
			if err == nil {
				return nil
			}
			code := exitWorkerFailed
			switch {
			case errors.Is(err, worker.ErrEngineLoad):
				code = exitEngineLoad
			case errors.Is(err, worker.ErrCaptureOpen):
				code = exitCaptureOpen
			case errors.Is(err, worker.ErrPanic):
				code = exitWorkerPanic
			}
			return &exitError{code: code, err: err}
		},
	}
}
