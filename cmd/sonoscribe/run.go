package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/dictation"
	"github.com/MrWong99/sonoscribe/internal/observe"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

func newRunCmd(env *cliEnv) *cobra.Command {
	var (
		noAutostart bool
		showLevel   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a live dictation session driven from the terminal",
		Long: `Start a live dictation session. Corrected lines are printed to stdout,
status changes to stderr. Commands are read from stdin, one per line:

  t, toggle   start or stop dictation
  r, reset    stop and clear the transcript
  p, report   extract the structured record from the transcript
  s, status   print the current status line
  q, quit     stop and exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := env.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sonoscribe"})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(sctx); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			a, err := app.New(ctx, cfg, env.Registry(cfg),
				app.WithConfigPath(env.ConfigPath()),
				app.WithLevelVar(levelVar),
				app.WithListener(terminalListener(out, errOut, showLevel)),
				app.WithReadiness(serverProbes(cfg.STT)...),
			)
			if err != nil {
				return err
			}

			printStartupSummary(errOut, a)
			if !noAutostart {
				if err := a.Session().Start(ctx); err != nil {
					slog.Error("failed to start dictation", "err", err)
				}
			}

			runCtx, cancel := context.WithCancel(ctx)
			go func() {
				defer cancel()
				console(runCtx, cmd.InOrStdin(), out, errOut, a)
			}()

			runErr := a.Run(runCtx)

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancelShutdown()
			if err := a.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "wait for the toggle command before capturing")
	cmd.Flags().BoolVar(&showLevel, "show-level", false, "print microphone level updates")
	return cmd
}

func terminalListener(out, errOut io.Writer, showLevel bool) dictation.Listener {
	return dictation.Listener{
		Status: func(line string) {
			if !showLevel && strings.HasPrefix(line, "Listening... mic rms=") {
				return
			}
			fmt.Fprintf(errOut, "» %s\n", line)
		},
		Text: func(res transcript.Result) {
			fmt.Fprintln(out, res.Corrected)
		},
		Notify: func(n dictation.Notification) {
			prefix := "error"
			if n.Fatal {
				prefix = "FATAL"
			}
			fmt.Fprintf(errOut, "! %s: %s\n", prefix, n.Text)
		},
	}
}

// console executes terminal commands until quit, EOF or ctx ends.
func console(ctx context.Context, in io.Reader, out, errOut io.Writer, a *app.App) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	s := a.Session()
	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}
		switch strings.ToLower(line) {
		case "":
		case "t", "toggle":
			if err := s.Toggle(ctx); err != nil {
				slog.Error("toggle failed", "err", err)
			}
		case "r", "reset":
			s.Reset()
		case "p", "report":
			if rec, ok := s.Extract(); ok {
				_ = writeJSON(out, rec)
			}
		case "s", "status":
			fmt.Fprintf(errOut, "» %s (running=%v)\n", s.StatusLine(), s.Running())
		case "q", "quit", "exit":
			return
		default:
			fmt.Fprintf(errOut, "unknown command %q (toggle, reset, report, status, quit)\n", line)
		}
	}
}

func printStartupSummary(w io.Writer, a *app.App) {
	cfg := a.Config()
	fmt.Fprintln(w, "sonoscribe startup summary")
	fmt.Fprintf(w, "  STT         : %s / %s\n", cfg.STT.Provider.Name, cfg.STT.Provider.Model)
	for _, fb := range cfg.STT.Fallbacks {
		fmt.Fprintf(w, "  fallback    : %s / %s\n", fb.Name, fb.Model)
	}
	fmt.Fprintf(w, "  capture     : %s @ %d Hz, %d ms blocks\n", cfg.Capture.Source, cfg.Capture.SampleRate, cfg.Capture.BlockMs)
	fmt.Fprintf(w, "  gate        : %.2fs, rms >= %.4f\n", cfg.Gate.MinSeconds, cfg.Gate.EnergyThreshold)
	fmt.Fprintf(w, "  worker mode : %s\n", cfg.Worker.Mode)
	dict := cfg.Correction.Dictionary
	if dict == "" {
		dict = "(none)"
	}
	fmt.Fprintf(w, "  dictionary  : %s\n", dict)
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "  listen addr : %s\n", cfg.Server.ListenAddr)
	}
}
