package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/filewatch"
	"github.com/MrWong99/sonoscribe/internal/mcp"
)

// version is reported to MCP clients. Overridden at link time.
var version = "dev"

func newMCPCmd(env *cliEnv) *cobra.Command {
	var dictPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the dictionary tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := env.Load()
			if err != nil {
				return err
			}
			dict, err := loadDictionary(cfg, dictPath)
			if err != nil {
				return err
			}
			c, err := app.NewCorrector(dict, cfg.Correction)
			if err != nil {
				return err
			}
			vocab := &mcp.Vocabulary{}
			vocab.Store(c, dict)

			if cfg.Correction.WatchInterval > 0 {
				path := cfg.Correction.Dictionary
				if dictPath != "" {
					path = dictPath
				}
				w, err := dictionary.NewWatcher(path, func(_, d *dictionary.Dictionary) {
					c, err := app.NewCorrector(d, cfg.Correction)
					if err != nil {
						slog.Warn("mcp: rebuild corrector", "err", err)
						return
					}
					vocab.Store(c, d)
					slog.Info("mcp: dictionary reloaded", "terms", len(d.Terms), "categories", d.Categories.Names())
				}, filewatch.WithInterval(cfg.Correction.WatchInterval))
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return mcp.Serve(ctx, vocab, version, &mcpsdk.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&dictPath, "dict", "", "dictionary file (overrides correction.dictionary)")
	return cmd
}
