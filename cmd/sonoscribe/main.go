// Command sonoscribe is a live medical dictation tool: it captures the
// microphone, transcribes gated utterances with whisper and corrects the
// transcript against a curated term dictionary.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/config"
)

// envPrefix namespaces the environment variables bound to the global flags
// (SONOSCRIBE_CONFIG, SONOSCRIBE_LOG_LEVEL).
const envPrefix = "SONOSCRIBE"

// levelVar is the process log level; config reloads adjust it.
var levelVar = new(slog.LevelVar)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "sonoscribe",
		Short:         "Live ultrasound dictation with dictionary-based term correction",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().String("log-level", "", "override server.log_level (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	env := &cliEnv{v: v}
	root.AddCommand(
		newRunCmd(env),
		newWorkerCmd(env),
		newCorrectCmd(env),
		newExtractCmd(env),
		newTranscribeFileCmd(env),
		newMCPCmd(env),
		newDevicesCmd(),
	)
	return root
}

// cliEnv resolves the configuration shared by every sub-command.
type cliEnv struct {
	v   *viper.Viper
	cfg *config.Config
}

// ConfigPath returns the config file named by flag or environment.
func (e *cliEnv) ConfigPath() string { return e.v.GetString("config") }

// Load reads the configuration once, applies the log level override and
// installs the process logger.
func (e *cliEnv) Load() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if path := e.ConfigPath(); path != "" {
		cfg, err = config.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if lvl := config.LogLevel(e.v.GetString("log_level")); lvl != "" {
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid log level %q", lvl)
		}
		cfg.Server.LogLevel = lvl
	}
	levelVar.Set(app.LevelFor(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))
	e.cfg = cfg
	return cfg, nil
}

// Registry returns a registry with every built-in backend and source.
func (e *cliEnv) Registry(cfg *config.Config) *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.STT.ModelDir)
	return reg
}
