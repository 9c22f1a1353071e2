package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/dictation"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

func newTranscribeFileCmd(env *cliEnv) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transcribe-file <recording.wav>",
		Short: "Run a WAV recording through gating, transcription and correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Load()
			if err != nil {
				return err
			}
			factory, err := env.Registry(cfg).STTFactory(cfg.STT)
			if err != nil {
				return err
			}
			holder := transcript.NewHolder(nil)
			if cfg.Correction.Dictionary != "" {
				dict, err := loadDictionary(cfg, "")
				if err != nil {
					return err
				}
				c, err := app.NewCorrector(dict, cfg.Correction)
				if err != nil {
					return err
				}
				holder.Store(c)
			}
			prompt, err := dictation.BuildPrompt(cfg.Correction.Examples)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return app.TranscribeFile(cmd.Context(), cfg, factory, holder, prompt, args[0], func(u app.Utterance) {
				if asJSON {
					_ = writeJSON(out, u)
					return
				}
				fmt.Fprintf(out, "[%s +%s] %s\n", u.Start, u.Duration, u.Result.Corrected)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print every utterance as JSON")
	return cmd
}
