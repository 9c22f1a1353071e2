package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/structure"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

// loadDictionary returns the dictionary named by override or by the config.
func loadDictionary(cfg *config.Config, override string) (*dictionary.Dictionary, error) {
	path := cfg.Correction.Dictionary
	if override != "" {
		path = override
	}
	if path == "" {
		return nil, errors.New("no dictionary: set correction.dictionary or pass --dict")
	}
	return dictionary.Load(path)
}

// inputText joins args, or reads all of in when there are none.
func inputText(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newCorrectCmd(env *cliEnv) *cobra.Command {
	var (
		dictPath string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "correct [text...]",
		Short: "Correct text against the term dictionary",
		Long: `Correct text against the term dictionary. With arguments the joined
arguments are corrected; otherwise every line of stdin is corrected
separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			out := cmd.OutOrStdout()
			emit := func(res transcript.Result) error {
				if asJSON {
					return writeJSON(out, res)
				}
				_, err := fmt.Fprintln(out, res.Corrected)
				return err
			}

			if len(args) > 0 {
				return emit(c.Correct(strings.Join(args, " ")))
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if err := emit(c.Correct(sc.Text())); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVar(&dictPath, "dict", "", "dictionary file (overrides correction.dictionary)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full correction result as JSON")
	return cmd
}

func newExtractCmd(env *cliEnv) *cobra.Command {
	var (
		dictPath string
		correct  bool
	)
	cmd := &cobra.Command{
		Use:   "extract [text...]",
		Short: "Extract the structured report record from dictation text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Load()
			if err != nil {
				return err
			}
			dict, err := loadDictionary(cfg, dictPath)
			if err != nil {
				return err
			}
			text, err := inputText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return errors.New("no text to report")
			}
			if correct {
				c, err := app.NewCorrector(dict, cfg.Correction)
				if err != nil {
					return err
				}
				var lines []string
				for _, l := range strings.Split(text, "\n") {
					lines = append(lines, c.Correct(l).Corrected)
				}
				text = strings.Join(lines, "\n")
			}
			return writeJSON(cmd.OutOrStdout(), structure.NewExtractor(dict).Extract(text))
		},
	}
	cmd.Flags().StringVar(&dictPath, "dict", "", "dictionary file (overrides correction.dictionary)")
	cmd.Flags().BoolVar(&correct, "correct", false, "correct each line before extracting")
	return cmd
}
