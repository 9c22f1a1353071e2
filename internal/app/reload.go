package app

import (
	"log/slog"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/dictation"
	"github.com/MrWong99/sonoscribe/internal/dictionary"
)

// applyDictionary swaps in a corrector and extractor for dict. A dictionary
// the current correction settings cannot index is rejected and the previous
// one stays active.
func (a *App) applyDictionary(dict *dictionary.Dictionary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, err := NewCorrector(dict, a.cfg.Correction)
	if err != nil {
		slog.Error("dictionary reload rejected", "err", err)
		return
	}
	a.dict = dict
	a.holder.Store(c)
	a.session.ReloadDictionary(dict)
	slog.Info("dictionary reloaded", "terms", c.Terms())
}

// onConfigChange applies the hot-reloadable part of a config change. The
// rest takes effect when the next worker starts.
func (a *App) onConfigChange(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.IsZero() {
		return
	}

	prompt := a.Prompt()
	if old.Correction.Examples != next.Correction.Examples {
		p, err := dictation.BuildPrompt(next.Correction.Examples)
		if err != nil {
			slog.Error("config reload rejected", "err", err)
			return
		}
		prompt = p
	}

	a.mu.Lock()
	a.cfg, a.prompt = next, prompt
	dict := a.dict
	a.mu.Unlock()

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(LevelFor(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.DictionaryPathChanged {
		w, err := a.watchDictionary(next.Correction.Dictionary, next.Correction.WatchInterval)
		switch {
		case err != nil:
			slog.Error("dictionary watch failed, keeping the current dictionary", "path", next.Correction.Dictionary, "err", err)
		case w != nil:
			a.applyDictionary(w.Current())
		}
	} else if d.CorrectionChanged && dict != nil {
		a.applyDictionary(dict)
	}

	if len(d.RestartRequired) > 0 {
		slog.Info("config change applies to the next dictation", "sections", d.RestartRequired)
	}
}
