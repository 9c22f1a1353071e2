package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// takes effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CorrectionChanged is true when the corrector must be rebuilt.
	CorrectionChanged bool

	// DictionaryPathChanged is true when the dictionary file itself moved;
	// the dictionary watcher has to be restarted.
	DictionaryPathChanged bool

	// RestartRequired lists the sections whose changes only apply to the
	// next worker start.
	RestartRequired []string
}

// IsZero reports whether d describes no change at all.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.CorrectionChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Correction, new.Correction
	if oc.Threshold != nc.Threshold ||
		oc.Similarity != nc.Similarity ||
		oc.MaxWindow != nc.MaxWindow ||
		oc.MinCandidateLen != nc.MinCandidateLen ||
		oc.Dictionary != nc.Dictionary {
		d.CorrectionChanged = true
	}
	d.DictionaryPathChanged = oc.Dictionary != nc.Dictionary

	if !sttEqual(old.STT, new.STT) {
		d.RestartRequired = append(d.RestartRequired, "stt")
	}
	if old.Capture.Source != new.Capture.Source ||
		old.Capture.DeviceIndex() != new.Capture.DeviceIndex() ||
		old.Capture.SampleRate != new.Capture.SampleRate ||
		old.Capture.BlockMs != new.Capture.BlockMs ||
		old.Capture.File != new.Capture.File ||
		old.Capture.Realtime != new.Capture.Realtime {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Gate != new.Gate {
		d.RestartRequired = append(d.RestartRequired, "gate")
	}
	if oc.Examples != nc.Examples {
		d.RestartRequired = append(d.RestartRequired, "correction.examples")
	}
	if old.Worker != new.Worker {
		d.RestartRequired = append(d.RestartRequired, "worker")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	return d
}

func sttEqual(a, b STTConfig) bool {
	if !entryEqual(a.Provider, b.Provider) || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !entryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return a.ModelDir == b.ModelDir &&
		a.Device == b.Device &&
		a.ComputeType == b.ComputeType &&
		a.Threads == b.Threads &&
		a.Workers == b.Workers &&
		a.BeamSize == b.BeamSize &&
		a.VADFilter == b.VADFilter &&
		a.Language == b.Language &&
		a.Breaker == b.Breaker
}

// entryEqual ignores Options, which only ever hold scalar tuning values
// that are compared by the backend itself on restart.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.BaseURL == b.BaseURL && a.Model == b.Model
}
