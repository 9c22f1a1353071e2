package config

import "github.com/MrWong99/sonoscribe/internal/filewatch"

// Watcher keeps the latest valid version of a config file.
type Watcher = filewatch.Watcher[*Config]

// NewWatcher loads the config at path and polls it for changes. onChange
// receives every newly validated config; use [Diff] to find what moved.
func NewWatcher(path string, onChange func(old, new *Config), opts ...filewatch.Option) (*Watcher, error) {
	opts = append([]filewatch.Option{filewatch.WithKind("config")}, opts...)
	return filewatch.New(path, Parse, onChange, opts...)
}
