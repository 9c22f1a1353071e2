package dictionary

import (
	"bytes"

	"github.com/MrWong99/sonoscribe/internal/filewatch"
)

// Watcher keeps the latest valid version of a dictionary file. Invalid edits
// are logged and ignored so the last good dictionary stays in effect.
type Watcher = filewatch.Watcher[*Dictionary]

// NewWatcher loads the dictionary at path and watches it for changes,
// calling onChange with every new validated dictionary. opts are
// [filewatch.Option]s such as [filewatch.WithInterval].
func NewWatcher(path string, onChange func(old, new *Dictionary), opts ...filewatch.Option) (*Watcher, error) {
	opts = append([]filewatch.Option{filewatch.WithKind("dictionary")}, opts...)
	return filewatch.New(path, Parse, onChange, opts...)
}

// Parse decodes and validates a dictionary document held in memory.
func Parse(data []byte) (*Dictionary, error) {
	return LoadFromReader(bytes.NewReader(data))
}
