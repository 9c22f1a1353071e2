package dictionary_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/filewatch"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime makes sure the next poll sees a changed modification time even on
// filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "terms.yaml")
	writeFile(t, path, sampleYAML)

	w, err := dictionary.NewWatcher(path, nil, filewatch.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if d := w.Current(); d == nil || len(d.Terms) != 1 {
		t.Fatalf("Current() = %+v", d)
	}
}

func TestWatcher_InvalidInitialFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "terms.yaml")
	writeFile(t, path, `{"terms":[{"key":"a"}]}`)

	if _, err := dictionary.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial dictionary")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "terms.json")
	writeFile(t, path, sampleYAML)

	var (
		mu      sync.Mutex
		changed = make(chan struct{}, 1)
		got     *dictionary.Dictionary
	)
	w, err := dictionary.NewWatcher(path, func(_, d *dictionary.Dictionary) {
		mu.Lock()
		got = d
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, filewatch.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, sampleJSON)
	bumpMtime(t, path)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got.Terms) != 3 {
		t.Errorf("reloaded terms = %d, want 3", len(got.Terms))
	}
	if w.Current() != got {
		t.Error("Current() does not return the reloaded dictionary")
	}
}

func TestWatcher_IgnoresInvalidEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "terms.json")
	writeFile(t, path, sampleYAML)

	called := make(chan struct{}, 1)
	w, err := dictionary.NewWatcher(path, func(_, _ *dictionary.Dictionary) {
		called <- struct{}{}
	}, filewatch.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	before := w.Current()
	writeFile(t, path, `{"terms":[{"key":"dup","canonical":"a"},{"key":"dup","canonical":"b"}]}`)
	bumpMtime(t, path)

	select {
	case <-called:
		t.Fatal("onChange called for invalid dictionary")
	case <-time.After(300 * time.Millisecond):
	}
	if w.Current() != before {
		t.Error("invalid edit replaced the current dictionary")
	}
}
