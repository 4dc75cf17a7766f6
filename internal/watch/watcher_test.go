// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// collector records callback batches.
type collector struct {
	mu      sync.Mutex
	batches [][]string
	notify  chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 16)}
}

func (c *collector) onChange(_ context.Context, changed []string) error {
	c.mu.Lock()
	c.batches = append(c.batches, changed)
	c.mu.Unlock()
	c.notify <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		out = append(out, b...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// start runs w until the test ends.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesAcrossRoots(t *testing.T) {
	t.Parallel()

	rootA, rootB := t.TempDir(), t.TempDir()
	c := newCollector()
	w, err := New(Config{
		Roots:    []string{rootA, rootB},
		Patterns: []string{"**/*.cue"},
		Debounce: 100 * time.Millisecond,
		OnChange: c.onChange,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	a := filepath.Join(rootA, "index.cue")
	b := filepath.Join(rootB, "lib.cue")
	writeFile(t, a, "x: 1")
	time.Sleep(10 * time.Millisecond)
	writeFile(t, b, "y: 2")
	writeFile(t, filepath.Join(rootB, "notes.txt"), "ignored by pattern")

	c.wait(t)
	time.Sleep(250 * time.Millisecond)

	if n := c.count(); n != 1 {
		t.Errorf("callbacks = %d, want 1", n)
	}
	want := []string{a, b}
	slices.Sort(want)
	if got := c.all(); !slices.Equal(got, want) {
		t.Errorf("changed = %v, want %v", got, want)
	}
}

func TestWatcher_IgnorePatterns(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := newCollector()
	w, err := New(Config{
		Roots:    []string{root},
		Ignore:   []string{"**/*.log"},
		Debounce: 50 * time.Millisecond,
		OnChange: c.onChange,
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	writeFile(t, filepath.Join(root, "debug.log"), "noise")
	kept := filepath.Join(root, "index.cue")
	writeFile(t, kept, "x: 1")

	c.wait(t)
	if got := c.all(); !slices.Equal(got, []string{kept}) {
		t.Errorf("changed = %v, want only %s", got, kept)
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := newCollector()
	w, err := New(Config{
		Roots:    []string{root},
		Patterns: []string{"**/*.cue"},
		Debounce: 50 * time.Millisecond,
		OnChange: c.onChange,
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	sub := filepath.Join(root, "lib", "1.0.0")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the event loop time to subscribe the new directories.
	time.Sleep(150 * time.Millisecond)

	path := filepath.Join(sub, "index.cue")
	writeFile(t, path, "x: 1")
	c.wait(t)
	if got := c.all(); !slices.Contains(got, path) {
		t.Errorf("changed = %v, want %s", got, path)
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Roots: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Roots: []string{t.TempDir()}, Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("invalid watch pattern accepted")
	}
	if _, err := New(Config{Roots: []string{t.TempDir()}, Ignore: []string{"{a,b"}}); err == nil {
		t.Error("invalid ignore pattern accepted")
	}
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := New(Config{Roots: []string{missing}}); !errors.Is(err, ErrNoRoots) {
		t.Errorf("New() with only missing roots = %v, want ErrNoRoots", err)
	}
}

func TestRootOf_PrefersInnermostRoot(t *testing.T) {
	t.Parallel()

	outer := t.TempDir()
	inner := filepath.Join(outer, "dev")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := New(Config{Roots: []string{outer, inner, outer}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })

	if got := w.Roots(); len(got) != 2 || got[0] != inner {
		t.Errorf("Roots() = %v, want inner first without duplicates", got)
	}

	root, rel, ok := w.rootOf(filepath.Join(inner, "tool", "main.sh"))
	if !ok || root != inner || rel != "tool/main.sh" {
		t.Errorf("rootOf() = %q, %q, %v", root, rel, ok)
	}
	if _, _, ok := w.rootOf(filepath.Join(filepath.Dir(outer), "elsewhere")); ok {
		t.Error("path outside every root was matched")
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	ignores := DefaultIgnores()
	for _, rel := range []string{".git/HEAD", "a/node_modules/x/index.js", "index.cue.swp", "lib.cue~"} {
		if !matchAny(ignores, rel) {
			t.Errorf("%q should be ignored by default", rel)
		}
	}
	if matchAny(ignores, "pkgs/app/index.cue") {
		t.Error("module source ignored by default")
	}

	ignores[0] = "mutated"
	if DefaultIgnores()[0] == "mutated" {
		t.Error("DefaultIgnores() must return a copy")
	}
}
