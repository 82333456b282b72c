package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, opts Options) *Watcher {
	t.Helper()
	w, err := New(dir, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(wait):
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch directory")
}

func TestNew_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))

	_, err := New(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestRun_EmitsEventForEligibleFile(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def f(: pass"), 0644))

	ev := waitEvent(t, w)
	assert.Equal(t, path, ev.Path)
}

func TestRun_FiltersOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Extensions: []string{".py"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestRun_FiltersOwnArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixed_a.py"), []byte("fixed"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "documentation.txt"), []byte("log"), 0644))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestRun_FiltersSubdirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	// A created directory whose name happens to carry the extension.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pkg.py"), 0755))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestRun_ExtensionWithoutDot(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Extensions: []string{"go"}})

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0644))

	ev := waitEvent(t, w)
	assert.Equal(t, path, ev.Path)
}

func TestRun_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}

	// Channel closes once the loop exits.
	_, open := <-w.Events()
	assert.False(t, open)
}
