package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revwatch/revwatch/internal/artifact"
	"github.com/revwatch/revwatch/internal/pipeline"
	"github.com/revwatch/revwatch/internal/watcher"
)

// cannedAnalyzer returns fixed review and fix text so the loop test can
// assert artifact contents without a real backend.
type cannedAnalyzer struct{}

func (cannedAnalyzer) Review(ctx context.Context, code string) (string, error) {
	return "f has a syntax error in its parameter list", nil
}

func (cannedAnalyzer) Fix(ctx context.Context, code string) (string, error) {
	return "def f(): pass\n", nil
}

// TestWatchedWriteProducesArtifacts drives the real loop end to end:
// filesystem write -> watcher -> dispatcher -> pipeline -> artifacts.
func TestWatchedWriteProducesArtifacts(t *testing.T) {
	watchDir := t.TempDir()
	outDir := t.TempDir()

	w, err := watcher.New(watchDir, watcher.Options{Extensions: []string{".py"}})
	require.NoError(t, err)

	artifacts, err := artifact.NewStore(outDir)
	require.NoError(t, err)

	runner := pipeline.NewRunner(cannedAnalyzer{}, artifacts, nil, pipeline.Options{
		Provider: "ollama",
		Model:    "tinyllama",
	})
	d := New(runner, Options{Quiet: 25 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx) }()
	go func() {
		defer close(done)
		d.Run(ctx, w.Events())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	src := filepath.Join(watchDir, "a.py")
	require.NoError(t, os.WriteFile(src, []byte("def f(: pass"), 0644))

	docPath := artifacts.DocPath()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(docPath)
		return err == nil && strings.Contains(string(data), "Review for a.py:")
	}, 5*time.Second, 20*time.Millisecond)

	fixed, err := os.ReadFile(artifacts.FixedPath("a.py"))
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass\n", string(fixed))

	// A later edit appends a second review block and rewrites the fixed
	// copy in place; the log keeps both blocks.
	require.NoError(t, os.WriteFile(src, []byte("def f(:  pass"), 0644))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(docPath)
		return err == nil && strings.Count(string(data), "Review for a.py:") == 2
	}, 5*time.Second, 20*time.Millisecond)

	fixed, err = os.ReadFile(artifacts.FixedPath("a.py"))
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass\n", string(fixed))
}

// TestArtifactsInsideWatchDirDoNotRetrigger writes artifacts into the
// watched directory itself and verifies the loop settles instead of
// reviewing its own output forever.
func TestArtifactsInsideWatchDirDoNotRetrigger(t *testing.T) {
	dir := t.TempDir()

	w, err := watcher.New(dir, watcher.Options{Extensions: []string{".py"}})
	require.NoError(t, err)

	artifacts, err := artifact.NewStore(dir)
	require.NoError(t, err)

	runner := pipeline.NewRunner(cannedAnalyzer{}, artifacts, nil, pipeline.Options{})
	d := New(runner, Options{Quiet: 25 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx) }()
	go func() {
		defer close(done)
		d.Run(ctx, w.Events())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def f(: pass"), 0644))

	require.Eventually(t, func() bool { return d.Stats().Runs == 1 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return d.Idle() }, 5*time.Second, 20*time.Millisecond)

	// Give any stray artifact-triggered settle time to fire, then
	// confirm exactly one run happened.
	time.Sleep(10 * 25 * time.Millisecond)
	assert.Equal(t, int64(1), d.Stats().Runs)
}
