package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/revwatch/revwatch/internal/models"
)

// Analyzer produces review and fix text for source code.
// Implemented by inference.Client.
type Analyzer interface {
	Review(ctx context.Context, code string) (string, error)
	Fix(ctx context.Context, code string) (string, error)
}

// Artifacts persists pipeline output. Implemented by artifact.Store.
type Artifacts interface {
	AppendReview(filename, review string) error
	ReplaceFixed(filename, content string) error
}

// RunRecorder records run metadata. Implemented by store.Store.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.ReviewRun) error
}

// RunError is a stage failure tagged with the stage it occurred in.
type RunError struct {
	Kind models.ErrorKind
	Err  error
}

func (e *RunError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *RunError) Unwrap() error { return e.Err }

// Options configures a Runner.
type Options struct {
	// Provider and Model are recorded on every run for history.
	Provider string
	Model    string

	Logger *slog.Logger

	// OnFailure, if set, is invoked after a failed run has been
	// logged and recorded.
	OnFailure func(path string, err *RunError)
}

func (o Options) defaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Runner executes the review pipeline for a single file per call:
// read the source, obtain review and fix text, append the review to
// the shared log, and replace the fixed copy. A failed stage aborts
// the run; it never propagates out of Process.
type Runner struct {
	analyzer  Analyzer
	artifacts Artifacts
	runs      RunRecorder // may be nil: history disabled
	opts      Options
	log       *slog.Logger
}

// NewRunner assembles a pipeline runner. runs may be nil to disable
// run history.
func NewRunner(analyzer Analyzer, artifacts Artifacts, runs RunRecorder, opts Options) *Runner {
	opts = opts.defaults()
	return &Runner{
		analyzer:  analyzer,
		artifacts: artifacts,
		runs:      runs,
		opts:      opts,
		log:       opts.Logger,
	}
}

// Process runs the pipeline for path. Failures are logged and recorded,
// never returned: one bad file must not disturb the watch loop.
func (r *Runner) Process(ctx context.Context, path string) {
	start := time.Now()
	base := filepath.Base(path)
	log := r.log.With("file", base)

	run := &models.ReviewRun{
		File:     base,
		Provider: r.opts.Provider,
		Model:    r.opts.Model,
	}

	runErr := r.process(ctx, path, run)
	run.DurationMs = time.Since(start).Milliseconds()

	if runErr == nil {
		run.Status = models.RunStatusSucceeded
		log.Info("pipeline: run succeeded", "duration_ms", run.DurationMs)
	} else {
		run.Status = models.RunStatusFailed
		run.ErrorKind = runErr.Kind
		run.ErrorDetail = runErr.Err.Error()
		log.Error("pipeline: run failed",
			"kind", string(runErr.Kind),
			"error", runErr.Err,
			"duration_ms", run.DurationMs)
		if r.opts.OnFailure != nil {
			r.opts.OnFailure(path, runErr)
		}
	}

	r.record(ctx, run, log)
}

func (r *Runner) process(ctx context.Context, path string, run *models.ReviewRun) *RunError {
	data, err := os.ReadFile(path)
	if err != nil {
		return &RunError{Kind: models.ErrorKindRead, Err: err}
	}
	code := string(data)
	run.ContentHash = fmt.Sprintf("%016x", xxh3.HashString(code))

	// Both inference calls complete before anything is written, so an
	// inference failure leaves no partial artifacts behind.
	review, err := r.analyzer.Review(ctx, code)
	if err != nil {
		return &RunError{Kind: models.ErrorKindInference, Err: err}
	}
	fixed, err := r.analyzer.Fix(ctx, code)
	if err != nil {
		return &RunError{Kind: models.ErrorKindInference, Err: err}
	}

	if err := r.artifacts.AppendReview(path, review); err != nil {
		return &RunError{Kind: models.ErrorKindPersist, Err: err}
	}
	if err := r.artifacts.ReplaceFixed(path, fixed); err != nil {
		return &RunError{Kind: models.ErrorKindPersist, Err: err}
	}
	return nil
}

// record persists run metadata. Best effort: history must never fail
// the pipeline, and a canceled run context must not lose the record.
func (r *Runner) record(ctx context.Context, run *models.ReviewRun, log *slog.Logger) {
	if r.runs == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.runs.CreateRun(rctx, run); err != nil {
		log.Warn("pipeline: record run", "error", err)
	}
}
