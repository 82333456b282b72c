// Package dispatch coalesces a noisy file-modification stream into at
// most one pipeline run per settled file state. Editors and OS watchers
// routinely emit several events per logical save; the dispatcher's
// per-file quiet period turns each burst into one run.
package dispatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/revwatch/revwatch/internal/watcher"
)

// Runner executes one pipeline run for a settled file. Failures are the
// runner's own to log; Process never reports them upward.
type Runner interface {
	Process(ctx context.Context, path string)
}

// Options tunes the dispatcher behaviour.
type Options struct {
	// Quiet is the per-file debounce window. Default: 1s.
	Quiet time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Quiet <= 0 {
		o.Quiet = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Dispatcher owns the per-file debounce timers and enforces the
// at-most-one-concurrent-run-per-file rule: a settle for a file whose
// run is still in flight queues exactly one rerun, never dropped, and
// never overlapping.
type Dispatcher struct {
	runner Runner
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	timers  map[string]pendingTimer
	running map[string]bool
	queued  map[string]bool
	gen     uint64
	stopped bool

	wg sync.WaitGroup

	events  atomic.Int64
	settles atomic.Int64
	runs    atomic.Int64
	reruns  atomic.Int64
	skips   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events       int64 `json:"events"`
	Settles      int64 `json:"settles"`
	Runs         int64 `json:"runs"`
	QueuedReruns int64 `json:"queued_reruns"`
	Skips        int64 `json:"skips"`
}

// New creates a Dispatcher. Call Run to start consuming events.
func New(runner Runner, opts Options) *Dispatcher {
	opts.defaults()
	return &Dispatcher{
		runner:  runner,
		opts:    opts,
		log:     opts.Logger,
		timers:  make(map[string]pendingTimer),
		running: make(map[string]bool),
		queued:  make(map[string]bool),
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Events:       d.events.Load(),
		Settles:      d.settles.Load(),
		Runs:         d.runs.Load(),
		QueuedReruns: d.reruns.Load(),
		Skips:        d.skips.Load(),
	}
}

// Idle reports whether no timers are pending and no runs are in flight.
func (d *Dispatcher) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers) == 0 && len(d.running) == 0
}

// Run consumes events until ctx is cancelled or the channel closes,
// then stops pending timers and drains in-flight runs. Intake never
// blocks on pipeline work: observing an event only touches the timer
// table.
func (d *Dispatcher) Run(ctx context.Context, events <-chan watcher.Event) {
	d.log.Info("dispatch: started", "quiet", d.opts.Quiet)
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case ev, ok := <-events:
			if !ok {
				d.shutdown()
				return
			}
			d.observe(ctx, ev.Path)
		}
	}
}

// observe (re)arms the quiet-period timer for path.
func (d *Dispatcher) observe(ctx context.Context, path string) {
	d.events.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.timers[path]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	timer := time.AfterFunc(d.opts.Quiet, func() { d.settle(ctx, path, gen) })
	d.timers[path] = pendingTimer{timer: timer, gen: gen}
}

// settle fires when the quiet period for path elapses with no further
// events. The generation guards against a timer that fired while a
// newer event was re-arming the window.
func (d *Dispatcher) settle(ctx context.Context, path string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.timers[path]
	if !ok || p.gen != gen {
		return
	}
	delete(d.timers, path)
	if d.stopped || ctx.Err() != nil {
		return
	}
	d.settles.Add(1)

	if d.running[path] {
		if !d.queued[path] {
			d.queued[path] = true
			d.reruns.Add(1)
			d.log.Debug("dispatch: run in flight, queueing rerun", "path", path)
		}
		return
	}
	d.running[path] = true
	d.wg.Add(1)
	go d.execute(ctx, path)
}

// execute performs the run for path, then immediately starts the queued
// rerun if one settled while it was in flight. Runs for the same path
// are strictly sequential.
func (d *Dispatcher) execute(ctx context.Context, path string) {
	defer d.wg.Done()
	for {
		if _, err := os.Stat(path); err != nil {
			// Deleted between settle and run: a logged no-op, not a failure.
			d.skips.Add(1)
			d.log.Info("dispatch: file gone before run, skipping", "path", path)
		} else {
			d.runs.Add(1)
			d.runner.Process(ctx, path)
		}

		d.mu.Lock()
		if d.queued[path] && !d.stopped && ctx.Err() == nil {
			delete(d.queued, path)
			d.mu.Unlock()
			continue
		}
		delete(d.queued, path)
		delete(d.running, path)
		d.mu.Unlock()
		return
	}
}

// shutdown discards pending timers and waits for in-flight runs.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	for path, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, path)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("dispatch: stopped")
}
