// Package watcher observes one directory (non-recursive) and emits an
// event stream for modified source files. It is the intake side of the
// review pipeline: events are filtered here so the dispatcher only ever
// sees eligible files.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/revwatch/revwatch/internal/artifact"
)

// Event is one modification notice for a direct child of the watched
// directory.
type Event struct {
	Path string
}

// Options tunes the watcher behaviour.
type Options struct {
	// Extensions is the eligible extension set (leading dot optional).
	// Default: [".py"].
	Extensions []string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".py"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher emits events for modified files matching the eligible
// extension set. Directories and revwatch's own artifacts never reach
// the event stream.
type Watcher struct {
	dir    string
	exts   map[string]bool
	fw     *fsnotify.Watcher
	events chan Event
	log    *slog.Logger

	observed atomic.Int64
	emitted  atomic.Int64
	dropped  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Observed int64 `json:"observed"`
	Emitted  int64 `json:"emitted"`
	Dropped  int64 `json:"dropped"`
}

// New opens dir for watching. An inaccessible directory is a startup
// error surfaced to the caller, not a silently retried condition.
func New(dir string, opts Options) (*Watcher, error) {
	opts.defaults()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory %s: not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[strings.ToLower(e)] = true
	}

	return &Watcher{
		dir:    dir,
		exts:   exts,
		fw:     fw,
		events: make(chan Event, 64),
		log:    opts.Logger,
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Events returns the filtered modification stream. The channel closes
// when Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Observed: w.observed.Load(),
		Emitted:  w.emitted.Load(),
		Dropped:  w.dropped.Load(),
	}
}

// Extensions returns the eligible extension set, sorted.
func (w *Watcher) Extensions() []string {
	exts := make([]string, 0, len(w.exts))
	for e := range w.exts {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	return exts
}

// Run drains filesystem notifications until ctx is cancelled. Transient
// errors are logged and the event dropped; the loop keeps draining so
// intake never stalls behind pipeline work.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fw.Close()

	w.log.Info("watch: started", "dir", w.dir, "extensions", w.Extensions())

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch: stopped")
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.observed.Add(1)
			if !w.eligible(ev) {
				continue
			}
			select {
			case w.events <- Event{Path: ev.Name}:
				w.emitted.Add(1)
			case <-ctx.Done():
				w.log.Info("watch: stopped")
				return nil
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.dropped.Add(1)
			w.log.Warn("watch: notification error", "error", err)
		}
	}
}

func (w *Watcher) eligible(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	if artifact.IsArtifact(name) {
		return false
	}
	if !w.exts[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		// Vanished between notification and stat; the next real
		// modification re-triggers it.
		w.dropped.Add(1)
		w.log.Debug("watch: dropping event", "path", ev.Name, "error", err)
		return false
	}
	return !info.IsDir()
}
