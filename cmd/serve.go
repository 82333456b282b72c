package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/revwatch/revwatch/internal/api"
	"github.com/revwatch/revwatch/internal/artifact"
	"github.com/revwatch/revwatch/internal/daemon"
	"github.com/revwatch/revwatch/internal/dispatch"
	"github.com/revwatch/revwatch/internal/pipeline"
	"github.com/revwatch/revwatch/internal/watcher"
)

var (
	serveDir     string
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch for changes and serve the review API",
	Long: `Run the full review loop in the foreground: watch the configured
directory, review and fix files as they settle, and expose the
/analyze HTTP API. Use 'serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watcher and API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)

	serveCmd.Flags().IntP("port", "p", 8000, "port to listen on")
	serveCmd.Flags().StringVarP(&serveDir, "dir", "d", "", "directory to watch (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "serve the API only, without watching")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

// pidFile returns the PID file manager for the background server.
func pidFile() *daemon.PIDFile {
	dir, err := configDirFunc()
	if err != nil {
		// Fall back to cwd; IsRunning on a missing file reports not running.
		dir = "."
	}
	return daemon.NewPIDFile(filepath.Join(dir, "revwatch-serve.pid"))
}

// serveLogPath returns the log file path for the background server.
func serveLogPath() string {
	dir, err := configDirFunc()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "revwatch-serve.log")
}

func serveLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func serveRun(parent context.Context) error {
	logger := serveLogger()

	s, err := getStore()
	if err != nil {
		return err
	}

	client, err := newInferenceClient()
	if err != nil {
		return err
	}
	provider, model := inferenceIdentity()

	watchDir := viper.GetString("watch.dir")
	if serveDir != "" {
		watchDir = serveDir
	}
	absDir, err := filepath.Abs(watchDir)
	if err != nil {
		return fmt.Errorf("resolve watch directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, shutdownSignals()...)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	exts := viper.GetStringSlice("watch.extensions")
	var watchStats func() api.WatchStats

	if !serveNoWatch {
		outDir := viper.GetString("watch.output_dir")
		if outDir == "" {
			outDir = absDir
		}
		artifacts, err := artifact.NewStore(outDir)
		if err != nil {
			return err
		}

		w, err := watcher.New(absDir, watcher.Options{
			Extensions: exts,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		exts = w.Extensions()

		runner := pipeline.NewRunner(client, artifacts, s, pipeline.Options{
			Provider: provider,
			Model:    model,
			Logger:   logger,
			OnFailure: func(path string, rerr *pipeline.RunError) {
				ui.Error("Run failed for %s: %v", filepath.Base(path), rerr)
			},
		})
		d := dispatch.New(runner, dispatch.Options{
			Quiet:  viper.GetDuration("watch.debounce"),
			Logger: logger,
		})

		watchStats = func() api.WatchStats {
			ws := w.Stats()
			ds := d.Stats()
			return api.WatchStats{
				EventsObserved: ws.Observed,
				EventsEmitted:  ws.Emitted,
				Settles:        ds.Settles,
				Runs:           ds.Runs,
				QueuedReruns:   ds.QueuedReruns,
				Skips:          ds.Skips,
			}
		}

		ui.Info("Watching %s for %s files (debounce %s)",
			absDir, strings.Join(exts, ", "), viper.GetDuration("watch.debounce"))
		ui.Info("Reviews: %s (backend %s/%s)", artifacts.DocPath(), provider, model)

		g.Go(func() error {
			return w.Run(gctx)
		})
		g.Go(func() error {
			d.Run(gctx, w.Events())
			return nil
		})
	}

	apiSrv := api.NewServer(client, s, api.Info{
		WatchDir:   absDir,
		Extensions: exts,
		Provider:   provider,
		Model:      model,
	}, watchStats)

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: apiSrv.Router(),
	}

	if s != nil {
		ui.Info("Run history: %s", viper.GetString("db_path"))
	}
	ui.Success("API listening at http://localhost:%d", port)

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if s != nil {
		_ = s.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ui.Info("Shutdown complete")
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("serve already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s serve in the background", exe)
		return nil
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	child := exec.Command(exe, "serve")
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("start server: %w", err)
	}
	_ = logFile.Close()

	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	ui.Success("serve started (pid %d)", child.Process.Pid)
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		// Clean up a stale PID file if one is left behind.
		_ = pf.Remove()
		return fmt.Errorf("serve is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop serve (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if !pf.WaitExit(5 * time.Second) {
		ui.Warning("Process %d did not exit, sending kill", pid)
		_ = pf.Signal(sigKILL())
		_ = pf.WaitExit(time.Second)
	}
	_ = pf.Remove()

	ui.Success("serve stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		ui.Info("serve is running (pid %d)", pid)
		ui.Info("Logs: %s", serveLogPath())
	} else {
		ui.Info("serve is not running")
	}
	return nil
}
