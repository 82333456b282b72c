package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/revwatch/revwatch/internal/artifact"
	"github.com/revwatch/revwatch/internal/dispatch"
	"github.com/revwatch/revwatch/internal/pipeline"
	"github.com/revwatch/revwatch/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and review files as they change",
	Long: `Watch a directory and run the review pipeline whenever an eligible
file settles. Like 'serve' but without the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("dir", "d", ".", "directory to watch")
	watchCmd.Flags().StringSlice("ext", []string{".py"}, "file extensions that trigger a review")
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a review fires")
	watchCmd.Flags().StringP("output-dir", "o", "", "directory for the review log and fixed copies")

	_ = viper.BindPFlag("watch.dir", watchCmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("watch.extensions", watchCmd.Flags().Lookup("ext"))
	_ = viper.BindPFlag("watch.debounce", watchCmd.Flags().Lookup("debounce"))
	_ = viper.BindPFlag("watch.output_dir", watchCmd.Flags().Lookup("output-dir"))
}

func watchRun(parent context.Context) error {
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

	absDir, err := filepath.Abs(viper.GetString("watch.dir"))
	if err != nil {
		return fmt.Errorf("resolve watch directory: %w", err)
	}

	outDir := viper.GetString("watch.output_dir")
	if outDir == "" {
		outDir = absDir
	}
	artifacts, err := artifact.NewStore(outDir)
	if err != nil {
		return err
	}

	w, err := watcher.New(absDir, watcher.Options{
		Extensions: viper.GetStringSlice("watch.extensions"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

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

	ctx, stop := signal.NotifyContext(parent, shutdownSignals()...)
	defer stop()

	ui.Info("Watching %s for %s files (debounce %s)",
		absDir, strings.Join(w.Extensions(), ", "), viper.GetDuration("watch.debounce"))
	ui.Info("Reviews: %s (backend %s/%s)", artifacts.DocPath(), provider, model)
	ui.Info("Press Ctrl-C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		d.Run(gctx, w.Events())
		return nil
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
