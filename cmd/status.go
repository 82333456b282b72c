package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revwatch/revwatch/internal/artifact"
	"github.com/revwatch/revwatch/internal/health"
	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/output"
	"github.com/revwatch/revwatch/internal/store"
)

// healthWindow is how many recent runs feed the health score.
const healthWindow = 50

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watcher, backend, and run health at a glance",
	Long: `Show a status overview: whether the background server is running,
what is being watched, the configured backend, and the health of
recent review runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusOverviewRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	// Server state
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		fmt.Fprintf(ui.Out, "Server:   %s (pid %d)\n", output.Green("running"), pid)
	} else {
		fmt.Fprintf(ui.Out, "Server:   %s\n", output.Yellow("not running"))
	}

	// Watch configuration
	absDir, err := filepath.Abs(viper.GetString("watch.dir"))
	if err != nil {
		absDir = viper.GetString("watch.dir")
	}
	exts := viper.GetStringSlice("watch.extensions")
	fmt.Fprintf(ui.Out, "Watching: %s (%s, debounce %s)\n",
		absDir, strings.Join(exts, ", "), viper.GetDuration("watch.debounce"))

	outDir := viper.GetString("watch.output_dir")
	if outDir == "" {
		outDir = absDir
	}
	fmt.Fprintf(ui.Out, "Reviews:  %s\n", filepath.Join(outDir, artifact.DocFileName))

	provider, model := inferenceIdentity()
	fmt.Fprintf(ui.Out, "Backend:  %s/%s\n", provider, model)

	// Run history health
	s, err := getStore()
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Fprintf(ui.Out, "History:  disabled\n")
		return nil
	}

	return statusHealth(context.Background(), s)
}

func statusHealth(ctx context.Context, s store.Store) error {
	runs, err := s.ListRuns(ctx, store.RunListFilter{Limit: healthWindow})
	if err != nil {
		return err
	}

	sum := health.NewScorer().Summarize(runs)
	if sum.Total == 0 {
		fmt.Fprintf(ui.Out, "Runs:     none recorded\n")
		return nil
	}

	fmt.Fprintf(ui.Out, "Runs:     %d recent (%s succeeded, %s failed)\n",
		sum.Total,
		output.Green(fmt.Sprintf("%d", sum.Succeeded)),
		output.Red(fmt.Sprintf("%d", sum.Failed)))

	if len(sum.ByKind) > 0 {
		parts := make([]string, 0, len(sum.ByKind))
		for _, kind := range []models.ErrorKind{models.ErrorKindRead, models.ErrorKindInference, models.ErrorKindPersist} {
			if n := sum.ByKind[kind]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", output.KindColor(string(kind)), n))
			}
		}
		fmt.Fprintf(ui.Out, "Failures: %s\n", strings.Join(parts, ", "))
	}

	fmt.Fprintf(ui.Out, "Health:   %s/100\n", output.HealthColor(sum.Score.Total))

	last := sum.LastRun
	fmt.Fprintf(ui.Out, "Last run: %s %s %s\n",
		last.File, output.StatusColor(string(last.Status)), timeAgo(last.CreatedAt))
	return nil
}

// timeAgo formats a past timestamp as a relative duration.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
