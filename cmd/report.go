package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/store"
)

var (
	exportFormat string
	exportFile   string
	exportStatus string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history as JSON, CSV, or Markdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportFile, "file", "", "Only runs for this file (basename)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only runs with this status (succeeded|failed)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of runs (0 = all)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := requireStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, store.RunListFilter{
		File:   exportFile,
		Status: models.RunStatus(exportStatus),
		Limit:  exportLimit,
	})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "File", "Status", "ErrorKind", "ErrorDetail", "Provider", "Model", "DurationMs", "Created"})
		for _, r := range runs {
			w.Write([]string{
				r.ID, r.File, string(r.Status), string(r.ErrorKind), r.ErrorDetail,
				r.Provider, r.Model, strconv.FormatInt(r.DurationMs, 10),
				r.CreatedAt.Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Review Runs")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| File | Status | Kind | Duration | Created |")
		fmt.Fprintln(ui.Out, "|------|--------|------|----------|---------|")
		for _, r := range runs {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %dms | %s |\n",
				r.File, r.Status, r.ErrorKind, r.DurationMs, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
	Long:  "Generate summary reports of review activity.",
}

var reportWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate weekly review summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportWeeklyRun()
	},
}

func init() {
	reportCmd.AddCommand(reportWeeklyCmd)
	rootCmd.AddCommand(reportCmd)
}

// fileActivity accumulates per-file counts for the weekly report.
type fileActivity struct {
	file     string
	runs     int
	failed   int
	lastSeen time.Time
}

func reportWeeklyRun() error {
	s, err := requireStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, store.RunListFilter{})
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	byFile := make(map[string]*fileActivity)
	total, failed := 0, 0
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		total++
		fa := byFile[r.File]
		if fa == nil {
			fa = &fileActivity{file: r.File}
			byFile[r.File] = fa
		}
		fa.runs++
		if r.Status == models.RunStatusFailed {
			fa.failed++
			failed++
		}
		if r.CreatedAt.After(fa.lastSeen) {
			fa.lastSeen = r.CreatedAt
		}
	}

	fmt.Fprintln(ui.Out, "# Weekly Review Report")
	fmt.Fprintln(ui.Out)
	if total == 0 {
		fmt.Fprintln(ui.Out, "No runs in the past 7 days.")
		return nil
	}
	fmt.Fprintf(ui.Out, "%d runs across %d files, %d failed\n", total, len(byFile), failed)
	fmt.Fprintln(ui.Out)

	files := make([]*fileActivity, 0, len(byFile))
	for _, fa := range byFile {
		files = append(files, fa)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].runs > files[j].runs })

	for _, fa := range files {
		fmt.Fprintf(ui.Out, "## %s\n", fa.file)
		fmt.Fprintf(ui.Out, "- Runs: %d (%d failed)\n", fa.runs, fa.failed)
		fmt.Fprintf(ui.Out, "- Last: %s\n", timeAgo(fa.lastSeen))
		fmt.Fprintln(ui.Out)
	}

	return nil
}
