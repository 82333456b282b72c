package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/output"
	"github.com/revwatch/revwatch/internal/store"
)

var (
	historyFile   string
	historyStatus string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past review runs",
	Long: `Show past review runs recorded by the watch pipeline, newest
first. Filter with --file and --status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(args[0])
	},
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show run totals by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historySummaryRun()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFile, "file", "", "Only runs for this file (basename)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only runs with this status (succeeded|failed)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historySummaryCmd)
	rootCmd.AddCommand(historyCmd)
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func requireStore() (store.Store, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("run history is disabled (history.enabled=false)")
	}
	return s, nil
}

func historyListRun() error {
	s, err := requireStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, store.RunListFilter{
		File:   historyFile,
		Status: models.RunStatus(historyStatus),
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		ui.Info("No runs recorded.")
		return nil
	}

	table := ui.Table([]string{"ID", "File", "Status", "Kind", "Duration", "Created"})
	for _, r := range runs {
		_ = table.Append([]string{
			shortID(r.ID),
			r.File,
			output.StatusColor(string(r.Status)),
			output.KindColor(string(r.ErrorKind)),
			output.DurationColor(r.DurationMs),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	_ = table.Render()
	return nil
}

func historyShowRun(id string) error {
	s, err := requireStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Run %s\n", run.ID)
	fmt.Fprintf(ui.Out, "  File:       %s\n", run.File)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(run.Status)))
	if run.ErrorKind != "" {
		fmt.Fprintf(ui.Out, "  Error kind: %s\n", output.KindColor(string(run.ErrorKind)))
		fmt.Fprintf(ui.Out, "  Error:      %s\n", run.ErrorDetail)
	}
	fmt.Fprintf(ui.Out, "  Backend:    %s/%s\n", run.Provider, run.Model)
	fmt.Fprintf(ui.Out, "  Duration:   %s\n", output.DurationColor(run.DurationMs))
	if run.ContentHash != "" {
		fmt.Fprintf(ui.Out, "  Content:    %s\n", run.ContentHash)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", run.CreatedAt.Format(time.RFC3339))
	return nil
}

func historySummaryRun() error {
	s, err := requireStore()
	if err != nil {
		return err
	}

	counts, err := s.CountRunsByStatus(context.Background())
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		ui.Info("No runs recorded.")
		return nil
	}

	fmt.Fprintf(ui.Out, "Total runs: %d\n", total)
	for _, status := range []models.RunStatus{models.RunStatusSucceeded, models.RunStatusFailed} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(ui.Out, "  %-10s %s\n", status, strconv.Itoa(n))
		}
	}
	return nil
}
