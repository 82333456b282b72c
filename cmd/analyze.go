package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Review a file once and print the result",
	Long: `Run a one-off review of a source file and print the result to
stdout. Pass "-" to read code from stdin. No artifacts are written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeRun(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

// readSource reads a file argument, treating "-" as stdin.
func readSource(arg string) (string, error) {
	var data []byte
	var err error
	if arg == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("source is empty: %s", arg)
	}
	return string(data), nil
}

func analyzeRun(cmd *cobra.Command, arg string) error {
	code, err := readSource(arg)
	if err != nil {
		return err
	}

	client, err := newInferenceClient()
	if err != nil {
		return err
	}

	provider, model := inferenceIdentity()
	ui.VerboseLog("Reviewing with %s/%s", provider, model)

	review, err := client.Review(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("review failed: %w", err)
	}

	fmt.Fprintln(ui.Out, review)
	return nil
}
