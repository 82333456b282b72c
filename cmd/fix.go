package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fixOutput string

var fixCmd = &cobra.Command{
	Use:   "fix [file]",
	Short: "Generate a corrected version of a file",
	Long: `Ask the backend for a corrected version of a source file and print
it to stdout. Pass "-" to read code from stdin, or -o to write the
result to a file instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fixRun(cmd, args[0])
	},
}

func init() {
	fixCmd.Flags().StringVarP(&fixOutput, "output", "o", "", "write the fixed code to this file")
	rootCmd.AddCommand(fixCmd)
}

func fixRun(cmd *cobra.Command, arg string) error {
	code, err := readSource(arg)
	if err != nil {
		return err
	}

	client, err := newInferenceClient()
	if err != nil {
		return err
	}

	provider, model := inferenceIdentity()
	ui.VerboseLog("Fixing with %s/%s", provider, model)

	fixed, err := client.Fix(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("fix failed: %w", err)
	}

	if fixOutput == "" {
		fmt.Fprint(ui.Out, fixed)
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would write fixed code to %s", fixOutput)
		return nil
	}
	if err := os.WriteFile(fixOutput, []byte(fixed), 0644); err != nil {
		return fmt.Errorf("write fixed file: %w", err)
	}
	ui.Success("Fixed code written to %s", fixOutput)
	return nil
}
