package cmd

import (
	"github.com/spf13/cobra"

	"github.com/revwatch/revwatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients like Claude Code review and fix code snippets
through the configured backend and query the run history. Configure
in Claude Code with:

  {
    "mcpServers": {
      "revwatch": { "command": "revwatch", "args": ["mcp"] }
    }
  }

Available tools: revwatch_review, revwatch_fix, revwatch_runs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	client, err := newInferenceClient()
	if err != nil {
		return err
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	srv := mcp.NewServer(client, s)
	return srv.ServeStdio(cmd.Context())
}
