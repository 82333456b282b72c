package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/store"
)

// Analyzer produces review and fix text for source code.
// Implemented by inference.Client.
type Analyzer interface {
	Review(ctx context.Context, code string) (string, error)
	Fix(ctx context.Context, code string) (string, error)
}

// Server wraps the revwatch analysis layer and exposes it as MCP tools.
type Server struct {
	analyzer Analyzer
	store    store.Store
}

// NewServer creates the MCP server wrapper. The store may be nil when
// run history is disabled.
func NewServer(analyzer Analyzer, s store.Store) *Server {
	return &Server{
		analyzer: analyzer,
		store:    s,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("revwatch", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.reviewTool())
	srv.AddTool(s.fixTool())
	srv.AddTool(s.runsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// revwatch_review
func (s *Server) reviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revwatch_review",
		mcp.WithDescription("Review a source code snippet: detect errors, explain issues, and suggest improvements. Returns the review as plain text."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to review")),
	)
	return tool, s.handleReview
}

func (s *Server) handleReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}

	review, err := s.analyzer.Review(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}
	return mcp.NewToolResultText(review), nil
}

// revwatch_fix
func (s *Server) fixTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revwatch_fix",
		mcp.WithDescription("Produce a corrected version of a source code snippet. Returns only the corrected code, without fences or commentary."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to fix")),
	)
	return tool, s.handleFix
}

func (s *Server) handleFix(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}

	fixed, err := s.analyzer.Fix(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fix failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fixed), nil
}

// revwatch_runs
func (s *Server) runsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revwatch_runs",
		mcp.WithDescription("List recent review pipeline runs, newest first. Returns a JSON array with file, status, error kind, provider, model, duration, and timestamp."),
		mcp.WithString("file", mcp.Description("Filter by source file base name")),
		mcp.WithString("status", mcp.Description("Status filter: succeeded, failed")),
		mcp.WithString("limit", mcp.Description("Maximum number of runs to return (default: 20)")),
	)
	return tool, s.handleRuns
}

func (s *Server) handleRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history not configured"), nil
	}

	filter := store.RunListFilter{
		File:   request.GetString("file", ""),
		Status: models.RunStatus(request.GetString("status", "")),
		Limit:  20,
	}
	if v := request.GetString("limit", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	type runOut struct {
		ID          string `json:"id"`
		File        string `json:"file"`
		Status      string `json:"status"`
		ErrorKind   string `json:"error_kind,omitempty"`
		ErrorDetail string `json:"error_detail,omitempty"`
		Provider    string `json:"provider"`
		Model       string `json:"model"`
		DurationMs  int64  `json:"duration_ms"`
		CreatedAt   string `json:"created_at"`
	}

	out := make([]runOut, len(runs))
	for i, run := range runs {
		out[i] = runOut{
			ID:          run.ID,
			File:        run.File,
			Status:      string(run.Status),
			ErrorKind:   string(run.ErrorKind),
			ErrorDetail: run.ErrorDetail,
			Provider:    run.Provider,
			Model:       run.Model,
			DurationMs:  run.DurationMs,
			CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
