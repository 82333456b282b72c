package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockAnalyzer implements Analyzer for testing.
type mockAnalyzer struct {
	review    string
	fix       string
	reviewErr error
	fixErr    error
	lastCode  string
}

func (m *mockAnalyzer) Review(_ context.Context, code string) (string, error) {
	m.lastCode = code
	if m.reviewErr != nil {
		return "", m.reviewErr
	}
	return m.review, nil
}

func (m *mockAnalyzer) Fix(_ context.Context, code string) (string, error) {
	m.lastCode = code
	if m.fixErr != nil {
		return "", m.fixErr
	}
	return m.fix, nil
}

// mockStore implements store.Store for testing.
type mockStore struct {
	runs []*models.ReviewRun

	// Optional error injection.
	listRunsErr error
}

func (m *mockStore) CreateRun(_ context.Context, run *models.ReviewRun) error {
	if run.ID == "" {
		run.ID = fmt.Sprintf("run-%d", len(m.runs)+1)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*models.ReviewRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("run not found: %s", id)
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunListFilter) ([]*models.ReviewRun, error) {
	if m.listRunsErr != nil {
		return nil, m.listRunsErr
	}
	var result []*models.ReviewRun
	for _, run := range m.runs {
		if filter.File != "" && run.File != filter.File {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, run)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *mockStore) CountRunsByStatus(_ context.Context) (map[models.RunStatus]int, error) {
	counts := make(map[models.RunStatus]int)
	for _, run := range m.runs {
		counts[run.Status]++
	}
	return counts, nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Close() error                    { return nil }

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockAnalyzer, *mockStore) {
	t.Helper()

	ma := &mockAnalyzer{review: "looks fine", fix: "x = 1"}
	ms := &mockStore{}

	srv := NewServer(ma, ms)
	require.NotNil(t, srv)

	return srv, ma, ms
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// seedRun adds a run to the mock store and returns it.
func seedRun(t *testing.T, ms *mockStore, file string, status models.RunStatus) *models.ReviewRun {
	t.Helper()
	run := &models.ReviewRun{
		ID:        fmt.Sprintf("run-%s-%d", file, len(ms.runs)+1),
		File:      file,
		Status:    status,
		Provider:  "ollama",
		Model:     "tinyllama",
		CreatedAt: time.Now().UTC(),
	}
	ms.runs = append(ms.runs, run)
	return run
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: revwatch_review
// ---------------------------------------------------------------------------

func TestHandleReview(t *testing.T) {
	srv, ma, _ := newTestServer(t)
	ctx := context.Background()
	ma.review = "division by zero on line 1"

	req := callToolReq("revwatch_review", map[string]any{"code": "x = 1/0"})
	result, err := srv.handleReview(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	assert.Equal(t, "division by zero on line 1", resultText(t, result))
	assert.Equal(t, "x = 1/0", ma.lastCode)
}

func TestHandleReview_MissingCode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("revwatch_review", nil)
	result, err := srv.handleReview(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "missing required parameter: code")
}

func TestHandleReview_AnalyzerError(t *testing.T) {
	srv, ma, _ := newTestServer(t)
	ma.reviewErr = fmt.Errorf("connection refused")

	req := callToolReq("revwatch_review", map[string]any{"code": "pass"})
	result, err := srv.handleReview(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "review failed")
}

// ---------------------------------------------------------------------------
// Tests: revwatch_fix
// ---------------------------------------------------------------------------

func TestHandleFix(t *testing.T) {
	srv, ma, _ := newTestServer(t)
	ma.fix = "x = 1"

	req := callToolReq("revwatch_fix", map[string]any{"code": "x = 1/0"})
	result, err := srv.handleFix(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "x = 1", resultText(t, result))
}

func TestHandleFix_MissingCode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("revwatch_fix", nil)
	result, err := srv.handleFix(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleFix_AnalyzerError(t *testing.T) {
	srv, ma, _ := newTestServer(t)
	ma.fixErr = fmt.Errorf("model unavailable")

	req := callToolReq("revwatch_fix", map[string]any{"code": "pass"})
	result, err := srv.handleFix(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "fix failed")
}

// ---------------------------------------------------------------------------
// Tests: revwatch_runs
// ---------------------------------------------------------------------------

func TestHandleRuns_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("revwatch_runs", nil)
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleRuns_WithRuns(t *testing.T) {
	srv, _, ms := newTestServer(t)

	seedRun(t, ms, "a.py", models.RunStatusSucceeded)
	seedRun(t, ms, "b.py", models.RunStatusFailed)

	req := callToolReq("revwatch_runs", nil)
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "a.py", out[0]["file"])
	assert.Equal(t, "succeeded", out[0]["status"])
}

func TestHandleRuns_FilterByFile(t *testing.T) {
	srv, _, ms := newTestServer(t)

	seedRun(t, ms, "a.py", models.RunStatusSucceeded)
	seedRun(t, ms, "b.py", models.RunStatusSucceeded)

	req := callToolReq("revwatch_runs", map[string]any{"file": "a.py"})
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "a.py")
	assert.NotContains(t, text, "b.py")
}

func TestHandleRuns_InvalidLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("revwatch_runs", map[string]any{"limit": "abc"})
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid limit")
}

func TestHandleRuns_StoreError(t *testing.T) {
	srv, _, ms := newTestServer(t)
	ms.listRunsErr = fmt.Errorf("db locked")

	req := callToolReq("revwatch_runs", nil)
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "failed to list runs")
}

func TestHandleRuns_NoStore(t *testing.T) {
	srv := NewServer(&mockAnalyzer{}, nil)

	req := callToolReq("revwatch_runs", nil)
	result, err := srv.handleRuns(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "run history not configured")
}
