package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revwatch/revwatch/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestCreateRun_FillsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.ReviewRun{
		File:   "example.py",
		Status: models.RunStatusSucceeded,
	}
	err := s.CreateRun(ctx, run)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.ReviewRun{
		File:        "example.py",
		Status:      models.RunStatusFailed,
		ErrorKind:   models.ErrorKindInference,
		ErrorDetail: "review call: context deadline exceeded",
		Provider:    "ollama",
		Model:       "tinyllama",
		ContentHash: "deadbeef",
		DurationMs:  1234,
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.File, got.File)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.ErrorKind, got.ErrorKind)
	assert.Equal(t, run.ErrorDetail, got.ErrorDetail)
	assert.Equal(t, run.Provider, got.Provider)
	assert.Equal(t, run.Model, got.Model)
	assert.Equal(t, run.ContentHash, got.ContentHash)
	assert.Equal(t, run.DurationMs, got.DurationMs)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &models.ReviewRun{
			File:      "example.py",
			Status:    models.RunStatusSucceeded,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, RunListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))
	assert.True(t, runs[1].CreatedAt.After(runs[2].CreatedAt))
}

func TestListRuns_FilterByFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "a.py", Status: models.RunStatusSucceeded}))
	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "b.py", Status: models.RunStatusSucceeded}))
	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "a.py", Status: models.RunStatusFailed}))

	runs, err := s.ListRuns(ctx, RunListFilter{File: "a.py"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "a.py", run.File)
	}
}

func TestListRuns_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "a.py", Status: models.RunStatusSucceeded}))
	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "b.py", Status: models.RunStatusFailed, ErrorKind: models.ErrorKindRead}))

	runs, err := s.ListRuns(ctx, RunListFilter{Status: models.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b.py", runs[0].File)
	assert.Equal(t, models.ErrorKindRead, runs[0].ErrorKind)
}

func TestListRuns_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "a.py", Status: models.RunStatusSucceeded}))
	}

	runs, err := s.ListRuns(ctx, RunListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListRuns_Empty(t *testing.T) {
	s := newTestStore(t)

	runs, err := s.ListRuns(context.Background(), RunListFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCountRunsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "a.py", Status: models.RunStatusSucceeded}))
	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "b.py", Status: models.RunStatusSucceeded}))
	require.NoError(t, s.CreateRun(ctx, &models.ReviewRun{File: "c.py", Status: models.RunStatusFailed}))

	counts, err := s.CountRunsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.RunStatusSucceeded])
	assert.Equal(t, 1, counts[models.RunStatusFailed])
}

func TestCreateRun_RepeatedRunsForSameFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unchanged content still produces a fresh record per run.
	for i := 0; i < 3; i++ {
		run := &models.ReviewRun{File: "a.py", Status: models.RunStatusSucceeded, ContentHash: "same"}
		require.NoError(t, s.CreateRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, RunListFilter{File: "a.py"})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
