package store

import (
	"context"

	"github.com/revwatch/revwatch/internal/models"
)

// RunListFilter specifies filters for listing review runs.
type RunListFilter struct {
	File   string
	Status models.RunStatus
	Limit  int
}

// Store defines the persistence interface for revwatch run history.
type Store interface {
	CreateRun(ctx context.Context, run *models.ReviewRun) error
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]*models.ReviewRun, error)
	CountRunsByStatus(ctx context.Context) (map[models.RunStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
