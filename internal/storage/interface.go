package storage

import (
	"context"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, run *domain.Run) error
	CompleteRun(ctx context.Context, runID, status string, processed, skipped int) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error)
	GetLatestRun(ctx context.Context, org string) (*domain.Run, error)

	// Row operations. position is the 1-based listing order within the run.
	SaveRow(ctx context.Context, runID string, position int, row *domain.InventoryRow) error
	GetRows(ctx context.Context, runID string) ([]*domain.InventoryRow, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
