package migration

import (
	"context"

	"github.com/feichai0017/slide-migrator/internal/models"
)

// Migrator is the admin surface of the synchronization pipeline.
type Migrator interface {
	Sync(ctx context.Context, activeOnly bool) (*models.SyncResult, error)
	SyncOne(ctx context.Context, slideID int64) (*models.SlideResult, error)
	MigrateBatch(ctx context.Context, limit int) ([]models.SlideResult, error)
	Stats(ctx context.Context) (*models.DepurationStats, error)
	Progress(ctx context.Context) (*models.SyncProgress, error)
	Health(ctx context.Context) (*Health, error)
	LastRun(ctx context.Context) (*models.SyncResult, error)
}

// RunStore keeps the summary of the most recent run so that it can be read
// by processes other than the one that ran it.
type RunStore interface {
	SaveRun(ctx context.Context, result *models.SyncResult) error
	LastRun(ctx context.Context) (*models.SyncResult, error)
}
