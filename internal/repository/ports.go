// Package repository declares the storage ports of the migrator. Each
// entity gets its own narrow interface; adapters live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/feichai0017/slide-migrator/internal/models"
)

// Page selects a window of a listing.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SourceStore reads the upstream replica. Implementations must never write.
type SourceStore interface {
	FindSlide(ctx context.Context, id int64) (*models.SourceSlide, error)
	ListSlideIDs(ctx context.Context, activeOnly bool) ([]int64, error)
	ListSlideIDsModifiedSince(ctx context.Context, since time.Time, activeOnly bool) ([]int64, error)
	// FindSlidesWithEmbeddedImages returns active slides whose content holds
	// inline images, largest content first.
	FindSlidesWithEmbeddedImages(ctx context.Context, limit int) ([]models.SourceSlide, error)
	SlideStats(ctx context.Context) (*models.SourceStats, error)
	FindChannel(ctx context.Context, id int64) (*models.SourceChannel, error)
	ListActiveChannels(ctx context.Context) ([]models.SourceChannel, error)
	ReplicationStatus(ctx context.Context) (*models.ReplicationStatus, error)
	Ping(ctx context.Context) error
}

// SlideStore persists processed slides.
type SlideStore interface {
	FindByID(ctx context.Context, id int64) (*models.ProcessedSlide, error)
	Save(ctx context.Context, slide *models.ProcessedSlide) error
	List(ctx context.Context, activeOnly bool, page Page) ([]models.ProcessedSlide, int64, error)
	ListByChannel(ctx context.Context, channelID int64, page Page) ([]models.ProcessedSlide, int64, error)
	Search(ctx context.Context, query string, page Page) ([]models.ProcessedSlide, int64, error)
	ChannelTotals(ctx context.Context, channelID int64) (models.ChannelTotals, error)
	CompletedTotals(ctx context.Context) (models.ProcessedTotals, error)
}

// ImageStore persists image metadata keyed by content hash.
type ImageStore interface {
	FindByHash(ctx context.Context, hash string) (*models.SlideImage, error)
	// InsertIfAbsent stores image unless a record with the same hash exists.
	// It returns the stored record and whether this call created it.
	InsertIfAbsent(ctx context.Context, image *models.SlideImage) (*models.SlideImage, bool, error)
	FindByID(ctx context.Context, id string) (*models.SlideImage, error)
	FindBySlideAndFilename(ctx context.Context, slideID int64, filename string) (*models.SlideImage, error)
	ListBySlide(ctx context.Context, slideID int64) ([]models.SlideImage, error)
	CountBySlide(ctx context.Context, slideID int64) (int, error)
	StatsByMimeType(ctx context.Context) ([]models.MimeTypeStats, error)
}

// ChannelStore persists aggregated channels.
type ChannelStore interface {
	FindByID(ctx context.Context, id int64) (*models.ProcessedChannel, error)
	Save(ctx context.Context, channel *models.ProcessedChannel) error
	List(ctx context.Context, activeOnly bool) ([]models.ProcessedChannel, error)
}

// TrackingStore persists pipeline state. Every write is visible to other
// processes once the call returns.
type TrackingStore interface {
	Get(ctx context.Context, slideID int64) (*models.SlideProcessingStatus, error)
	// CreateMissing inserts PENDING records for ids that have none.
	CreateMissing(ctx context.Context, ids []int64) (int, error)
	Save(ctx context.Context, status *models.SlideProcessingStatus) error
	// Transition moves every record in from to the given state, restricted to
	// ids when ids is non-nil.
	Transition(ctx context.Context, from, to models.ProcessingStatus, ids []int64) (int, error)
	ListIDs(ctx context.Context, statuses ...models.ProcessingStatus) ([]int64, error)
	CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int64, error)
	LastCompletedAt(ctx context.Context) (*time.Time, error)
}
