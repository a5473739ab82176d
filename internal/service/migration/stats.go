package migration

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const (
	HealthUp       = "UP"
	HealthDegraded = "DEGRADED"
	HealthDown     = "DOWN"
)

type Health struct {
	Status          string                    `json:"status"`
	SourceReachable bool                      `json:"sourceReachable"`
	SourceError     string                    `json:"sourceError,omitempty"`
	Replication     *models.ReplicationStatus `json:"replication,omitempty"`
	Progress        *models.SyncProgress      `json:"progress,omitempty"`
	CheckedAt       time.Time                 `json:"checkedAt"`
}

// Stats reports how much cleanup the source still needs and how much the
// processed copy has saved so far.
func (s *Service) Stats(ctx context.Context) (*models.DepurationStats, error) {
	var (
		source *models.SourceStats
		totals models.ProcessedTotals
		mime   []models.MimeTypeStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = s.source.SlideStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.slides.CompletedTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		mime, err = s.images.StatsByMimeType(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewInfrastructureError("failed to compute statistics").WithCause(err)
	}

	saved := totals.OriginalSizeBytes - totals.ProcessedSizeBytes
	var pct float64
	if totals.OriginalSizeBytes > 0 {
		pct = float64(saved) * 100 / float64(totals.OriginalSizeBytes)
	}
	if mime == nil {
		mime = []models.MimeTypeStats{}
	}

	return &models.DepurationStats{
		Replica: models.ReplicaStats{
			TotalSlides:        source.Total,
			ActiveSlides:       source.Active,
			InactiveSlides:     source.Inactive,
			SlidesWithBase64:   source.WithEmbedded,
			Base64ContentBytes: source.EmbeddedSizeBytes,
		},
		Processed: models.ProcessedStats{
			TotalSlides:        totals.Slides,
			OriginalSizeBytes:  totals.OriginalSizeBytes,
			ProcessedSizeBytes: totals.ProcessedSizeBytes,
			SavedBytes:         saved,
			SavingsPercent:     pct,
			ImagesExtracted:    totals.ImagesExtracted,
		},
		PendingActions: models.PendingActions{
			InactiveSlidesToDelete: source.Inactive,
			InactiveSizeBytes:      source.InactiveSizeBytes,
			SlidesToMigrate:        source.WithEmbedded,
			SlidesToMigrateBytes:   source.EmbeddedSizeBytes,
		},
		Images:      mime,
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) Progress(ctx context.Context) (*models.SyncProgress, error) {
	p, err := s.tracker.Progress(ctx)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("failed to read progress").WithCause(err)
	}
	return p, nil
}

// Health never fails; unreachable dependencies are reported in the body.
func (s *Service) Health(ctx context.Context) (*Health, error) {
	h := &Health{Status: HealthUp, CheckedAt: s.now()}
	degrade := func() {
		if h.Status == HealthUp {
			h.Status = HealthDegraded
		}
	}

	if err := s.source.Ping(ctx); err != nil {
		h.Status = HealthDown
		h.SourceError = err.Error()
		s.logger.Warn("Source replica unreachable", logger.Error(err))
	} else {
		h.SourceReachable = true
		repl, err := s.source.ReplicationStatus(ctx)
		if err != nil {
			degrade()
			s.logger.Warn("Failed to read replication status", logger.Error(err))
		} else {
			h.Replication = repl
		}
	}

	p, err := s.tracker.Progress(ctx)
	if err != nil {
		degrade()
		s.logger.Warn("Failed to read progress", logger.Error(err))
	} else {
		h.Progress = p
	}
	return h, nil
}
