package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

// embeddedPattern is matched against the jsonb text of html_content.
const embeddedPattern = "%data:image%base64%"

type SourceStore struct {
	db *gorm.DB
}

var _ repository.SourceStore = (*SourceStore)(nil)

func NewSourceStore(db *gorm.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) FindSlide(ctx context.Context, id int64) (*models.SourceSlide, error) {
	var slide models.SourceSlide
	if err := s.db.WithContext(ctx).First(&slide, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "source slide %d", id)
	}
	return &slide, nil
}

func (s *SourceStore) slideIDs(ctx context.Context, activeOnly bool, scope func(*gorm.DB) *gorm.DB) ([]int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.SourceSlide{})
	if activeOnly {
		tx = tx.Where("active = ?", true)
	}
	if scope != nil {
		tx = scope(tx)
	}
	var ids []int64
	if err := tx.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list source slide ids: %w", err)
	}
	return ids, nil
}

func (s *SourceStore) ListSlideIDs(ctx context.Context, activeOnly bool) ([]int64, error) {
	return s.slideIDs(ctx, activeOnly, nil)
}

func (s *SourceStore) ListSlideIDsModifiedSince(ctx context.Context, since time.Time, activeOnly bool) ([]int64, error) {
	return s.slideIDs(ctx, activeOnly, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("write_date > ?", since)
	})
}

func (s *SourceStore) FindSlidesWithEmbeddedImages(ctx context.Context, limit int) ([]models.SourceSlide, error) {
	var slides []models.SourceSlide
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("html_content::text LIKE ?", embeddedPattern).
		Order("pg_column_size(html_content) DESC, id").
		Limit(limit).
		Find(&slides).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find slides with inline images: %w", err)
	}
	return slides, nil
}

// SlideStats sizes content as the byte length of every language variant.
// Inline image counts only cover active slides since inactive ones are
// never migrated.
func (s *SourceStore) SlideStats(ctx context.Context) (*models.SourceStats, error) {
	var stats models.SourceStats
	err := s.db.WithContext(ctx).Raw(`
WITH sized AS (
	SELECT
		s.active,
		s.html_content::text LIKE ? AS embedded,
		CASE WHEN jsonb_typeof(s.html_content) = 'object'
			THEN (SELECT COALESCE(SUM(octet_length(v.value)), 0) FROM jsonb_each_text(s.html_content) AS v)
			ELSE 0
		END AS content_bytes
	FROM public.slide_slide s
)
SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE active) AS active,
	COUNT(*) FILTER (WHERE NOT active) AS inactive,
	COALESCE(SUM(content_bytes) FILTER (WHERE NOT active), 0)::bigint AS inactive_size_bytes,
	COUNT(*) FILTER (WHERE active AND embedded) AS with_embedded,
	COALESCE(SUM(content_bytes) FILTER (WHERE active AND embedded), 0)::bigint AS embedded_size_bytes
FROM sized`, embeddedPattern).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute source statistics: %w", err)
	}
	return &stats, nil
}

func (s *SourceStore) FindChannel(ctx context.Context, id int64) (*models.SourceChannel, error) {
	var channel models.SourceChannel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "source channel %d", id)
	}
	return &channel, nil
}

func (s *SourceStore) ListActiveChannels(ctx context.Context) ([]models.SourceChannel, error) {
	var channels []models.SourceChannel
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list source channels: %w", err)
	}
	return channels, nil
}

func (s *SourceStore) ReplicationStatus(ctx context.Context) (*models.ReplicationStatus, error) {
	var status models.ReplicationStatus
	err := s.db.WithContext(ctx).Raw(`
SELECT
	pg_is_in_recovery() AS in_recovery,
	pg_last_xact_replay_timestamp() AS last_replay_at,
	CASE WHEN pg_is_in_recovery()
		THEN (EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp())) * 1000)::bigint
	END AS replication_lag_ms`).Scan(&status).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read replication status: %w", err)
	}
	return &status, nil
}

func (s *SourceStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
