package postgres

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type SlideStore struct {
	db *gorm.DB
}

var _ repository.SlideStore = (*SlideStore)(nil)

func NewSlideStore(db *gorm.DB) *SlideStore {
	return &SlideStore{db: db}
}

func (s *SlideStore) FindByID(ctx context.Context, id int64) (*models.ProcessedSlide, error) {
	var slide models.ProcessedSlide
	if err := s.db.WithContext(ctx).First(&slide, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "processed slide %d", id)
	}
	return &slide, nil
}

// Save inserts the slide or replaces every column of the existing row.
func (s *SlideStore) Save(ctx context.Context, slide *models.ProcessedSlide) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(slide).Error
	if err != nil {
		return fmt.Errorf("failed to save processed slide %d: %w", slide.ID, err)
	}
	return nil
}

// page counts the filtered rows, then loads one window without the content.
func (s *SlideStore) page(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	var total int64
	if err := scope(s.db.WithContext(ctx).Model(&models.ProcessedSlide{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count processed slides: %w", err)
	}

	slides := make([]models.ProcessedSlide, 0)
	tx := scope(s.db.WithContext(ctx).Model(&models.ProcessedSlide{})).
		Omit("html_content").
		Order("id").
		Offset(page.Offset)
	if page.Limit > 0 {
		tx = tx.Limit(page.Limit)
	}
	if err := tx.Find(&slides).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list processed slides: %w", err)
	}
	return slides, total, nil
}

func (s *SlideStore) List(ctx context.Context, activeOnly bool, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB {
		if activeOnly {
			return tx.Where("active = ? AND is_published = ?", true, true)
		}
		return tx
	}, page)
}

func (s *SlideStore) ListByChannel(ctx context.Context, channelID int64, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("channel_id = ?", channelID)
	}, page)
}

func (s *SlideStore) Search(ctx context.Context, query string, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name ILIKE ?", pattern)
	}, page)
}

func (s *SlideStore) ChannelTotals(ctx context.Context, channelID int64) (models.ChannelTotals, error) {
	var totals models.ChannelTotals
	err := s.db.WithContext(ctx).Model(&models.ProcessedSlide{}).
		Select("COUNT(*) AS slide_count, COALESCE(SUM(processed_size_bytes), 0) AS total_size_bytes").
		Where("channel_id = ?", channelID).
		Scan(&totals).Error
	if err != nil {
		return models.ChannelTotals{}, fmt.Errorf("failed to total channel %d: %w", channelID, err)
	}
	return totals, nil
}

func (s *SlideStore) CompletedTotals(ctx context.Context) (models.ProcessedTotals, error) {
	var totals models.ProcessedTotals
	err := s.db.WithContext(ctx).Model(&models.ProcessedSlide{}).
		Select(`COUNT(*) AS slides,
			COALESCE(SUM(original_size_bytes), 0) AS original_size_bytes,
			COALESCE(SUM(processed_size_bytes), 0) AS processed_size_bytes,
			COALESCE(SUM(images_extracted), 0) AS images_extracted`).
		Where("migration_status = ?", models.MigrationCompleted).
		Scan(&totals).Error
	if err != nil {
		return models.ProcessedTotals{}, fmt.Errorf("failed to total processed slides: %w", err)
	}
	return totals, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
