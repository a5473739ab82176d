package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

// metadataOnly leaves the inline bytes out of listings.
const metadataOnly = "image_data"

type ImageStore struct {
	db *gorm.DB
}

var _ repository.ImageStore = (*ImageStore)(nil)

func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

func (s *ImageStore) FindByHash(ctx context.Context, hash string) (*models.SlideImage, error) {
	var img models.SlideImage
	if err := s.db.WithContext(ctx).Omit(metadataOnly).First(&img, "image_hash = ?", hash).Error; err != nil {
		return nil, notFound(err, "image %s", hash)
	}
	return &img, nil
}

// InsertIfAbsent relies on the unique hash index: when a concurrent writer
// wins the insert, the winner's row is returned instead.
func (s *ImageStore) InsertIfAbsent(ctx context.Context, image *models.SlideImage) (*models.SlideImage, bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_hash"}},
		DoNothing: true,
	}).Create(image)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to insert image %s: %w", image.Hash, res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.FindByHash(ctx, image.Hash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	stored := *image
	return &stored, true, nil
}

func (s *ImageStore) FindByID(ctx context.Context, id string) (*models.SlideImage, error) {
	var img models.SlideImage
	if err := s.db.WithContext(ctx).First(&img, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "image %s", id)
	}
	return &img, nil
}

func (s *ImageStore) FindBySlideAndFilename(ctx context.Context, slideID int64, filename string) (*models.SlideImage, error) {
	var img models.SlideImage
	err := s.db.WithContext(ctx).
		Where("slide_id = ? AND original_filename = ?", slideID, filename).
		First(&img).Error
	if err != nil {
		return nil, notFound(err, "image %d/%s", slideID, filename)
	}
	return &img, nil
}

func (s *ImageStore) ListBySlide(ctx context.Context, slideID int64) ([]models.SlideImage, error) {
	images := make([]models.SlideImage, 0)
	err := s.db.WithContext(ctx).Omit(metadataOnly).
		Where("slide_id = ?", slideID).
		Order("image_index").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images of slide %d: %w", slideID, err)
	}
	return images, nil
}

func (s *ImageStore) CountBySlide(ctx context.Context, slideID int64) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SlideImage{}).Where("slide_id = ?", slideID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count images of slide %d: %w", slideID, err)
	}
	return int(n), nil
}

func (s *ImageStore) StatsByMimeType(ctx context.Context) ([]models.MimeTypeStats, error) {
	stats := make([]models.MimeTypeStats, 0)
	err := s.db.WithContext(ctx).Model(&models.SlideImage{}).
		Select("mime_type, COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS total_bytes").
		Group("mime_type").
		Order("count DESC, mime_type").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group images by type: %w", err)
	}
	return stats, nil
}
