package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type ChannelStore struct {
	db *gorm.DB
}

var _ repository.ChannelStore = (*ChannelStore)(nil)

func NewChannelStore(db *gorm.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) FindByID(ctx context.Context, id int64) (*models.ProcessedChannel, error) {
	var channel models.ProcessedChannel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "processed channel %d", id)
	}
	return &channel, nil
}

func (s *ChannelStore) Save(ctx context.Context, channel *models.ProcessedChannel) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(channel).Error
	if err != nil {
		return fmt.Errorf("failed to save processed channel %d: %w", channel.ID, err)
	}
	return nil
}

func (s *ChannelStore) List(ctx context.Context, activeOnly bool) ([]models.ProcessedChannel, error) {
	channels := make([]models.ProcessedChannel, 0)
	tx := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		tx = tx.Where("active = ? AND is_published = ?", true, true)
	}
	if err := tx.Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list processed channels: %w", err)
	}
	return channels, nil
}
