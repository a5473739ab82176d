package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type TrackingStore struct {
	db *gorm.DB
}

var _ repository.TrackingStore = (*TrackingStore)(nil)

func NewTrackingStore(db *gorm.DB) *TrackingStore {
	return &TrackingStore{db: db}
}

func (s *TrackingStore) Get(ctx context.Context, slideID int64) (*models.SlideProcessingStatus, error) {
	var rec models.SlideProcessingStatus
	if err := s.db.WithContext(ctx).First(&rec, "slide_id = ?", slideID).Error; err != nil {
		return nil, notFound(err, "tracking record %d", slideID)
	}
	return &rec, nil
}

func (s *TrackingStore) CreateMissing(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	records := make([]models.SlideProcessingStatus, len(ids))
	for i, id := range ids {
		records[i] = models.SlideProcessingStatus{SlideID: id, Status: models.StatusPending}
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to create tracking records: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *TrackingStore) Save(ctx context.Context, status *models.SlideProcessingStatus) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slide_id"}},
		UpdateAll: true,
	}).Create(status).Error
	if err != nil {
		return fmt.Errorf("failed to save tracking record %d: %w", status.SlideID, err)
	}
	return nil
}

func (s *TrackingStore) Transition(ctx context.Context, from, to models.ProcessingStatus, ids []int64) (int, error) {
	update := func(tx *gorm.DB) (int, error) {
		res := tx.Model(&models.SlideProcessingStatus{}).
			Where("status = ?", from).
			Update("status", to)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to move tracking records from %s to %s: %w", from, to, res.Error)
		}
		return int(res.RowsAffected), nil
	}

	if ids == nil {
		return update(s.db.WithContext(ctx))
	}
	moved := 0
	for _, chunk := range chunks(ids, batchSize) {
		n, err := update(s.db.WithContext(ctx).Where("slide_id IN ?", chunk))
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (s *TrackingStore) ListIDs(ctx context.Context, statuses ...models.ProcessingStatus) ([]int64, error) {
	ids := make([]int64, 0)
	if len(statuses) == 0 {
		return ids, nil
	}
	err := s.db.WithContext(ctx).Model(&models.SlideProcessingStatus{}).
		Where("status IN ?", statuses).
		Order("slide_id").
		Pluck("slide_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking ids: %w", err)
	}
	return ids, nil
}

func (s *TrackingStore) CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int64, error) {
	var rows []struct {
		Status models.ProcessingStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.SlideProcessingStatus{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tracking records: %w", err)
	}
	counts := make(map[models.ProcessingStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *TrackingStore) LastCompletedAt(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.WithContext(ctx).Model(&models.SlideProcessingStatus{}).
		Select("MAX(completed_at)").
		Row().Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to read last completion time: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}
