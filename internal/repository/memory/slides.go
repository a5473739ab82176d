package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type SlideStore struct {
	mu     sync.RWMutex
	slides map[int64]models.ProcessedSlide
	saves  int
	err    error
}

var _ repository.SlideStore = (*SlideStore)(nil)

func NewSlideStore() *SlideStore {
	return &SlideStore{slides: make(map[int64]models.ProcessedSlide)}
}

// FailWith makes every call return err until called with nil.
func (s *SlideStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Saves counts successful Save calls.
func (s *SlideStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *SlideStore) FindByID(_ context.Context, id int64) (*models.ProcessedSlide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	slide, ok := s.slides[id]
	if !ok {
		return nil, fmt.Errorf("processed slide %d: %w", id, apperrors.ErrNotFound)
	}
	return &slide, nil
}

func (s *SlideStore) Save(_ context.Context, slide *models.ProcessedSlide) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.slides[slide.ID] = *slide
	s.saves++
	return nil
}

func (s *SlideStore) filter(keep func(models.ProcessedSlide) bool, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, 0, s.err
	}
	var all []models.ProcessedSlide
	for _, slide := range s.slides {
		if keep(slide) {
			all = append(all, slide)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if page.Offset >= len(all) {
		return []models.ProcessedSlide{}, total, nil
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return all[page.Offset:end], total, nil
}

func (s *SlideStore) List(_ context.Context, activeOnly bool, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	return s.filter(func(p models.ProcessedSlide) bool {
		return !activeOnly || (p.Active && p.IsPublished)
	}, page)
}

func (s *SlideStore) ListByChannel(_ context.Context, channelID int64, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	return s.filter(func(p models.ProcessedSlide) bool {
		return p.ChannelID != nil && *p.ChannelID == channelID
	}, page)
}

func (s *SlideStore) Search(_ context.Context, query string, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	q := strings.ToLower(query)
	return s.filter(func(p models.ProcessedSlide) bool {
		return p.Name != nil && strings.Contains(strings.ToLower(*p.Name), q)
	}, page)
}

func (s *SlideStore) ChannelTotals(_ context.Context, channelID int64) (models.ChannelTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return models.ChannelTotals{}, s.err
	}
	var totals models.ChannelTotals
	for _, slide := range s.slides {
		if slide.ChannelID != nil && *slide.ChannelID == channelID {
			totals.SlideCount++
			totals.TotalSizeBytes += slide.ProcessedSizeBytes
		}
	}
	return totals, nil
}

func (s *SlideStore) CompletedTotals(_ context.Context) (models.ProcessedTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return models.ProcessedTotals{}, s.err
	}
	var totals models.ProcessedTotals
	for _, slide := range s.slides {
		if slide.MigrationStatus != models.MigrationCompleted {
			continue
		}
		totals.Slides++
		totals.OriginalSizeBytes += slide.OriginalSizeBytes
		totals.ProcessedSizeBytes += slide.ProcessedSizeBytes
		totals.ImagesExtracted += int64(slide.ImagesExtracted)
	}
	return totals, nil
}
