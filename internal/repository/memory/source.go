// Package memory implements the repository ports in process memory. It
// backs the test suites and the memory store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

// SourceStore is a mutable fixture standing in for the upstream replica.
type SourceStore struct {
	mu          sync.RWMutex
	slides      map[int64]models.SourceSlide
	channels    map[int64]models.SourceChannel
	replication models.ReplicationStatus
	err         error
}

var _ repository.SourceStore = (*SourceStore)(nil)

func NewSourceStore() *SourceStore {
	return &SourceStore{
		slides:   make(map[int64]models.SourceSlide),
		channels: make(map[int64]models.SourceChannel),
	}
}

// PutSlide inserts or replaces a slide.
func (s *SourceStore) PutSlide(slide models.SourceSlide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slides[slide.ID] = slide
}

func (s *SourceStore) DeleteSlide(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slides, id)
}

func (s *SourceStore) PutChannel(channel models.SourceChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.ID] = channel
}

func (s *SourceStore) SetReplicationStatus(status models.ReplicationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replication = status
}

// FailWith makes every read return err until called with nil.
func (s *SourceStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *SourceStore) FindSlide(_ context.Context, id int64) (*models.SourceSlide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	slide, ok := s.slides[id]
	if !ok {
		return nil, fmt.Errorf("source slide %d: %w", id, apperrors.ErrNotFound)
	}
	return &slide, nil
}

func (s *SourceStore) ListSlideIDs(_ context.Context, activeOnly bool) ([]int64, error) {
	return s.selectIDs(func(slide models.SourceSlide) bool {
		return !activeOnly || slide.Active
	})
}

func (s *SourceStore) ListSlideIDsModifiedSince(_ context.Context, since time.Time, activeOnly bool) ([]int64, error) {
	return s.selectIDs(func(slide models.SourceSlide) bool {
		if activeOnly && !slide.Active {
			return false
		}
		return slide.WriteDate != nil && slide.WriteDate.After(since)
	})
}

func (s *SourceStore) selectIDs(keep func(models.SourceSlide) bool) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]int64, 0, len(s.slides))
	for id, slide := range s.slides {
		if keep(slide) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// containsEmbedded mirrors LIKE '%data:image%base64%' over every locale.
func containsEmbedded(slide models.SourceSlide) bool {
	for _, v := range slide.HTMLContent.Data() {
		if i := strings.Index(v, "data:image"); i >= 0 && strings.Contains(v[i:], "base64") {
			return true
		}
	}
	return false
}

func (s *SourceStore) FindSlidesWithEmbeddedImages(_ context.Context, limit int) ([]models.SourceSlide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.SourceSlide
	for _, slide := range s.slides {
		if slide.Active && containsEmbedded(slide) {
			out = append(out, slide)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].ContentSizeBytes(), out[j].ContentSizeBytes()
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SourceStore) SlideStats(_ context.Context) (*models.SourceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	stats := &models.SourceStats{}
	for _, slide := range s.slides {
		stats.Total++
		if !slide.Active {
			stats.Inactive++
			stats.InactiveSizeBytes += slide.ContentSizeBytes()
			continue
		}
		stats.Active++
		if containsEmbedded(slide) {
			stats.WithEmbedded++
			stats.EmbeddedSizeBytes += slide.ContentSizeBytes()
		}
	}
	return stats, nil
}

func (s *SourceStore) FindChannel(_ context.Context, id int64) (*models.SourceChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	channel, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("source channel %d: %w", id, apperrors.ErrNotFound)
	}
	return &channel, nil
}

func (s *SourceStore) ListActiveChannels(_ context.Context) ([]models.SourceChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.SourceChannel
	for _, channel := range s.channels {
		if channel.Active {
			out = append(out, channel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SourceStore) ReplicationStatus(_ context.Context) (*models.ReplicationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	status := s.replication
	return &status, nil
}

func (s *SourceStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
