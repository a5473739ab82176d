package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type TrackingStore struct {
	mu      sync.RWMutex
	records map[int64]models.SlideProcessingStatus
	writes  int
}

var _ repository.TrackingStore = (*TrackingStore)(nil)

func NewTrackingStore() *TrackingStore {
	return &TrackingStore{records: make(map[int64]models.SlideProcessingStatus)}
}

// Writes counts persisted mutations.
func (s *TrackingStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *TrackingStore) Get(_ context.Context, slideID int64) (*models.SlideProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[slideID]
	if !ok {
		return nil, fmt.Errorf("tracking record %d: %w", slideID, apperrors.ErrNotFound)
	}
	return &rec, nil
}

func (s *TrackingStore) CreateMissing(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			continue
		}
		s.records[id] = models.SlideProcessingStatus{SlideID: id, Status: models.StatusPending}
		created++
	}
	if created > 0 {
		s.writes++
	}
	return created, nil
}

func (s *TrackingStore) Save(_ context.Context, status *models.SlideProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[status.SlideID] = *status
	s.writes++
	return nil
}

func (s *TrackingStore) Transition(_ context.Context, from, to models.ProcessingStatus, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var only map[int64]bool
	if ids != nil {
		only = make(map[int64]bool, len(ids))
		for _, id := range ids {
			only[id] = true
		}
	}
	moved := 0
	for id, rec := range s.records {
		if rec.Status != from || (only != nil && !only[id]) {
			continue
		}
		rec.Status = to
		s.records[id] = rec
		moved++
	}
	if moved > 0 {
		s.writes++
	}
	return moved, nil
}

func (s *TrackingStore) ListIDs(_ context.Context, statuses ...models.ProcessingStatus) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.ProcessingStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var ids []int64
	for id, rec := range s.records {
		if want[rec.Status] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *TrackingStore) CountByStatus(_ context.Context) (map[models.ProcessingStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.ProcessingStatus]int64)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (s *TrackingStore) LastCompletedAt(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, rec := range s.records {
		if rec.CompletedAt == nil {
			continue
		}
		if last == nil || rec.CompletedAt.After(*last) {
			t := *rec.CompletedAt
			last = &t
		}
	}
	return last, nil
}
