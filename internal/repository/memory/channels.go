package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

type ChannelStore struct {
	mu       sync.RWMutex
	channels map[int64]models.ProcessedChannel
	failIDs  map[int64]error
}

var _ repository.ChannelStore = (*ChannelStore)(nil)

func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		channels: make(map[int64]models.ProcessedChannel),
		failIDs:  make(map[int64]error),
	}
}

// FailSaveFor makes Save of channel id return err.
func (s *ChannelStore) FailSaveFor(id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIDs[id] = err
}

func (s *ChannelStore) FindByID(_ context.Context, id int64) (*models.ProcessedChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("processed channel %d: %w", id, apperrors.ErrNotFound)
	}
	return &channel, nil
}

func (s *ChannelStore) Save(_ context.Context, channel *models.ProcessedChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failIDs[channel.ID]; err != nil {
		return err
	}
	s.channels[channel.ID] = *channel
	return nil
}

func (s *ChannelStore) List(_ context.Context, activeOnly bool) ([]models.ProcessedChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProcessedChannel
	for _, channel := range s.channels {
		if !activeOnly || (channel.Active && channel.IsPublished) {
			out = append(out, channel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
