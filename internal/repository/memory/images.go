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

// ImageStore keeps at most one record per hash.
type ImageStore struct {
	mu     sync.RWMutex
	byHash map[string]models.SlideImage
	byID   map[string]string
	err    error
}

var _ repository.ImageStore = (*ImageStore)(nil)

func NewImageStore() *ImageStore {
	return &ImageStore{
		byHash: make(map[string]models.SlideImage),
		byID:   make(map[string]string),
	}
}

func (s *ImageStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Len is the number of distinct images stored.
func (s *ImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

func (s *ImageStore) FindByHash(_ context.Context, hash string) (*models.SlideImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	img, ok := s.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", hash, apperrors.ErrNotFound)
	}
	return &img, nil
}

func (s *ImageStore) InsertIfAbsent(_ context.Context, image *models.SlideImage) (*models.SlideImage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	if existing, ok := s.byHash[image.Hash]; ok {
		return &existing, false, nil
	}
	stored := *image
	s.byHash[stored.Hash] = stored
	s.byID[stored.ID] = stored.Hash
	return &stored, true, nil
}

func (s *ImageStore) FindByID(_ context.Context, id string) (*models.SlideImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	hash, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", id, apperrors.ErrNotFound)
	}
	img := s.byHash[hash]
	return &img, nil
}

func (s *ImageStore) FindBySlideAndFilename(ctx context.Context, slideID int64, filename string) (*models.SlideImage, error) {
	images, err := s.ListBySlide(ctx, slideID)
	if err != nil {
		return nil, err
	}
	for i := range images {
		if images[i].Filename == filename {
			return &images[i], nil
		}
	}
	return nil, fmt.Errorf("image %d/%s: %w", slideID, filename, apperrors.ErrNotFound)
}

func (s *ImageStore) ListBySlide(_ context.Context, slideID int64) ([]models.SlideImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.SlideImage
	for _, img := range s.byHash {
		if img.SlideID == slideID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImageIndex < out[j].ImageIndex })
	return out, nil
}

func (s *ImageStore) CountBySlide(ctx context.Context, slideID int64) (int, error) {
	images, err := s.ListBySlide(ctx, slideID)
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

func (s *ImageStore) StatsByMimeType(_ context.Context) ([]models.MimeTypeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	grouped := make(map[string]*models.MimeTypeStats)
	for _, img := range s.byHash {
		st, ok := grouped[img.MimeType]
		if !ok {
			st = &models.MimeTypeStats{MimeType: img.MimeType}
			grouped[img.MimeType] = st
		}
		st.Count++
		st.TotalBytes += img.SizeBytes
	}
	out := make([]models.MimeTypeStats, 0, len(grouped))
	for _, st := range grouped {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].MimeType < out[j].MimeType
	})
	return out, nil
}
