// Package query serves the processed slides, channels and images to the app.
package query

import (
	"context"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/hashstore"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// SlideDetail is a processed slide with the images it references.
type SlideDetail struct {
	Slide  *models.ProcessedSlide
	Images []models.SlideImage
}

// ImageContent is an image record with a reader over its bytes. Callers
// must close Body.
type ImageContent struct {
	Image *models.SlideImage
	Body  io.ReadCloser
}

type Service struct {
	slides   repository.SlideStore
	images   repository.ImageStore
	channels repository.ChannelStore
	hashes   hashstore.Store
	logger   logger.Logger
}

func NewService(
	slides repository.SlideStore,
	images repository.ImageStore,
	channels repository.ChannelStore,
	hashes hashstore.Store,
	log logger.Logger,
) *Service {
	return &Service{
		slides:   slides,
		images:   images,
		channels: channels,
		hashes:   hashes,
		logger:   log.Named("query"),
	}
}

func notFound(err error, resource string) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFoundError(resource).WithComponent("query")
	}
	return apperrors.NewInfrastructureError(fmt.Sprintf("failed to load %s", resource)).WithCause(err)
}

// ListSlides returns active and published slides.
func (s *Service) ListSlides(ctx context.Context, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	page = page.Normalize(DefaultPageSize, MaxPageSize)
	items, total, err := s.slides.List(ctx, true, page)
	if err != nil {
		return nil, 0, apperrors.NewInfrastructureError("failed to list slides").WithCause(err)
	}
	return items, total, nil
}

func (s *Service) GetSlide(ctx context.Context, id int64) (*SlideDetail, error) {
	slide, err := s.slides.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("slide %d", id))
	}
	images, err := s.images.ListBySlide(ctx, id)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("failed to list slide images").WithCause(err)
	}
	return &SlideDetail{Slide: slide, Images: images}, nil
}

func (s *Service) SlidesByChannel(ctx context.Context, channelID int64, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	page = page.Normalize(DefaultPageSize, MaxPageSize)
	items, total, err := s.slides.ListByChannel(ctx, channelID, page)
	if err != nil {
		return nil, 0, apperrors.NewInfrastructureError("failed to list channel slides").WithCause(err)
	}
	return items, total, nil
}

// SearchSlides matches q case-insensitively against slide names.
func (s *Service) SearchSlides(ctx context.Context, q string, page repository.Page) ([]models.ProcessedSlide, int64, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, apperrors.NewValidationError("search query must not be empty").WithDetail("field", "q")
	}
	page = page.Normalize(DefaultPageSize, MaxPageSize)
	items, total, err := s.slides.Search(ctx, q, page)
	if err != nil {
		return nil, 0, apperrors.NewInfrastructureError("failed to search slides").WithCause(err)
	}
	return items, total, nil
}

func (s *Service) SlideImages(ctx context.Context, slideID int64) ([]models.SlideImage, error) {
	images, err := s.images.ListBySlide(ctx, slideID)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("failed to list slide images").WithCause(err)
	}
	return images, nil
}

// ListChannels returns active and published channels.
func (s *Service) ListChannels(ctx context.Context) ([]models.ProcessedChannel, error) {
	channels, err := s.channels.List(ctx, true)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("failed to list channels").WithCause(err)
	}
	return channels, nil
}

func (s *Service) GetChannel(ctx context.Context, id int64) (*models.ProcessedChannel, error) {
	ch, err := s.channels.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("channel %d", id))
	}
	return ch, nil
}

func (s *Service) Image(ctx context.Context, slideID int64, filename string) (*ImageContent, error) {
	img, err := s.images.FindBySlideAndFilename(ctx, slideID, filename)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("image %s", filename))
	}
	return s.open(ctx, img)
}

func (s *Service) ImageByID(ctx context.Context, id string) (*ImageContent, error) {
	img, err := s.images.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("image %s", id))
	}
	return s.open(ctx, img)
}

func (s *Service) open(ctx context.Context, img *models.SlideImage) (*ImageContent, error) {
	body, err := s.hashes.Open(ctx, img)
	if err != nil {
		s.logger.Error("Failed to open image content",
			logger.String("imageId", img.ID),
			logger.String("hash", img.Hash),
			logger.Error(err),
		)
		return nil, apperrors.NewInfrastructureError("failed to read image content").WithCause(err)
	}
	return &ImageContent{Image: img, Body: body}, nil
}
