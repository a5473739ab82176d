package query

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/hashstore"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/internal/repository/memory"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	storagemem "github.com/feichai0017/slide-migrator/pkg/storage/memory"
)

type QuerySuite struct {
	suite.Suite
	ctx      context.Context
	slides   *memory.SlideStore
	images   *memory.ImageStore
	channels *memory.ChannelStore
	hashes   *hashstore.HashStore
	svc      *Service
}

func (s *QuerySuite) SetupTest() {
	s.ctx = context.Background()
	s.slides = memory.NewSlideStore()
	s.images = memory.NewImageStore()
	s.channels = memory.NewChannelStore()
	s.hashes = hashstore.New(s.images, storagemem.New(), logger.NewNopLogger())
	s.svc = NewService(s.slides, s.images, s.channels, s.hashes, logger.NewNopLogger())

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	channelID := int64(3)
	for id, name := range map[int64]string{1: "Intro to Go", 2: "Advanced go", 3: "Rust"} {
		p := models.NewProcessedSlide(id, now)
		n := name
		p.Name = &n
		p.Active = true
		p.IsPublished = id != 3
		p.ChannelID = &channelID
		s.Require().NoError(s.slides.Save(s.ctx, p))
	}

	ch := models.NewProcessedChannel(channelID, now)
	ch.Active = true
	ch.IsPublished = true
	s.Require().NoError(s.channels.Save(s.ctx, ch))
	hidden := models.NewProcessedChannel(4, now)
	hidden.Active = true
	s.Require().NoError(s.channels.Save(s.ctx, hidden))
}

func (s *QuerySuite) TestListSlidesOnlyPublished() {
	items, total, err := s.svc.ListSlides(s.ctx, repository.Page{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(items, 2)
}

func (s *QuerySuite) TestGetSlide() {
	img := &models.SlideImage{ID: "img-1", SlideID: 1, Filename: "doc_1_img_0.png", MimeType: "image/png", Hash: hashstore.Hash([]byte("abc")), SizeBytes: 3}
	_, _, err := s.hashes.Put(s.ctx, img, []byte("abc"))
	s.Require().NoError(err)

	detail, err := s.svc.GetSlide(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("Intro to Go", *detail.Slide.Name)
	s.Len(detail.Images, 1)

	_, err = s.svc.GetSlide(s.ctx, 42)
	s.True(apperrors.IsNotFound(err))
}

func (s *QuerySuite) TestSearch() {
	items, total, err := s.svc.SearchSlides(s.ctx, "  GO ", repository.Page{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(items, 2)

	_, _, err = s.svc.SearchSlides(s.ctx, "   ", repository.Page{})
	s.True(apperrors.IsValidation(err))
}

func (s *QuerySuite) TestSlidesByChannelPaged() {
	items, total, err := s.svc.SlidesByChannel(s.ctx, 3, repository.Page{Offset: 1, Limit: 1})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(items, 1)
	s.Equal(int64(2), items[0].ID)
}

func (s *QuerySuite) TestChannels() {
	channels, err := s.svc.ListChannels(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(channels, 1)
	s.Equal(int64(3), channels[0].ID)

	_, err = s.svc.GetChannel(s.ctx, 99)
	s.True(apperrors.IsNotFound(err))
}

func (s *QuerySuite) TestImageContentFromBlobStorage() {
	img := &models.SlideImage{ID: "img-2", SlideID: 2, Filename: "doc_2_img_0.gif", MimeType: "image/gif", Hash: hashstore.Hash([]byte("GIF89a")), SizeBytes: 6}
	_, _, err := s.hashes.Put(s.ctx, img, []byte("GIF89a"))
	s.Require().NoError(err)

	content, err := s.svc.Image(s.ctx, 2, "doc_2_img_0.gif")
	s.Require().NoError(err)
	data, err := io.ReadAll(content.Body)
	s.Require().NoError(err)
	s.Require().NoError(content.Body.Close())
	s.Equal("GIF89a", string(data))
	s.Equal("image/gif", content.Image.MimeType)

	content, err = s.svc.ImageByID(s.ctx, "img-2")
	s.Require().NoError(err)
	s.Require().NoError(content.Body.Close())

	_, err = s.svc.Image(s.ctx, 2, "missing.png")
	s.True(apperrors.IsNotFound(err))
	_, err = s.svc.ImageByID(s.ctx, "nope")
	s.True(apperrors.IsNotFound(err))
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}
