// Package converters maps stored entities to the JSON bodies of the API.
package converters

import (
	"time"

	"github.com/feichai0017/slide-migrator/internal/models"
)

// SlideListItem is the compact listing form of a slide.
type SlideListItem struct {
	ID                 int64                  `json:"id"`
	ChannelID          *int64                 `json:"channelId,omitempty"`
	ChannelName        *string                `json:"channelName,omitempty"`
	Name               *string                `json:"name,omitempty"`
	SlideType          *string                `json:"slideType,omitempty"`
	Active             bool                   `json:"active"`
	IsPublished        bool                   `json:"isPublished"`
	TotalViews         *int                   `json:"totalViews,omitempty"`
	OriginalSizeBytes  int64                  `json:"originalSizeBytes"`
	ProcessedSizeBytes int64                  `json:"processedSizeBytes"`
	MigrationStatus    models.MigrationStatus `json:"migrationStatus"`
}

// SlideResponse is the full slide with its cleaned HTML and images.
type SlideResponse struct {
	SlideListItem
	HTMLContent     *string     `json:"htmlContent,omitempty"`
	Description     *string     `json:"description,omitempty"`
	ImagesExtracted int         `json:"imagesExtracted"`
	SourceCreatedAt *time.Time  `json:"sourceCreatedAt,omitempty"`
	LastSyncedAt    time.Time   `json:"lastSyncedAt"`
	MigrationNotes  *string     `json:"migrationNotes,omitempty"`
	Images          []ImageInfo `json:"images"`
}

type ImageInfo struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	PublicURL string `json:"publicUrl"`
}

type ChannelResponse struct {
	ID              int64      `json:"id"`
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Active          bool       `json:"active"`
	IsPublished     bool       `json:"isPublished"`
	TotalViews      *int       `json:"totalViews,omitempty"`
	SlideCount      int        `json:"slideCount"`
	TotalSizeBytes  int64      `json:"totalSizeBytes"`
	SourceCreatedAt *time.Time `json:"sourceCreatedAt,omitempty"`
	LastSyncedAt    time.Time  `json:"lastSyncedAt"`
}

// Page wraps a window of a listing.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

func ToSlideListItem(s *models.ProcessedSlide) SlideListItem {
	return SlideListItem{
		ID:                 s.ID,
		ChannelID:          s.ChannelID,
		ChannelName:        s.ChannelName,
		Name:               s.Name,
		SlideType:          s.SlideType,
		Active:             s.Active,
		IsPublished:        s.IsPublished,
		TotalViews:         s.TotalViews,
		OriginalSizeBytes:  s.OriginalSizeBytes,
		ProcessedSizeBytes: s.ProcessedSizeBytes,
		MigrationStatus:    s.MigrationStatus,
	}
}

func ToSlideListItems(slides []models.ProcessedSlide) []SlideListItem {
	items := make([]SlideListItem, 0, len(slides))
	for i := range slides {
		items = append(items, ToSlideListItem(&slides[i]))
	}
	return items
}

func ToSlideResponse(s *models.ProcessedSlide, images []models.SlideImage) SlideResponse {
	return SlideResponse{
		SlideListItem:   ToSlideListItem(s),
		HTMLContent:     s.HTMLContent,
		Description:     s.Description,
		ImagesExtracted: s.ImagesExtracted,
		SourceCreatedAt: s.SourceCreatedAt,
		LastSyncedAt:    s.LastSyncedAt,
		MigrationNotes:  s.MigrationNotes,
		Images:          ToImageInfos(images),
	}
}

func ToImageInfo(img *models.SlideImage) ImageInfo {
	return ImageInfo{
		ID:        img.ID,
		Filename:  img.Filename,
		MimeType:  img.MimeType,
		SizeBytes: img.SizeBytes,
		Width:     img.Width,
		Height:    img.Height,
		PublicURL: img.PublicURL,
	}
}

func ToImageInfos(images []models.SlideImage) []ImageInfo {
	infos := make([]ImageInfo, 0, len(images))
	for i := range images {
		infos = append(infos, ToImageInfo(&images[i]))
	}
	return infos
}

func ToChannelResponse(c *models.ProcessedChannel) ChannelResponse {
	return ChannelResponse{
		ID:              c.ID,
		Name:            c.Name,
		Description:     c.Description,
		Active:          c.Active,
		IsPublished:     c.IsPublished,
		TotalViews:      c.TotalViews,
		SlideCount:      c.SlideCount,
		TotalSizeBytes:  c.TotalSizeBytes,
		SourceCreatedAt: c.SourceCreatedAt,
		LastSyncedAt:    c.LastSyncedAt,
	}
}

func ToChannelResponses(channels []models.ProcessedChannel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(channels))
	for i := range channels {
		out = append(out, ToChannelResponse(&channels[i]))
	}
	return out
}

// NewPage builds a listing response; a nil items slice renders as [].
func NewPage[T any](items []T, total int64, offset, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Offset: offset, Limit: limit}
}
