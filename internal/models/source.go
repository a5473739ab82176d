package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feichai0017/slide-migrator/internal/locale"
)

// LocalizedText is a jsonb map of language code to value.
type LocalizedText = datatypes.JSONType[map[string]string]

// NewLocalizedText wraps a plain map.
func NewLocalizedText(values map[string]string) LocalizedText {
	return datatypes.NewJSONType(values)
}

// SourceSlide is a row of the upstream slide_slide table. It is never written.
type SourceSlide struct {
	ID          int64         `gorm:"column:id;primaryKey"`
	ChannelID   *int64        `gorm:"column:channel_id"`
	Name        LocalizedText `gorm:"column:name;type:jsonb"`
	SlideType   *string       `gorm:"column:slide_type"`
	HTMLContent LocalizedText `gorm:"column:html_content;type:jsonb"`
	Description *string       `gorm:"column:description"`
	Active      bool          `gorm:"column:active"`
	IsPublished bool          `gorm:"column:is_published"`
	TotalViews  *int          `gorm:"column:total_views"`
	CreateDate  *time.Time    `gorm:"column:create_date"`
	WriteDate   *time.Time    `gorm:"column:write_date"`
}

func (SourceSlide) TableName() string {
	return "public.slide_slide"
}

// EffectiveName is the name in the preferred available language.
func (s *SourceSlide) EffectiveName() *string {
	return locale.ResolvePtr(s.Name.Data())
}

// EffectiveContent is the HTML body in the preferred available language.
func (s *SourceSlide) EffectiveContent() *string {
	return locale.ResolvePtr(s.HTMLContent.Data())
}

// ContentSizeBytes sums the byte length of every language variant.
func (s *SourceSlide) ContentSizeBytes() int64 {
	var total int64
	for _, v := range s.HTMLContent.Data() {
		total += int64(len(v))
	}
	return total
}

// SourceChannel is a row of the upstream slide_channel table.
type SourceChannel struct {
	ID          int64         `gorm:"column:id;primaryKey"`
	Name        LocalizedText `gorm:"column:name;type:jsonb"`
	Description LocalizedText `gorm:"column:description;type:jsonb"`
	Active      bool          `gorm:"column:active"`
	IsPublished bool          `gorm:"column:is_published"`
	TotalViews  *int          `gorm:"column:total_views"`
	CreateDate  *time.Time    `gorm:"column:create_date"`
	WriteDate   *time.Time    `gorm:"column:write_date"`
}

func (SourceChannel) TableName() string {
	return "public.slide_channel"
}

func (c *SourceChannel) EffectiveName() *string {
	return locale.ResolvePtr(c.Name.Data())
}

func (c *SourceChannel) EffectiveDescription() *string {
	return locale.ResolvePtr(c.Description.Data())
}

// SourceStats are aggregate counters over the upstream slides.
type SourceStats struct {
	Total             int64
	Active            int64
	Inactive          int64
	InactiveSizeBytes int64
	WithEmbedded      int64
	EmbeddedSizeBytes int64
}

// ReplicationStatus describes the health of the read replica.
type ReplicationStatus struct {
	InRecovery       bool       `json:"inRecovery"`
	LastReplayAt     *time.Time `json:"lastReplayAt,omitempty"`
	ReplicationLagMs *int64     `json:"replicationLagMs,omitempty"`
}
