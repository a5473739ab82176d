package models

import "time"

// ProcessedChannel is the aggregated copy of a SourceChannel.
type ProcessedChannel struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name             *string    `gorm:"column:name;size:500" json:"name,omitempty"`
	Description      *string    `gorm:"column:description;type:text" json:"description,omitempty"`
	Active           bool       `gorm:"column:active;index" json:"active"`
	IsPublished      bool       `gorm:"column:is_published" json:"isPublished"`
	TotalViews       *int       `gorm:"column:total_views" json:"totalViews,omitempty"`
	SlideCount       int        `gorm:"column:slide_count" json:"slideCount"`
	TotalSizeBytes   int64      `gorm:"column:total_size_bytes" json:"totalSizeBytes"`
	SourceCreatedAt  *time.Time `gorm:"column:odoo_create_date" json:"sourceCreatedAt,omitempty"`
	SourceModifiedAt *time.Time `gorm:"column:odoo_write_date" json:"sourceModifiedAt,omitempty"`
	FirstProcessedAt time.Time  `gorm:"column:first_processed_at" json:"firstProcessedAt"`
	LastSyncedAt     time.Time  `gorm:"column:last_synced_at" json:"lastSyncedAt"`
}

func (ProcessedChannel) TableName() string {
	return "slide_api.channels"
}

// NewProcessedChannel starts a channel record that has never been synced.
func NewProcessedChannel(id int64, now time.Time) *ProcessedChannel {
	return &ProcessedChannel{
		ID:               id,
		FirstProcessedAt: now,
		LastSyncedAt:     now,
	}
}

// ChannelTotals are the per-channel aggregates over processed slides.
type ChannelTotals struct {
	SlideCount     int
	TotalSizeBytes int64
}
