package models

import "time"

// MigrationStatus labels the outcome recorded on a processed slide.
type MigrationStatus string

const (
	MigrationPending           MigrationStatus = "PENDING"
	MigrationCompleted         MigrationStatus = "COMPLETED"
	MigrationNoMigrationNeeded MigrationStatus = "NO_MIGRATION_NEEDED"
)

// ProcessedSlide is the cleaned copy of a SourceSlide. It shares the source id.
type ProcessedSlide struct {
	ID                 int64           `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	ChannelID          *int64          `gorm:"column:channel_id;index" json:"channelId,omitempty"`
	ChannelName        *string         `gorm:"column:channel_name" json:"channelName,omitempty"`
	Name               *string         `gorm:"column:name;size:500" json:"name,omitempty"`
	SlideType          *string         `gorm:"column:slide_type;size:50" json:"slideType,omitempty"`
	HTMLContent        *string         `gorm:"column:html_content;type:text" json:"htmlContent,omitempty"`
	Description        *string         `gorm:"column:description;type:text" json:"description,omitempty"`
	Active             bool            `gorm:"column:active;index" json:"active"`
	IsPublished        bool            `gorm:"column:is_published" json:"isPublished"`
	TotalViews         *int            `gorm:"column:total_views" json:"totalViews,omitempty"`
	OriginalSizeBytes  int64           `gorm:"column:original_size_bytes" json:"originalSizeBytes"`
	ProcessedSizeBytes int64           `gorm:"column:processed_size_bytes" json:"processedSizeBytes"`
	ImagesExtracted    int             `gorm:"column:images_extracted" json:"imagesExtracted"`
	HasBase64Original  bool            `gorm:"column:has_base64_original" json:"hasBase64Original"`
	SourceCreatedAt    *time.Time      `gorm:"column:odoo_create_date" json:"sourceCreatedAt,omitempty"`
	SourceModifiedAt   *time.Time      `gorm:"column:odoo_write_date" json:"sourceModifiedAt,omitempty"`
	FirstProcessedAt   time.Time       `gorm:"column:first_processed_at" json:"firstProcessedAt"`
	LastSyncedAt       time.Time       `gorm:"column:last_synced_at" json:"lastSyncedAt"`
	MigrationStatus    MigrationStatus `gorm:"column:migration_status;size:50;index" json:"migrationStatus"`
	MigrationNotes     *string         `gorm:"column:migration_notes;type:text" json:"migrationNotes,omitempty"`
}

func (ProcessedSlide) TableName() string {
	return "slide_api.slides"
}

// NewProcessedSlide starts a record that has never been synced.
func NewProcessedSlide(id int64, now time.Time) *ProcessedSlide {
	return &ProcessedSlide{
		ID:               id,
		FirstProcessedAt: now,
		LastSyncedAt:     now,
		MigrationStatus:  MigrationPending,
	}
}

// Touch records a sync of an existing record.
func (p *ProcessedSlide) Touch(now time.Time) {
	p.LastSyncedAt = now
}

// NeedsSync reports whether the source has been modified after the copy was
// taken. The mirrored source write date is compared first since both values
// come from the same clock; LastSyncedAt is used when it was never recorded.
// A source without a modification date is never considered newer.
func (p *ProcessedSlide) NeedsSync(sourceWriteDate *time.Time) bool {
	if sourceWriteDate == nil {
		return false
	}
	if p.SourceModifiedAt != nil {
		return sourceWriteDate.After(*p.SourceModifiedAt)
	}
	return sourceWriteDate.After(p.LastSyncedAt)
}
