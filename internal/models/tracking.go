package models

import "time"

// ProcessingStatus is the state of a slide in the resumable pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

// SlideProcessingStatus tracks one slide through the pipeline.
type SlideProcessingStatus struct {
	SlideID            int64            `gorm:"column:slide_id;primaryKey;autoIncrement:false" json:"slideId"`
	Status             ProcessingStatus `gorm:"column:status;size:20;not null;index" json:"status"`
	StartedAt          *time.Time       `gorm:"column:started_at" json:"startedAt,omitempty"`
	CompletedAt        *time.Time       `gorm:"column:completed_at" json:"completedAt,omitempty"`
	FailedAt           *time.Time       `gorm:"column:failed_at" json:"failedAt,omitempty"`
	ErrorMessage       *string          `gorm:"column:error_message;size:2000" json:"errorMessage,omitempty"`
	RetryCount         int              `gorm:"column:retry_count;default:0" json:"retryCount"`
	OriginalSizeBytes  *int64           `gorm:"column:original_size_bytes" json:"originalSizeBytes,omitempty"`
	ProcessedSizeBytes *int64           `gorm:"column:processed_size_bytes" json:"processedSizeBytes,omitempty"`
	ImagesExtracted    *int             `gorm:"column:images_extracted" json:"imagesExtracted,omitempty"`
}

func (SlideProcessingStatus) TableName() string {
	return "slide_api.slide_processing_status"
}
