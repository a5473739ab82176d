package models

import "time"

// SlideImage is one distinct image extracted from slide content. Hash is
// unique across the table so identical bytes are stored once.
type SlideImage struct {
	ID         string    `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	SlideID    int64     `gorm:"column:slide_id;not null;index" json:"slideId"`
	ImageIndex int       `gorm:"column:image_index" json:"imageIndex"`
	Filename   string    `gorm:"column:original_filename;size:255" json:"filename"`
	MimeType   string    `gorm:"column:mime_type;size:50" json:"mimeType"`
	Data       []byte    `gorm:"column:image_data;type:bytea" json:"-"`
	StorageKey *string   `gorm:"column:storage_key;size:255" json:"-"`
	Hash       string    `gorm:"column:image_hash;size:64;uniqueIndex" json:"hash"`
	SizeBytes  int64     `gorm:"column:size_bytes" json:"sizeBytes"`
	Width      *int      `gorm:"column:width" json:"width,omitempty"`
	Height     *int      `gorm:"column:height" json:"height,omitempty"`
	PublicURL  string    `gorm:"column:public_url;size:500" json:"publicUrl"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (SlideImage) TableName() string {
	return "slide_api.slide_images"
}

// MimeTypeStats groups stored images by MIME type.
type MimeTypeStats struct {
	MimeType   string `json:"mimeType"`
	Count      int64  `json:"count"`
	TotalBytes int64  `json:"totalBytes"`
}
