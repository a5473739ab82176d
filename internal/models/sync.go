package models

import "time"

// SyncOutcome is the result of running the pipeline on one slide.
type SyncOutcome string

const (
	OutcomeCreated SyncOutcome = "CREATED"
	OutcomeUpdated SyncOutcome = "UPDATED"
	OutcomeSkipped SyncOutcome = "SKIPPED"
	OutcomeFailed  SyncOutcome = "FAILED"
)

// SlideResult describes what happened to one slide during a run.
type SlideResult struct {
	SlideID              int64       `json:"slideId"`
	SlideName            *string     `json:"slideName,omitempty"`
	Status               SyncOutcome `json:"status"`
	ImagesExtracted      int         `json:"imagesExtracted"`
	ImagesFound          int         `json:"imagesFound"`
	OriginalSizeBytes    int64       `json:"originalSizeBytes"`
	NewSizeBytes         int64       `json:"newSizeBytes"`
	SavedBytes           int64       `json:"savedBytes"`
	EstimatedBase64Bytes int64       `json:"estimatedBase64Bytes"`
	Message              string      `json:"message,omitempty"`
	ProcessedAt          time.Time   `json:"processedAt"`
}

// SyncResult summarizes one run.
type SyncResult struct {
	RunID                   string        `json:"runId"`
	StartTime               time.Time     `json:"startTime"`
	EndTime                 time.Time     `json:"endTime"`
	DurationMs              int64         `json:"durationMs"`
	TotalProcessed          int           `json:"totalProcessed"`
	Created                 int           `json:"created"`
	Updated                 int           `json:"updated"`
	Skipped                 int           `json:"skipped"`
	Failed                  int           `json:"failed"`
	Requeued                int           `json:"requeued"`
	RecoveredStuck          int           `json:"recoveredStuck"`
	ChannelsProcessed       int           `json:"channelsProcessed"`
	TotalOriginalSizeBytes  int64         `json:"totalOriginalSizeBytes"`
	TotalProcessedSizeBytes int64         `json:"totalProcessedSizeBytes"`
	Cancelled               bool          `json:"cancelled,omitempty"`
	Results                 []SlideResult `json:"results"`
}

// Record folds one slide result into the totals.
func (r *SyncResult) Record(res SlideResult) {
	r.TotalProcessed++
	switch res.Status {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	if res.Status == OutcomeCreated || res.Status == OutcomeUpdated {
		r.TotalOriginalSizeBytes += res.OriginalSizeBytes
		r.TotalProcessedSizeBytes += res.NewSizeBytes
	}
	r.Results = append(r.Results, res)
}

// Trim keeps only the most recent limit results.
func (r *SyncResult) Trim(limit int) {
	if limit <= 0 || len(r.Results) <= limit {
		return
	}
	kept := make([]SlideResult, limit)
	copy(kept, r.Results[len(r.Results)-limit:])
	r.Results = kept
}

// Finish stamps the end of the run.
func (r *SyncResult) Finish(end time.Time) {
	r.EndTime = end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
}

// SyncProgress counts tracking records per state.
type SyncProgress struct {
	Total           int64   `json:"total"`
	Pending         int64   `json:"pending"`
	Processing      int64   `json:"processing"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	PercentComplete float64 `json:"percentComplete"`
}

// Compute fills Total and PercentComplete from the per-state counters.
func (p *SyncProgress) Compute() {
	p.Total = p.Pending + p.Processing + p.Completed + p.Failed
	if p.Total > 0 {
		p.PercentComplete = float64(p.Completed) * 100 / float64(p.Total)
	}
}

// ProcessedTotals are aggregate counters over COMPLETED processed slides.
type ProcessedTotals struct {
	Slides             int64
	OriginalSizeBytes  int64
	ProcessedSizeBytes int64
	ImagesExtracted    int64
}

// DepurationStats is the cleanup report.
type DepurationStats struct {
	Replica        ReplicaStats    `json:"replica"`
	Processed      ProcessedStats  `json:"processed"`
	PendingActions PendingActions  `json:"pendingActions"`
	Images         []MimeTypeStats `json:"images"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

type ReplicaStats struct {
	TotalSlides        int64 `json:"totalSlides"`
	ActiveSlides       int64 `json:"activeSlides"`
	InactiveSlides     int64 `json:"inactiveSlides"`
	SlidesWithBase64   int64 `json:"slidesWithBase64"`
	Base64ContentBytes int64 `json:"base64ContentBytes"`
}

type ProcessedStats struct {
	TotalSlides        int64   `json:"totalSlides"`
	OriginalSizeBytes  int64   `json:"originalSizeBytes"`
	ProcessedSizeBytes int64   `json:"processedSizeBytes"`
	SavedBytes         int64   `json:"savedBytes"`
	SavingsPercent     float64 `json:"savingsPercent"`
	ImagesExtracted    int64   `json:"imagesExtracted"`
}

type PendingActions struct {
	InactiveSlidesToDelete int64 `json:"inactiveSlidesToDelete"`
	InactiveSizeBytes      int64 `json:"inactiveSizeBytes"`
	SlidesToMigrate        int64 `json:"slidesToMigrate"`
	SlidesToMigrateBytes   int64 `json:"slidesToMigrateBytes"`
}
