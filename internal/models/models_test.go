package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestProcessedSlideNeedsSync(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	p := NewProcessedSlide(1, base)
	p.SourceModifiedAt = ptrTime(base)

	assert.False(t, p.NeedsSync(nil), "missing source date is never newer")
	assert.False(t, p.NeedsSync(ptrTime(base)), "equal date is not newer")
	assert.False(t, p.NeedsSync(ptrTime(base.Add(-time.Hour))))
	assert.True(t, p.NeedsSync(ptrTime(base.Add(time.Second))))

	p.SourceModifiedAt = nil
	assert.True(t, p.NeedsSync(ptrTime(base.Add(time.Minute))))
	assert.False(t, p.NeedsSync(ptrTime(base.Add(-time.Minute))))
}

func TestNewProcessedSlideStampsTimes(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProcessedSlide(42, now)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, now, p.FirstProcessedAt)
	assert.Equal(t, now, p.LastSyncedAt)

	later := now.Add(time.Hour)
	p.Touch(later)
	assert.Equal(t, now, p.FirstProcessedAt)
	assert.Equal(t, later, p.LastSyncedAt)
}

func TestSyncResultRecordAndTrim(t *testing.T) {
	r := &SyncResult{StartTime: time.Unix(0, 0)}
	r.Record(SlideResult{SlideID: 1, Status: OutcomeCreated, OriginalSizeBytes: 100, NewSizeBytes: 10})
	r.Record(SlideResult{SlideID: 2, Status: OutcomeUpdated, OriginalSizeBytes: 50, NewSizeBytes: 40})
	r.Record(SlideResult{SlideID: 3, Status: OutcomeSkipped, OriginalSizeBytes: 999})
	r.Record(SlideResult{SlideID: 4, Status: OutcomeFailed})

	assert.Equal(t, 4, r.TotalProcessed)
	assert.Equal(t, 1, r.Created)
	assert.Equal(t, 1, r.Updated)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, int64(150), r.TotalOriginalSizeBytes)
	assert.Equal(t, int64(50), r.TotalProcessedSizeBytes)

	r.Trim(2)
	require.Len(t, r.Results, 2)
	assert.Equal(t, int64(3), r.Results[0].SlideID)
	assert.Equal(t, int64(4), r.Results[1].SlideID)
	assert.Equal(t, 4, r.TotalProcessed, "trimming keeps the counters")

	r.Finish(time.Unix(2, 0))
	assert.Equal(t, int64(2000), r.DurationMs)
}

func TestSyncProgressCompute(t *testing.T) {
	p := &SyncProgress{Pending: 1, Processing: 1, Completed: 6, Failed: 2}
	p.Compute()
	assert.Equal(t, int64(10), p.Total)
	assert.InDelta(t, 60.0, p.PercentComplete, 0.0001)

	empty := &SyncProgress{}
	empty.Compute()
	assert.Zero(t, empty.PercentComplete)
}

func TestSourceSlideEffectiveValues(t *testing.T) {
	s := &SourceSlide{
		ID:          7,
		Name:        NewLocalizedText(map[string]string{"en_US": "Intro", "es_ES": "Introducción"}),
		HTMLContent: NewLocalizedText(map[string]string{"en_US": "<p>a</p>", "es_ES": "<p>bb</p>"}),
	}
	require.NotNil(t, s.EffectiveName())
	assert.Equal(t, "Introducción", *s.EffectiveName())
	assert.Equal(t, "<p>bb</p>", *s.EffectiveContent())
	assert.Equal(t, int64(len("<p>a</p>")+len("<p>bb</p>")), s.ContentSizeBytes())

	empty := &SourceSlide{}
	assert.Nil(t, empty.EffectiveContent())
	assert.Zero(t, empty.ContentSizeBytes())
}
