// Package tracker keeps the per-slide processing state that makes
// synchronization resumable after crashes.
package tracker

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const DefaultErrorMessageLimit = 2000

var transitions = map[models.ProcessingStatus][]models.ProcessingStatus{
	models.StatusPending:    {models.StatusProcessing},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed, models.StatusPending},
	models.StatusFailed:     {models.StatusPending},
	models.StatusCompleted:  {models.StatusPending},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.ProcessingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metrics is the snapshot stored on completion.
type Metrics struct {
	OriginalSizeBytes  int64
	ProcessedSizeBytes int64
	ImagesExtracted    int
}

type Tracker struct {
	store      repository.TrackingStore
	logger     logger.Logger
	now        func() time.Time
	errorLimit int
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithErrorMessageLimit caps stored error messages, counted in runes.
func WithErrorMessageLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.errorLimit = limit
		}
	}
}

func New(store repository.TrackingStore, log logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		logger:     log.Named("tracker"),
		now:        time.Now,
		errorLimit: DefaultErrorMessageLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ensure creates PENDING records for ids not tracked yet.
func (t *Tracker) Ensure(ctx context.Context, ids []int64) (int, error) {
	created, err := t.store.CreateMissing(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize tracking: %w", err)
	}
	if created > 0 {
		t.logger.Info("Initialized tracking records", logger.Int("created", created))
	}
	return created, nil
}

// ResetStuck returns records left PROCESSING by an interrupted run to PENDING.
func (t *Tracker) ResetStuck(ctx context.Context) (int, error) {
	n, err := t.store.Transition(ctx, models.StatusProcessing, models.StatusPending, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck records: %w", err)
	}
	if n > 0 {
		t.logger.Warn("Reset records stuck in PROCESSING", logger.Int("count", n))
	}
	return n, nil
}

// Requeue moves COMPLETED records of ids back to PENDING.
func (t *Tracker) Requeue(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := t.store.Transition(ctx, models.StatusCompleted, models.StatusPending, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue records: %w", err)
	}
	return n, nil
}

// Candidates lists PENDING and FAILED slides in ascending id order.
func (t *Tracker) Candidates(ctx context.Context) ([]int64, error) {
	ids, err := t.store.ListIDs(ctx, models.StatusPending, models.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return ids, nil
}

// Start marks slideID PROCESSING and persists it before any work is done.
// A FAILED record is retried through PENDING.
func (t *Tracker) Start(ctx context.Context, slideID int64) (*models.SlideProcessingStatus, error) {
	rec, err := t.store.Get(ctx, slideID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load tracking record: %w", err)
		}
		rec = &models.SlideProcessingStatus{SlideID: slideID, Status: models.StatusPending}
	}

	if rec.Status == models.StatusFailed {
		rec.Status = models.StatusPending
	}
	if !CanTransition(rec.Status, models.StatusProcessing) {
		return nil, fmt.Errorf("slide %d is %s: %w", slideID, rec.Status, apperrors.ErrInvalidTransition)
	}

	now := t.now()
	rec.Status = models.StatusProcessing
	rec.StartedAt = &now
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to mark slide processing: %w", err)
	}
	return rec, nil
}

// Complete records success with a metrics snapshot.
func (t *Tracker) Complete(ctx context.Context, rec *models.SlideProcessingStatus, m Metrics) error {
	if !CanTransition(rec.Status, models.StatusCompleted) {
		return fmt.Errorf("slide %d is %s: %w", rec.SlideID, rec.Status, apperrors.ErrInvalidTransition)
	}
	now := t.now()
	rec.Status = models.StatusCompleted
	rec.CompletedAt = &now
	rec.ErrorMessage = nil
	rec.OriginalSizeBytes = &m.OriginalSizeBytes
	rec.ProcessedSizeBytes = &m.ProcessedSizeBytes
	rec.ImagesExtracted = &m.ImagesExtracted
	if err := t.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to mark slide completed: %w", err)
	}
	return nil
}

// Fail records cause, truncated, and bumps the retry counter.
func (t *Tracker) Fail(ctx context.Context, rec *models.SlideProcessingStatus, cause error) error {
	if !CanTransition(rec.Status, models.StatusFailed) {
		return fmt.Errorf("slide %d is %s: %w", rec.SlideID, rec.Status, apperrors.ErrInvalidTransition)
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = Truncate(msg, t.errorLimit)

	now := t.now()
	rec.Status = models.StatusFailed
	rec.FailedAt = &now
	rec.ErrorMessage = &msg
	rec.RetryCount++
	if err := t.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to mark slide failed: %w", err)
	}
	return nil
}

// Progress counts records per state.
func (t *Tracker) Progress(ctx context.Context) (*models.SyncProgress, error) {
	counts, err := t.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracking records: %w", err)
	}
	p := &models.SyncProgress{
		Pending:    counts[models.StatusPending],
		Processing: counts[models.StatusProcessing],
		Completed:  counts[models.StatusCompleted],
		Failed:     counts[models.StatusFailed],
	}
	p.Compute()
	return p, nil
}

// LastCompletedAt is the latest completion time of any record, nil if none.
func (t *Tracker) LastCompletedAt(ctx context.Context) (*time.Time, error) {
	last, err := t.store.LastCompletedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last completion: %w", err)
	}
	return last, nil
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
