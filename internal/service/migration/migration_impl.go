// Package migration runs the resumable synchronization from the source
// replica into the processed store.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/slide-migrator/config"
	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/extractor"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/internal/tracker"
	"github.com/feichai0017/slide-migrator/pkg/events"
	"github.com/feichai0017/slide-migrator/pkg/lock"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

// Deps are the collaborators of a Service. Guard, Publisher and Runs are
// optional.
type Deps struct {
	Source    repository.SourceStore
	Slides    repository.SlideStore
	Images    repository.ImageStore
	Channels  repository.ChannelStore
	Tracker   *tracker.Tracker
	Extractor *extractor.Extractor
	Guard     lock.Guard
	Publisher events.Publisher
	Runs      RunStore
}

type Service struct {
	source    repository.SourceStore
	slides    repository.SlideStore
	images    repository.ImageStore
	channels  repository.ChannelStore
	tracker   *tracker.Tracker
	extractor *extractor.Extractor
	guard     lock.Guard
	publisher events.Publisher
	runs      RunStore
	config    config.MigrationConfig
	logger    logger.Logger
	now       func() time.Time

	mu      sync.RWMutex
	lastRun *models.SyncResult
}

var _ Migrator = (*Service)(nil)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(deps Deps, cfg config.MigrationConfig, log logger.Logger, opts ...Option) (*Service, error) {
	if deps.Source == nil || deps.Slides == nil || deps.Images == nil || deps.Channels == nil {
		return nil, errors.New("migration: source, slide, image and channel stores are required")
	}
	if deps.Tracker == nil || deps.Extractor == nil {
		return nil, errors.New("migration: tracker and extractor are required")
	}
	if deps.Guard == nil {
		deps.Guard = lock.NewLocalGuard()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = 1000
	}
	if cfg.ProgressLogEvery <= 0 {
		cfg.ProgressLogEvery = 50
	}

	s := &Service{
		source:    deps.Source,
		slides:    deps.Slides,
		images:    deps.Images,
		channels:  deps.Channels,
		tracker:   deps.Tracker,
		extractor: deps.Extractor,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		runs:      deps.Runs,
		config:    cfg,
		logger:    log.Named("migration"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	release, err := s.guard.Acquire(ctx)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, apperrors.ErrRunInProgress) {
		return nil, apperrors.NewConflictError("a synchronization run is already in progress").
			WithCause(err).
			WithComponent("migration")
	}
	return nil, apperrors.NewInfrastructureError("failed to acquire run guard").
		WithCause(err).
		WithComponent("migration")
}

// Sync brings every tracked slide up to date. Items that fail are recorded
// and picked up again by the next run.
func (s *Service) Sync(ctx context.Context, activeOnly bool) (*models.SyncResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, s.logger)
	result := &models.SyncResult{RunID: runID, StartTime: s.now()}

	candidates, err := s.prepare(ctx, activeOnly, result)
	if err != nil {
		log.Error("Failed to prepare synchronization", logger.Error(err))
		return nil, err
	}

	total := len(candidates)
	log.Info("Starting synchronization",
		logger.Int("candidates", total),
		logger.Bool("activeOnly", activeOnly),
		logger.Int("requeued", result.Requeued),
		logger.Int("recoveredStuck", result.RecoveredStuck),
	)

	names := s.newChannelNames()
	names.preload(ctx)

	for i, id := range candidates {
		if ctx.Err() != nil {
			result.Cancelled = true
			log.Warn("Synchronization cancelled",
				logger.Int("processed", i),
				logger.Int("remaining", total-i),
			)
			break
		}

		// The in-flight item is always carried to a terminal state.
		res := s.syncTracked(context.WithoutCancel(ctx), runID, id, names)
		result.Record(res)

		if done := i + 1; done%s.config.ProgressLogEvery == 0 {
			s.logProgress(log, done, total, result)
		}
		if len(result.Results) >= 2*s.config.ResultRetention {
			result.Trim(s.config.ResultRetention)
		}
	}
	result.Trim(s.config.ResultRetention)

	if !result.Cancelled {
		result.ChannelsProcessed = s.syncChannels(ctx)
	}
	result.Finish(s.now())
	s.storeRun(context.WithoutCancel(ctx), result)

	log.Info("Synchronization finished",
		logger.Int("processed", result.TotalProcessed),
		logger.Int("created", result.Created),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", result.Failed),
		logger.Int("channels", result.ChannelsProcessed),
		logger.Int64("durationMs", result.DurationMs),
	)
	return result, nil
}

// prepare makes tracking cover the source, re-queues modified slides,
// recovers an interrupted run and returns the candidates.
func (s *Service) prepare(ctx context.Context, activeOnly bool, result *models.SyncResult) ([]int64, error) {
	ids, err := s.source.ListSlideIDs(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list source slides: %w", err)
	}
	if _, err := s.tracker.Ensure(ctx, ids); err != nil {
		return nil, err
	}

	since, err := s.changesSince(ctx)
	if err != nil {
		return nil, err
	}
	if since != nil {
		modified, err := s.source.ListSlideIDsModifiedSince(ctx, *since, activeOnly)
		if err != nil {
			return nil, fmt.Errorf("failed to list modified slides: %w", err)
		}
		if result.Requeued, err = s.tracker.Requeue(ctx, modified); err != nil {
			return nil, err
		}
	}

	if result.RecoveredStuck, err = s.tracker.ResetStuck(ctx); err != nil {
		return nil, err
	}
	return s.tracker.Candidates(ctx)
}

// changesSince is the change detection threshold: the start of the previous
// run, so slides edited after they completed in that run are requeued. The
// latest completion time is used when no run summary is available.
func (s *Service) changesSince(ctx context.Context) (*time.Time, error) {
	run, err := s.LastRun(ctx)
	switch {
	case err == nil:
		start := run.StartTime
		return &start, nil
	case !apperrors.IsNotFound(err):
		logger.FromContext(ctx, s.logger).Warn("Failed to read last run, using last completion time", logger.Error(err))
	}
	return s.tracker.LastCompletedAt(ctx)
}

// syncTracked runs one candidate through the tracker and the pipeline.
func (s *Service) syncTracked(ctx context.Context, runID string, slideID int64, names *channelNames) models.SlideResult {
	log := s.logger.With(logger.String("runId", runID), logger.Int64("slideId", slideID))

	rec, err := s.tracker.Start(ctx, slideID)
	if err != nil {
		log.Error("Failed to start slide", logger.Error(err))
		return s.failedResult(slideID, nil, err)
	}

	slide, err := s.source.FindSlide(ctx, slideID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			err = fmt.Errorf("slide %d not found in source", slideID)
		}
		log.Warn("Failed to load source slide", logger.Error(err))
		s.markFailed(ctx, log, rec, err)
		return s.failedResult(slideID, nil, err)
	}

	res, processed, err := s.processSlide(ctx, slide, names)
	if err != nil {
		log.Error("Failed to process slide", logger.Error(err))
		s.markFailed(ctx, log, rec, err)
		return s.failedResult(slideID, slide.EffectiveName(), err)
	}

	err = s.tracker.Complete(ctx, rec, tracker.Metrics{
		OriginalSizeBytes:  res.OriginalSizeBytes,
		ProcessedSizeBytes: res.NewSizeBytes,
		ImagesExtracted:    res.ImagesExtracted,
	})
	if err != nil {
		// Left PROCESSING; the next run resets it.
		log.Error("Failed to mark slide completed", logger.Error(err))
	}
	s.publish(ctx, runID, processed, res)
	return res
}

func (s *Service) markFailed(ctx context.Context, log logger.Logger, rec *models.SlideProcessingStatus, cause error) {
	if err := s.tracker.Fail(ctx, rec, cause); err != nil {
		log.Error("Failed to mark slide failed", logger.Error(err))
	}
}

func (s *Service) failedResult(slideID int64, name *string, err error) models.SlideResult {
	return models.SlideResult{
		SlideID:     slideID,
		SlideName:   name,
		Status:      models.OutcomeFailed,
		Message:     err.Error(),
		ProcessedAt: s.now(),
	}
}

func (s *Service) logProgress(log logger.Logger, done, total int, result *models.SyncResult) {
	elapsed := s.now().Sub(result.StartTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(done) / elapsed
	}
	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(total-done) / rate * float64(time.Second))
	}
	log.Info("Synchronization progress",
		logger.Int("processed", done),
		logger.Int("total", total),
		logger.Int("created", result.Created),
		logger.Int("updated", result.Updated),
		logger.Int("failed", result.Failed),
		logger.Float64("slidesPerSecond", rate),
		logger.Duration("eta", eta.Round(time.Second)),
	)
}

// SyncOne runs the pipeline for a single slide without touching tracking.
func (s *Service) SyncOne(ctx context.Context, slideID int64) (*models.SlideResult, error) {
	slide, err := s.source.FindSlide(ctx, slideID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("slide %d", slideID)).WithComponent("migration")
		}
		return nil, apperrors.NewInfrastructureError("failed to read source slide").WithCause(err)
	}

	res, processed, err := s.processSlide(ctx, slide, s.newChannelNames())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "", processed, res)
	return &res, nil
}

// MigrateBatch processes up to limit active slides with inline images,
// largest first. A limit of zero uses the configured batch size.
func (s *Service) MigrateBatch(ctx context.Context, limit int) ([]models.SlideResult, error) {
	if limit <= 0 {
		limit = s.config.BatchSize
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	slides, err := s.source.FindSlidesWithEmbeddedImages(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("failed to list slides with inline images").WithCause(err)
	}

	s.logger.Info("Starting batch migration", logger.Int("slides", len(slides)), logger.Int("limit", limit))
	names := s.newChannelNames()
	results := make([]models.SlideResult, 0, len(slides))
	for i := range slides {
		if ctx.Err() != nil {
			break
		}
		slide := &slides[i]
		itemCtx := context.WithoutCancel(ctx)
		res, processed, err := s.processSlide(itemCtx, slide, names)
		if err != nil {
			s.logger.Error("Failed to migrate slide", logger.Int64("slideId", slide.ID), logger.Error(err))
			res = s.failedResult(slide.ID, slide.EffectiveName(), err)
		}
		s.publish(itemCtx, "", processed, res)
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) publish(ctx context.Context, runID string, processed *models.ProcessedSlide, res models.SlideResult) {
	if processed == nil || (res.Status != models.OutcomeCreated && res.Status != models.OutcomeUpdated) {
		return
	}
	err := s.publisher.PublishSlideSynced(ctx, events.SlideSynced{
		RunID:           runID,
		SlideID:         res.SlideID,
		ChannelID:       processed.ChannelID,
		Outcome:         string(res.Status),
		MigrationStatus: string(processed.MigrationStatus),
		ImagesExtracted: res.ImagesExtracted,
		SavedBytes:      res.SavedBytes,
		Timestamp:       res.ProcessedAt,
	})
	if err != nil {
		s.logger.Warn("Failed to publish sync event", logger.Int64("slideId", res.SlideID), logger.Error(err))
	}
}

func (s *Service) storeRun(ctx context.Context, result *models.SyncResult) {
	s.mu.Lock()
	s.lastRun = result
	s.mu.Unlock()

	if s.runs == nil {
		return
	}
	if err := s.runs.SaveRun(ctx, result); err != nil {
		s.logger.Warn("Failed to store run summary", logger.String("runId", result.RunID), logger.Error(err))
	}
}

// LastRun returns the summary of the most recent finished run.
func (s *Service) LastRun(ctx context.Context) (*models.SyncResult, error) {
	if s.runs != nil {
		run, err := s.runs.LastRun(ctx)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, apperrors.NewInfrastructureError("failed to read last run").WithCause(err)
		}
		if run != nil {
			return run, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil, apperrors.NewNotFoundError("synchronization run")
	}
	return s.lastRun, nil
}
