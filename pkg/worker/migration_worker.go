package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

// StatusRecorder persists the final state of a task.
type StatusRecorder interface {
	SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error
}

type MigrationWorker struct {
	*BaseWorker
	migrator migration.Migrator
	statuses StatusRecorder
	now      func() time.Time
}

func NewMigrationWorker(cfg *Config, migrator migration.Migrator, statuses StatusRecorder, log logger.Logger) *MigrationWorker {
	w := &MigrationWorker{
		BaseWorker: newBaseWorker(cfg, log.Named("worker")),
		migrator:   migrator,
		statuses:   statuses,
		now:        time.Now,
	}
	w.registerHandlers(w.mux)
	return w
}

func (w *MigrationWorker) registerHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypeSync, w.handleSync)
	mux.HandleFunc(queue.TaskTypeSyncSlide, w.handleSyncSlide)
	mux.HandleFunc(queue.TaskTypeMigrateBatch, w.handleMigrateBatch)
}

func (w *MigrationWorker) handleSync(ctx context.Context, t *asynq.Task) error {
	return w.run(ctx, t, func(ctx context.Context, task *queue.Task) (interface{}, error) {
		var p queue.SyncPayload
		if err := task.Decode(&p); err != nil {
			return nil, err
		}
		return w.migrator.Sync(ctx, p.ActiveOnly)
	})
}

func (w *MigrationWorker) handleSyncSlide(ctx context.Context, t *asynq.Task) error {
	return w.run(ctx, t, func(ctx context.Context, task *queue.Task) (interface{}, error) {
		var p queue.SyncSlidePayload
		if err := task.Decode(&p); err != nil {
			return nil, err
		}
		if p.SlideID <= 0 {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid slide id %d", p.SlideID))
		}
		return w.migrator.SyncOne(ctx, p.SlideID)
	})
}

func (w *MigrationWorker) handleMigrateBatch(ctx context.Context, t *asynq.Task) error {
	return w.run(ctx, t, func(ctx context.Context, task *queue.Task) (interface{}, error) {
		var p queue.MigrateBatchPayload
		if err := task.Decode(&p); err != nil {
			return nil, err
		}
		return w.migrator.MigrateBatch(ctx, p.Limit)
	})
}

type taskFunc func(ctx context.Context, task *queue.Task) (interface{}, error)

// run decodes the envelope, executes fn and records the outcome. Errors that
// a retry cannot fix are wrapped with asynq.SkipRetry.
func (w *MigrationWorker) run(ctx context.Context, t *asynq.Task, fn taskFunc) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Failed to unmarshal task", logger.String("type", t.Type()), logger.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		task.ID = id
	}

	log := w.logger.With(logger.String("taskId", task.ID), logger.String("type", t.Type()))
	log.Info("Processing task")

	started := w.now()
	w.record(ctx, &queue.TaskStatus{TaskID: task.ID, Type: t.Type(), Status: queue.StatusRunning, StartedAt: started})

	result, err := fn(ctx, task)
	status := &queue.TaskStatus{TaskID: task.ID, Type: t.Type(), StartedAt: started, FinishedAt: w.now()}
	if err != nil {
		status.Status = queue.StatusFailed
		status.Error = err.Error()
		w.record(ctx, status)
		if apperrors.IsConflict(err) || apperrors.IsNotFound(err) || apperrors.IsValidation(err) {
			log.Warn("Task rejected", logger.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		log.Warn("Failed to marshal task result", logger.Error(err))
	} else {
		status.Result = data
		if rw := t.ResultWriter(); rw != nil {
			if _, err := rw.Write(data); err != nil {
				log.Warn("Failed to write task result", logger.Error(err))
			}
		}
	}
	status.Status = queue.StatusCompleted
	status.Progress = 1
	w.record(ctx, status)

	log.Info("Task completed", logger.Int64("durationMs", status.FinishedAt.Sub(started).Milliseconds()))
	return nil
}

func (w *MigrationWorker) record(ctx context.Context, status *queue.TaskStatus) {
	if w.statuses == nil || status.TaskID == "" {
		return
	}
	if err := w.statuses.SaveFinalStatus(context.WithoutCancel(ctx), status); err != nil {
		w.logger.Warn("Failed to save task status", logger.String("taskId", status.TaskID), logger.Error(err))
	}
}
