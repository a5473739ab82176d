// Package queue enqueues migration work on asynq and keeps task and run
// status in Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/slide-migrator/config"
	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const (
	TaskTypeSync         = "migration:sync"
	TaskTypeSyncSlide    = "migration:sync_slide"
	TaskTypeMigrateBatch = "migration:migrate_batch"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the asynq weight of each queue.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const (
	PriorityCritical = 1
	PriorityDefault  = 2
	PriorityLow      = 3
)

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type SyncPayload struct {
	ActiveOnly bool `json:"activeOnly"`
}

type SyncSlidePayload struct {
	SlideID int64 `json:"slideId"`
}

type MigrateBatchPayload struct {
	Limit int `json:"limit"`
}

func newTask(taskType string, priority int, payload interface{}) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Priority:  priority,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// NewSyncTask builds a full synchronization run.
func NewSyncTask(activeOnly bool) (*Task, error) {
	return newTask(TaskTypeSync, PriorityDefault, SyncPayload{ActiveOnly: activeOnly})
}

func NewSyncSlideTask(slideID int64) (*Task, error) {
	return newTask(TaskTypeSyncSlide, PriorityCritical, SyncSlidePayload{SlideID: slideID})
}

func NewMigrateBatchTask(limit int) (*Task, error) {
	return newTask(TaskTypeMigrateBatch, PriorityLow, MigrateBatchPayload{Limit: limit})
}

// DecodeTask reads the envelope written by Enqueue.
func DecodeTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", t.Type, err)
	}
	return nil
}

// TaskStatus is the externally visible state of one task.
type TaskStatus struct {
	TaskID     string          `json:"taskId"`
	Type       string          `json:"type,omitempty"`
	Status     string          `json:"status"`
	Progress   float64         `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt,omitempty"`
}

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Config struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	RetryDelay     time.Duration
	ProcessTimeout time.Duration
	Concurrency    int
	StatusTTL      time.Duration
}

// ConfigFrom derives the queue settings from the service configuration.
func ConfigFrom(redisCfg config.RedisConfig, workerCfg config.WorkerConfig) *Config {
	return &Config{
		RedisAddr:      redisCfg.Addr,
		RedisPassword:  redisCfg.Password,
		RedisDB:        redisCfg.DB,
		MaxRetries:     workerCfg.MaxRetry,
		RetryDelay:     time.Minute,
		ProcessTimeout: workerCfg.TaskTimeout,
		Concurrency:    workerCfg.Concurrency,
		StatusTTL:      redisCfg.RunStatusTTL,
	}
}

// RedisOpt is the asynq connection for cfg.
func (c *Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *Config
	logger    logger.Logger
}

var _ Queue = (*AsynqQueue)(nil)

func NewAsynqQueue(cfg *Config, log logger.Logger) *AsynqQueue {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		redis: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		cfg:    cfg,
		logger: log.Named("queue"),
	}
}

// Redis exposes the status connection so the run store can share it.
func (q *AsynqQueue) Redis() *redis.Client {
	return q.redis
}

func queueFor(priority int) string {
	switch priority {
	case PriorityCritical:
		return QueueCritical
	case PriorityDefault:
		return QueueDefault
	default:
		return QueueLow
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Queue(queueFor(task.Priority)),
		asynq.TaskID(task.ID),
	}
	if q.cfg.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.ProcessTimeout))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload, opts...))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return apperrors.NewConflictError("task already enqueued").WithCause(err)
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	status := &TaskStatus{TaskID: info.ID, Type: task.Type, Status: StatusPending, StartedAt: task.CreatedAt}
	if err := q.SaveFinalStatus(ctx, status); err != nil {
		q.logger.Warn("Failed to save initial task status", logger.String("taskId", info.ID), logger.Error(err))
	}

	q.logger.Info("Task enqueued",
		logger.String("taskId", info.ID),
		logger.String("type", task.Type),
		logger.String("queue", info.Queue),
	)
	return nil
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

// GetTaskStatus prefers the status written by the worker and falls back to
// asynq's own bookkeeping.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	var stored *TaskStatus
	if err == nil {
		stored = &TaskStatus{}
		if err := json.Unmarshal(data, stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		if stored.Status == StatusCompleted || stored.Status == StatusFailed {
			return stored, nil
		}
	}

	for name := range Queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		return convertAsynqStatus(info), nil
	}
	if stored != nil {
		return stored, nil
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("task %s", taskID))
}

// CancelTask deletes a waiting task or signals a running one to stop.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for name := range Queues {
		if err := q.inspector.DeleteTask(name, taskID); err == nil {
			q.markCancelled(ctx, taskID)
			return nil
		}
	}
	if err := q.inspector.CancelProcessing(taskID); err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
	}
	q.markCancelled(ctx, taskID)
	return nil
}

func (q *AsynqQueue) markCancelled(ctx context.Context, taskID string) {
	status := &TaskStatus{TaskID: taskID, Status: StatusFailed, Error: "cancelled", FinishedAt: time.Now()}
	if err := q.SaveFinalStatus(ctx, status); err != nil {
		q.logger.Warn("Failed to save cancelled status", logger.String("taskId", taskID), logger.Error(err))
	}
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	return saveJSON(ctx, q.redis, statusKey(status.TaskID), status, q.cfg.StatusTTL)
}

func (q *AsynqQueue) Close() error {
	var errs []error
	if err := q.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := q.inspector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := q.redis.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func saveJSON(ctx context.Context, client *redis.Client, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		Type:      info.Type,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = StatusPending
	case asynq.TaskStateActive:
		status.Status = StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
		status.Result = info.Result
	case asynq.TaskStateRetry:
		status.Status = StatusPending
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	}
	return status
}
