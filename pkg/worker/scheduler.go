package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

// Scheduler enqueues the periodic synchronization run.
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    logger.Logger
	entryID   string
}

func NewScheduler(redis asynq.RedisClientOpt, log logger.Logger) *Scheduler {
	log = log.Named("scheduler")
	s := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   asynqLogger{log: log.Named("asynq")},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("Failed to enqueue scheduled task", logger.Error(err))
				return
			}
			log.Info("Scheduled task enqueued", logger.String("taskId", info.ID), logger.String("type", info.Type))
		},
	})
	return &Scheduler{scheduler: s, logger: log}
}

// RegisterSync runs a synchronization on every tick of cronspec.
func (s *Scheduler) RegisterSync(cronspec string, activeOnly bool, timeout time.Duration) error {
	envelope, err := json.Marshal(&queue.Task{
		Type:     queue.TaskTypeSync,
		Priority: queue.PriorityDefault,
		Payload:  mustJSON(queue.SyncPayload{ActiveOnly: activeOnly}),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled task: %w", err)
	}

	opts := []asynq.Option{asynq.Queue(queue.QueueDefault), asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	id, err := s.scheduler.Register(cronspec, asynq.NewTask(queue.TaskTypeSync, envelope), opts...)
	if err != nil {
		return fmt.Errorf("failed to register sync schedule %q: %w", cronspec, err)
	}
	s.entryID = id
	s.logger.Info("Registered synchronization schedule",
		logger.String("cron", cronspec),
		logger.String("entryId", id),
		logger.Bool("activeOnly", activeOnly),
	)
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Stop() {
	s.scheduler.Shutdown()
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
