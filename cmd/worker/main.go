package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/internal/app"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
	"github.com/feichai0017/slide-migrator/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Log, "slide-migrator-worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to assemble migrator", logger.Error(err))
	}
	defer a.Close()

	if a.Queue == nil {
		log.Fatal("The worker needs REDIS_ADDR")
	}

	qc := queue.ConfigFrom(cfg.Redis, cfg.Worker)
	migrationWorker := worker.NewMigrationWorker(worker.ConfigFrom(qc), a.Migrator, a.Queue, log)
	if err := migrationWorker.Start(ctx); err != nil {
		log.Fatal("Failed to start worker", logger.Error(err))
	}

	var scheduler *worker.Scheduler
	if cfg.Migration.SyncCron != "" {
		scheduler = worker.NewScheduler(qc.RedisOpt(), log)
		if err := scheduler.RegisterSync(cfg.Migration.SyncCron, cfg.Migration.SyncActiveOnly, cfg.Worker.TaskTimeout); err != nil {
			log.Fatal("Failed to register schedule", logger.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal("Failed to start scheduler", logger.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	if scheduler != nil {
		scheduler.Stop()
	}
	_ = migrationWorker.Stop()
	log.Info("Worker stopped")
}
