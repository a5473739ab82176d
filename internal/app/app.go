// Package app assembles the migrator from configuration. Both binaries
// build the same graph; only the surfaces they expose differ.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/internal/extractor"
	"github.com/feichai0017/slide-migrator/internal/hashstore"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/internal/repository/memory"
	"github.com/feichai0017/slide-migrator/internal/repository/postgres"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/internal/service/query"
	"github.com/feichai0017/slide-migrator/internal/tracker"
	"github.com/feichai0017/slide-migrator/pkg/events"
	"github.com/feichai0017/slide-migrator/pkg/lock"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
	"github.com/feichai0017/slide-migrator/pkg/storage"
)

type App struct {
	Config   *config.Config
	Migrator *migration.Service
	Query    *query.Service
	// Queue is nil when Redis is not configured.
	Queue *queue.AsynqQueue

	closers []func() error
}

type stores struct {
	source   repository.SourceStore
	slides   repository.SlideStore
	images   repository.ImageStore
	channels repository.ChannelStore
	tracking repository.TrackingStore
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, service string) (logger.Logger, error) {
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithOutputPaths(cfg.OutputPaths),
		logger.WithRotation(cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays, true),
		logger.WithInitialFields(map[string]interface{}{"service": service}),
	)
}

// New connects every backend named by cfg. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var blobs storage.Storage
	if cfg.Storage.Backend != config.ImageStorageDatabase {
		blobs, err = storage.NewStorage(ctx, storage.StorageType(cfg.Storage.Backend), cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize image storage: %w", err)
		}
	}
	hashes := hashstore.New(st.images, blobs, log)

	var (
		guard lock.Guard = lock.NewLocalGuard()
		runs  migration.RunStore
	)
	if cfg.Redis.Addr != "" {
		q := queue.NewAsynqQueue(queue.ConfigFrom(cfg.Redis, cfg.Worker), log)
		a.closers = append(a.closers, q.Close)
		if err := ping(ctx, q.Redis()); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.Queue = q
		guard = lock.NewRedisGuard(q.Redis(), cfg.Migration.RunLockKey, cfg.Migration.RunLockTTL, log)
		runs = queue.NewRunStore(q.Redis(), "", cfg.Redis.RunStatusTTL)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	a.Migrator, err = migration.NewService(migration.Deps{
		Source:    st.source,
		Slides:    st.slides,
		Images:    st.images,
		Channels:  st.channels,
		Tracker:   tracker.New(st.tracking, log, tracker.WithErrorMessageLimit(cfg.Migration.ErrorMessageLimit)),
		Extractor: extractor.New(hashes, log),
		Guard:     guard,
		Publisher: publisher,
		Runs:      runs,
	}, cfg.Migration, log)
	if err != nil {
		return nil, err
	}
	a.Query = query.NewService(st.slides, st.images, st.channels, hashes, log)

	log.Info("Migrator assembled",
		logger.String("storeDriver", cfg.StoreDriver),
		logger.String("imageStorage", cfg.Storage.Backend),
		logger.Bool("queue", a.Queue != nil),
		logger.Bool("events", cfg.Kafka.Enabled()),
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory stores; nothing survives a restart")
		return &stores{
			source:   memory.NewSourceStore(),
			slides:   memory.NewSlideStore(),
			images:   memory.NewImageStore(),
			channels: memory.NewChannelStore(),
			tracking: memory.NewTrackingStore(),
		}, nil
	}

	replica, err := postgres.Connect(ctx, cfg.Replica, log, postgres.ReadOnly())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return postgres.Close(replica) })

	processed, err := postgres.Connect(ctx, cfg.Processed, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return postgres.Close(processed) })

	if cfg.Processed.AutoMigrate {
		if err := postgres.Migrate(ctx, processed); err != nil {
			return nil, err
		}
	}

	return &stores{
		source:   postgres.NewSourceStore(replica),
		slides:   postgres.NewSlideStore(processed),
		images:   postgres.NewImageStore(processed),
		channels: postgres.NewChannelStore(processed),
		tracking: postgres.NewTrackingStore(processed),
	}, nil
}

func ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
