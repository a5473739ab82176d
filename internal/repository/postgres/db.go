// Package postgres implements the storage ports on gorm. The source store
// only ever reads; the processed stores own the slide_api schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feichai0017/slide-migrator/config"
	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const batchSize = 1000

// gormWriter routes gorm's own log lines through the application logger.
type gormWriter struct {
	log logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

type ConnectOption func(*connectOptions)

type connectOptions struct {
	readOnly bool
}

// ReadOnly makes every transaction of the session read-only on the server.
func ReadOnly() ConnectOption {
	return func(o *connectOptions) { o.readOnly = true }
}

// Connect opens a pooled connection and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger, opts ...ConnectOption) (*gorm.DB, error) {
	var o connectOptions
	for _, opt := range opts {
		opt(&o)
	}

	dsn := cfg.DSN()
	if o.readOnly {
		dsn += " default_transaction_read_only=on"
	}

	gl := gormlogger.New(gormWriter{log: log.Named("gorm")}, gormlogger.Config{
		SlowThreshold:             2 * time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to reach database %s: %w", cfg.Name, err)
	}

	log.Info("Connected to database",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Name),
		logger.Bool("readOnly", o.readOnly),
	)
	return db, nil
}

// Migrate creates the processed schema and tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec("CREATE SCHEMA IF NOT EXISTS slide_api").Error; err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	err := db.WithContext(ctx).AutoMigrate(
		&models.ProcessedSlide{},
		&models.ProcessedChannel{},
		&models.SlideImage{},
		&models.SlideProcessingStatus{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate processed schema: %w", err)
	}
	return nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound converts gorm's missing-row error into the shared sentinel.
func notFound(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func chunks(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
