package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/storage/memory"
	"github.com/feichai0017/slide-migrator/pkg/storage/minio"
	"github.com/feichai0017/slide-migrator/pkg/storage/s3"
)

// StorageType selects a blob backend.
type StorageType string

const (
	StorageTypeS3     StorageType = config.ImageStorageS3
	StorageTypeMinio  StorageType = config.ImageStorageMinio
	StorageTypeMemory StorageType = config.ImageStorageMemory
)

// Storage holds image bytes under caller-chosen keys. Writing the same key
// twice with the same bytes is harmless.
type Storage interface {
	Store(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// NewStorage builds the configured backend.
func NewStorage(ctx context.Context, storageType StorageType, cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
