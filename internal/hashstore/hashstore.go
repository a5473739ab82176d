// Package hashstore stores extracted images by the SHA-256 of their bytes so
// that identical images are kept exactly once.
package hashstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/storage"
)

// Store is what the extractor needs from image persistence.
type Store interface {
	Lookup(ctx context.Context, hash string) (*models.SlideImage, bool, error)
	// Put persists image with data unless the hash is already known and
	// returns the record that ended up stored.
	Put(ctx context.Context, image *models.SlideImage, data []byte) (*models.SlideImage, bool, error)
	// NextIndex is the image index a new image of slideID should take.
	NextIndex(ctx context.Context, slideID int64) (int, error)
	Open(ctx context.Context, image *models.SlideImage) (io.ReadCloser, error)
}

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BlobKey is the object key for a content hash.
func BlobKey(hash string) string {
	if len(hash) < 2 {
		return "images/" + hash
	}
	return "images/" + hash[:2] + "/" + hash
}

// HashStore keeps metadata in an ImageStore and bytes either inline in the
// record or in a blob Storage.
type HashStore struct {
	images repository.ImageStore
	blobs  storage.Storage
	logger logger.Logger
}

var _ Store = (*HashStore)(nil)

// New builds a HashStore. A nil blobs keeps bytes in the database row.
func New(images repository.ImageStore, blobs storage.Storage, log logger.Logger) *HashStore {
	return &HashStore{
		images: images,
		blobs:  blobs,
		logger: log.Named("hashstore"),
	}
}

func (h *HashStore) Lookup(ctx context.Context, hash string) (*models.SlideImage, bool, error) {
	img, err := h.images.FindByHash(ctx, hash)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to look up image hash: %w", err)
	}
	return img, true, nil
}

func (h *HashStore) Put(ctx context.Context, image *models.SlideImage, data []byte) (*models.SlideImage, bool, error) {
	if image.Hash == "" {
		image.Hash = Hash(data)
	}
	image.SizeBytes = int64(len(data))

	if h.blobs != nil {
		key := BlobKey(image.Hash)
		exists, err := h.blobs.Exists(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check image blob: %w", err)
		}
		if !exists {
			if _, err := h.blobs.Store(ctx, key, bytes.NewReader(data), int64(len(data)), image.MimeType); err != nil {
				return nil, false, fmt.Errorf("failed to store image blob: %w", err)
			}
		}
		image.StorageKey = &key
		image.Data = nil
	} else {
		image.Data = data
	}

	stored, created, err := h.images.InsertIfAbsent(ctx, image)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert image record: %w", err)
	}
	if !created {
		h.logger.Debug("Image hash already stored",
			logger.String("hash", image.Hash),
			logger.String("existingId", stored.ID),
		)
	}
	return stored, created, nil
}

func (h *HashStore) NextIndex(ctx context.Context, slideID int64) (int, error) {
	n, err := h.images.CountBySlide(ctx, slideID)
	if err != nil {
		return 0, fmt.Errorf("failed to count slide images: %w", err)
	}
	return n, nil
}

func (h *HashStore) Open(ctx context.Context, image *models.SlideImage) (io.ReadCloser, error) {
	if image.StorageKey != nil {
		if h.blobs == nil {
			return nil, errors.New("image bytes live in blob storage but none is configured")
		}
		return h.blobs.Get(ctx, *image.StorageKey)
	}
	if len(image.Data) == 0 && image.SizeBytes > 0 {
		return nil, fmt.Errorf("image %s has no stored bytes", image.ID)
	}
	return io.NopCloser(bytes.NewReader(image.Data)), nil
}
