package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

func TestNewStorageMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStorage(ctx, StorageTypeMemory, config.StorageConfig{}, logger.NewNopLogger())
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "images/ab/abc")
	require.NoError(t, err)
	assert.False(t, ok)

	key, err := store.Store(ctx, "images/ab/abc", strings.NewReader("payload"), 7, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "images/ab/abc", key)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	_, err := NewStorage(context.Background(), StorageType("ftp"), config.StorageConfig{}, logger.NewNopLogger())
	assert.Error(t, err)
}
