package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.StoreDriver = config.StoreDriverMemory
	cfg.Storage.Backend = config.ImageStorageMemory
	cfg.Redis.Addr = ""
	return cfg
}

func TestNewWithMemoryBackends(t *testing.T) {
	log := logger.NewTestLogger()
	a, err := New(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Migrator)
	assert.NotNil(t, a.Query)
	assert.Nil(t, a.Queue, "no queue without redis")
	assert.Equal(t, 1, log.Count("WARN", "Using in-memory stores; nothing survives a restart"))

	res, err := a.Migrator.Sync(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, res.TotalProcessed)
}

func TestNewRejectsUnknownStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "tape"
	_, err := New(context.Background(), cfg, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	a := &App{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return assert.AnError },
	}}
	assert.ErrorIs(t, a.Close(), assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close(), "closing twice is a no-op")
}
