package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
)

const DefaultLastRunKey = "slide-migrator:last-run"

// RunStore keeps the latest run summary in Redis so the API can report runs
// executed by the worker.
type RunStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRunStore(client *redis.Client, key string, ttl time.Duration) *RunStore {
	if key == "" {
		key = DefaultLastRunKey
	}
	return &RunStore{client: client, key: key, ttl: ttl}
}

func (s *RunStore) SaveRun(ctx context.Context, result *models.SyncResult) error {
	return saveJSON(ctx, s.client, s.key, result, s.ttl)
}

func (s *RunStore) LastRun(ctx context.Context) (*models.SyncResult, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("last run: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	var result models.SyncResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last run: %w", err)
	}
	return &result, nil
}
