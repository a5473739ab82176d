package migration

import (
	"context"
	"fmt"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

// channelNames resolves channel display names for slides, caching misses.
type channelNames struct {
	source repository.SourceStore
	logger logger.Logger
	names  map[int64]*string
}

func (s *Service) newChannelNames() *channelNames {
	return &channelNames{source: s.source, logger: s.logger, names: make(map[int64]*string)}
}

func (c *channelNames) preload(ctx context.Context) {
	channels, err := c.source.ListActiveChannels(ctx)
	if err != nil {
		c.logger.Warn("Failed to preload channel names", logger.Error(err))
		return
	}
	for i := range channels {
		c.names[channels[i].ID] = channels[i].EffectiveName()
	}
}

func (c *channelNames) lookup(ctx context.Context, id *int64) *string {
	if id == nil {
		return nil
	}
	if name, ok := c.names[*id]; ok {
		return name
	}
	var name *string
	channel, err := c.source.FindChannel(ctx, *id)
	switch {
	case err == nil:
		name = channel.EffectiveName()
	case !apperrors.IsNotFound(err):
		c.logger.Warn("Failed to load channel", logger.Int64("channelId", *id), logger.Error(err))
		return nil
	}
	c.names[*id] = name
	return name
}

// syncChannels upserts every active source channel with aggregates over its
// processed slides. Failures are logged per channel.
func (s *Service) syncChannels(ctx context.Context) int {
	channels, err := s.source.ListActiveChannels(ctx)
	if err != nil {
		s.logger.Error("Failed to list source channels", logger.Error(err))
		return 0
	}

	processed := 0
	for i := range channels {
		if err := s.syncChannel(ctx, &channels[i]); err != nil {
			s.logger.Error("Failed to sync channel",
				logger.Int64("channelId", channels[i].ID),
				logger.Error(err),
			)
			continue
		}
		processed++
	}
	s.logger.Info("Channels synchronized", logger.Int("processed", processed), logger.Int("total", len(channels)))
	return processed
}

func (s *Service) syncChannel(ctx context.Context, src *models.SourceChannel) error {
	now := s.now()
	channel, err := s.channels.FindByID(ctx, src.ID)
	switch {
	case err == nil:
		channel.LastSyncedAt = now
	case apperrors.IsNotFound(err):
		channel = models.NewProcessedChannel(src.ID, now)
	default:
		return fmt.Errorf("failed to load processed channel: %w", err)
	}

	totals, err := s.slides.ChannelTotals(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("failed to aggregate channel slides: %w", err)
	}

	channel.Name = src.EffectiveName()
	channel.Description = src.EffectiveDescription()
	channel.Active = src.Active
	channel.IsPublished = src.IsPublished
	channel.TotalViews = src.TotalViews
	channel.SlideCount = totals.SlideCount
	channel.TotalSizeBytes = totals.TotalSizeBytes
	channel.SourceCreatedAt = src.CreateDate
	channel.SourceModifiedAt = src.WriteDate

	if err := s.channels.Save(ctx, channel); err != nil {
		return fmt.Errorf("failed to save processed channel: %w", err)
	}
	return nil
}
