// Package events publishes per-slide synchronization events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const TypeSlideSynced = "SlideSynced"

// SlideSynced is emitted after a slide was created or updated.
type SlideSynced struct {
	Type            string    `json:"type"`
	RunID           string    `json:"runId,omitempty"`
	SlideID         int64     `json:"slideId"`
	ChannelID       *int64    `json:"channelId,omitempty"`
	Outcome         string    `json:"outcome"`
	MigrationStatus string    `json:"migrationStatus"`
	ImagesExtracted int       `json:"imagesExtracted"`
	SavedBytes      int64     `json:"savedBytes"`
	Timestamp       time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishSlideSynced(ctx context.Context, event SlideSynced) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, log)
}

func newKafkaPublisher(w messageWriter, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: log.Named("events")}
}

// PublishSlideSynced keys messages by slide id so events of one slide stay
// ordered within a partition.
func (p *KafkaPublisher) PublishSlideSynced(ctx context.Context, event SlideSynced) error {
	if event.Type == "" {
		event.Type = TypeSlideSynced
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.SlideID, 10)),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event for slide %d: %w", event.SlideID, err)
	}
	p.logger.Debug("Published event",
		logger.String("type", event.Type),
		logger.Int64("slideId", event.SlideID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishSlideSynced(context.Context, SlideSynced) error { return nil }
func (Noop) Close() error                                          { return nil }
