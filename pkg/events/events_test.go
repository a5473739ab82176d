package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/slide-migrator/pkg/logger"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishSlideSynced(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, logger.NewNopLogger())
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	err := p.PublishSlideSynced(context.Background(), SlideSynced{
		SlideID:         42,
		Outcome:         "CREATED",
		MigrationStatus: "COMPLETED",
		ImagesExtracted: 3,
		Timestamp:       ts,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeSlideSynced, string(msg.Headers[0].Value))

	var decoded SlideSynced
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TypeSlideSynced, decoded.Type)
	assert.Equal(t, int64(42), decoded.SlideID)
	assert.Equal(t, 3, decoded.ImagesExtracted)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishSlideSyncedWrapsWriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := newKafkaPublisher(&recordingWriter{err: boom}, logger.NewNopLogger())

	err := p.PublishSlideSynced(context.Background(), SlideSynced{SlideID: 7})
	assert.ErrorIs(t, err, boom)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishSlideSynced(context.Background(), SlideSynced{SlideID: 1}))
	assert.NoError(t, p.Close())
}
