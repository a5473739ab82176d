package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository/memory"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

type TrackerSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.TrackingStore
	clock time.Time
	tr    *Tracker
}

func (s *TrackerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewTrackingStore()
	s.clock = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.tr = New(s.store, logger.NewNopLogger(),
		WithClock(func() time.Time { return s.clock }),
		WithErrorMessageLimit(10),
	)
}

func (s *TrackerSuite) TestEnsureIsIdempotent() {
	n, err := s.tr.Ensure(s.ctx, []int64{1, 2, 3})
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.tr.Ensure(s.ctx, []int64{1, 2, 3})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *TrackerSuite) TestHappyPath() {
	_, err := s.tr.Ensure(s.ctx, []int64{5})
	s.Require().NoError(err)

	rec, err := s.tr.Start(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, rec.Status)
	s.Equal(s.clock, *rec.StartedAt)

	stored, err := s.store.Get(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, stored.Status, "PROCESSING is persisted before work starts")

	s.clock = s.clock.Add(time.Minute)
	s.Require().NoError(s.tr.Complete(s.ctx, rec, Metrics{OriginalSizeBytes: 100, ProcessedSizeBytes: 10, ImagesExtracted: 2}))

	stored, err = s.store.Get(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, stored.Status)
	s.Equal(s.clock, *stored.CompletedAt)
	s.Equal(int64(100), *stored.OriginalSizeBytes)
	s.Equal(int64(10), *stored.ProcessedSizeBytes)
	s.Equal(2, *stored.ImagesExtracted)
}

func (s *TrackerSuite) TestFailureAndRetry() {
	rec, err := s.tr.Start(s.ctx, 9)
	s.Require().NoError(err)

	s.Require().NoError(s.tr.Fail(s.ctx, rec, errors.New("connection reset by peer")))
	stored, err := s.store.Get(s.ctx, 9)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, stored.Status)
	s.Equal("connection", *stored.ErrorMessage)
	s.Equal(1, stored.RetryCount)
	s.NotNil(stored.FailedAt)

	ids, err := s.tr.Candidates(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{9}, ids, "failed records are candidates again")

	rec, err = s.tr.Start(s.ctx, 9)
	s.Require().NoError(err)
	s.Require().NoError(s.tr.Fail(s.ctx, rec, nil))
	stored, err = s.store.Get(s.ctx, 9)
	s.Require().NoError(err)
	s.Equal(2, stored.RetryCount)
	s.Equal("unknown er", *stored.ErrorMessage)
}

func (s *TrackerSuite) TestResetStuckRecoversCrashedRun() {
	_, err := s.tr.Ensure(s.ctx, []int64{1, 2})
	s.Require().NoError(err)
	_, err = s.tr.Start(s.ctx, 1)
	s.Require().NoError(err)

	_, err = s.tr.Start(s.ctx, 1)
	s.ErrorIs(err, apperrors.ErrInvalidTransition, "a PROCESSING record cannot be started twice")

	n, err := s.tr.ResetStuck(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	ids, err := s.tr.Candidates(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{1, 2}, ids)
}

func (s *TrackerSuite) TestRequeueOnlyMovesCompleted() {
	for _, id := range []int64{1, 2} {
		rec, err := s.tr.Start(s.ctx, id)
		s.Require().NoError(err)
		s.Require().NoError(s.tr.Complete(s.ctx, rec, Metrics{}))
	}
	_, err := s.tr.Ensure(s.ctx, []int64{3})
	s.Require().NoError(err)

	n, err := s.tr.Requeue(s.ctx, []int64{2, 3})
	s.Require().NoError(err)
	s.Equal(1, n)

	ids, err := s.tr.Candidates(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{2, 3}, ids)

	n, err = s.tr.Requeue(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *TrackerSuite) TestCompleteRequiresProcessing() {
	rec := &models.SlideProcessingStatus{SlideID: 4, Status: models.StatusPending}
	s.ErrorIs(s.tr.Complete(s.ctx, rec, Metrics{}), apperrors.ErrInvalidTransition)
	s.ErrorIs(s.tr.Fail(s.ctx, rec, errors.New("x")), apperrors.ErrInvalidTransition)
}

func (s *TrackerSuite) TestProgressAndLastCompleted() {
	last, err := s.tr.LastCompletedAt(s.ctx)
	s.Require().NoError(err)
	s.Nil(last)

	_, err = s.tr.Ensure(s.ctx, []int64{1, 2, 3, 4})
	s.Require().NoError(err)
	rec, err := s.tr.Start(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.tr.Complete(s.ctx, rec, Metrics{}))
	rec, err = s.tr.Start(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().NoError(s.tr.Fail(s.ctx, rec, errors.New("x")))

	p, err := s.tr.Progress(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), p.Total)
	s.Equal(int64(2), p.Pending)
	s.Equal(int64(1), p.Completed)
	s.Equal(int64(1), p.Failed)
	s.InDelta(25.0, p.PercentComplete, 0.001)

	last, err = s.tr.LastCompletedAt(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.Equal(s.clock, *last)
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]models.ProcessingStatus{
		{models.StatusPending, models.StatusProcessing},
		{models.StatusProcessing, models.StatusCompleted},
		{models.StatusProcessing, models.StatusFailed},
		{models.StatusProcessing, models.StatusPending},
		{models.StatusFailed, models.StatusPending},
		{models.StatusCompleted, models.StatusPending},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]models.ProcessingStatus{
		{models.StatusPending, models.StatusCompleted},
		{models.StatusPending, models.StatusFailed},
		{models.StatusCompleted, models.StatusProcessing},
		{models.StatusFailed, models.StatusCompleted},
		{models.StatusFailed, models.StatusProcessing},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	long := strings.Repeat("ñ", 2500)
	got := Truncate(long, DefaultErrorMessageLimit)
	require.True(t, utf8.ValidString(got))
	assert.Equal(t, DefaultErrorMessageLimit, utf8.RuneCountInString(got))
	assert.Equal(t, "short", Truncate("short", 10))
}
