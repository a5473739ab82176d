package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

type mockMigrator struct {
	mock.Mock
}

var _ migration.Migrator = (*mockMigrator)(nil)

func (m *mockMigrator) Sync(ctx context.Context, activeOnly bool) (*models.SyncResult, error) {
	args := m.Called(ctx, activeOnly)
	res, _ := args.Get(0).(*models.SyncResult)
	return res, args.Error(1)
}

func (m *mockMigrator) SyncOne(ctx context.Context, slideID int64) (*models.SlideResult, error) {
	args := m.Called(ctx, slideID)
	res, _ := args.Get(0).(*models.SlideResult)
	return res, args.Error(1)
}

func (m *mockMigrator) MigrateBatch(ctx context.Context, limit int) ([]models.SlideResult, error) {
	args := m.Called(ctx, limit)
	res, _ := args.Get(0).([]models.SlideResult)
	return res, args.Error(1)
}

func (m *mockMigrator) Stats(ctx context.Context) (*models.DepurationStats, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*models.DepurationStats)
	return res, args.Error(1)
}

func (m *mockMigrator) Progress(ctx context.Context) (*models.SyncProgress, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*models.SyncProgress)
	return res, args.Error(1)
}

func (m *mockMigrator) Health(ctx context.Context) (*migration.Health, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*migration.Health)
	return res, args.Error(1)
}

func (m *mockMigrator) LastRun(ctx context.Context) (*models.SyncResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*models.SyncResult)
	return res, args.Error(1)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []queue.TaskStatus
	err      error
}

func (s *statusLog) SaveFinalStatus(_ context.Context, status *queue.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, *status)
	return s.err
}

func (s *statusLog) last() queue.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[len(s.statuses)-1]
}

func newTestWorker(m migration.Migrator, statuses StatusRecorder, log logger.Logger) *MigrationWorker {
	clock := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	return &MigrationWorker{
		BaseWorker: &BaseWorker{mux: asynq.NewServeMux(), logger: log, stopChan: make(chan struct{})},
		migrator:   m,
		statuses:   statuses,
		now:        func() time.Time { return clock },
	}
}

func asynqTask(t *testing.T, task *queue.Task) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return asynq.NewTask(task.Type, data)
}

func TestHandleSyncRecordsResult(t *testing.T) {
	m := &mockMigrator{}
	m.On("Sync", mock.Anything, true).Return(&models.SyncResult{RunID: "r1", TotalProcessed: 2}, nil).Once()
	statuses := &statusLog{}
	w := newTestWorker(m, statuses, logger.NewTestLogger())

	task, err := queue.NewSyncTask(true)
	require.NoError(t, err)
	require.NoError(t, w.handleSync(context.Background(), asynqTask(t, task)))

	m.AssertExpectations(t)
	require.Len(t, statuses.statuses, 2)
	assert.Equal(t, queue.StatusRunning, statuses.statuses[0].Status)
	final := statuses.last()
	assert.Equal(t, queue.StatusCompleted, final.Status)
	assert.Equal(t, task.ID, final.TaskID)
	assert.JSONEq(t, `"r1"`, mustField(t, final.Result, "runId"))
}

func mustField(t *testing.T, raw json.RawMessage, key string) string {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	return string(fields[key])
}

func TestHandleSyncSlide(t *testing.T) {
	m := &mockMigrator{}
	m.On("SyncOne", mock.Anything, int64(7)).Return(&models.SlideResult{SlideID: 7, Status: models.OutcomeCreated}, nil).Once()
	w := newTestWorker(m, &statusLog{}, logger.NewTestLogger())

	task, err := queue.NewSyncSlideTask(7)
	require.NoError(t, err)
	assert.NoError(t, w.handleSyncSlide(context.Background(), asynqTask(t, task)))
	m.AssertExpectations(t)
}

func TestHandleSyncSlideRejectsInvalidID(t *testing.T) {
	m := &mockMigrator{}
	w := newTestWorker(m, &statusLog{}, logger.NewTestLogger())

	task, err := queue.NewSyncSlideTask(0)
	require.NoError(t, err)
	err = w.handleSyncSlide(context.Background(), asynqTask(t, task))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	m.AssertNotCalled(t, "SyncOne", mock.Anything, mock.Anything)
}

func TestHandleMigrateBatchPassesLimit(t *testing.T) {
	m := &mockMigrator{}
	m.On("MigrateBatch", mock.Anything, 5).Return([]models.SlideResult{{SlideID: 1}}, nil).Once()
	w := newTestWorker(m, nil, logger.NewTestLogger())

	task, err := queue.NewMigrateBatchTask(5)
	require.NoError(t, err)
	assert.NoError(t, w.handleMigrateBatch(context.Background(), asynqTask(t, task)))
	m.AssertExpectations(t)
}

func TestRunInProgressSkipsRetry(t *testing.T) {
	m := &mockMigrator{}
	conflict := apperrors.NewConflictError("synchronization already running").WithCause(apperrors.ErrRunInProgress)
	m.On("Sync", mock.Anything, false).Return(nil, conflict).Once()
	statuses := &statusLog{}
	log := logger.NewTestLogger()
	w := newTestWorker(m, statuses, log)

	task, err := queue.NewSyncTask(false)
	require.NoError(t, err)
	err = w.handleSync(context.Background(), asynqTask(t, task))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, queue.StatusFailed, statuses.last().Status)
	assert.Equal(t, 1, log.Count("WARN", "Task rejected"))
}

func TestInfrastructureFailureIsRetried(t *testing.T) {
	m := &mockMigrator{}
	boom := errors.New("connection reset")
	m.On("Sync", mock.Anything, true).Return(nil, boom).Once()
	w := newTestWorker(m, &statusLog{}, logger.NewTestLogger())

	task, err := queue.NewSyncTask(true)
	require.NoError(t, err)
	err = w.handleSync(context.Background(), asynqTask(t, task))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMalformedEnvelopeSkipsRetry(t *testing.T) {
	w := newTestWorker(&mockMigrator{}, &statusLog{}, logger.NewTestLogger())
	err := w.handleSync(context.Background(), asynq.NewTask(queue.TaskTypeSync, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStatusSaveFailureIsOnlyLogged(t *testing.T) {
	m := &mockMigrator{}
	m.On("MigrateBatch", mock.Anything, 0).Return([]models.SlideResult{}, nil).Once()
	log := logger.NewTestLogger()
	w := newTestWorker(m, &statusLog{err: errors.New("redis down")}, log)

	task, err := queue.NewMigrateBatchTask(0)
	require.NoError(t, err)
	assert.NoError(t, w.handleMigrateBatch(context.Background(), asynqTask(t, task)))
	assert.Equal(t, 2, log.Count("WARN", "Failed to save task status"))
}

func TestRegisteredHandlersCoverTaskTypes(t *testing.T) {
	m := &mockMigrator{}
	m.On("MigrateBatch", mock.Anything, 3).Return([]models.SlideResult{}, nil).Once()
	w := newTestWorker(m, nil, logger.NewTestLogger())
	w.registerHandlers(w.mux)

	task, err := queue.NewMigrateBatchTask(3)
	require.NoError(t, err)
	assert.NoError(t, w.mux.ProcessTask(context.Background(), asynqTask(t, task)))
	m.AssertExpectations(t)
}
