package handlers_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/feichai0017/slide-migrator/api/handlers"
	"github.com/feichai0017/slide-migrator/api/middleware"
	"github.com/feichai0017/slide-migrator/api/routes"
	"github.com/feichai0017/slide-migrator/config"
	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/extractor"
	"github.com/feichai0017/slide-migrator/internal/hashstore"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository/memory"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/internal/service/query"
	"github.com/feichai0017/slide-migrator/internal/tracker"
	"github.com/feichai0017/slide-migrator/internal/utils/validator"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

const baseURL = "http://api.test/api/v1"

type fakeQueue struct {
	enqueued []*queue.Task
	statuses map[string]*queue.TaskStatus
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, taskID string) (*queue.TaskStatus, error) {
	if st, ok := q.statuses[taskID]; ok {
		return st, nil
	}
	return nil, apperrors.NewNotFoundError("task " + taskID)
}

func (q *fakeQueue) CancelTask(_ context.Context, taskID string) error {
	if _, ok := q.statuses[taskID]; !ok {
		return apperrors.NewNotFoundError("task " + taskID)
	}
	delete(q.statuses, taskID)
	return nil
}

func (q *fakeQueue) SaveFinalStatus(_ context.Context, status *queue.TaskStatus) error {
	q.statuses[status.TaskID] = status
	return nil
}

type APISuite struct {
	suite.Suite
	source *memory.SourceStore
	tasks  *fakeQueue
	router *gin.Engine
	image  []byte
}

func TestAPISuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	log := logger.NewTestLogger()
	s.source = memory.NewSourceStore()
	slides := memory.NewSlideStore()
	images := memory.NewImageStore()
	channels := memory.NewChannelStore()
	hashes := hashstore.New(images, nil, log)

	cfg := config.Default().Migration
	cfg.PublicBaseURL = baseURL
	svc, err := migration.NewService(migration.Deps{
		Source:    s.source,
		Slides:    slides,
		Images:    images,
		Channels:  channels,
		Tracker:   tracker.New(memory.NewTrackingStore(), log),
		Extractor: extractor.New(hashes, log),
	}, cfg, log)
	s.Require().NoError(err)

	s.tasks = &fakeQueue{statuses: map[string]*queue.TaskStatus{}}
	h := handlers.NewHandlers(svc, s.tasks, query.NewService(slides, images, channels, hashes, log), validator.NewParamValidator(nil), log)
	s.router = gin.New()
	routes.SetupRoutes(s.router, h, []string{"*"}, log)

	s.image = []byte(strings.Repeat("pixel data ", 40))
	channelID := int64(5)
	written := time.Now().Add(-time.Hour)
	s.source.PutChannel(models.SourceChannel{
		ID:          channelID,
		Name:        models.NewLocalizedText(map[string]string{"es_ES": "Ventas"}),
		Active:      true,
		IsPublished: true,
	})
	s.source.PutSlide(models.SourceSlide{
		ID:          1,
		ChannelID:   &channelID,
		Name:        models.NewLocalizedText(map[string]string{"es_ES": "Bienvenida"}),
		HTMLContent: models.NewLocalizedText(map[string]string{"es_ES": `<img src="data:image/png;base64,` + base64.StdEncoding.EncodeToString(s.image) + `">`}),
		Active:      true,
		IsPublished: true,
		WriteDate:   &written,
	})
}

func (s *APISuite) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) decode(rec *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *APISuite) sync() {
	rec := s.do(http.MethodPost, "/api/v1/admin/sync")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *APISuite) TestSyncThenServeContent() {
	rec := s.do(http.MethodPost, "/api/v1/admin/sync?activeOnly=true")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var run models.SyncResult
	s.decode(rec, &run)
	s.Equal(1, run.Created)
	s.Equal(1, run.ChannelsProcessed)

	rec = s.do(http.MethodGet, "/api/v1/slides")
	s.Require().Equal(http.StatusOK, rec.Code)
	var page struct {
		Items []map[string]interface{} `json:"items"`
		Total int64                    `json:"total"`
		Limit int                      `json:"limit"`
	}
	s.decode(rec, &page)
	s.Equal(int64(1), page.Total)
	s.Equal(50, page.Limit)
	s.Equal("Bienvenida", page.Items[0]["name"])

	rec = s.do(http.MethodGet, "/api/v1/slides/1")
	s.Require().Equal(http.StatusOK, rec.Code)
	var slide struct {
		HTMLContent string `json:"htmlContent"`
		Images      []struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
		} `json:"images"`
	}
	s.decode(rec, &slide)
	s.Contains(slide.HTMLContent, baseURL+"/images/1/doc_1_img_0.png")
	s.Require().Len(slide.Images, 1)

	rec = s.do(http.MethodGet, "/api/v1/images/1/doc_1_img_0.png")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(s.image, rec.Body.Bytes())
	s.Equal("image/png", rec.Header().Get("Content-Type"))
	s.Equal("public, max-age=31536000", rec.Header().Get("Cache-Control"))
	s.Contains(rec.Header().Get("Content-Disposition"), "inline")

	rec = s.do(http.MethodGet, "/api/v1/images/by-id/"+slide.Images[0].ID)
	s.Require().Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	s.Require().NoError(err)
	s.Equal(s.image, body)

	rec = s.do(http.MethodGet, "/api/v1/channels/5/slides")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &page)
	s.Equal(int64(1), page.Total)

	rec = s.do(http.MethodGet, "/api/v1/channels")
	s.Require().Equal(http.StatusOK, rec.Code)
	var channels []map[string]interface{}
	s.decode(rec, &channels)
	s.Require().Len(channels, 1)
	s.Equal(float64(1), channels[0]["slideCount"])

	rec = s.do(http.MethodGet, "/api/v1/admin/runs/last")
	s.Require().Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestSearch() {
	s.sync()
	rec := s.do(http.MethodGet, "/api/v1/slides/search?q=bien")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"total":1`)

	rec = s.do(http.MethodGet, "/api/v1/slides/search")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestErrorsMapToStatus() {
	tests := []struct {
		method, path string
		want         int
		errType      apperrors.ErrorType
	}{
		{http.MethodGet, "/api/v1/slides/abc", http.StatusBadRequest, apperrors.ErrorTypeValidation},
		{http.MethodGet, "/api/v1/slides/99", http.StatusNotFound, apperrors.ErrorTypeNotFound},
		{http.MethodGet, "/api/v1/channels/99", http.StatusNotFound, apperrors.ErrorTypeNotFound},
		{http.MethodPost, "/api/v1/admin/sync/slide/99", http.StatusNotFound, apperrors.ErrorTypeNotFound},
		{http.MethodPost, "/api/v1/admin/sync?activeOnly=maybe", http.StatusBadRequest, apperrors.ErrorTypeValidation},
		{http.MethodPost, "/api/v1/admin/migrate-base64?limit=-1", http.StatusBadRequest, apperrors.ErrorTypeValidation},
		{http.MethodGet, "/api/v1/images/1/..secret", http.StatusBadRequest, apperrors.ErrorTypeValidation},
		{http.MethodGet, "/api/v1/images/by-id/not-a-uuid", http.StatusBadRequest, apperrors.ErrorTypeValidation},
		{http.MethodGet, "/api/v1/images/1/missing.png", http.StatusNotFound, apperrors.ErrorTypeNotFound},
		{http.MethodGet, "/api/v1/admin/runs/last", http.StatusNotFound, apperrors.ErrorTypeNotFound},
	}
	for _, tt := range tests {
		s.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func() {
			rec := s.do(tt.method, tt.path)
			s.Equal(tt.want, rec.Code, rec.Body.String())
			var resp handlers.ErrorResponse
			s.decode(rec, &resp)
			s.Equal(string(tt.errType), resp.Error)
		})
	}
}

func (s *APISuite) TestSyncSlideAndBatch() {
	rec := s.do(http.MethodPost, "/api/v1/admin/sync/slide/1")
	s.Require().Equal(http.StatusOK, rec.Code)
	var res models.SlideResult
	s.decode(rec, &res)
	s.Equal(models.OutcomeCreated, res.Status)

	rec = s.do(http.MethodPost, "/api/v1/admin/migrate-base64?limit=5")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"processed":1`)
}

func (s *APISuite) TestAsyncEndpointsUseQueue() {
	rec := s.do(http.MethodPost, "/api/v1/admin/sync/async?activeOnly=false")
	s.Require().Equal(http.StatusAccepted, rec.Code)
	var resp handlers.TaskResponse
	s.decode(rec, &resp)
	s.Require().Len(s.tasks.enqueued, 1)
	s.Equal(s.tasks.enqueued[0].ID, resp.TaskID)
	s.Equal(queue.TaskTypeSync, resp.Type)

	var payload queue.SyncPayload
	s.Require().NoError(s.tasks.enqueued[0].Decode(&payload))
	s.False(payload.ActiveOnly)

	rec = s.do(http.MethodPost, "/api/v1/admin/migrate-base64/async?limit=3")
	s.Require().Equal(http.StatusAccepted, rec.Code)
	s.Equal(queue.TaskTypeMigrateBatch, s.tasks.enqueued[1].Type)

	s.tasks.statuses["t1"] = &queue.TaskStatus{TaskID: "t1", Status: queue.StatusRunning}
	rec = s.do(http.MethodGet, "/api/v1/admin/tasks/t1")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"running"`)

	rec = s.do(http.MethodDelete, "/api/v1/admin/tasks/t1")
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/admin/tasks/t1")
	s.Equal(http.StatusNotFound, rec.Code)

	s.tasks.err = errors.New("redis unavailable")
	rec = s.do(http.MethodPost, "/api/v1/admin/sync/async")
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *APISuite) TestAsyncWithoutQueue() {
	log := logger.NewNopLogger()
	h := handlers.NewHandlers(nil, nil, nil, validator.NewParamValidator(nil), log)
	r := gin.New()
	routes.SetupRoutes(r, h, nil, log)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sync/async", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *APISuite) TestHealth() {
	rec := s.do(http.MethodGet, "/api/v1/admin/health")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"UP"`)

	s.source.FailWith(errors.New("replica unreachable"))
	rec = s.do(http.MethodGet, "/api/v1/admin/health")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), `"status":"DOWN"`)
}

func (s *APISuite) TestStatsAndProgress() {
	s.sync()
	rec := s.do(http.MethodGet, "/api/v1/admin/stats")
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats models.DepurationStats
	s.decode(rec, &stats)
	s.Equal(int64(1), stats.Processed.TotalSlides)

	rec = s.do(http.MethodGet, "/api/v1/admin/progress")
	s.Require().Equal(http.StatusOK, rec.Code)
	var progress models.SyncProgress
	s.decode(rec, &progress)
	s.Equal(int64(1), progress.Completed)
}

func (s *APISuite) TestRequestIDIsEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal("req-123", rec.Header().Get(middleware.RequestIDHeader))

	rec = s.do(http.MethodGet, "/api/v1/channels")
	s.NotEmpty(rec.Header().Get(middleware.RequestIDHeader))
}
