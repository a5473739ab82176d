package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/internal/utils/validator"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

// AdminHandler triggers and observes synchronization runs.
type AdminHandler struct {
	migrator migration.Migrator
	tasks    queue.Queue
	params   *validator.ParamValidator
	logger   logger.Logger
}

type TaskResponse struct {
	TaskID string `json:"taskId"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func NewAdminHandler(migrator migration.Migrator, tasks queue.Queue, params *validator.ParamValidator, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		migrator: migrator,
		tasks:    tasks,
		params:   params,
		logger:   log.Named("admin"),
	}
}

// Sync runs a full synchronization inside the request.
func (h *AdminHandler) Sync(c *gin.Context) {
	activeOnly, err := h.params.Bool("activeOnly", c.Query("activeOnly"), true)
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	result, err := h.migrator.Sync(c.Request.Context(), activeOnly)
	if err != nil {
		handleError(c, h.logger, "Synchronization failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncAsync queues a full synchronization for the worker.
func (h *AdminHandler) SyncAsync(c *gin.Context) {
	activeOnly, err := h.params.Bool("activeOnly", c.Query("activeOnly"), true)
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	task, err := queue.NewSyncTask(activeOnly)
	if err != nil {
		handleError(c, h.logger, "Failed to build task", err)
		return
	}
	h.enqueue(c, task)
}

func (h *AdminHandler) SyncSlide(c *gin.Context) {
	id, err := h.params.ID("id", c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	result, err := h.migrator.SyncOne(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Slide synchronization failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MigrateBase64 processes the heaviest slides that still hold inline images.
func (h *AdminHandler) MigrateBase64(c *gin.Context) {
	limit, err := h.params.BatchLimit("limit", c.Query("limit"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	results, err := h.migrator.MigrateBatch(c.Request.Context(), limit)
	if err != nil {
		handleError(c, h.logger, "Batch migration failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": len(results),
		"results":   results,
	})
}

func (h *AdminHandler) MigrateBase64Async(c *gin.Context) {
	limit, err := h.params.BatchLimit("limit", c.Query("limit"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	task, err := queue.NewMigrateBatchTask(limit)
	if err != nil {
		handleError(c, h.logger, "Failed to build task", err)
		return
	}
	h.enqueue(c, task)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.migrator.Stats(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to compute statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) Progress(c *gin.Context) {
	progress, err := h.migrator.Progress(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to read progress", err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *AdminHandler) LastRun(c *gin.Context) {
	run, err := h.migrator.LastRun(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to read last run", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Health answers 503 only when the source is unreachable.
func (h *AdminHandler) Health(c *gin.Context) {
	health, err := h.migrator.Health(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Health check failed", err)
		return
	}
	status := http.StatusOK
	if health.Status == migration.HealthDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *AdminHandler) TaskStatus(c *gin.Context) {
	if !h.queueAvailable(c) {
		return
	}
	status, err := h.tasks.GetTaskStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		handleError(c, h.logger, "Failed to get task status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *AdminHandler) CancelTask(c *gin.Context) {
	if !h.queueAvailable(c) {
		return
	}
	taskID := c.Param("taskId")
	if err := h.tasks.CancelTask(c.Request.Context(), taskID); err != nil {
		handleError(c, h.logger, "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func (h *AdminHandler) enqueue(c *gin.Context, task *queue.Task) {
	if !h.queueAvailable(c) {
		return
	}
	if err := h.tasks.Enqueue(c.Request.Context(), task); err != nil {
		handleError(c, h.logger, "Failed to enqueue task", err)
		return
	}
	c.JSON(http.StatusAccepted, TaskResponse{TaskID: task.ID, Type: task.Type, Status: queue.StatusPending})
}

func (h *AdminHandler) queueAvailable(c *gin.Context) bool {
	if h.tasks != nil {
		return true
	}
	handleError(c, h.logger, "Task queue unavailable", apperrors.NewInfrastructureError("task queue is not configured"))
	return false
}
