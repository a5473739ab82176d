package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/slide-migrator/api/handlers"
	"github.com/feichai0017/slide-migrator/api/middleware"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

// SetupRoutes registers every endpoint on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowedOrigins []string, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(allowedOrigins))

	v1 := r.Group("/api/v1")

	admin := v1.Group("/admin")
	{
		admin.POST("/sync", h.Admin.Sync)
		admin.POST("/sync/async", h.Admin.SyncAsync)
		admin.POST("/sync/slide/:id", h.Admin.SyncSlide)
		admin.POST("/migrate-base64", h.Admin.MigrateBase64)
		admin.POST("/migrate-base64/async", h.Admin.MigrateBase64Async)
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/progress", h.Admin.Progress)
		admin.GET("/runs/last", h.Admin.LastRun)
		admin.GET("/health", h.Admin.Health)
		admin.GET("/tasks/:taskId", h.Admin.TaskStatus)
		admin.DELETE("/tasks/:taskId", h.Admin.CancelTask)
	}

	slides := v1.Group("/slides")
	{
		slides.GET("", h.Slides.ListSlides)
		slides.GET("/search", h.Slides.SearchSlides)
		slides.GET("/channel/:channelId", h.Slides.SlidesByChannel)
		slides.GET("/:id", h.Slides.GetSlide)
		slides.GET("/:id/images", h.Slides.SlideImages)
	}

	channels := v1.Group("/channels")
	{
		channels.GET("", h.Slides.ListChannels)
		channels.GET("/:id", h.Slides.GetChannel)
		channels.GET("/:id/slides", h.Slides.ChannelSlides)
	}

	images := v1.Group("/images")
	{
		images.GET("/by-id/:imageId", h.Slides.ImageByID)
		images.GET("/:slideId/:filename", h.Slides.Image)
	}
}
