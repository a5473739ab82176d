package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/service/migration"
	"github.com/feichai0017/slide-migrator/internal/service/query"
	"github.com/feichai0017/slide-migrator/internal/utils/validator"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

type Handlers struct {
	Admin  *AdminHandler
	Slides *SlideHandler
}

// NewHandlers wires the API. tasks may be nil when no queue is configured;
// the asynchronous endpoints then answer 503.
func NewHandlers(
	migrator migration.Migrator,
	tasks queue.Queue,
	reader *query.Service,
	params *validator.ParamValidator,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Admin:  NewAdminHandler(migrator, tasks, params, log),
		Slides: NewSlideHandler(reader, params, log),
	}
}

type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// handleError renders err with the status of its classification. Server
// side failures are logged, client mistakes are not.
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse{Error: string(apperrors.ErrorTypeInternal), Message: message}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = string(appErr.Type)
		resp.Message = appErr.Message
		resp.Code = appErr.Code
		if len(appErr.Details) > 0 {
			resp.Details = appErr.Details
		}
	}

	if status >= 500 {
		logger.FromContext(c.Request.Context(), log).Error(message,
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}
