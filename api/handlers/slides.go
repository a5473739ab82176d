package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/slide-migrator/internal/service/query"
	"github.com/feichai0017/slide-migrator/internal/utils/validator"
	"github.com/feichai0017/slide-migrator/pkg/converters"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

const imageCacheControl = "public, max-age=31536000"

// SlideHandler serves the read API over processed content.
type SlideHandler struct {
	reader *query.Service
	params *validator.ParamValidator
	logger logger.Logger
}

func NewSlideHandler(reader *query.Service, params *validator.ParamValidator, log logger.Logger) *SlideHandler {
	return &SlideHandler{reader: reader, params: params, logger: log.Named("slides")}
}

func (h *SlideHandler) ListSlides(c *gin.Context) {
	page, err := h.params.Page(c.Query("offset"), c.Query("limit"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	slides, total, err := h.reader.ListSlides(c.Request.Context(), page)
	if err != nil {
		handleError(c, h.logger, "Failed to list slides", err)
		return
	}
	c.JSON(http.StatusOK, converters.NewPage(converters.ToSlideListItems(slides), total, page.Offset, page.Limit))
}

func (h *SlideHandler) GetSlide(c *gin.Context) {
	id, err := h.params.ID("id", c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	detail, err := h.reader.GetSlide(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to load slide", err)
		return
	}
	c.JSON(http.StatusOK, converters.ToSlideResponse(detail.Slide, detail.Images))
}

func (h *SlideHandler) SlidesByChannel(c *gin.Context) {
	h.channelSlides(c, "channelId")
}

// ChannelSlides is the channel-rooted alias of SlidesByChannel.
func (h *SlideHandler) ChannelSlides(c *gin.Context) {
	h.channelSlides(c, "id")
}

func (h *SlideHandler) channelSlides(c *gin.Context, param string) {
	channelID, err := h.params.ID(param, c.Param(param))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	page, err := h.params.Page(c.Query("offset"), c.Query("limit"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	slides, total, err := h.reader.SlidesByChannel(c.Request.Context(), channelID, page)
	if err != nil {
		handleError(c, h.logger, "Failed to list channel slides", err)
		return
	}
	c.JSON(http.StatusOK, converters.NewPage(converters.ToSlideListItems(slides), total, page.Offset, page.Limit))
}

func (h *SlideHandler) SearchSlides(c *gin.Context) {
	q, err := h.params.Query("q", c.Query("q"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	page, err := h.params.Page(c.Query("offset"), c.Query("limit"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	slides, total, err := h.reader.SearchSlides(c.Request.Context(), q, page)
	if err != nil {
		handleError(c, h.logger, "Failed to search slides", err)
		return
	}
	c.JSON(http.StatusOK, converters.NewPage(converters.ToSlideListItems(slides), total, page.Offset, page.Limit))
}

func (h *SlideHandler) SlideImages(c *gin.Context) {
	id, err := h.params.ID("id", c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	images, err := h.reader.SlideImages(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to list slide images", err)
		return
	}
	c.JSON(http.StatusOK, converters.ToImageInfos(images))
}

func (h *SlideHandler) ListChannels(c *gin.Context) {
	channels, err := h.reader.ListChannels(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to list channels", err)
		return
	}
	c.JSON(http.StatusOK, converters.ToChannelResponses(channels))
}

func (h *SlideHandler) GetChannel(c *gin.Context) {
	id, err := h.params.ID("id", c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	channel, err := h.reader.GetChannel(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to load channel", err)
		return
	}
	c.JSON(http.StatusOK, converters.ToChannelResponse(channel))
}

// Image serves the bytes behind a rewritten image URL.
func (h *SlideHandler) Image(c *gin.Context) {
	slideID, err := h.params.ID("slideId", c.Param("slideId"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	filename, err := h.params.Filename("filename", c.Param("filename"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	content, err := h.reader.Image(c.Request.Context(), slideID, filename)
	if err != nil {
		handleError(c, h.logger, "Failed to load image", err)
		return
	}
	h.serveImage(c, content)
}

func (h *SlideHandler) ImageByID(c *gin.Context) {
	id, err := h.params.ImageID("imageId", c.Param("imageId"))
	if err != nil {
		handleError(c, h.logger, "Invalid parameter", err)
		return
	}
	content, err := h.reader.ImageByID(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to load image", err)
		return
	}
	h.serveImage(c, content)
}

func (h *SlideHandler) serveImage(c *gin.Context, content *query.ImageContent) {
	defer content.Body.Close()
	img := content.Image
	c.DataFromReader(http.StatusOK, img.SizeBytes, img.MimeType, content.Body, map[string]string{
		"Cache-Control":       imageCacheControl,
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", img.Filename),
		"ETag":                fmt.Sprintf("%q", img.Hash),
	})
}
