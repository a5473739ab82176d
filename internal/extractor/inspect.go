package extractor

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

// inspect fills pixel dimensions and warns when the bytes do not look like
// the declared type. The declared type is kept either way.
func (e *Extractor) inspect(img *models.SlideImage, data []byte) {
	detected := mimetype.Detect(data)
	if !detected.Is(img.MimeType) {
		e.logger.Warn("Embedded image content does not match declared type",
			logger.Int64("slideId", img.SlideID),
			logger.String("declared", img.MimeType),
			logger.String("detected", detected.String()),
		)
	}

	if img.MimeType == "image/svg+xml" {
		return
	}

	var width, height int
	if img.MimeType == "image/jpeg" {
		// EXIF orientation can swap the displayed axes.
		decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			e.logger.Debug("Could not read image dimensions", logger.Error(err))
			return
		}
		b := decoded.Bounds()
		width, height = b.Dx(), b.Dy()
	} else {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			e.logger.Debug("Could not read image dimensions", logger.Error(err))
			return
		}
		width, height = cfg.Width, cfg.Height
	}
	img.Width = &width
	img.Height = &height
}
