package migration

import (
	"context"
	"fmt"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/extractor"
	"github.com/feichai0017/slide-migrator/internal/models"
)

const (
	messageCreated   = "slide created"
	messageUpdated   = "slide updated"
	messageUnchanged = "no changes since last synchronization"
)

// processSlide copies one source slide into the processed store, extracting
// its inline images. The processed record is nil when the slide was skipped.
func (s *Service) processSlide(ctx context.Context, slide *models.SourceSlide, names *channelNames) (models.SlideResult, *models.ProcessedSlide, error) {
	name := slide.EffectiveName()
	content := slide.EffectiveContent()
	html := ""
	if content != nil {
		html = *content
	}

	existing, err := s.slides.FindByID(ctx, slide.ID)
	isNew := false
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return models.SlideResult{}, nil, fmt.Errorf("failed to load processed slide %d: %w", slide.ID, err)
		}
		isNew = true
	}

	if !isNew && !existing.NeedsSync(slide.WriteDate) {
		return models.SlideResult{
			SlideID:           slide.ID,
			SlideName:         name,
			Status:            models.OutcomeSkipped,
			ImagesExtracted:   existing.ImagesExtracted,
			OriginalSizeBytes: existing.OriginalSizeBytes,
			NewSizeBytes:      existing.ProcessedSizeBytes,
			SavedBytes:        savedBytes(existing.OriginalSizeBytes, existing.ProcessedSizeBytes),
			Message:           messageUnchanged,
			ProcessedAt:       s.now(),
		}, nil, nil
	}

	hadEmbedded := extractor.HasEmbeddedImages(html)
	cleaned := html
	var extracted, found, failedDecodes int
	if hadEmbedded {
		r, err := s.extractor.Process(ctx, slide.ID, html, s.config.PublicBaseURL)
		if err != nil {
			return models.SlideResult{}, nil, fmt.Errorf("failed to extract images of slide %d: %w", slide.ID, err)
		}
		cleaned = r.CleanedHTML
		extracted = len(r.Images)
		found = r.TotalFound
		failedDecodes = r.FailedDecodes
	}

	now := s.now()
	target := existing
	if isNew {
		target = models.NewProcessedSlide(slide.ID, now)
	} else {
		target.Touch(now)
	}

	target.ChannelID = slide.ChannelID
	target.ChannelName = names.lookup(ctx, slide.ChannelID)
	target.Name = name
	target.SlideType = slide.SlideType
	target.HTMLContent = nil
	if content != nil {
		target.HTMLContent = &cleaned
	}
	target.Description = slide.Description
	target.Active = slide.Active
	target.IsPublished = slide.IsPublished
	target.TotalViews = slide.TotalViews
	target.OriginalSizeBytes = int64(len(html))
	target.ProcessedSizeBytes = int64(len(cleaned))
	target.ImagesExtracted = extracted
	target.HasBase64Original = hadEmbedded
	target.SourceCreatedAt = slide.CreateDate
	target.SourceModifiedAt = slide.WriteDate
	target.MigrationStatus, target.MigrationNotes = migrationStatus(hadEmbedded, extracted, found, failedDecodes)

	if err := s.slides.Save(ctx, target); err != nil {
		return models.SlideResult{}, nil, fmt.Errorf("failed to save processed slide %d: %w", slide.ID, err)
	}

	res := models.SlideResult{
		SlideID:              slide.ID,
		SlideName:            name,
		Status:               models.OutcomeUpdated,
		ImagesExtracted:      extracted,
		ImagesFound:          found,
		OriginalSizeBytes:    target.OriginalSizeBytes,
		NewSizeBytes:         target.ProcessedSizeBytes,
		SavedBytes:           savedBytes(target.OriginalSizeBytes, target.ProcessedSizeBytes),
		EstimatedBase64Bytes: extractor.EstimateEmbeddedBytes(html),
		Message:              messageUpdated,
		ProcessedAt:          now,
	}
	if isNew {
		res.Status = models.OutcomeCreated
		res.Message = messageCreated
	}
	return res, target, nil
}

// migrationStatus labels a processed slide. A slide whose inline images all
// failed to decode stays PENDING so it is visible as still needing work.
func migrationStatus(hadEmbedded bool, extracted, found, failedDecodes int) (models.MigrationStatus, *string) {
	switch {
	case !hadEmbedded:
		return models.MigrationNoMigrationNeeded, nil
	case extracted == 0:
		notes := fmt.Sprintf("none of the %d inline images could be decoded", found)
		return models.MigrationPending, &notes
	case failedDecodes > 0:
		notes := fmt.Sprintf("%d of %d inline images could not be decoded", failedDecodes, found)
		return models.MigrationCompleted, &notes
	default:
		return models.MigrationCompleted, nil
	}
}

func savedBytes(original, processed int64) int64 {
	if processed >= original {
		return 0
	}
	return original - processed
}
