// Package extractor finds inline base64 images in HTML, moves their bytes to
// the hash store and rewrites the markup to reference them by URL.
package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/slide-migrator/internal/hashstore"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

var dataURIPattern = regexp.MustCompile(`(?i)data:image/(png|jpeg|jpg|gif|webp|bmp|svg\+xml);base64,([A-Za-z0-9+/=]+)`)

var extensions = map[string]string{
	"png":     "png",
	"jpeg":    "jpg",
	"jpg":     "jpg",
	"gif":     "gif",
	"webp":    "webp",
	"bmp":     "bmp",
	"svg+xml": "svg",
}

// Extension maps an image subtype to a file extension, "bin" when unknown.
func Extension(subtype string) string {
	if ext, ok := extensions[strings.ToLower(subtype)]; ok {
		return ext
	}
	return "bin"
}

// MimeType normalizes a subtype into a MIME type.
func MimeType(subtype string) string {
	subtype = strings.ToLower(subtype)
	if subtype == "jpg" {
		subtype = "jpeg"
	}
	return "image/" + subtype
}

// Result of one Process call.
type Result struct {
	CleanedHTML string
	// Images has one entry per occurrence that was replaced, new or reused.
	Images        []models.SlideImage
	NewImages     int
	TotalFound    int
	FailedDecodes int
	OriginalSize  int64
	CleanedSize   int64
}

// SavedBytes is the size reduction, never negative.
func (r *Result) SavedBytes() int64 {
	if r.CleanedSize >= r.OriginalSize {
		return 0
	}
	return r.OriginalSize - r.CleanedSize
}

type Extractor struct {
	store  hashstore.Store
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Extractor)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithIDGenerator overrides image id generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Extractor) { e.newID = newID }
}

func New(store hashstore.Store, log logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		store:  store,
		logger: log.Named("extractor"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type resolution struct {
	url   string
	image models.SlideImage
	ok    bool
}

// Process replaces every inline image of html. Decode failures leave the
// original text in place and are counted; hash store failures abort.
func (e *Extractor) Process(ctx context.Context, slideID int64, html, baseURL string) (*Result, error) {
	result := &Result{OriginalSize: int64(len(html))}

	matches := dataURIPattern.FindAllStringSubmatchIndex(html, -1)
	result.TotalFound = len(matches)
	if len(matches) == 0 {
		result.CleanedHTML = html
		result.CleanedSize = result.OriginalSize
		return result, nil
	}

	nextIndex, err := e.store.NextIndex(ctx, slideID)
	if err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(baseURL, "/")

	resolved := make(map[string]resolution, len(matches))
	var out strings.Builder
	out.Grow(len(html))
	last := 0

	for _, m := range matches {
		uri := html[m[0]:m[1]]
		subtype := html[m[2]:m[3]]
		payload := html[m[4]:m[5]]

		res, seen := resolved[uri]
		if !seen {
			res, err = e.resolve(ctx, slideID, subtype, payload, baseURL, &nextIndex, result)
			if err != nil {
				return nil, err
			}
			resolved[uri] = res
		}

		out.WriteString(html[last:m[0]])
		if res.ok {
			out.WriteString(res.url)
			result.Images = append(result.Images, res.image)
		} else {
			out.WriteString(uri)
			result.FailedDecodes++
		}
		last = m[1]
	}
	out.WriteString(html[last:])

	result.CleanedHTML = out.String()
	result.CleanedSize = int64(len(result.CleanedHTML))
	return result, nil
}

func (e *Extractor) resolve(ctx context.Context, slideID int64, subtype, payload, baseURL string, nextIndex *int, result *Result) (resolution, error) {
	data, err := decodePayload(payload)
	if err != nil {
		e.logger.Warn("Failed to decode embedded image",
			logger.Int64("slideId", slideID),
			logger.String("subtype", subtype),
			logger.Int("payloadLength", len(payload)),
			logger.Error(err),
		)
		return resolution{}, nil
	}

	hash := hashstore.Hash(data)
	existing, found, err := e.store.Lookup(ctx, hash)
	if err != nil {
		return resolution{}, err
	}
	if found {
		return resolution{url: existing.PublicURL, image: *existing, ok: true}, nil
	}

	filename := fmt.Sprintf("doc_%d_img_%d.%s", slideID, *nextIndex, Extension(subtype))
	image := &models.SlideImage{
		ID:         e.newID(),
		SlideID:    slideID,
		ImageIndex: *nextIndex,
		Filename:   filename,
		MimeType:   MimeType(subtype),
		Hash:       hash,
		PublicURL:  fmt.Sprintf("%s/images/%d/%s", baseURL, slideID, filename),
		CreatedAt:  e.now(),
	}
	e.inspect(image, data)

	stored, created, err := e.store.Put(ctx, image, data)
	if err != nil {
		return resolution{}, err
	}
	if created {
		*nextIndex++
		result.NewImages++
		e.logger.Debug("Extracted image",
			logger.Int64("slideId", slideID),
			logger.String("filename", filename),
			logger.String("hash", hash),
			logger.Int64("sizeBytes", stored.SizeBytes),
		)
	}
	return resolution{url: stored.PublicURL, image: *stored, ok: true}, nil
}

// decodePayload accepts standard base64 with or without trailing padding.
func decodePayload(payload string) ([]byte, error) {
	if len(payload)%4 == 0 {
		return base64.StdEncoding.DecodeString(payload)
	}
	if strings.Contains(payload, "=") {
		return nil, fmt.Errorf("misplaced padding in %d-byte payload", len(payload))
	}
	return base64.RawStdEncoding.DecodeString(payload)
}

// HasEmbeddedImages reports whether html holds at least one inline image.
func HasEmbeddedImages(html string) bool {
	return dataURIPattern.MatchString(html)
}

// CountEmbeddedImages counts inline images without decoding them.
func CountEmbeddedImages(html string) int {
	return len(dataURIPattern.FindAllStringIndex(html, -1))
}

// EstimateEmbeddedBytes approximates the decoded size of all inline images.
func EstimateEmbeddedBytes(html string) int64 {
	var total int64
	for _, m := range dataURIPattern.FindAllStringSubmatchIndex(html, -1) {
		total += int64(m[5]-m[4]) * 3 / 4
	}
	return total
}
