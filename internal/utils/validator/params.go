// Package validator checks and parses request parameters.
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,254}$`)

// ValidatorConfig bounds the accepted parameter values.
type ValidatorConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	DefaultBatch    int
	MaxBatch        int
	MaxQueryLength  int
}

// ParamValidator validates path and query parameters of the API.
type ParamValidator struct {
	config *ValidatorConfig
}

func NewParamValidator(config *ValidatorConfig) *ParamValidator {
	if config == nil {
		config = &ValidatorConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
			DefaultBatch:    10,
			MaxBatch:        1000,
			MaxQueryLength:  200,
		}
	}
	return &ParamValidator{config: config}
}

func invalid(field, format string, args ...interface{}) error {
	return apperrors.NewValidationError(fmt.Sprintf(format, args...)).
		WithCode("INVALID_PARAMETER").
		WithDetail("field", field)
}

// ID parses a positive numeric identifier.
func (v *ParamValidator) ID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(field, "%s must be a positive integer", field)
	}
	return id, nil
}

// ImageID checks that raw is a UUID.
func (v *ParamValidator) ImageID(field, raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", invalid(field, "%s must be a UUID", field)
	}
	return id.String(), nil
}

// Filename accepts the flat names the extractor generates.
func (v *ParamValidator) Filename(field, raw string) (string, error) {
	if !filenamePattern.MatchString(raw) || strings.Contains(raw, "..") {
		return "", invalid(field, "%s is not a valid image filename", field)
	}
	return raw, nil
}

// Bool parses raw, returning def when it is empty.
func (v *ParamValidator) Bool(field, raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid(field, "%s must be true or false", field)
	}
	return b, nil
}

// BatchLimit parses the size of a migration batch.
func (v *ParamValidator) BatchLimit(field, raw string) (int, error) {
	if raw == "" {
		return v.config.DefaultBatch, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, invalid(field, "%s must be a positive integer", field)
	}
	if n > v.config.MaxBatch {
		return 0, invalid(field, "%s must not exceed %d", field, v.config.MaxBatch)
	}
	return n, nil
}

// Page parses offset and limit. Missing values take defaults and limit is
// capped at the configured maximum.
func (v *ParamValidator) Page(offsetRaw, limitRaw string) (repository.Page, error) {
	page := repository.Page{}
	if offsetRaw != "" {
		n, err := strconv.Atoi(offsetRaw)
		if err != nil || n < 0 {
			return page, invalid("offset", "offset must be a non-negative integer")
		}
		page.Offset = n
	}
	if limitRaw != "" {
		n, err := strconv.Atoi(limitRaw)
		if err != nil || n <= 0 {
			return page, invalid("limit", "limit must be a positive integer")
		}
		page.Limit = n
	}
	return page.Normalize(v.config.DefaultPageSize, v.config.MaxPageSize), nil
}

// Query checks a free-text search term.
func (v *ParamValidator) Query(field, raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", invalid(field, "%s is required", field)
	}
	if len([]rune(q)) > v.config.MaxQueryLength {
		return "", invalid(field, "%s must not exceed %d characters", field, v.config.MaxQueryLength)
	}
	return q, nil
}
