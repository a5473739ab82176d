package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewNotFoundError("slide 12")
	assert.Equal(t, "slide 12 not found: resource not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPCode)

	plain := NewInternalError("boom")
	assert.Equal(t, "boom", plain.Error())
}

func TestClassification(t *testing.T) {
	notFound := fmt.Errorf("sync one: %w", NewNotFoundError("slide"))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(errors.New("other")))

	assert.True(t, IsConflict(ErrRunInProgress))
	assert.True(t, IsConflict(NewConflictError("busy")))
	assert.False(t, IsConflict(ErrNotFound))

	assert.True(t, IsValidation(NewValidationError("bad limit")))
	assert.False(t, IsValidation(NewInternalError("x")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewNotFoundError("slide"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrRunInProgress), http.StatusConflict},
		{NewValidationError("limit"), http.StatusBadRequest},
		{NewInfrastructureError("db down"), http.StatusServiceUnavailable},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestWrapErrorKeepsAppError(t *testing.T) {
	original := NewConflictError("busy").WithComponent("migration")
	wrapped := WrapError(fmt.Errorf("ctx: %w", original), "ignored")
	assert.Same(t, original, wrapped)

	cause := errors.New("disk")
	internal := WrapError(cause, "store failed")
	assert.Equal(t, ErrorTypeInternal, internal.Type)
	assert.ErrorIs(t, internal, cause)
}
