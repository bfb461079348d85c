// Package rest implements C13, the HTTP intake surface: request dispatch,
// status reads, and event streaming (SSE and WebSocket) over the eventbus.
package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/imagegenio/orchestrator/internal/domain/errors"
)

// APIError is the uniform error envelope returned by every handler.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

// NewAPIError constructs an APIError.
func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest    = NewAPIError("BAD_REQUEST", "invalid request", http.StatusBadRequest)
	ErrUnauthorized  = NewAPIError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
	ErrNotFound      = NewAPIError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInternal      = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrAlreadyQueued = NewAPIError("ALREADY_QUEUED", "request is already queued or running", http.StatusConflict)
)

// TranslateError maps a domain/application error onto the HTTP error it
// surfaces as. Errors with no specific mapping become 500s.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validation *domainerrors.ValidationFailure
	if errors.As(err, &validation) {
		return NewAPIError("VALIDATION_FAILED", validation.Error(), http.StatusBadRequest)
	}

	var cancelled *domainerrors.CancelledError
	if errors.As(err, &cancelled) {
		return NewAPIError("CANCELLED", cancelled.Error(), http.StatusConflict)
	}

	return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}

func respondError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr)
}
