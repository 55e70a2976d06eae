package workflows

import (
	"errors"
	"net/http"
)

// Domain errors for workflow operations.
var (
	ErrNotFound          = errors.New("workflow not found")
	ErrDuplicate         = errors.New("workflow already exists")
	ErrTerminal          = errors.New("workflow is in a terminal state")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrInvalidCommand    = errors.New("invalid workflow command")
	ErrStepNotFound      = errors.New("step not found")
	ErrStepNotReady      = errors.New("step not ready")
)

// MapHTTPStatus maps workflow domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStepNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrTerminal) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrStepNotReady) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidCommand) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
