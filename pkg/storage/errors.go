package storage

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrEmptyKey   = errors.New("empty storage key")
	ErrInvalidKey = errors.New("storage key contains a relative path segment")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
