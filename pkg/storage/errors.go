package storage

import (
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrEmptyKey   = errors.New("empty blob key")
	ErrInvalidKey = errors.New("blob key must be relative without dot segments")
	ErrMaxResults = errors.New("max_results must be a positive integer")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrInvalidKey), errors.Is(err, ErrMaxResults):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	segments := strings.Split(key, "/")
	if slices.Contains(segments, "..") || slices.Contains(segments, ".") || slices.Contains(segments, "") {
		return ErrInvalidKey
	}
	return nil
}
