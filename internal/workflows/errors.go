package workflows

import (
	"errors"
	"net/http"

	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/workflow"
)

// Domain errors for workflow definition operations.
var (
	ErrNotFound    = workflow.ErrNotFound
	ErrDuplicate   = errors.New("workflow name already exists")
	ErrInvalidName = errors.New("workflow name is required")
)

// MapHTTPStatus maps workflow domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidName) || errors.Is(err, handlers.ErrBadRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
