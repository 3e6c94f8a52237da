package executions

import (
	"errors"
	"net/http"

	"github.com/atlas-erp/atlas/internal/durable"
	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/workflow"
)

// Domain errors for execution operations.
var (
	ErrNotFound       = errors.New("execution not found")
	ErrDuplicate      = errors.New("execution already exists")
	ErrInvalidBackend = errors.New("invalid execution backend")
	ErrNotRunning     = errors.New("execution is not running")
)

// MapHTTPStatus maps execution domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, workflow.ErrNotFound), errors.Is(err, durable.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidBackend), errors.Is(err, handlers.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrDefinitionInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, durable.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind names the failure class of err for response bodies.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, workflow.ErrDefinitionInvalid):
		return string(workflow.ErrorDefinitionInvalid)
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrDuplicate):
		return string(workflow.ErrorConflict)
	case errors.Is(err, durable.ErrUnavailable):
		return string(workflow.ErrorOrchestratorUnavailable)
	case MapHTTPStatus(err) == http.StatusNotFound:
		return string(workflow.ErrorNotFound)
	default:
		return ""
	}
}
