package agents

import (
	"errors"
	"net/http"

	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/workflow"
)

// Domain errors for agent operations.
var (
	ErrNotFound        = errors.New("agent not found")
	ErrRunNotFound     = errors.New("agent run not found")
	ErrDuplicate       = errors.New("agent name already exists")
	ErrConflict        = errors.New("agent already running")
	ErrInvalidProtocol = errors.New("protocol must be legacy or a2a")
	ErrInvalidAgent    = errors.New("agent name and endpoint are required")
)

// MapHTTPStatus maps agent domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidProtocol), errors.Is(err, ErrInvalidAgent), errors.Is(err, handlers.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind names the failure class of err for response bodies.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		return string(workflow.ErrorConflict)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRunNotFound):
		return string(workflow.ErrorNotFound)
	default:
		return ""
	}
}
