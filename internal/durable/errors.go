package durable

import (
	"errors"
	"net/http"

	"go.temporal.io/api/serviceerror"
)

var (
	ErrUnavailable = errors.New("orchestrator unavailable")
	ErrNotFound    = errors.New("durable execution not found")
)

// MapHTTPStatus maps a durable adapter error to an HTTP status code.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// transient reports whether a Temporal call failed for reasons that may clear
// on their own. Errors that are not service errors come from the transport.
func transient(err error) bool {
	var (
		unavailable *serviceerror.Unavailable
		deadline    *serviceerror.DeadlineExceeded
		exhausted   *serviceerror.ResourceExhausted
		svc         serviceerror.ServiceError
	)
	switch {
	case errors.As(err, &unavailable), errors.As(err, &deadline), errors.As(err, &exhausted):
		return true
	case errors.As(err, &svc):
		return false
	default:
		return true
	}
}

func notFound(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}

func alreadyStarted(err error) bool {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &started)
}
