// Package workflow defines the shared contracts of workflow execution:
// definitions, graph planning, run state, and the aggregation rules every
// execution backend applies.
package workflow

import "errors"

// Sentinel errors for definition and run handling.
var (
	ErrDefinitionInvalid = errors.New("workflow definition invalid")
	ErrNotFound          = errors.New("workflow not found")
)

// ErrorKind classifies a failure recorded on an execution.
type ErrorKind string

// Failure kinds surfaced on execution state.
const (
	ErrorDefinitionInvalid       ErrorKind = "DefinitionInvalid"
	ErrorStepFailure             ErrorKind = "StepFailure"
	ErrorOrchestratorUnavailable ErrorKind = "OrchestratorUnavailable"
	ErrorConflict                ErrorKind = "Conflict"
	ErrorNotFound                ErrorKind = "NotFound"
)

// ErrorInfo describes why an execution failed.
type ErrorInfo struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Retryable bool      `json:"retryable"`
}

func (e *ErrorInfo) Error() string {
	if e.NodeID != "" {
		return string(e.Kind) + ": " + e.NodeID + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}
