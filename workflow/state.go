package workflow

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle position of an execution.
type Status string

// Execution statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the outcome of a single node.
type StepStatus string

// Step outcomes.
const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// StepResult records one node's outcome. FinishedAt is never before StartedAt.
type StepResult struct {
	NodeID     string         `json:"node_id"`
	Kind       Kind           `json:"kind"`
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Duration returns the wall time the step took.
func (r StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExecutionState is the single run-state contract shared by every backend.
// Engine tells which backend owns it; once Status is terminal the state is
// no longer mutated.
type ExecutionState struct {
	ID              uuid.UUID             `json:"id"`
	WorkflowID      uuid.UUID             `json:"workflow_id"`
	Status          Status                `json:"status"`
	Engine          Engine                `json:"engine"`
	Input           map[string]any        `json:"input"`
	Steps           map[string]StepResult `json:"steps"`
	Output          map[string]any        `json:"output,omitempty"`
	Error           *ErrorInfo            `json:"error,omitempty"`
	Partial         bool                  `json:"partial"`
	FailedBranches  []string              `json:"failed_branches,omitempty"`
	ExternalRunID   string                `json:"external_run_id,omitempty"`
	CancelRequested bool                  `json:"cancel_requested"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
}

// NewExecutionState returns a running state for a fresh execution.
func NewExecutionState(id, workflowID uuid.UUID, engine Engine, input map[string]any, now time.Time) *ExecutionState {
	if input == nil {
		input = map[string]any{}
	}
	return &ExecutionState{
		ID:         id,
		WorkflowID: workflowID,
		Status:     StatusRunning,
		Engine:     engine,
		Input:      input,
		Steps:      make(map[string]StepResult),
		StartedAt:  now,
	}
}

// Clone returns a copy whose step map and branch list can be mutated
// independently. Step outputs are shared and treated as immutable.
func (s *ExecutionState) Clone() *ExecutionState {
	c := *s
	c.Steps = maps.Clone(s.Steps)
	if c.Steps == nil {
		c.Steps = make(map[string]StepResult)
	}
	c.FailedBranches = slices.Clone(s.FailedBranches)
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Unavailable marks the state failed because the orchestrator could not be
// reached. A zero at leaves FinishedAt untouched.
func (s *ExecutionState) Unavailable(err error, at time.Time) {
	s.Status = StatusFailed
	s.Error = &ErrorInfo{
		Kind:      ErrorOrchestratorUnavailable,
		Message:   err.Error(),
		Retryable: true,
	}
	if !at.IsZero() {
		s.FinishedAt = &at
	}
}
