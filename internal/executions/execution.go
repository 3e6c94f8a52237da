// Package executions is the single entry point for running workflows. It
// picks a backend, keeps the run record, and answers status and cancel
// requests for runs on either backend.
package executions

import (
	"context"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/workflow"
)

// ExecuteCommand carries the input of a run and an optional backend choice.
type ExecuteCommand struct {
	Input   map[string]any   `json:"input"`
	Backend *workflow.Engine `json:"backend,omitempty"`
}

// Definitions resolves stored workflow definitions.
type Definitions interface {
	Find(ctx context.Context, id uuid.UUID) (*workflow.Definition, error)
}

// GraphBackend runs executions in process.
type GraphBackend interface {
	Run(ctx context.Context, id uuid.UUID, def workflow.Definition, input map[string]any) (*workflow.ExecutionState, error)
	Cancel(id uuid.UUID) bool
	Snapshot(id uuid.UUID) (*workflow.ExecutionState, bool)
}

// DurableBackend hands executions to an external orchestrator.
type DurableBackend interface {
	Submit(ctx context.Context, id uuid.UUID, def workflow.Definition, input map[string]any) (*workflow.ExecutionState, error)
	Poll(ctx context.Context, last *workflow.ExecutionState) (*workflow.ExecutionState, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Backends groups the execution backends. Durable may be nil when the
// orchestrator is not configured.
type Backends struct {
	Graph   GraphBackend
	Durable DurableBackend
}

// Store persists execution records. Save never overwrites a terminal record.
type Store interface {
	Insert(ctx context.Context, s *workflow.ExecutionState) error
	Save(ctx context.Context, s *workflow.ExecutionState) error
	MarkCancelRequested(ctx context.Context, id uuid.UUID) error
	Find(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[workflow.ExecutionState], error)
}

// Archiver keeps a copy of terminal execution states.
type Archiver interface {
	Archive(ctx context.Context, s *workflow.ExecutionState) error
}

// System defines the public contract for execution operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[workflow.ExecutionState], error)

	Find(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error)
	Execute(ctx context.Context, workflowID uuid.UUID, cmd ExecuteCommand) (*workflow.ExecutionState, error)
	Cancel(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error)
}
