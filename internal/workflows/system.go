package workflows

import (
	"context"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/internal/executions"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/workflow"
)

// Executor starts runs of stored definitions.
type Executor interface {
	Execute(ctx context.Context, workflowID uuid.UUID, cmd executions.ExecuteCommand) (*workflow.ExecutionState, error)
}

// System defines the public contract for workflow definition operations.
type System interface {
	Handler(exec Executor) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[workflow.Definition], error)

	Find(ctx context.Context, id uuid.UUID) (*workflow.Definition, error)
	Create(ctx context.Context, cmd CreateCommand) (*workflow.Definition, error)
	Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*workflow.Definition, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Validate(ctx context.Context, id uuid.UUID) (*Validation, error)
}
