// Package steps implements the behavior behind each workflow step kind.
// Both execution backends dispatch nodes through a Registry.
package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-erp/atlas/workflow"
)

// Sentinel errors for step execution.
var (
	ErrUnknownKind   = errors.New("no executor for step kind")
	ErrInvalidConfig = errors.New("invalid step config")
	ErrInvalidInput  = errors.New("invalid step input")
	ErrActionFailed  = errors.New("action failed")
	ErrQueryFailed   = errors.New("knowledge query failed")
)

// Executor runs a single node against its merged input.
type Executor interface {
	Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	return f(ctx, node, input)
}

// Registry routes nodes to the executor registered for their kind.
type Registry struct {
	executors map[workflow.Kind]Executor
}

// NewRegistry wires the built-in kinds against the given collaborators.
func NewRegistry(actions ActionInvoker, knowledge KnowledgeGraph) *Registry {
	r := &Registry{executors: make(map[workflow.Kind]Executor)}
	r.Register(workflow.KindTrigger, Trigger{})
	r.Register(workflow.KindAction, NewAction(actions))
	r.Register(workflow.KindTransformation, Transformation{})
	r.Register(workflow.KindKnowledgeQuery, NewKnowledgeQuery(knowledge))
	return r
}

// Register replaces the executor for kind.
func (r *Registry) Register(kind workflow.Kind, exec Executor) {
	r.executors[kind] = exec
}

// Execute runs node with the executor registered for its kind.
func (r *Registry) Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	exec, ok := r.executors[node.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, node.Kind)
	}

	out, err := exec.Execute(ctx, node, input)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
