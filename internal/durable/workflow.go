package durable

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/atlas-erp/atlas/internal/steps"
	wf "github.com/atlas-erp/atlas/workflow"
)

const (
	WorkflowName        = "AtlasGraphWorkflow"
	ActivityName        = "ExecuteStep"
	QueryExecutionState = "execution-state"
)

// ActivityPolicy is the resolved timeout and retry policy for step activities.
type ActivityPolicy struct {
	StartToCloseTimeout time.Duration `json:"start_to_close_timeout"`
	MaximumAttempts     int32         `json:"maximum_attempts"`
	InitialInterval     time.Duration `json:"initial_interval,omitempty"`
	BackoffCoefficient  float64       `json:"backoff_coefficient,omitempty"`
	MaximumInterval     time.Duration `json:"maximum_interval,omitempty"`
}

func (p ActivityPolicy) options() workflow.ActivityOptions {
	attempts := p.MaximumAttempts
	if attempts < 1 {
		attempts = 1
	}
	coefficient := p.BackoffCoefficient
	if coefficient < 1 {
		coefficient = 0
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: p.StartToCloseTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    attempts,
			InitialInterval:    p.InitialInterval,
			BackoffCoefficient: coefficient,
			MaximumInterval:    p.MaximumInterval,
		},
	}
}

// GraphInput is the argument of the graph workflow.
type GraphInput struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Definition  wf.Definition  `json:"definition"`
	Input       map[string]any `json:"input"`
	Policy      ActivityPolicy `json:"policy"`
}

// StepInput is the argument of the step activity.
type StepInput struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Node        wf.Node        `json:"node"`
	Input       map[string]any `json:"input"`
}

// GraphWorkflow runs a definition as a Temporal workflow. Every node becomes
// one activity; a level is scheduled once all earlier levels resolved. The
// live state is served by the execution-state query.
//
// Cancellation stops scheduling. Activities already scheduled run on a
// disconnected context and their results are still recorded.
func GraphWorkflow(ctx workflow.Context, in GraphInput) (*wf.ExecutionState, error) {
	plan, err := wf.Compile(&in.Definition)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "DefinitionInvalid", nil)
	}

	state := wf.NewExecutionState(in.ExecutionID, in.Definition.ID, wf.EngineDurable, in.Input, workflow.Now(ctx))
	state.ExternalRunID = workflow.GetInfo(ctx).WorkflowExecution.RunID

	if err := workflow.SetQueryHandler(ctx, QueryExecutionState, func() (*wf.ExecutionState, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("execution started", "execution_id", in.ExecutionID, "nodes", plan.Size())

	detached, _ := workflow.NewDisconnectedContext(ctx)
	actx := workflow.WithActivityOptions(detached, in.Policy.options())

	failFast := in.Definition.Config.FailFast
	halted, cancelled := false, false

	for _, level := range plan.Levels {
		for _, batch := range batches(level, in.Definition.Config.MaxParallel) {
			type pending struct {
				node    wf.Node
				started time.Time
				future  workflow.Future
			}
			var scheduled []pending

			for _, id := range batch {
				node := plan.Node(id)
				now := workflow.Now(ctx)

				pred, blocked := plan.Blocked(id, state.Steps)
				switch {
				case ctx.Err() != nil:
					plan.Skip(state.Steps, id, wf.StepCancelled, "execution cancelled", now)
					cancelled = true
					continue
				case halted:
					plan.Skip(state.Steps, id, wf.StepSkipped, "fail fast: an earlier step failed", now)
					continue
				case blocked:
					plan.Skip(state.Steps, id, wf.StepSkipped, "upstream step "+pred+" did not complete", now)
					continue
				}

				f := workflow.ExecuteActivity(actx, ActivityName, StepInput{
					ExecutionID: in.ExecutionID,
					Node:        node,
					Input:       plan.Input(id, state.Input, state.Steps),
				})
				scheduled = append(scheduled, pending{node: node, started: now, future: f})
			}

			for _, p := range scheduled {
				var out map[string]any
				err := p.future.Get(actx, &out)

				res := wf.StepResult{
					NodeID:     p.node.ID,
					Kind:       p.node.Kind,
					Status:     wf.StepCompleted,
					Output:     out,
					StartedAt:  p.started,
					FinishedAt: workflow.Now(ctx),
				}
				if out == nil {
					res.Output = map[string]any{}
				}
				if err != nil {
					res.Status = wf.StepFailed
					res.Output = nil
					res.Error = activityMessage(err)
					logger.Warn("step failed", "node", p.node.ID, "error", res.Error)
					if failFast {
						halted = true
					}
				}
				state.Steps[p.node.ID] = res
			}
		}
	}

	plan.Finalize(state, failFast, cancelled, workflow.Now(ctx))
	logger.Info("execution finished", "status", state.Status, "partial", state.Partial)

	if cancelled {
		return nil, temporal.NewCanceledError()
	}
	return state, nil
}

func batches(level []string, size int) [][]string {
	if size <= 0 || size >= len(level) {
		return [][]string{level}
	}
	var out [][]string
	for start := 0; start < len(level); start += size {
		out = append(out, level[start:min(start+size, len(level))])
	}
	return out
}

// activityMessage extracts the step's own error text from the activity error
// wrapper Temporal puts around it.
func activityMessage(err error) string {
	var app *temporal.ApplicationError
	if errors.As(err, &app) {
		return app.Error()
	}
	var timeout *temporal.TimeoutError
	if errors.As(err, &timeout) {
		return "step timed out"
	}
	return err.Error()
}

// Activities hosts the step activity.
type Activities struct {
	runner Runner
}

// Runner executes a single node.
type Runner interface {
	Execute(ctx context.Context, node wf.Node, input map[string]any) (map[string]any, error)
}

func NewActivities(runner Runner) *Activities {
	return &Activities{runner: runner}
}

// ExecuteStep runs one node. Configuration errors are not retried.
func (a *Activities) ExecuteStep(ctx context.Context, in StepInput) (map[string]any, error) {
	activity.GetLogger(ctx).Debug("executing step", "node", in.Node.ID, "kind", in.Node.Kind)

	out, err := a.runner.Execute(ctx, in.Node, in.Input)
	if err != nil {
		if errors.Is(err, steps.ErrUnknownKind) || errors.Is(err, steps.ErrInvalidConfig) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidStep", nil)
		}
		return nil, err
	}
	return out, nil
}

// Registrar is satisfied by Temporal workers and test environments.
type Registrar interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// Register binds the graph workflow and step activity under their names.
func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(GraphWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.ExecuteStep, activity.RegisterOptions{Name: ActivityName})
}
