// Package engine interprets workflow definitions in process. Nodes run level
// by level; nodes within a level run concurrently up to a parallelism bound.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-erp/atlas/internal/metrics"
	"github.com/atlas-erp/atlas/workflow"
)

// ErrAlreadyRunning indicates an execution id is already in flight.
var ErrAlreadyRunning = errors.New("execution already running")

// Runner executes a single node.
type Runner interface {
	Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error)
}

// Engine runs definitions against a Runner. It is safe for concurrent use;
// each execution id has exactly one writer.
type Engine struct {
	runner      Runner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxParallel int
	now         func() time.Time

	runs sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records step and execution metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxParallel bounds per-level concurrency when a definition does not.
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.maxParallel = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(runner Runner, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		runner: runner,
		logger: logger.With("system", "engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type run struct {
	mu        sync.Mutex
	plan      *workflow.Plan
	state     *workflow.ExecutionState
	failFast  bool
	halted    bool
	cancelled bool
	cancel    context.CancelFunc
}

// Run executes def to completion and returns its terminal state. The only
// errors are an invalid definition and a duplicate execution id; node
// failures are reported in the returned state.
//
// Cancelling ctx or calling Cancel stops dispatch of nodes that have not
// started. Nodes already running finish on a context that ignores the
// cancellation.
func (e *Engine) Run(
	ctx context.Context,
	id uuid.UUID,
	def workflow.Definition,
	input map[string]any,
) (*workflow.ExecutionState, error) {
	plan, err := workflow.Compile(&def)
	if err != nil {
		return nil, err
	}

	dispatch, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		plan:     plan,
		state:    workflow.NewExecutionState(id, def.ID, workflow.EngineGraph, input, e.now()),
		failFast: def.Config.FailFast,
		cancel:   cancel,
	}

	if _, loaded := e.runs.LoadOrStore(id, r); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	defer e.runs.Delete(id)

	logger := e.logger.With("execution_id", id, "workflow_id", def.ID)
	logger.InfoContext(ctx, "execution started", "nodes", plan.Size(), "levels", len(plan.Levels))

	exec := context.WithoutCancel(ctx)
	limit := e.parallelism(def.Config)

	for _, level := range plan.Levels {
		g := new(errgroup.Group)
		g.SetLimit(limit)

		for _, nodeID := range level {
			node := plan.Node(nodeID)
			g.Go(func() error {
				e.step(exec, dispatch, r, node, logger)
				return nil
			})
		}

		g.Wait()
	}

	r.mu.Lock()
	plan.Finalize(r.state, r.failFast, r.cancelled, e.now())
	result := r.state.Clone()
	r.mu.Unlock()

	e.metrics.ObserveExecution(string(workflow.EngineGraph), string(result.Status))
	logger.InfoContext(
		ctx, "execution finished",
		"status", result.Status,
		"partial", result.Partial,
	)

	return result, nil
}

// Cancel stops dispatch for an in-flight execution. It reports whether the
// execution was running in this engine.
func (e *Engine) Cancel(id uuid.UUID) bool {
	v, ok := e.runs.Load(id)
	if !ok {
		return false
	}
	v.(*run).cancel()
	return true
}

// Snapshot returns the live state of an in-flight execution.
func (e *Engine) Snapshot(id uuid.UUID) (*workflow.ExecutionState, bool) {
	v, ok := e.runs.Load(id)
	if !ok {
		return nil, false
	}
	r := v.(*run)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), true
}

func (e *Engine) step(exec, dispatch context.Context, r *run, node workflow.Node, logger *slog.Logger) {
	r.mu.Lock()
	now := e.now()
	switch pred, blocked := r.plan.Blocked(node.ID, r.state.Steps); {
	case dispatch.Err() != nil:
		r.plan.Skip(r.state.Steps, node.ID, workflow.StepCancelled, "execution cancelled", now)
		r.cancelled = true
		r.mu.Unlock()
		return
	case r.halted:
		r.plan.Skip(r.state.Steps, node.ID, workflow.StepSkipped, "fail fast: an earlier step failed", now)
		r.mu.Unlock()
		return
	case blocked:
		r.plan.Skip(r.state.Steps, node.ID, workflow.StepSkipped, "upstream step "+pred+" did not complete", now)
		r.mu.Unlock()
		return
	}
	input := r.plan.Input(node.ID, r.state.Input, r.state.Steps)
	r.mu.Unlock()

	started := e.now()
	out, err := e.execute(exec, node, input)
	finished := e.now()

	res := workflow.StepResult{
		NodeID:     node.ID,
		Kind:       node.Kind,
		Status:     workflow.StepCompleted,
		Output:     out,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		res.Status = workflow.StepFailed
		res.Output = nil
		res.Error = err.Error()
		logger.Warn("step failed", "node", node.ID, "kind", node.Kind, "error", err)
	}

	r.mu.Lock()
	r.state.Steps[node.ID] = res
	if err != nil && r.failFast {
		r.halted = true
	}
	r.mu.Unlock()

	e.metrics.ObserveStep(string(node.Kind), string(res.Status), res.Duration())
}

func (e *Engine) execute(ctx context.Context, node workflow.Node, input map[string]any) (out map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step %s panicked: %v", node.ID, p)
		}
	}()
	return e.runner.Execute(ctx, node, input)
}

func (e *Engine) parallelism(cfg workflow.Config) int {
	switch {
	case cfg.MaxParallel > 0:
		return cfg.MaxParallel
	case e.maxParallel > 0:
		return e.maxParallel
	default:
		return max(runtime.NumCPU(), 1)
	}
}
