package executions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/internal/metrics"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/workflow"
)

type dispatcher struct {
	store       Store
	definitions Definitions
	backends    Backends
	archive     Archiver
	metrics     *metrics.Metrics
	logger      *slog.Logger
	pagination  pagination.Config
	now         func() time.Time
}

// New creates the execution dispatcher. archive and m may be nil.
func New(
	store Store,
	definitions Definitions,
	backends Backends,
	archive Archiver,
	m *metrics.Metrics,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &dispatcher{
		store:       store,
		definitions: definitions,
		backends:    backends,
		archive:     archive,
		metrics:     m,
		logger:      logger.With("system", "executions"),
		pagination:  pagination,
		now:         time.Now,
	}
}

func (d *dispatcher) Handler() *Handler {
	return NewHandler(d, d.logger, d.pagination)
}

func (d *dispatcher) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[workflow.ExecutionState], error) {
	return d.store.List(ctx, page, filters)
}

// Execute validates the definition, records the run, and hands it to the
// chosen backend. Graph runs return their terminal state; durable runs return
// once the orchestrator accepted them.
func (d *dispatcher) Execute(ctx context.Context, workflowID uuid.UUID, cmd ExecuteCommand) (*workflow.ExecutionState, error) {
	if cmd.Backend != nil && !cmd.Backend.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, *cmd.Backend)
	}

	def, err := d.definitions.Find(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := workflow.Validate(def); err != nil {
		return nil, err
	}

	backend, err := d.backend(cmd.Backend, def.Config.DefaultBackend)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	state := workflow.NewExecutionState(id, def.ID, backend, cmd.Input, d.now())
	if err := d.store.Insert(ctx, state); err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}

	logger := d.logger.With("execution_id", id, "workflow_id", def.ID, "engine", backend)
	logger.InfoContext(ctx, "execution dispatched")

	switch backend {
	case workflow.EngineDurable:
		state, err = d.backends.Durable.Submit(ctx, id, *def, state.Input)
	default:
		state, err = d.backends.Graph.Run(ctx, id, *def, state.Input)
	}
	if err != nil {
		state = d.failed(id, def.ID, backend, cmd.Input, err)
	}

	// The run outlives a disconnected caller; its record must still land.
	persist := context.WithoutCancel(ctx)
	if err := d.store.Save(persist, state); err != nil {
		logger.ErrorContext(ctx, "save execution failed", "error", err)
	}
	if state.Status.Terminal() {
		d.finish(persist, state, backend != workflow.EngineGraph)
	}

	return state, nil
}

// Find returns the record of a run. In-flight graph runs answer from the
// engine; open durable runs are polled and changes are persisted. A poll that
// cannot reach the orchestrator is returned but not stored.
func (d *dispatcher) Find(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error) {
	rec, err := d.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	switch rec.Engine {
	case workflow.EngineGraph:
		if live, ok := d.backends.Graph.Snapshot(id); ok {
			live.CancelRequested = rec.CancelRequested
			return live, nil
		}
		return rec, nil
	case workflow.EngineDurable:
		if d.backends.Durable == nil {
			return rec, nil
		}
		return d.poll(ctx, rec)
	default:
		return rec, nil
	}
}

// Cancel stops a running execution. Graph runs stop dispatch immediately;
// durable runs are asked to stop and turn cancelled on a later poll.
func (d *dispatcher) Cancel(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error) {
	rec, err := d.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunning, id, rec.Status)
	}

	switch rec.Engine {
	case workflow.EngineDurable:
		if d.backends.Durable == nil {
			return nil, fmt.Errorf("%w: durable backend not configured", ErrInvalidBackend)
		}
		if err := d.backends.Durable.Cancel(ctx, id); err != nil {
			return nil, err
		}
	default:
		if !d.backends.Graph.Cancel(id) {
			return nil, fmt.Errorf("%w: %s is not in flight in this process", ErrNotRunning, id)
		}
	}

	if err := d.store.MarkCancelRequested(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
		return nil, err
	}

	d.logger.InfoContext(ctx, "execution cancel requested", "execution_id", id, "engine", rec.Engine)

	rec.CancelRequested = true
	return rec, nil
}

func (d *dispatcher) poll(ctx context.Context, rec *workflow.ExecutionState) (*workflow.ExecutionState, error) {
	polled, err := d.backends.Durable.Poll(ctx, rec)
	if err != nil {
		return nil, err
	}

	if polled.Error != nil && polled.Error.Kind == workflow.ErrorOrchestratorUnavailable {
		d.logger.WarnContext(ctx, "durable poll failed", "execution_id", rec.ID, "error", polled.Error.Message)
		return polled, nil
	}

	if same(rec, polled) {
		return rec, nil
	}

	if err := d.store.Save(ctx, polled); err != nil {
		if errors.Is(err, ErrNotRunning) {
			return d.store.Find(ctx, rec.ID)
		}
		return nil, fmt.Errorf("save execution: %w", err)
	}
	if polled.Status.Terminal() {
		d.finish(ctx, polled, true)
	}
	return polled, nil
}

func (d *dispatcher) finish(ctx context.Context, s *workflow.ExecutionState, observe bool) {
	if observe {
		d.metrics.ObserveExecution(string(s.Engine), string(s.Status))
	}
	if d.archive == nil {
		return
	}
	if err := d.archive.Archive(ctx, s); err != nil {
		d.logger.WarnContext(ctx, "archive execution failed", "execution_id", s.ID, "error", err)
	}
}

func (d *dispatcher) backend(flag *workflow.Engine, fallback workflow.Engine) (workflow.Engine, error) {
	backend := workflow.EngineGraph
	switch {
	case flag != nil:
		backend = *flag
	case fallback != "":
		backend = fallback
	}

	if !backend.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBackend, backend)
	}
	if backend == workflow.EngineDurable && d.backends.Durable == nil {
		return "", fmt.Errorf("%w: durable backend not configured", ErrInvalidBackend)
	}
	return backend, nil
}

func (d *dispatcher) failed(id, workflowID uuid.UUID, backend workflow.Engine, input map[string]any, err error) *workflow.ExecutionState {
	now := d.now()
	s := workflow.NewExecutionState(id, workflowID, backend, input, now)
	s.Status = workflow.StatusFailed
	s.Error = &workflow.ErrorInfo{Kind: workflow.ErrorStepFailure, Message: err.Error()}
	s.FinishedAt = &now
	return s
}

func same(a, b *workflow.ExecutionState) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}
