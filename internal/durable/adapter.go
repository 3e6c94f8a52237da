// Package durable hands workflow executions to Temporal and reads their state
// back. The workflow id of every Temporal execution equals the execution id.
package durable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	tlog "go.temporal.io/sdk/log"
	"google.golang.org/protobuf/types/known/timestamppb"

	wf "github.com/atlas-erp/atlas/workflow"
)

// Client is the subset of the Temporal client the adapter uses.
type Client interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...any) (converter.EncodedValue, error)
}

// Dial connects to Temporal with the service logger.
func Dial(cfg *Config, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logger.With("system", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return c, nil
}

// Adapter submits, polls, and cancels durable executions. The connection is
// dialed on first use and redialed after a failed dial.
type Adapter struct {
	cfg    *Config
	logger *slog.Logger
	dial   func() (Client, error)
	now    func() time.Time

	mu     sync.Mutex
	client Client
	closer func()
}

// New creates an adapter that dials Temporal lazily.
func New(cfg *Config, logger *slog.Logger) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: logger.With("system", "durable"),
		now:    time.Now,
	}
	a.dial = func() (Client, error) {
		c, err := Dial(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.closer = c.Close
		return c, nil
	}
	return a
}

// NewWithClient creates an adapter over an existing client.
func NewWithClient(cfg *Config, c Client, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		logger: logger.With("system", "durable"),
		dial:   func() (Client, error) { return c, nil },
		now:    time.Now,
	}
}

// Close releases a dialed connection.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		a.closer()
		a.closer = nil
	}
	a.client = nil
}

func (a *Adapter) connect() (Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	c, err := a.dial()
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// Ping reports whether Temporal can be reached, dialing if needed.
func (a *Adapter) Ping(context.Context) error {
	_, err := a.connect()
	return err
}

// Submit starts the graph workflow and returns once Temporal accepted it.
// An invalid definition is returned as an error; failing to reach Temporal
// yields a failed state with an OrchestratorUnavailable error.
func (a *Adapter) Submit(ctx context.Context, id uuid.UUID, def wf.Definition, input map[string]any) (*wf.ExecutionState, error) {
	if _, err := wf.Compile(&def); err != nil {
		return nil, err
	}
	policy, err := a.policy(def.Config.Retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wf.ErrDefinitionInvalid, err)
	}

	state := wf.NewExecutionState(id, def.ID, wf.EngineDurable, input, a.now())
	logger := a.logger.With("execution_id", id, "workflow_id", def.ID)

	c, err := a.connect()
	if err != nil {
		logger.WarnContext(ctx, "orchestrator unreachable", "error", err)
		state.Unavailable(err, a.now())
		return state, nil
	}

	opts := client.StartWorkflowOptions{
		ID:                    id.String(),
		TaskQueue:             a.cfg.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	in := GraphInput{
		ExecutionID: id,
		Definition:  def,
		Input:       state.Input,
		Policy:      policy,
	}

	err = a.withRetries(ctx, func(ctx context.Context) error {
		run, err := c.ExecuteWorkflow(ctx, opts, WorkflowName, in)
		if err != nil {
			if alreadyStarted(err) {
				return nil
			}
			return err
		}
		state.ExternalRunID = run.GetRunID()
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "workflow start failed", "error", err)
		state.Unavailable(fmt.Errorf("%w: %w", ErrUnavailable, err), a.now())
		state.Error.Retryable = transient(err)
		return state, nil
	}

	logger.InfoContext(ctx, "workflow submitted", "run_id", state.ExternalRunID)
	return state, nil
}

// Poll reads the current state of a durable execution. last is the most
// recent stored state; it seeds the result when Temporal holds no snapshot.
// Nothing is stamped from the local clock, so repeated polls of an unchanged
// execution are identical.
func (a *Adapter) Poll(ctx context.Context, last *wf.ExecutionState) (*wf.ExecutionState, error) {
	c, err := a.connect()
	if err != nil {
		s := last.Clone()
		s.Unavailable(err, time.Time{})
		return s, nil
	}

	id := last.ID.String()
	desc, err := c.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s := last.Clone()
		s.Unavailable(fmt.Errorf("%w: %w", ErrUnavailable, err), time.Time{})
		s.Error.Retryable = transient(err)
		return s, nil
	}

	info := desc.GetWorkflowExecutionInfo()
	runID := info.GetExecution().GetRunId()

	var s *wf.ExecutionState
	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result wf.ExecutionState
		if err := c.GetWorkflow(ctx, id, runID).Get(ctx, &result); err != nil {
			s = last.Clone()
			s.Unavailable(fmt.Errorf("%w: %w", ErrUnavailable, err), time.Time{})
			return s, nil
		}
		s = &result
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		s = a.snapshot(ctx, c, id, runID, last)
		s.Status = wf.StatusCancelled
		s.Output = nil
		s.Error = nil
		stampClose(s, info.GetCloseTime())
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		s = a.snapshot(ctx, c, id, runID, last)
		if s.Status != wf.StatusFailed || s.Error == nil {
			s.Status = wf.StatusFailed
			s.Output = nil
			s.Error = &wf.ErrorInfo{
				Kind:    wf.ErrorStepFailure,
				Message: "durable execution " + statusName(info.GetStatus()),
			}
		}
		stampClose(s, info.GetCloseTime())
	default:
		q, err := query(ctx, c, id, runID)
		if err != nil {
			s = last.Clone()
			s.Unavailable(fmt.Errorf("%w: %w", ErrUnavailable, err), time.Time{})
			s.Error.Retryable = transient(err)
			return s, nil
		}
		s = q
	}

	s.ID = last.ID
	s.WorkflowID = last.WorkflowID
	s.Engine = wf.EngineDurable
	s.ExternalRunID = runID
	s.CancelRequested = last.CancelRequested
	return s, nil
}

// Cancel requests cancellation of a durable execution. The state only turns
// cancelled once a later Poll observes it.
func (a *Adapter) Cancel(ctx context.Context, id uuid.UUID) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	if err := c.CancelWorkflow(ctx, id.String(), ""); err != nil {
		if notFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	a.logger.InfoContext(ctx, "cancellation requested", "execution_id", id)
	return nil
}

func (a *Adapter) snapshot(ctx context.Context, c Client, id, runID string, last *wf.ExecutionState) *wf.ExecutionState {
	s, err := query(ctx, c, id, runID)
	if err != nil {
		a.logger.DebugContext(ctx, "closed execution not queryable", "execution_id", id, "error", err)
		return last.Clone()
	}
	return s
}

func query(ctx context.Context, c Client, id, runID string) (*wf.ExecutionState, error) {
	v, err := c.QueryWorkflow(ctx, id, runID, QueryExecutionState)
	if err != nil {
		return nil, err
	}
	var s wf.ExecutionState
	if err := v.Get(&s); err != nil {
		return nil, err
	}
	if s.Steps == nil {
		s.Steps = make(map[string]wf.StepResult)
	}
	return &s, nil
}

func (a *Adapter) policy(override *wf.RetryConfig) (p ActivityPolicy, err error) {
	p = ActivityPolicy{
		StartToCloseTimeout: a.cfg.ActivityTimeoutDuration(),
		MaximumAttempts:     a.cfg.MaximumAttempts,
	}
	if override == nil {
		return p, nil
	}
	if override.MaximumAttempts > 0 {
		p.MaximumAttempts = override.MaximumAttempts
	}
	p.BackoffCoefficient = override.BackoffCoefficient
	p.InitialInterval, p.MaximumInterval, err = override.Intervals()
	return p, err
}

func (a *Adapter) withRetries(ctx context.Context, fn func(context.Context) error) error {
	if a.cfg.LocalRetries <= 0 {
		return fn(ctx)
	}
	backoff := retry.WithMaxRetries(
		uint64(a.cfg.LocalRetries),
		retry.NewExponential(a.cfg.RetryBackoffDuration()),
	)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if transient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

func stampClose(s *wf.ExecutionState, closed *timestamppb.Timestamp) {
	if closed == nil {
		return
	}
	t := closed.AsTime()
	s.FinishedAt = &t
}

func statusName(st enumspb.WorkflowExecutionStatus) string {
	switch st {
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return "terminated"
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return "timed out"
	default:
		return "failed"
	}
}
