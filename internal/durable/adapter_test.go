package durable_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/atlas-erp/atlas/internal/durable"
	wf "github.com/atlas-erp/atlas/workflow"
)

type fakeRun struct {
	id, runID string
	result    any
	err       error
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return r.runID }

func (r fakeRun) Get(_ context.Context, valuePtr any) error {
	if r.err != nil {
		return r.err
	}
	return roundTrip(r.result, valuePtr)
}

func (r fakeRun) GetWithOptions(ctx context.Context, valuePtr any, _ client.WorkflowRunGetOptions) error {
	return r.Get(ctx, valuePtr)
}

type fakeValue struct{ v any }

func (f fakeValue) HasValue() bool         { return f.v != nil }
func (f fakeValue) Get(valuePtr any) error { return roundTrip(f.v, valuePtr) }

func roundTrip(v, ptr any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ptr)
}

type fakeClient struct {
	execute  func(opts client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
	describe func(id string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	query    func(id, runID, queryType string) (converter.EncodedValue, error)
	result   func(id, runID string) client.WorkflowRun
	cancel   func(id string) error
}

func (f *fakeClient) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error) {
	return f.execute(opts, workflow, args...)
}

func (f *fakeClient) GetWorkflow(_ context.Context, id, runID string) client.WorkflowRun {
	return f.result(id, runID)
}

func (f *fakeClient) CancelWorkflow(_ context.Context, id, _ string) error {
	return f.cancel(id)
}

func (f *fakeClient) DescribeWorkflowExecution(_ context.Context, id, _ string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	return f.describe(id)
}

func (f *fakeClient) QueryWorkflow(_ context.Context, id, runID, queryType string, _ ...any) (converter.EncodedValue, error) {
	return f.query(id, runID, queryType)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *durable.Config {
	t.Helper()
	cfg := &durable.Config{TaskQueue: "orders", RetryBackoff: "1ms"}
	require.NoError(t, cfg.Finalize(nil))
	return cfg
}

func described(id string, status enumspb.WorkflowExecutionStatus, closed *time.Time) *workflowservice.DescribeWorkflowExecutionResponse {
	info := &workflowpb.WorkflowExecutionInfo{
		Execution: &commonpb.WorkflowExecution{WorkflowId: id, RunId: "run-1"},
		Status:    status,
	}
	if closed != nil {
		info.CloseTime = timestamppb.New(*closed)
	}
	return &workflowservice.DescribeWorkflowExecutionResponse{WorkflowExecutionInfo: info}
}

func running(def wf.Definition) *wf.ExecutionState {
	return wf.NewExecutionState(uuid.New(), def.ID, wf.EngineDurable, map[string]any{"order": "o-1"}, time.Unix(1700000000, 0).UTC())
}

func TestSubmitStartsWorkflow(t *testing.T) {
	var (
		gotOpts client.StartWorkflowOptions
		gotName any
		gotIn   durable.GraphInput
	)
	fc := &fakeClient{
		execute: func(opts client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error) {
			gotOpts, gotName = opts, workflow
			gotIn = args[0].(durable.GraphInput)
			return fakeRun{id: opts.ID, runID: "run-1"}, nil
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	def := definition([]string{"start", "next"}, [2]string{"start", "next"})
	def.Config.Retry = &wf.RetryConfig{MaximumAttempts: 3, InitialInterval: "2s"}
	id := uuid.New()

	state, err := adapter.Submit(context.Background(), id, def, map[string]any{"order": "o-1"})
	require.NoError(t, err)

	assert.Equal(t, wf.StatusRunning, state.Status)
	assert.Equal(t, wf.EngineDurable, state.Engine)
	assert.Equal(t, "run-1", state.ExternalRunID)
	assert.Equal(t, id.String(), gotOpts.ID)
	assert.Equal(t, "orders", gotOpts.TaskQueue)
	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE, gotOpts.WorkflowIDReusePolicy)
	assert.Equal(t, durable.WorkflowName, gotName)
	assert.Equal(t, id, gotIn.ExecutionID)
	assert.Equal(t, int32(3), gotIn.Policy.MaximumAttempts)
	assert.Equal(t, 2*time.Second, gotIn.Policy.InitialInterval)
	assert.Equal(t, 5*time.Minute, gotIn.Policy.StartToCloseTimeout)
}

func TestSubmitDefaultsToSingleAttempt(t *testing.T) {
	var gotIn durable.GraphInput
	fc := &fakeClient{
		execute: func(opts client.StartWorkflowOptions, _ any, args ...any) (client.WorkflowRun, error) {
			gotIn = args[0].(durable.GraphInput)
			return fakeRun{id: opts.ID, runID: "run-1"}, nil
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	_, err := adapter.Submit(context.Background(), uuid.New(), definition([]string{"start"}), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), gotIn.Policy.MaximumAttempts)
}

func TestSubmitTreatsDuplicateStartAsAccepted(t *testing.T) {
	fc := &fakeClient{
		execute: func(client.StartWorkflowOptions, any, ...any) (client.WorkflowRun, error) {
			return nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-0")
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	state, err := adapter.Submit(context.Background(), uuid.New(), definition([]string{"start"}), nil)
	require.NoError(t, err)
	assert.Equal(t, wf.StatusRunning, state.Status)
	assert.Nil(t, state.Error)
}

func TestSubmitReportsUnavailableOrchestrator(t *testing.T) {
	fc := &fakeClient{
		execute: func(client.StartWorkflowOptions, any, ...any) (client.WorkflowRun, error) {
			return nil, serviceerror.NewUnavailable("connection refused")
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	state, err := adapter.Submit(context.Background(), uuid.New(), definition([]string{"start"}), nil)
	require.NoError(t, err)

	assert.Equal(t, wf.StatusFailed, state.Status)
	require.NotNil(t, state.Error)
	assert.Equal(t, wf.ErrorOrchestratorUnavailable, state.Error.Kind)
	assert.True(t, state.Error.Retryable)
	assert.NotNil(t, state.FinishedAt)
	assert.Contains(t, state.Error.Message, "connection refused")
}

func TestSubmitRetriesLocallyWhenConfigured(t *testing.T) {
	calls := 0
	fc := &fakeClient{
		execute: func(opts client.StartWorkflowOptions, _ any, _ ...any) (client.WorkflowRun, error) {
			calls++
			if calls == 1 {
				return nil, serviceerror.NewUnavailable("blip")
			}
			return fakeRun{id: opts.ID, runID: "run-2"}, nil
		},
	}
	cfg := testConfig(t)
	cfg.LocalRetries = 2
	adapter := durable.NewWithClient(cfg, fc, discard())

	state, err := adapter.Submit(context.Background(), uuid.New(), definition([]string{"start"}), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, wf.StatusRunning, state.Status)
	assert.Equal(t, "run-2", state.ExternalRunID)
}

func TestSubmitDoesNotRetryRejections(t *testing.T) {
	calls := 0
	fc := &fakeClient{
		execute: func(client.StartWorkflowOptions, any, ...any) (client.WorkflowRun, error) {
			calls++
			return nil, serviceerror.NewInvalidArgument("bad task queue")
		},
	}
	cfg := testConfig(t)
	cfg.LocalRetries = 3
	adapter := durable.NewWithClient(cfg, fc, discard())

	state, err := adapter.Submit(context.Background(), uuid.New(), definition([]string{"start"}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, wf.StatusFailed, state.Status)
	assert.False(t, state.Error.Retryable)
}

func TestSubmitRejectsInvalidDefinition(t *testing.T) {
	adapter := durable.NewWithClient(testConfig(t), &fakeClient{}, discard())

	_, err := adapter.Submit(context.Background(), uuid.New(), wf.Definition{ID: uuid.New()}, nil)
	assert.ErrorIs(t, err, wf.ErrDefinitionInvalid)
}

func TestSubmitRejectsBadRetryInterval(t *testing.T) {
	calls := 0
	fc := &fakeClient{
		execute: func(client.StartWorkflowOptions, any, ...any) (client.WorkflowRun, error) {
			calls++
			return nil, nil
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	def := definition([]string{"start"})
	def.Config.Retry = &wf.RetryConfig{MaximumAttempts: 3, InitialInterval: "2 seconds"}

	_, err := adapter.Submit(context.Background(), uuid.New(), def, nil)
	assert.ErrorIs(t, err, wf.ErrDefinitionInvalid)
	assert.Zero(t, calls)
}

func TestPollRunningIsStable(t *testing.T) {
	def := definition([]string{"start", "next"}, [2]string{"start", "next"})
	last := running(def)

	live := last.Clone()
	live.Steps["start"] = wf.StepResult{
		NodeID:     "start",
		Kind:       wf.KindTrigger,
		Status:     wf.StepCompleted,
		Output:     map[string]any{"order": "o-1"},
		StartedAt:  last.StartedAt,
		FinishedAt: last.StartedAt.Add(time.Second),
	}

	fc := &fakeClient{
		describe: func(id string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
			return described(id, enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, nil), nil
		},
		query: func(_, _, queryType string) (converter.EncodedValue, error) {
			assert.Equal(t, durable.QueryExecutionState, queryType)
			return fakeValue{v: live}, nil
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	first, err := adapter.Poll(context.Background(), last)
	require.NoError(t, err)
	second, err := adapter.Poll(context.Background(), last)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, wf.StatusRunning, first.Status)
	assert.Equal(t, "run-1", first.ExternalRunID)
	assert.Contains(t, first.Steps, "start")
}

func TestPollCompletedReadsResult(t *testing.T) {
	def := definition([]string{"start"})
	last := running(def)

	done := last.Clone()
	finished := last.StartedAt.Add(time.Minute)
	done.Status = wf.StatusCompleted
	done.FinishedAt = &finished
	done.Output = map[string]any{"start": map[string]any{"ok": true}}

	fc := &fakeClient{
		describe: func(id string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
			return described(id, enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, &finished), nil
		},
		result: func(id, runID string) client.WorkflowRun {
			return fakeRun{id: id, runID: runID, result: done}
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	state, err := adapter.Poll(context.Background(), last)
	require.NoError(t, err)
	assert.Equal(t, wf.StatusCompleted, state.Status)
	assert.Contains(t, state.Output, "start")
	require.NotNil(t, state.FinishedAt)
	assert.True(t, finished.Equal(*state.FinishedAt))
}

func TestPollMapsClosedStatuses(t *testing.T) {
	closed := time.Unix(1700000600, 0).UTC()

	tests := []struct {
		name   string
		status enumspb.WorkflowExecutionStatus
		want   wf.Status
	}{
		{"cancelled", enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, wf.StatusCancelled},
		{"failed", enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, wf.StatusFailed},
		{"terminated", enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, wf.StatusFailed},
		{"timed out", enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, wf.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := running(definition([]string{"start"}))
			last.CancelRequested = true

			fc := &fakeClient{
				describe: func(id string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
					return described(id, tt.status, &closed), nil
				},
				query: func(string, string, string) (converter.EncodedValue, error) {
					return nil, errors.New("no worker")
				},
			}
			adapter := durable.NewWithClient(testConfig(t), fc, discard())

			state, err := adapter.Poll(context.Background(), last)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Status)
			assert.True(t, state.CancelRequested)
			require.NotNil(t, state.FinishedAt)
			assert.True(t, closed.Equal(*state.FinishedAt))
			if tt.want == wf.StatusFailed {
				require.NotNil(t, state.Error)
				assert.Contains(t, state.Error.Message, "durable execution")
			}
		})
	}
}

func TestPollUnavailableLeavesRecord(t *testing.T) {
	last := running(definition([]string{"start"}))
	fc := &fakeClient{
		describe: func(string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
			return nil, serviceerror.NewUnavailable("connection refused")
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	state, err := adapter.Poll(context.Background(), last)
	require.NoError(t, err)
	assert.Equal(t, wf.StatusFailed, state.Status)
	assert.Equal(t, wf.ErrorOrchestratorUnavailable, state.Error.Kind)
	assert.True(t, state.Error.Retryable)
	assert.Nil(t, state.FinishedAt)

	assert.Equal(t, wf.StatusRunning, last.Status)
	assert.Nil(t, last.Error)
}

func TestPollUnknownExecution(t *testing.T) {
	fc := &fakeClient{
		describe: func(string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
			return nil, serviceerror.NewNotFound("workflow not found")
		},
	}
	adapter := durable.NewWithClient(testConfig(t), fc, discard())

	_, err := adapter.Poll(context.Background(), running(definition([]string{"start"})))
	assert.ErrorIs(t, err, durable.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, durable.MapHTTPStatus(err))
}

func TestCancel(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		result error
		want   error
	}{
		{"forwarded", nil, nil},
		{"unknown", serviceerror.NewNotFound("gone"), durable.ErrNotFound},
		{"unreachable", serviceerror.NewUnavailable("down"), durable.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			fc := &fakeClient{cancel: func(wid string) error {
				got = wid
				return tt.result
			}}
			adapter := durable.NewWithClient(testConfig(t), fc, discard())

			err := adapter.Cancel(context.Background(), id)
			assert.Equal(t, id.String(), got)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPingUsesExistingClient(t *testing.T) {
	adapter := durable.NewWithClient(testConfig(t), &fakeClient{}, discard())
	assert.NoError(t, adapter.Ping(context.Background()))
}
