package durable_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/atlas-erp/atlas/internal/durable"
	"github.com/atlas-erp/atlas/internal/steps"
	wf "github.com/atlas-erp/atlas/workflow"
)

func echo(_ context.Context, node wf.Node, input map[string]any) (map[string]any, error) {
	out := map[string]any{node.ID: true}
	for k, v := range input {
		out[k] = v
	}
	return out, nil
}

func failing(ids ...string) steps.ExecutorFunc {
	return func(ctx context.Context, node wf.Node, input map[string]any) (map[string]any, error) {
		for _, id := range ids {
			if node.ID == id {
				return nil, errors.New(id + " exploded")
			}
		}
		return echo(ctx, node, input)
	}
}

func definition(nodes []string, edges ...[2]string) wf.Definition {
	def := wf.Definition{ID: uuid.New(), Name: "orders"}
	for i, id := range nodes {
		kind := wf.KindAction
		if i == 0 {
			kind = wf.KindTrigger
		}
		def.Nodes = append(def.Nodes, wf.Node{ID: id, Kind: kind})
	}
	for _, e := range edges {
		def.Connections = append(def.Connections, wf.Connection{Source: e[0], Target: e[1]})
	}
	return def
}

func graphInput(def wf.Definition) durable.GraphInput {
	return durable.GraphInput{
		ExecutionID: uuid.New(),
		Definition:  def,
		Input:       map[string]any{"order": "o-1"},
		Policy: durable.ActivityPolicy{
			StartToCloseTimeout: time.Minute,
			MaximumAttempts:     1,
		},
	}
}

type GraphWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func TestGraphWorkflow(t *testing.T) {
	suite.Run(t, new(GraphWorkflowSuite))
}

func (s *GraphWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
}

func (s *GraphWorkflowSuite) register(runner durable.Runner) {
	durable.Register(s.env, durable.NewActivities(runner))
}

func (s *GraphWorkflowSuite) result() wf.ExecutionState {
	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())

	var state wf.ExecutionState
	s.Require().NoError(s.env.GetWorkflowResult(&state))
	return state
}

func (s *GraphWorkflowSuite) TestDiamondCompletes() {
	s.register(steps.ExecutorFunc(echo))
	def := definition(
		[]string{"start", "left", "right", "join"},
		[2]string{"start", "left"},
		[2]string{"start", "right"},
		[2]string{"left", "join"},
		[2]string{"right", "join"},
	)
	in := graphInput(def)

	s.env.ExecuteWorkflow(durable.WorkflowName, in)
	state := s.result()

	s.Equal(wf.StatusCompleted, state.Status)
	s.Equal(wf.EngineDurable, state.Engine)
	s.Equal(in.ExecutionID, state.ID)
	s.Equal(def.ID, state.WorkflowID)
	s.False(state.Partial)
	s.NotNil(state.FinishedAt)
	s.Len(state.Steps, 4)

	join, ok := state.Output["join"].(map[string]any)
	s.Require().True(ok, "output = %v", state.Output)
	for _, key := range []string{"order", "start", "left", "right", "join"} {
		s.Contains(join, key)
	}
}

func (s *GraphWorkflowSuite) TestQueryIsStable() {
	s.register(steps.ExecutorFunc(echo))
	s.env.ExecuteWorkflow(durable.WorkflowName, graphInput(definition(
		[]string{"start", "next"},
		[2]string{"start", "next"},
	)))
	s.result()

	snapshot := func() []byte {
		v, err := s.env.QueryWorkflow(durable.QueryExecutionState)
		s.Require().NoError(err)
		var state wf.ExecutionState
		s.Require().NoError(v.Get(&state))
		b, err := json.Marshal(state)
		s.Require().NoError(err)
		return b
	}

	first, second := snapshot(), snapshot()
	s.JSONEq(string(first), string(second))
	s.Contains(string(first), `"status":"completed"`)
}

func (s *GraphWorkflowSuite) TestFailedBranchIsPartial() {
	s.register(failing("left"))
	s.env.ExecuteWorkflow(durable.WorkflowName, graphInput(definition(
		[]string{"start", "left", "left-next", "right"},
		[2]string{"start", "left"},
		[2]string{"left", "left-next"},
		[2]string{"start", "right"},
	)))
	state := s.result()

	s.Equal(wf.StatusCompleted, state.Status)
	s.True(state.Partial)
	s.Equal([]string{"left-next"}, state.FailedBranches)
	s.Equal(wf.StepFailed, state.Steps["left"].Status)
	s.Contains(state.Steps["left"].Error, "left exploded")
	s.Equal(wf.StepSkipped, state.Steps["left-next"].Status)
	s.Equal(wf.StepCompleted, state.Steps["right"].Status)
	s.Nil(state.Error)
}

func (s *GraphWorkflowSuite) TestFailFastHonorsParallelBound() {
	s.register(failing("a"))
	def := definition(
		[]string{"start", "a", "b"},
		[2]string{"start", "a"},
		[2]string{"start", "b"},
	)
	def.Config.FailFast = true
	def.Config.MaxParallel = 1

	s.env.ExecuteWorkflow(durable.WorkflowName, graphInput(def))
	state := s.result()

	s.Equal(wf.StatusFailed, state.Status)
	s.Equal(wf.StepSkipped, state.Steps["b"].Status)
	s.Require().NotNil(state.Error)
	s.Equal(wf.ErrorStepFailure, state.Error.Kind)
	s.Equal("a", state.Error.NodeID)
}

func (s *GraphWorkflowSuite) TestInvalidConfigIsNotRetried() {
	var attempts atomic.Int32
	s.register(steps.ExecutorFunc(func(ctx context.Context, node wf.Node, input map[string]any) (map[string]any, error) {
		if node.ID == "bad" {
			attempts.Add(1)
			return nil, fmt.Errorf("%w: url required", steps.ErrInvalidConfig)
		}
		return echo(ctx, node, input)
	}))

	in := graphInput(definition([]string{"start", "bad"}, [2]string{"start", "bad"}))
	in.Policy.MaximumAttempts = 5

	s.env.ExecuteWorkflow(durable.WorkflowName, in)
	state := s.result()

	s.Equal(int32(1), attempts.Load())
	s.Equal(wf.StatusFailed, state.Status)
	s.Contains(state.Steps["bad"].Error, "url required")
}

func (s *GraphWorkflowSuite) TestCyclicDefinitionFails() {
	s.register(steps.ExecutorFunc(echo))
	s.env.ExecuteWorkflow(durable.WorkflowName, graphInput(definition(
		[]string{"a", "b"},
		[2]string{"a", "b"},
		[2]string{"b", "a"},
	)))

	s.Require().True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)

	var app *temporal.ApplicationError
	s.Require().True(errors.As(err, &app))
	s.Equal("DefinitionInvalid", app.Type())
}

func (s *GraphWorkflowSuite) TestCancelLetsInFlightStepFinish() {
	s.register(steps.ExecutorFunc(func(ctx context.Context, node wf.Node, input map[string]any) (map[string]any, error) {
		if node.ID == "start" {
			time.Sleep(50 * time.Millisecond)
		}
		return echo(ctx, node, input)
	}))
	s.env.RegisterDelayedCallback(s.env.CancelWorkflow, time.Millisecond)

	s.env.ExecuteWorkflow(durable.WorkflowName, graphInput(definition(
		[]string{"start", "next"},
		[2]string{"start", "next"},
	)))

	s.Require().True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var canceled *temporal.CanceledError
	s.True(errors.As(err, &canceled), "err = %v", err)

	v, err := s.env.QueryWorkflow(durable.QueryExecutionState)
	s.Require().NoError(err)
	var state wf.ExecutionState
	s.Require().NoError(v.Get(&state))

	s.Equal(wf.StatusCancelled, state.Status)
	s.Equal(wf.StepCompleted, state.Steps["start"].Status)
	s.Equal(wf.StepCancelled, state.Steps["next"].Status)
	s.NotNil(state.FinishedAt)
}
