package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/internal/metrics"
	"github.com/atlas-erp/atlas/pkg/pagination"
)

// System defines the public contract for agent operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Agent], error)
	Find(ctx context.Context, id uuid.UUID) (*Agent, error)
	Create(ctx context.Context, cmd CreateCommand) (*Agent, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Run invokes the agent and blocks until it finishes. onProgress, when
	// set, receives each progress report in order from a single goroutine.
	Run(ctx context.Context, agentID uuid.UUID, cmd RunCommand, onProgress func(string)) (*RunResult, error)
	FindRun(ctx context.Context, runID uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, page pagination.PageRequest, filters RunFilters) (*pagination.PageResult[Run], error)
}

type controller struct {
	store      Store
	transports Transports
	registry   registry
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        Config
	pagination pagination.Config
	now        func() time.Time
}

// New creates the agent run controller. m may be nil.
func New(
	store Store,
	transports Transports,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
	pagination pagination.Config,
) System {
	if cfg.ProgressBuffer < 1 {
		cfg.ProgressBuffer = 1
	}
	return &controller{
		store:      store,
		transports: transports,
		metrics:    m,
		logger:     logger.With("system", "agents"),
		cfg:        cfg,
		pagination: pagination,
		now:        time.Now,
	}
}

func (c *controller) Handler() *Handler {
	return NewHandler(c, c.logger, c.pagination)
}

func (c *controller) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Agent], error) {
	result, err := c.store.List(ctx, page, filters)
	if err != nil {
		return nil, err
	}
	for i := range result.Data {
		c.status(&result.Data[i])
	}
	return result, nil
}

func (c *controller) Find(ctx context.Context, id uuid.UUID) (*Agent, error) {
	a, err := c.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	c.status(a)
	return a, nil
}

func (c *controller) Create(ctx context.Context, cmd CreateCommand) (*Agent, error) {
	if strings.TrimSpace(cmd.Name) == "" || strings.TrimSpace(cmd.Endpoint) == "" {
		return nil, ErrInvalidAgent
	}
	if cmd.Protocol == "" {
		cmd.Protocol = ProtocolLegacy
	}
	if !cmd.Protocol.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, cmd.Protocol)
	}

	a, err := c.store.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "agent created", "id", a.ID, "name", a.Name, "protocol", a.Protocol)
	return a, nil
}

func (c *controller) Delete(ctx context.Context, id uuid.UUID) error {
	if c.registry.running(id) {
		return fmt.Errorf("%w: %s", ErrConflict, id)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "agent deleted", "id", id)
	return nil
}

// Run claims the agent, records the run, and calls the agent's transport.
// The terminal record is written once after the call returns; if the
// process dies first the row stays running.
func (c *controller) Run(ctx context.Context, agentID uuid.UUID, cmd RunCommand, onProgress func(string)) (*RunResult, error) {
	agent, err := c.store.Find(ctx, agentID)
	if err != nil {
		return nil, err
	}

	protocol := agent.Protocol
	if cmd.Protocol != nil {
		protocol = *cmd.Protocol
	}
	transport, ok := c.transports[protocol]
	if !protocol.Valid() || !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
	}

	input := cmd.Input
	if input == nil {
		input = map[string]any{}
	}

	live := &liveRun{run: Run{
		ID:        uuid.New(),
		AgentID:   agent.ID,
		Protocol:  protocol,
		Status:    RunRunning,
		Input:     input,
		Progress:  []string{},
		StartedAt: c.now().UTC(),
	}}

	if holder, ok := c.registry.acquire(live); !ok {
		return nil, fmt.Errorf("%w: %s has run %s in flight", ErrConflict, agent.Name, holder.run.ID)
	}
	defer c.registry.release(live)

	if err := c.store.InsertRun(ctx, &live.run); err != nil {
		return nil, err
	}

	logger := c.logger.With("agent_id", agent.ID, "run_id", live.run.ID, "protocol", protocol)
	logger.InfoContext(ctx, "agent run started")
	c.metrics.AgentRunStarted()

	pipe := newProgressPipe(c.cfg.ProgressBuffer, live, onProgress)
	output, callErr := transport.Invoke(ctx, Call{RunID: live.run.ID, Agent: *agent, Input: input}, pipe.emit)
	pipe.close()

	run := live.snapshot()
	finished := c.now().UTC()
	run.FinishedAt = &finished
	if callErr != nil {
		msg := callErr.Error()
		run.Status = RunFailed
		run.Error = &msg
	} else {
		run.Status = RunSucceeded
		run.Output = output
	}

	if err := c.store.FinishRun(context.WithoutCancel(ctx), &run); err != nil {
		logger.ErrorContext(ctx, "record agent run failed", "error", err)
	}
	c.metrics.AgentRunFinished(string(protocol), string(run.Status))
	logger.InfoContext(ctx, "agent run finished", "status", run.Status, "progress", len(run.Progress))

	result := &RunResult{
		Success: run.Status == RunSucceeded,
		Output:  run.Output,
		Run:     &run,
	}
	if run.Error != nil {
		result.Error = *run.Error
	}
	return result, nil
}

// FindRun answers in-flight runs from memory and finished runs from the store.
func (c *controller) FindRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	if live, ok := c.registry.lookup(runID); ok {
		r := live.snapshot()
		return &r, nil
	}

	r, err := c.store.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *controller) ListRuns(ctx context.Context, page pagination.PageRequest, filters RunFilters) (*pagination.PageResult[Run], error) {
	return c.store.ListRuns(ctx, page, filters)
}

func (c *controller) status(a *Agent) {
	a.Status = StatusIdle
	if c.registry.running(a.ID) {
		a.Status = StatusRunning
	}
}
