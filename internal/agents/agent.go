// Package agents implements the agent run controller: single-agent
// invocations with one concurrent run per agent, ordered progress streaming,
// and a run history shared by the legacy and A2A transports.
package agents

import (
	"time"

	"github.com/google/uuid"
)

// Protocol selects how an agent's transport is addressed.
type Protocol string

// Supported agent protocols.
const (
	ProtocolLegacy Protocol = "legacy"
	ProtocolA2A    Protocol = "a2a"
)

// Valid reports whether p is a supported protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolLegacy || p == ProtocolA2A
}

// Status is the derived availability of an agent.
type Status string

// Agent statuses.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// RunStatus is the lifecycle state of a single agent run.
type RunStatus string

// Run statuses. Succeeded and Failed are terminal.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Agent is an addressable unit reached over its transport.
type Agent struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Endpoint    string    `json:"endpoint"`
	Protocol    Protocol  `json:"protocol"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run is the record of one agent invocation. Progress is append-only and
// keeps the order in which the agent reported it.
type Run struct {
	ID         uuid.UUID      `json:"id"`
	AgentID    uuid.UUID      `json:"agent_id"`
	Protocol   Protocol       `json:"protocol"`
	Status     RunStatus      `json:"status"`
	Input      map[string]any `json:"input"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Progress   []string       `json:"progress"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// CreateCommand contains the fields for registering an agent.
type CreateCommand struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Endpoint    string   `json:"endpoint"`
	Protocol    Protocol `json:"protocol"`
}

// RunCommand carries the input of a run and an optional protocol override.
type RunCommand struct {
	Input    map[string]any `json:"input"`
	Protocol *Protocol      `json:"protocol,omitempty"`
}

// RunResult is the outcome of a run. Agent failures are reported here,
// not as errors.
type RunResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Run     *Run           `json:"run"`
}
