package workflow

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the behavior a step node performs.
type Kind string

// Step kinds a definition may contain.
const (
	KindTrigger        Kind = "trigger"
	KindAction         Kind = "action"
	KindTransformation Kind = "transformation"
	KindKnowledgeQuery Kind = "knowledge_query"
)

// Kinds returns every supported step kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindTrigger,
		KindAction,
		KindTransformation,
		KindKnowledgeQuery,
	}
}

// Valid reports whether k is a supported step kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Engine names the backend that runs an execution.
type Engine string

// Execution backends.
const (
	EngineGraph   Engine = "graph"
	EngineDurable Engine = "durable"
)

// Valid reports whether e names a known backend.
func (e Engine) Valid() bool {
	return e == EngineGraph || e == EngineDurable
}

// Position is the editor placement of a node. Execution ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in a workflow definition.
type Node struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name"`
	Config   map[string]any `json:"config,omitempty"`
	Position Position       `json:"position"`
}

// Connection is a directed edge from Source to Target. Connections are
// evaluated in declaration order when merging predecessor outputs.
type Connection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// RetryConfig bounds durable activity retries. Durations are Go duration strings.
type RetryConfig struct {
	MaximumAttempts    int32   `json:"maximum_attempts"`
	InitialInterval    string  `json:"initial_interval,omitempty"`
	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty"`
	MaximumInterval    string  `json:"maximum_interval,omitempty"`
}

// Intervals parses the initial and maximum retry intervals. Empty strings
// yield zero, which leaves the orchestrator default in place.
func (r *RetryConfig) Intervals() (initial, maximum time.Duration, err error) {
	parse := func(field, v string) (time.Duration, error) {
		if v == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("retry %s %q is not a non-negative duration", field, v)
		}
		return d, nil
	}
	if initial, err = parse("initial_interval", r.InitialInterval); err != nil {
		return 0, 0, err
	}
	if maximum, err = parse("maximum_interval", r.MaximumInterval); err != nil {
		return 0, 0, err
	}
	if initial > 0 && maximum > 0 && maximum < initial {
		return 0, 0, fmt.Errorf("retry maximum_interval %s is below initial_interval %s", maximum, initial)
	}
	return initial, maximum, nil
}

// Config holds definition-level execution settings.
type Config struct {
	DefaultBackend Engine       `json:"default_backend,omitempty"`
	FailFast       bool         `json:"fail_fast"`
	MaxParallel    int          `json:"max_parallel,omitempty"`
	Retry          *RetryConfig `json:"retry,omitempty"`
}

// Definition is a stored, versionless workflow graph.
type Definition struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	Config      Config       `json:"config"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (Node, bool) {
	i := slices.IndexFunc(d.Nodes, func(n Node) bool {
		return n.ID == id
	})
	if i < 0 {
		return Node{}, false
	}
	return d.Nodes[i], true
}
