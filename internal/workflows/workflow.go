// Package workflows implements the workflow definition store: CRUD over
// stored graphs, a dry-run validation endpoint, and the execute entry point
// that hands a stored definition to the execution dispatcher.
package workflows

import "github.com/atlas-erp/atlas/workflow"

// CreateCommand contains the fields for creating a workflow definition.
type CreateCommand struct {
	Name        string                `json:"name"`
	Description *string               `json:"description"`
	Nodes       []workflow.Node       `json:"nodes"`
	Connections []workflow.Connection `json:"connections"`
	Config      workflow.Config       `json:"config"`
}

// UpdateCommand is a partial update. Nil fields are left untouched.
type UpdateCommand struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Nodes       *[]workflow.Node       `json:"nodes,omitempty"`
	Connections *[]workflow.Connection `json:"connections,omitempty"`
	Config      *workflow.Config       `json:"config,omitempty"`
}

// Validation reports whether a stored definition can be executed and, when
// it can, the level order the engine will follow.
type Validation struct {
	Valid  bool       `json:"valid"`
	Error  string     `json:"error,omitempty"`
	Levels [][]string `json:"levels,omitempty"`
}

func validation(def *workflow.Definition) *Validation {
	plan, err := workflow.Compile(def)
	if err != nil {
		return &Validation{Error: err.Error()}
	}
	return &Validation{Valid: true, Levels: plan.Levels}
}
