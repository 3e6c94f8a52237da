package executions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
	"github.com/atlas-erp/atlas/workflow"
)

var projection = query.
	NewProjectionMap("public", "executions", "e").
	Project("id", "ID").
	Project("workflow_id", "WorkflowID").
	Project("status", "Status").
	Project("engine", "Engine").
	Project("input", "Input").
	Project("steps", "Steps").
	Project("output", "Output").
	Project("error", "Error").
	Project("partial", "Partial").
	Project("failed_branches", "FailedBranches").
	Project("external_run_id", "ExternalRunID").
	Project("cancel_requested", "CancelRequested").
	Project("started_at", "StartedAt").
	Project("finished_at", "FinishedAt")

var defaultSort = query.SortField{
	Field:      "StartedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for execution queries.
// Nil fields are ignored. StartedAfter is inclusive, StartedBefore exclusive.
type Filters struct {
	WorkflowID    *uuid.UUID       `json:"workflow_id,omitempty"`
	Status        *workflow.Status `json:"status,omitempty"`
	Engine        *workflow.Engine `json:"engine,omitempty"`
	StartedAfter  *time.Time       `json:"started_after,omitempty"`
	StartedBefore *time.Time       `json:"started_before,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("WorkflowID", f.WorkflowID).
		WhereEquals("Status", f.Status).
		WhereEquals("Engine", f.Engine).
		WhereSince("StartedAt", f.StartedAfter).
		WhereBefore("StartedAt", f.StartedBefore)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if w := values.Get("workflow_id"); w != "" {
		if id, err := uuid.Parse(w); err == nil {
			f.WorkflowID = &id
		}
	}

	if s := values.Get("status"); s != "" {
		status := workflow.Status(s)
		f.Status = &status
	}

	if e := values.Get("engine"); e != "" {
		engine := workflow.Engine(e)
		f.Engine = &engine
	}

	f.StartedAfter = timeParam(values, "started_after")
	f.StartedBefore = timeParam(values, "started_before")

	return f
}

func timeParam(values url.Values, key string) *time.Time {
	v := values.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

type columns struct {
	input, steps, output, errInfo, branches []byte
}

func encodeState(s *workflow.ExecutionState) (columns, error) {
	var (
		c   columns
		err error
	)
	if c.input, err = json.Marshal(s.Input); err != nil {
		return c, fmt.Errorf("marshal input: %w", err)
	}
	if c.steps, err = json.Marshal(s.Steps); err != nil {
		return c, fmt.Errorf("marshal steps: %w", err)
	}
	if s.Output != nil {
		if c.output, err = json.Marshal(s.Output); err != nil {
			return c, fmt.Errorf("marshal output: %w", err)
		}
	}
	if s.Error != nil {
		if c.errInfo, err = json.Marshal(s.Error); err != nil {
			return c, fmt.Errorf("marshal error: %w", err)
		}
	}
	branches := s.FailedBranches
	if branches == nil {
		branches = []string{}
	}
	if c.branches, err = json.Marshal(branches); err != nil {
		return c, fmt.Errorf("marshal failed_branches: %w", err)
	}
	return c, nil
}

func scanExecution(s repository.Scanner) (workflow.ExecutionState, error) {
	var (
		e          workflow.ExecutionState
		c          columns
		externalID sql.NullString
		finishedAt sql.NullTime
	)

	err := s.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.Status,
		&e.Engine,
		&c.input,
		&c.steps,
		&c.output,
		&c.errInfo,
		&e.Partial,
		&c.branches,
		&externalID,
		&e.CancelRequested,
		&e.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return e, err
	}

	if err := unmarshalColumn(c.input, &e.Input, "input"); err != nil {
		return e, err
	}
	if err := unmarshalColumn(c.steps, &e.Steps, "steps"); err != nil {
		return e, err
	}
	if err := unmarshalColumn(c.output, &e.Output, "output"); err != nil {
		return e, err
	}
	if err := unmarshalColumn(c.errInfo, &e.Error, "error"); err != nil {
		return e, err
	}
	if err := unmarshalColumn(c.branches, &e.FailedBranches, "failed_branches"); err != nil {
		return e, err
	}

	if e.Input == nil {
		e.Input = map[string]any{}
	}
	if e.Steps == nil {
		e.Steps = make(map[string]workflow.StepResult)
	}
	if len(e.FailedBranches) == 0 {
		e.FailedBranches = nil
	}
	e.ExternalRunID = externalID.String
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		e.FinishedAt = &t
	}
	e.StartedAt = e.StartedAt.UTC()

	return e, nil
}

func unmarshalColumn(raw []byte, dst any, name string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
