package agents

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
)

var agentProjection = query.
	NewProjectionMap("public", "agents", "a").
	Project("id", "ID").
	Project("name", "Name").
	Project("description", "Description").
	Project("endpoint", "Endpoint").
	Project("protocol", "Protocol").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var runProjection = query.
	NewProjectionMap("public", "agent_runs", "r").
	Project("id", "ID").
	Project("agent_id", "AgentID").
	Project("protocol", "Protocol").
	Project("status", "Status").
	Project("input", "Input").
	Project("output", "Output").
	Project("error", "Error").
	Project("progress", "Progress").
	Project("started_at", "StartedAt").
	Project("finished_at", "FinishedAt")

var agentSort = query.SortField{
	Field: "Name",
}

var runSort = query.SortField{
	Field:      "StartedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for agent queries.
type Filters struct {
	Name     *string   `json:"name,omitempty"`
	Protocol *Protocol `json:"protocol,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereContains("Name", f.Name).
		WhereEquals("Protocol", f.Protocol)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if n := values.Get("name"); n != "" {
		f.Name = &n
	}

	if p := values.Get("protocol"); p != "" {
		protocol := Protocol(p)
		f.Protocol = &protocol
	}

	return f
}

// RunFilters contains optional filtering criteria for run queries.
type RunFilters struct {
	AgentID  *uuid.UUID `json:"agent_id,omitempty"`
	Status   *RunStatus `json:"status,omitempty"`
	Protocol *Protocol  `json:"protocol,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f RunFilters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("AgentID", f.AgentID).
		WhereEquals("Status", f.Status).
		WhereEquals("Protocol", f.Protocol)
}

// RunFiltersFromQuery extracts run filter values from URL query parameters.
func RunFiltersFromQuery(values url.Values) RunFilters {
	var f RunFilters

	if a := values.Get("agent_id"); a != "" {
		if id, err := uuid.Parse(a); err == nil {
			f.AgentID = &id
		}
	}

	if s := values.Get("status"); s != "" {
		status := RunStatus(s)
		f.Status = &status
	}

	if p := values.Get("protocol"); p != "" {
		protocol := Protocol(p)
		f.Protocol = &protocol
	}

	return f
}

func scanAgent(s repository.Scanner) (Agent, error) {
	var a Agent
	err := s.Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&a.Endpoint,
		&a.Protocol,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = StatusIdle
	return a, err
}

func scanRun(s repository.Scanner) (Run, error) {
	var (
		r                       Run
		input, output, progress []byte
		errText                 sql.NullString
		finishedAt              sql.NullTime
	)

	err := s.Scan(
		&r.ID,
		&r.AgentID,
		&r.Protocol,
		&r.Status,
		&input,
		&output,
		&errText,
		&progress,
		&r.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return r, err
	}

	if err := json.Unmarshal(input, &r.Input); err != nil {
		return r, fmt.Errorf("unmarshal input: %w", err)
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &r.Output); err != nil {
			return r, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	if err := json.Unmarshal(progress, &r.Progress); err != nil {
		return r, fmt.Errorf("unmarshal progress: %w", err)
	}

	if errText.Valid {
		r.Error = &errText.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		r.FinishedAt = &t
	}
	if r.Progress == nil {
		r.Progress = []string{}
	}
	r.StartedAt = r.StartedAt.UTC()

	return r, nil
}
