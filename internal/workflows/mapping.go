package workflows

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
	"github.com/atlas-erp/atlas/workflow"
)

var projection = query.
	NewProjectionMap("public", "workflows", "w").
	Project("id", "ID").
	Project("name", "Name").
	Project("description", "Description").
	Project("nodes", "Nodes").
	Project("connections", "Connections").
	Project("config", "Config").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const returning = `RETURNING id, name, description, nodes, connections, config, created_at, updated_at`

var defaultSort = query.SortField{
	Field: "Name",
}

// Filters contains optional filtering criteria for workflow queries.
// Name uses case-insensitive contains matching.
type Filters struct {
	Name *string `json:"name,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.WhereContains("Name", f.Name)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if n := values.Get("name"); n != "" {
		f.Name = &n
	}

	return f
}

type document struct {
	nodes, connections, config []byte
}

func encode(nodes []workflow.Node, connections []workflow.Connection, cfg workflow.Config) (document, error) {
	var (
		d   document
		err error
	)
	if nodes == nil {
		nodes = []workflow.Node{}
	}
	if connections == nil {
		connections = []workflow.Connection{}
	}
	if d.nodes, err = json.Marshal(nodes); err != nil {
		return d, fmt.Errorf("marshal nodes: %w", err)
	}
	if d.connections, err = json.Marshal(connections); err != nil {
		return d, fmt.Errorf("marshal connections: %w", err)
	}
	if d.config, err = json.Marshal(cfg); err != nil {
		return d, fmt.Errorf("marshal config: %w", err)
	}
	return d, nil
}

func scanDefinition(s repository.Scanner) (workflow.Definition, error) {
	var (
		def workflow.Definition
		doc document
	)

	err := s.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&doc.nodes,
		&doc.connections,
		&doc.config,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return def, err
	}

	if err := json.Unmarshal(doc.nodes, &def.Nodes); err != nil {
		return def, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(doc.connections, &def.Connections); err != nil {
		return def, fmt.Errorf("unmarshal connections: %w", err)
	}
	if err := json.Unmarshal(doc.config, &def.Config); err != nil {
		return def, fmt.Errorf("unmarshal config: %w", err)
	}

	def.CreatedAt = def.CreatedAt.UTC()
	def.UpdatedAt = def.UpdatedAt.UTC()
	return def, nil
}
