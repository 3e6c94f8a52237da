package api

import (
	"github.com/atlas-erp/atlas/internal/agents"
	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/internal/executions"
	"github.com/atlas-erp/atlas/internal/workflows"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Workflows  workflows.System
	Executions executions.System
	Agents     agents.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	workflowsSystem := workflows.New(db, runtime.Logger, runtime.Pagination)

	backends := executions.Backends{Graph: runtime.Engine}
	if runtime.Durable != nil {
		backends.Durable = runtime.Durable
	}

	var archive executions.Archiver
	if runtime.Storage != nil {
		archive = executions.NewArchive(runtime.Storage)
	}

	executionsSystem := executions.New(
		executions.NewStore(db, runtime.Pagination),
		workflowsSystem,
		backends,
		archive,
		runtime.Metrics,
		runtime.Logger,
		runtime.Pagination,
	)

	agentsSystem := agents.New(
		agents.NewStore(db, runtime.Pagination),
		agents.NewTransports(cfg.Agents),
		runtime.Metrics,
		runtime.Logger,
		cfg.Agents,
		runtime.Pagination,
	)

	return &Domain{
		Workflows:  workflowsSystem,
		Executions: executionsSystem,
		Agents:     agentsSystem,
	}
}
