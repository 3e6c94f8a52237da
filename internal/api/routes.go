package api

import (
	"net/http"

	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	groups := []routes.Group{
		domain.Workflows.Handler(domain.Executions).Routes(),
		domain.Executions.Handler().Routes(),
		domain.Agents.Handler().Routes(),
	}

	if runtime.Storage != nil {
		archive := newArchiveHandler(runtime.Storage, runtime.Logger, cfg.Storage.MaxListSize)
		groups = append(groups, archive.routes())
	}

	routes.Register(mux, groups...)

	for _, g := range groups {
		runtime.Logger.Debug("routes registered", "prefix", cfg.API.BasePath+g.Prefix, "patterns", g.Patterns())
	}
}
