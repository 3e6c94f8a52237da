package api

import (
	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/internal/durable"
	"github.com/atlas-erp/atlas/internal/engine"
	"github.com/atlas-erp/atlas/internal/infrastructure"
	"github.com/atlas-erp/atlas/internal/steps"
	"github.com/atlas-erp/atlas/pkg/lifecycle"
	"github.com/atlas-erp/atlas/pkg/pagination"
)

// Runtime extends Infrastructure with the execution backends and API-specific
// configuration. Durable and Worker are nil when the orchestrator is disabled.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
	Steps      *steps.Registry
	Engine     *engine.Engine
	Durable    *durable.Adapter
	Worker     *durable.Worker
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")

	registry := steps.NewRegistry(
		steps.NewHTTPActions(cfg.Steps.ActionTimeoutDuration()),
		steps.NewKnowledgeClient(cfg.Steps.KnowledgeURL, cfg.Steps.KnowledgeTimeoutDuration()),
	)

	rt := &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Metrics:   infra.Metrics,
			Database:  infra.Database,
			Storage:   infra.Storage,
		},
		Pagination: cfg.API.Pagination,
		Steps:      registry,
		Engine: engine.New(
			registry,
			logger,
			engine.WithMetrics(infra.Metrics),
			engine.WithMaxParallel(cfg.Steps.MaxParallel),
		),
	}

	if cfg.Durable.Enabled {
		rt.Durable = durable.New(&cfg.Durable, logger)
		if cfg.Durable.WorkerEnabled {
			rt.Worker = durable.NewWorker(&cfg.Durable, registry, logger)
		}
	}

	return rt
}

// Start registers the durable worker and adapter with the lifecycle coordinator.
func (r *Runtime) Start(lc *lifecycle.Coordinator) error {
	if r.Durable == nil {
		r.Logger.Info("durable backend disabled")
		return nil
	}

	if r.Worker != nil {
		if err := r.Worker.Start(lc); err != nil {
			return err
		}
	}

	lc.AddCheck("orchestrator", r.Durable.Ping)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		r.Durable.Close()
	})
	return nil
}
