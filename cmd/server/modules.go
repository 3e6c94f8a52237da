package main

import (
	"context"
	"net/http"
	"time"

	"github.com/atlas-erp/atlas/internal/api"
	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/internal/infrastructure"
	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/pkg/lifecycle"
	"github.com/atlas-erp/atlas/pkg/module"
)

const readyTimeout = 3 * time.Second

type Modules struct {
	Runtime *api.Runtime
	API     *module.Module
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	runtime := api.NewRuntime(cfg, infra)

	apiModule, err := api.NewModule(cfg, runtime)
	if err != nil {
		return nil, err
	}

	return &Modules{
		Runtime: runtime,
		API:     apiModule,
	}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

func (m *Modules) Start(lc *lifecycle.Coordinator) error {
	return m.Runtime.Start(lc)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", readiness(infra.Lifecycle))

	metrics := infra.Metrics.Handler()
	router.HandleNative("GET /metrics", metrics.ServeHTTP)

	return router
}

type readyStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func readiness(lc *lifecycle.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !lc.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, readyStatus{Status: "starting"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failures := lc.Probe(ctx)
		if len(failures) == 0 {
			handlers.RespondJSON(w, http.StatusOK, readyStatus{Status: "ready"})
			return
		}

		checks := make(map[string]string, len(failures))
		for name, err := range failures {
			checks[name] = err.Error()
		}
		handlers.RespondJSON(w, http.StatusServiceUnavailable, readyStatus{Status: "not ready", Checks: checks})
	}
}
