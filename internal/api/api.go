// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"
	"time"

	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/pkg/middleware"
	"github.com/atlas-erp/atlas/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, runtime *Runtime) (*module.Module, error) {
	domain := NewDomain(cfg, runtime)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger, func(r *http.Request, status int, elapsed time.Duration) {
		runtime.Metrics.ObserveRequest(r.Method, status, elapsed)
	}))
	m.Use(middleware.MaxBytes(cfg.API.MaxBodySizeBytes()))

	return m, nil
}
