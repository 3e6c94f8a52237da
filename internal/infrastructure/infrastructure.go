// Package infrastructure assembles the systems shared by every module.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/internal/metrics"
	"github.com/atlas-erp/atlas/migrations"
	"github.com/atlas-erp/atlas/pkg/database"
	"github.com/atlas-erp/atlas/pkg/lifecycle"
	"github.com/atlas-erp/atlas/pkg/storage"
)

// Infrastructure is what every module shares: lifecycle, logging, metrics
// and the two stateful backends. Storage is nil with the archive disabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Database  database.System
	Storage   storage.System
}

// New builds the shared systems without contacting any backend.
func New(cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    cfg.Log.NewLogger(os.Stderr),
		Metrics:   metrics.New(),
	}

	db, err := database.New(&cfg.Database, infra.Logger, database.WithMigrations(migrations.Source))
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	infra.Database = db

	if !cfg.Storage.Enabled {
		return infra, nil
	}
	if infra.Storage, err = storage.New(&cfg.Storage, infra.Logger); err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	return infra, nil
}

// Start hands each backend to the lifecycle coordinator. Connections open
// when the coordinator runs its startup hooks.
func (i *Infrastructure) Start() error {
	type starter interface {
		Start(*lifecycle.Coordinator) error
	}

	systems := map[string]starter{"database": i.Database}
	if i.Storage != nil {
		systems["storage"] = i.Storage
	} else {
		i.Logger.Info("execution archive disabled")
	}

	for _, name := range []string{"database", "storage"} {
		sys, ok := systems[name]
		if !ok {
			continue
		}
		if err := sys.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("%s start failed: %w", name, err)
		}
	}
	return nil
}
