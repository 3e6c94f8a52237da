package durable

import (
	"log/slog"
	"sync"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/atlas-erp/atlas/pkg/lifecycle"
)

// Worker hosts the graph workflow and step activity in this process.
type Worker struct {
	cfg        *Config
	activities *Activities
	logger     *slog.Logger

	mu     sync.Mutex
	client client.Client
	worker worker.Worker
}

// NewWorker creates a worker that runs steps with runner.
func NewWorker(cfg *Config, runner Runner, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:        cfg,
		activities: NewActivities(runner),
		logger:     logger.With("system", "durable-worker"),
	}
}

// Start registers startup and shutdown hooks with the lifecycle coordinator.
// A failed dial is logged; the server keeps running without a local worker.
func (w *Worker) Start(lc *lifecycle.Coordinator) error {
	w.logger.Info("starting durable worker", "task_queue", w.cfg.TaskQueue)

	lc.OnStartup(func() {
		c, err := Dial(w.cfg, w.logger)
		if err != nil {
			w.logger.Error("durable worker dial failed", "error", err)
			return
		}

		wk := worker.New(c, w.cfg.TaskQueue, worker.Options{})
		Register(wk, w.activities)

		if err := wk.Start(); err != nil {
			w.logger.Error("durable worker start failed", "error", err)
			c.Close()
			return
		}

		w.mu.Lock()
		w.client, w.worker = c, wk
		w.mu.Unlock()

		w.logger.Info("durable worker started")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.worker == nil {
			return
		}

		w.logger.Info("stopping durable worker")
		w.worker.Stop()
		w.client.Close()
		w.logger.Info("durable worker stopped")
	})

	return nil
}
