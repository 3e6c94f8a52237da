// Package database manages the PostgreSQL pool: connect with retries,
// optional schema migration, readiness probing, and close on shutdown.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/atlas-erp/atlas/pkg/lifecycle"
)

// System manages database connections and lifecycle coordination.
type System interface {
	// Connection returns the underlying database connection pool.
	Connection() *sql.DB
	// Start registers startup, readiness, and shutdown hooks with the coordinator.
	Start(lc *lifecycle.Coordinator) error
}

// Option configures a database System.
type Option func(*database)

// WithMigrations applies migrations from src after connecting when the
// config enables auto_migrate.
func WithMigrations(src func() (source.Driver, error)) Option {
	return func(d *database) { d.migrations = src }
}

type database struct {
	conn        *sql.DB
	cfg         *Config
	logger      *slog.Logger
	connTimeout time.Duration
	migrations  func() (source.Driver, error)
}

// New opens the pool without connecting; Start performs the first connect.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (System, error) {
	db, err := sql.Open("pgx", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	d := &database{
		conn:        db,
		cfg:         cfg,
		logger:      logger.With("system", "database"),
		connTimeout: cfg.ConnTimeoutDuration(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting database connection")

	lc.OnStartup(func() {
		if err := d.connect(lc.Context()); err != nil {
			d.logger.Error("database connect failed", "error", err)
			return
		}
		d.logger.Info("database connection established")

		if d.cfg.AutoMigrate && d.migrations != nil {
			if err := d.migrate(); err != nil {
				d.logger.Error("database migration failed", "error", err)
				return
			}
		}
	})

	lc.AddCheck("database", d.ping)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.logger.Info("closing database connection")

		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database connection closed")
	})

	return nil
}

func (d *database) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()
	return d.conn.PingContext(ctx)
}

func (d *database) connect(ctx context.Context) error {
	backoff := retry.WithMaxRetries(
		uint64(d.cfg.ConnectRetries),
		retry.NewExponential(250*time.Millisecond),
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.ping(ctx); err != nil {
			d.logger.Warn("database ping failed", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (d *database) migrate() error {
	src, err := d.migrations()
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, d.cfg.URL())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	d.logger.Info("database schema current", "version", version, "dirty", dirty)
	return nil
}
