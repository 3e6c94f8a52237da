package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/atlas-erp/atlas/internal/agents"
	"github.com/atlas-erp/atlas/internal/durable"
	"github.com/atlas-erp/atlas/pkg/database"
	"github.com/atlas-erp/atlas/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvAtlasEnv             = "ATLAS_ENV"
	EnvAtlasShutdownTimeout = "ATLAS_SHUTDOWN_TIMEOUT"
	EnvAtlasVersion         = "ATLAS_VERSION"
)

var databaseEnv = &database.Env{
	DSN:             "ATLAS_DB_DSN",
	Host:            "ATLAS_DB_HOST",
	Port:            "ATLAS_DB_PORT",
	Name:            "ATLAS_DB_NAME",
	User:            "ATLAS_DB_USER",
	Password:        "ATLAS_DB_PASSWORD",
	SSLMode:         "ATLAS_DB_SSL_MODE",
	MaxOpenConns:    "ATLAS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ATLAS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ATLAS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ATLAS_DB_CONN_TIMEOUT",
	ConnectRetries:  "ATLAS_DB_CONNECT_RETRIES",
	AutoMigrate:     "ATLAS_DB_AUTO_MIGRATE",
}

var storageEnv = &storage.Env{
	Enabled:          "ATLAS_STORAGE_ENABLED",
	ContainerName:    "ATLAS_STORAGE_CONTAINER_NAME",
	ConnectionString: "ATLAS_STORAGE_CONNECTION_STRING",
	MaxListSize:      "ATLAS_STORAGE_MAX_LIST_SIZE",
}

var durableEnv = &durable.Env{
	Enabled:         "ATLAS_DURABLE_ENABLED",
	WorkerEnabled:   "ATLAS_DURABLE_WORKER_ENABLED",
	HostPort:        "ATLAS_DURABLE_HOST_PORT",
	Namespace:       "ATLAS_DURABLE_NAMESPACE",
	TaskQueue:       "ATLAS_DURABLE_TASK_QUEUE",
	ActivityTimeout: "ATLAS_DURABLE_ACTIVITY_TIMEOUT",
	MaximumAttempts: "ATLAS_DURABLE_MAXIMUM_ATTEMPTS",
	LocalRetries:    "ATLAS_DURABLE_LOCAL_RETRIES",
	RetryBackoff:    "ATLAS_DURABLE_RETRY_BACKOFF",
}

var agentsEnv = &agents.Env{
	FromID:         "ATLAS_AGENTS_FROM_ID",
	ProgressBuffer: "ATLAS_AGENTS_PROGRESS_BUFFER",
}

// Config is the root configuration for the Atlas service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	API             APIConfig       `toml:"api"`
	Log             LogConfig       `toml:"log"`
	Steps           StepsConfig     `toml:"steps"`
	Durable         durable.Config  `toml:"durable"`
	Agents          agents.Config   `toml:"agents"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env names the deployment overlay, "local" unless ATLAS_ENV is set.
func (c *Config) Env() string {
	return cmp.Or(os.Getenv(EnvAtlasEnv), "local")
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load resolves configuration from the working directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom layers dir/config.toml, then dir/config.<ATLAS_ENV>.toml, then
// environment variables over the defaults. Both files are optional.
func LoadFrom(dir string) (*Config, error) {
	cfg, err := readFile(filepath.Join(dir, BaseConfigFile))
	if err != nil {
		return nil, err
	}

	if env := os.Getenv(EnvAtlasEnv); env != "" {
		name := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		overlay, err := readFile(name)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", name, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	c.ShutdownTimeout = cmp.Or(overlay.ShutdownTimeout, c.ShutdownTimeout)
	c.Version = cmp.Or(overlay.Version, c.Version)

	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Log.Merge(&overlay.Log)
	c.Steps.Merge(&overlay.Steps)
	c.Durable.Merge(&overlay.Durable)
	c.Agents.Merge(&overlay.Agents)
}

func (c *Config) finalize() error {
	c.ShutdownTimeout = cmp.Or(os.Getenv(EnvAtlasShutdownTimeout), c.ShutdownTimeout, "30s")
	c.Version = cmp.Or(os.Getenv(EnvAtlasVersion), c.Version, "0.1.0")
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"log", c.Log.Finalize},
		{"steps", c.Steps.Finalize},
		{"durable", func() error { return c.Durable.Finalize(durableEnv) }},
		{"agents", func() error { return c.Agents.Finalize(agentsEnv) }},
	}
	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// readFile decodes a TOML file. A missing file yields an empty Config.
func readFile(name string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	return cfg, nil
}
