package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atlas-erp/atlas/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "atlas"
user = "atlas"
password = "atlas"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
container_name = "executions"

[api]
base_path = "/api"

[api.pagination]
default_page_size = 25
max_page_size = 50

[steps]
knowledge_url = "http://graph:7474"
max_parallel = 4

[durable]
enabled = true
host_port = "temporal:7233"
task_queue = "atlas-test"

[agents]
from_id = "atlas-test"
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[log]
format = "json"
`

const minimalConfig = `
[database]
name = "atlas"
user = "atlas"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "atlas" {
		t.Errorf("db name: got %s, want atlas", cfg.Database.Name)
	}
	if cfg.API.Pagination.DefaultPageSize != 25 {
		t.Errorf("default_page_size: got %d, want 25", cfg.API.Pagination.DefaultPageSize)
	}
	if cfg.Steps.KnowledgeURL != "http://graph:7474" {
		t.Errorf("knowledge_url: got %s", cfg.Steps.KnowledgeURL)
	}
	if cfg.Steps.MaxParallel != 4 {
		t.Errorf("max_parallel: got %d, want 4", cfg.Steps.MaxParallel)
	}
	if !cfg.Durable.Enabled || cfg.Durable.HostPort != "temporal:7233" || cfg.Durable.TaskQueue != "atlas-test" {
		t.Errorf("durable: got %+v", cfg.Durable)
	}
	if cfg.Durable.MaximumAttempts != 1 {
		t.Errorf("durable maximum_attempts: got %d, want 1", cfg.Durable.MaximumAttempts)
	}
	if cfg.Agents.FromID != "atlas-test" {
		t.Errorf("agents from_id: got %s", cfg.Agents.FromID)
	}
	if cfg.Agents.ProgressBuffer != 64 {
		t.Errorf("agents progress_buffer: got %d, want 64", cfg.Agents.ProgressBuffer)
	}
	if cfg.Storage.Enabled {
		t.Error("storage should be disabled by default")
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)

	t.Setenv("ATLAS_ENV", "staging")

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format: got %s, want json (from overlay)", cfg.Log.Format)
	}
	if !cfg.Durable.Enabled {
		t.Error("durable enabled should survive an overlay that omits it")
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)

	t.Setenv("ATLAS_VERSION", "2.0.0")
	t.Setenv("ATLAS_SERVER_PORT", "3000")
	t.Setenv("ATLAS_DURABLE_ENABLED", "false")
	t.Setenv("ATLAS_AGENTS_PROGRESS_BUFFER", "8")
	t.Setenv("ATLAS_STEPS_MAX_PARALLEL", "2")
	t.Setenv("ATLAS_LOG_LEVEL", "debug")

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Durable.Enabled {
		t.Error("durable should be disabled by env")
	}
	if cfg.Agents.ProgressBuffer != 8 {
		t.Errorf("progress_buffer: got %d, want 8", cfg.Agents.ProgressBuffer)
	}
	if cfg.Steps.MaxParallel != 2 {
		t.Errorf("max_parallel: got %d, want 2", cfg.Steps.MaxParallel)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %s, want debug", cfg.Log.Level)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("ATLAS_DB_NAME", "testdb")
	t.Setenv("ATLAS_DB_USER", "testuser")

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name from env: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.Durable.Enabled {
		t.Error("durable should be disabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults: got %+v", cfg.Log)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", `[server`)

	if _, err := config.LoadFrom(dir); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnv(t *testing.T) {
	cfg := &config.Config{}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}

	t.Setenv("ATLAS_ENV", "production")
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}

func TestDurations(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if d := cfg.ShutdownTimeoutDuration(); d != 30*time.Second {
		t.Errorf("shutdown timeout: got %v, want 30s", d)
	}
	if d := cfg.Steps.ActionTimeoutDuration(); d != 30*time.Second {
		t.Errorf("action timeout: got %v, want 30s", d)
	}
	if d := cfg.Durable.ActivityTimeoutDuration(); d != 5*time.Minute {
		t.Errorf("activity timeout: got %v, want 5m", d)
	}
	if addr := cfg.Server.Addr(); addr != "0.0.0.0:8080" {
		t.Errorf("addr: got %s, want 0.0.0.0:8080", addr)
	}
}

func TestPaginationDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.API.Pagination.DefaultPageSize != 20 {
		t.Errorf("pagination default_page_size: got %d, want 20", cfg.API.Pagination.DefaultPageSize)
	}
	if cfg.API.Pagination.MaxPageSize != 100 {
		t.Errorf("pagination max_page_size: got %d, want 100", cfg.API.Pagination.MaxPageSize)
	}
}

func TestMaxBodySizeBytes(t *testing.T) {
	tests := []struct {
		name string
		size string
		want int64
	}{
		{"valid 4MB", "4MB", 4 * 1024 * 1024},
		{"valid 512KB", "512KB", 512 * 1024},
		{"invalid falls back to 4MB", "bad", 4 * 1024 * 1024},
		{"empty falls back to 4MB", "", 4 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.APIConfig{MaxBodySize: tt.size}
			if got := cfg.MaxBodySizeBytes(); got != tt.want {
				t.Errorf("MaxBodySizeBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "invalid port",
			config:  minimalConfig + "\n[server]\nport = 99999\n",
			wantErr: "invalid port",
		},
		{
			name:    "invalid read_timeout",
			config:  minimalConfig + "\n[server]\nread_timeout = \"bad\"\n",
			wantErr: "invalid read_timeout",
		},
		{
			name:    "invalid body size",
			config:  minimalConfig + "\n[api]\nmax_body_size = \"lots\"\n",
			wantErr: "invalid max_body_size",
		},
		{
			name:    "invalid log format",
			config:  minimalConfig + "\n[log]\nformat = \"xml\"\n",
			wantErr: "invalid format",
		},
		{
			name:    "invalid log level",
			config:  minimalConfig + "\n[log]\nlevel = \"loud\"\n",
			wantErr: "invalid level",
		},
		{
			name:    "zero parallelism",
			config:  minimalConfig + "\n[steps]\nmax_parallel = -1\n",
			wantErr: "max_parallel",
		},
		{
			name:    "storage without connection string",
			config:  minimalConfig + "\n[storage]\nenabled = true\n",
			wantErr: "connection_string required",
		},
		{
			name:    "missing database name",
			config:  "[database]\nuser = \"atlas\"\n",
			wantErr: "name required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.config)

			_, err := config.LoadFrom(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLogConfigLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"warn", "WARN"},
		{"ERROR", "ERROR"},
		{"nonsense", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &config.LogConfig{Level: tt.level}
			if got := cfg.SlogLevel().String(); got != tt.want {
				t.Errorf("SlogLevel() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLogConfigJSON(t *testing.T) {
	var sb strings.Builder
	cfg := &config.LogConfig{Level: "info", Format: "json"}
	cfg.NewLogger(&sb).Info("hello", "k", "v")

	if !strings.HasPrefix(sb.String(), "{") || !strings.Contains(sb.String(), `"k":"v"`) {
		t.Errorf("json log line = %q", sb.String())
	}
}
