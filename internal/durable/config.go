package durable

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Temporal connection and retry settings.
type Config struct {
	Enabled         bool   `toml:"enabled"`
	WorkerEnabled   bool   `toml:"worker_enabled"`
	HostPort        string `toml:"host_port"`
	Namespace       string `toml:"namespace"`
	TaskQueue       string `toml:"task_queue"`
	ActivityTimeout string `toml:"activity_timeout"`
	MaximumAttempts int32  `toml:"maximum_attempts"`
	LocalRetries    int    `toml:"local_retries"`
	RetryBackoff    string `toml:"retry_backoff"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled         string
	WorkerEnabled   string
	HostPort        string
	Namespace       string
	TaskQueue       string
	ActivityTimeout string
	MaximumAttempts string
	LocalRetries    string
	RetryBackoff    string
}

// ActivityTimeoutDuration returns ActivityTimeout as a time.Duration.
func (c *Config) ActivityTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ActivityTimeout)
	return d
}

// RetryBackoffDuration returns RetryBackoff as a time.Duration.
func (c *Config) RetryBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoff)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Flags can only be switched on.
func (c *Config) Merge(overlay *Config) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.WorkerEnabled {
		c.WorkerEnabled = true
	}
	if overlay.HostPort != "" {
		c.HostPort = overlay.HostPort
	}
	if overlay.Namespace != "" {
		c.Namespace = overlay.Namespace
	}
	if overlay.TaskQueue != "" {
		c.TaskQueue = overlay.TaskQueue
	}
	if overlay.ActivityTimeout != "" {
		c.ActivityTimeout = overlay.ActivityTimeout
	}
	if overlay.MaximumAttempts != 0 {
		c.MaximumAttempts = overlay.MaximumAttempts
	}
	if overlay.LocalRetries != 0 {
		c.LocalRetries = overlay.LocalRetries
	}
	if overlay.RetryBackoff != "" {
		c.RetryBackoff = overlay.RetryBackoff
	}
}

func (c *Config) loadDefaults() {
	if c.HostPort == "" {
		c.HostPort = "localhost:7233"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.TaskQueue == "" {
		c.TaskQueue = "atlas-workflows"
	}
	if c.ActivityTimeout == "" {
		c.ActivityTimeout = "5m"
	}
	if c.MaximumAttempts == 0 {
		c.MaximumAttempts = 1
	}
	if c.RetryBackoff == "" {
		c.RetryBackoff = "200ms"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Enabled != "" {
		if v := os.Getenv(env.Enabled); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Enabled = b
			}
		}
	}
	if env.WorkerEnabled != "" {
		if v := os.Getenv(env.WorkerEnabled); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.WorkerEnabled = b
			}
		}
	}
	if env.HostPort != "" {
		if v := os.Getenv(env.HostPort); v != "" {
			c.HostPort = v
		}
	}
	if env.Namespace != "" {
		if v := os.Getenv(env.Namespace); v != "" {
			c.Namespace = v
		}
	}
	if env.TaskQueue != "" {
		if v := os.Getenv(env.TaskQueue); v != "" {
			c.TaskQueue = v
		}
	}
	if env.ActivityTimeout != "" {
		if v := os.Getenv(env.ActivityTimeout); v != "" {
			c.ActivityTimeout = v
		}
	}
	if env.MaximumAttempts != "" {
		if v := os.Getenv(env.MaximumAttempts); v != "" {
			if n, err := strconv.ParseInt(v, 10, 32); err == nil {
				c.MaximumAttempts = int32(n)
			}
		}
	}
	if env.LocalRetries != "" {
		if v := os.Getenv(env.LocalRetries); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.LocalRetries = n
			}
		}
	}
	if env.RetryBackoff != "" {
		if v := os.Getenv(env.RetryBackoff); v != "" {
			c.RetryBackoff = v
		}
	}
}

func (c *Config) validate() error {
	if d, err := time.ParseDuration(c.ActivityTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid activity_timeout: %q", c.ActivityTimeout)
	}
	if _, err := time.ParseDuration(c.RetryBackoff); err != nil {
		return fmt.Errorf("invalid retry_backoff: %w", err)
	}
	if c.MaximumAttempts < 1 {
		return fmt.Errorf("maximum_attempts must be at least 1")
	}
	if c.LocalRetries < 0 {
		return fmt.Errorf("local_retries must not be negative")
	}
	return nil
}
