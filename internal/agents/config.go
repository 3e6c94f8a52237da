package agents

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds agent run controller settings.
type Config struct {
	FromID         string `toml:"from_id"`
	ProgressBuffer int    `toml:"progress_buffer"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	FromID         string
	ProgressBuffer string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.FromID != "" {
		c.FromID = overlay.FromID
	}
	if overlay.ProgressBuffer != 0 {
		c.ProgressBuffer = overlay.ProgressBuffer
	}
}

func (c *Config) loadDefaults() {
	if c.FromID == "" {
		c.FromID = "atlas"
	}
	if c.ProgressBuffer == 0 {
		c.ProgressBuffer = 64
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.FromID != "" {
		if v := os.Getenv(env.FromID); v != "" {
			c.FromID = v
		}
	}
	if env.ProgressBuffer != "" {
		if v := os.Getenv(env.ProgressBuffer); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.ProgressBuffer = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.ProgressBuffer < 1 {
		return fmt.Errorf("progress_buffer must be at least 1")
	}
	return nil
}
