package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvStepsActionTimeout    = "ATLAS_STEPS_ACTION_TIMEOUT"
	EnvStepsKnowledgeURL     = "ATLAS_STEPS_KNOWLEDGE_URL"
	EnvStepsKnowledgeTimeout = "ATLAS_STEPS_KNOWLEDGE_TIMEOUT"
	EnvStepsMaxParallel      = "ATLAS_STEPS_MAX_PARALLEL"
)

// StepsConfig holds settings for the collaborators that step executors call
// and the graph engine's dispatch width.
type StepsConfig struct {
	ActionTimeout    string `toml:"action_timeout"`
	KnowledgeURL     string `toml:"knowledge_url"`
	KnowledgeTimeout string `toml:"knowledge_timeout"`
	MaxParallel      int    `toml:"max_parallel"`
}

// ActionTimeoutDuration returns ActionTimeout as a time.Duration.
func (c *StepsConfig) ActionTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ActionTimeout)
	return d
}

// KnowledgeTimeoutDuration returns KnowledgeTimeout as a time.Duration.
func (c *StepsConfig) KnowledgeTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.KnowledgeTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *StepsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *StepsConfig) Merge(overlay *StepsConfig) {
	if overlay.ActionTimeout != "" {
		c.ActionTimeout = overlay.ActionTimeout
	}
	if overlay.KnowledgeURL != "" {
		c.KnowledgeURL = overlay.KnowledgeURL
	}
	if overlay.KnowledgeTimeout != "" {
		c.KnowledgeTimeout = overlay.KnowledgeTimeout
	}
	if overlay.MaxParallel != 0 {
		c.MaxParallel = overlay.MaxParallel
	}
}

func (c *StepsConfig) loadDefaults() {
	if c.ActionTimeout == "" {
		c.ActionTimeout = "30s"
	}
	if c.KnowledgeURL == "" {
		c.KnowledgeURL = "http://localhost:7474"
	}
	if c.KnowledgeTimeout == "" {
		c.KnowledgeTimeout = "10s"
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = 8
	}
}

func (c *StepsConfig) loadEnv() {
	if v := os.Getenv(EnvStepsActionTimeout); v != "" {
		c.ActionTimeout = v
	}
	if v := os.Getenv(EnvStepsKnowledgeURL); v != "" {
		c.KnowledgeURL = v
	}
	if v := os.Getenv(EnvStepsKnowledgeTimeout); v != "" {
		c.KnowledgeTimeout = v
	}
	if v := os.Getenv(EnvStepsMaxParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
}

func (c *StepsConfig) validate() error {
	if d, err := time.ParseDuration(c.ActionTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid action_timeout: %q", c.ActionTimeout)
	}
	if d, err := time.ParseDuration(c.KnowledgeTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid knowledge_timeout: %q", c.KnowledgeTimeout)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1")
	}
	return nil
}
