package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds HTTP listener settings. Durations are Go duration
// strings. WriteTimeout bounds streamed agent runs too, so keep it above
// the longest expected run.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	IdleTimeout     string `toml:"idle_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

var serverEnv = struct {
	Host, Port, ReadTimeout, WriteTimeout, IdleTimeout, ShutdownTimeout string
}{
	Host:            "ATLAS_SERVER_HOST",
	Port:            "ATLAS_SERVER_PORT",
	ReadTimeout:     "ATLAS_SERVER_READ_TIMEOUT",
	WriteTimeout:    "ATLAS_SERVER_WRITE_TIMEOUT",
	IdleTimeout:     "ATLAS_SERVER_IDLE_TIMEOUT",
	ShutdownTimeout: "ATLAS_SERVER_SHUTDOWN_TIMEOUT",
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration     { return duration(c.ReadTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration    { return duration(c.WriteTimeout) }
func (c *ServerConfig) IdleTimeoutDuration() time.Duration     { return duration(c.IdleTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration { return duration(c.ShutdownTimeout) }

// Finalize applies defaults, environment overrides, and validation.
func (c *ServerConfig) Finalize() error {
	setDefault(&c.Host, "0.0.0.0")
	setDefault(&c.ReadTimeout, "1m")
	setDefault(&c.WriteTimeout, "15m")
	setDefault(&c.IdleTimeout, "2m")
	setDefault(&c.ShutdownTimeout, "30s")
	if c.Port == 0 {
		c.Port = 8080
	}

	overrideString(serverEnv.Host, &c.Host)
	overrideString(serverEnv.ReadTimeout, &c.ReadTimeout)
	overrideString(serverEnv.WriteTimeout, &c.WriteTimeout)
	overrideString(serverEnv.IdleTimeout, &c.IdleTimeout)
	overrideString(serverEnv.ShutdownTimeout, &c.ShutdownTimeout)
	if port, err := strconv.Atoi(os.Getenv(serverEnv.Port)); err == nil {
		c.Port = port
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, v := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// Merge overwrites fields set in overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	mergeString(&c.Host, overlay.Host)
	mergeString(&c.ReadTimeout, overlay.ReadTimeout)
	mergeString(&c.WriteTimeout, overlay.WriteTimeout)
	mergeString(&c.IdleTimeout, overlay.IdleTimeout)
	mergeString(&c.ShutdownTimeout, overlay.ShutdownTimeout)
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func overrideString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
