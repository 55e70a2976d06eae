package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost            = "RENEWAL_SERVER_HOST"
	EnvServerPort            = "RENEWAL_SERVER_PORT"
	EnvServerReadTimeout     = "RENEWAL_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "RENEWAL_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout     = "RENEWAL_SERVER_IDLE_TIMEOUT"
	EnvServerShutdownTimeout = "RENEWAL_SERVER_SHUTDOWN_TIMEOUT"
)

var serverDefaults = ServerConfig{
	Host:            "0.0.0.0",
	Port:            8080,
	ReadTimeout:     "15s",
	WriteTimeout:    "1m",
	IdleTimeout:     "2m",
	ShutdownTimeout: "20s",
}

// ServerConfig is the admin HTTP listener. Timeouts are Go duration strings.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	IdleTimeout     string `toml:"idle_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration  { return parseDuration(c.ReadTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration { return parseDuration(c.WriteTimeout) }
func (c *ServerConfig) IdleTimeoutDuration() time.Duration  { return parseDuration(c.IdleTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.ShutdownTimeout)
}

// Finalize applies defaults, then RENEWAL_SERVER_* overrides, then validates.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	return c.validate()
}

// Merge overwrites fields that are set in overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for dst, src := range c.strings(overlay) {
		if src != "" {
			*dst = src
		}
	}
}

// strings pairs each string field of c with the same field of o.
func (c *ServerConfig) strings(o *ServerConfig) map[*string]string {
	return map[*string]string{
		&c.Host:            o.Host,
		&c.ReadTimeout:     o.ReadTimeout,
		&c.WriteTimeout:    o.WriteTimeout,
		&c.IdleTimeout:     o.IdleTimeout,
		&c.ShutdownTimeout: o.ShutdownTimeout,
	}
}

func (c *ServerConfig) loadDefaults() {
	d := serverDefaults
	d.Merge(c)
	*c = d
}

func (c *ServerConfig) loadEnv() error {
	for dst, name := range map[*string]string{
		&c.Host:            EnvServerHost,
		&c.ReadTimeout:     EnvServerReadTimeout,
		&c.WriteTimeout:    EnvServerWriteTimeout,
		&c.IdleTimeout:     EnvServerIdleTimeout,
		&c.ShutdownTimeout: EnvServerShutdownTimeout,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvServerPort, err)
		}
		c.Port = port
	}
	return nil
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	for name, v := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
