package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds scheduler and execution settings.
type Config struct {
	TickInterval  string `toml:"tick_interval"`
	Workers       int    `toml:"workers"`
	MaxRetries    int    `toml:"max_retries"`
	MaxDuration   string `toml:"max_duration"`
	StepTimeout   string `toml:"step_timeout"`
	Store         string `toml:"store"`
	TemplatesFile string `toml:"templates_file"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	TickInterval  string
	Workers       string
	MaxRetries    string
	MaxDuration   string
	StepTimeout   string
	Store         string
	TemplatesFile string
}

// TickIntervalDuration returns TickInterval as a time.Duration.
func (c *Config) TickIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}

// MaxDurationValue returns MaxDuration as a time.Duration.
func (c *Config) MaxDurationValue() time.Duration {
	d, _ := time.ParseDuration(c.MaxDuration)
	return d
}

// StepTimeoutDuration returns StepTimeout as a time.Duration.
func (c *Config) StepTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StepTimeout)
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

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.TickInterval != "" {
		c.TickInterval = overlay.TickInterval
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.MaxDuration != "" {
		c.MaxDuration = overlay.MaxDuration
	}
	if overlay.StepTimeout != "" {
		c.StepTimeout = overlay.StepTimeout
	}
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.TemplatesFile != "" {
		c.TemplatesFile = overlay.TemplatesFile
	}
}

func (c *Config) loadDefaults() {
	if c.TickInterval == "" {
		c.TickInterval = "60s"
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxDuration == "" {
		c.MaxDuration = "4800h"
	}
	if c.StepTimeout == "" {
		c.StepTimeout = "2m"
	}
	if c.Store == "" {
		c.Store = StoreMemory
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.TickInterval != "" {
		if v := os.Getenv(env.TickInterval); v != "" {
			c.TickInterval = v
		}
	}
	if env.Workers != "" {
		if v := os.Getenv(env.Workers); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Workers = n
			}
		}
	}
	if env.MaxRetries != "" {
		if v := os.Getenv(env.MaxRetries); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxRetries = n
			}
		}
	}
	if env.MaxDuration != "" {
		if v := os.Getenv(env.MaxDuration); v != "" {
			c.MaxDuration = v
		}
	}
	if env.StepTimeout != "" {
		if v := os.Getenv(env.StepTimeout); v != "" {
			c.StepTimeout = v
		}
	}
	if env.Store != "" {
		if v := os.Getenv(env.Store); v != "" {
			c.Store = v
		}
	}
	if env.TemplatesFile != "" {
		if v := os.Getenv(env.TemplatesFile); v != "" {
			c.TemplatesFile = v
		}
	}
}

func (c *Config) validate() error {
	if d, err := time.ParseDuration(c.TickInterval); err != nil {
		return fmt.Errorf("invalid tick_interval: %w", err)
	} else if d < time.Second {
		return fmt.Errorf("tick_interval must be at least 1s: %s", c.TickInterval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive: %d", c.MaxRetries)
	}
	if _, err := time.ParseDuration(c.MaxDuration); err != nil {
		return fmt.Errorf("invalid max_duration: %w", err)
	}
	if _, err := time.ParseDuration(c.StepTimeout); err != nil {
		return fmt.Errorf("invalid step_timeout: %w", err)
	}
	if c.Store != StoreMemory && c.Store != StorePostgres {
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
