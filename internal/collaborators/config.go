package collaborators

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the resilience settings applied to every collaborator call.
type Config struct {
	BreakerFailures int     `toml:"breaker_failures"`
	BreakerTimeout  string  `toml:"breaker_timeout"`
	RatePerSecond   float64 `toml:"rate_per_second"`
	RateBurst       int     `toml:"rate_burst"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BreakerFailures string
	BreakerTimeout  string
	RatePerSecond   string
	RateBurst       string
}

// BreakerTimeoutDuration returns BreakerTimeout as a time.Duration.
func (c *Config) BreakerTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.BreakerTimeout)
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
	if overlay.BreakerFailures != 0 {
		c.BreakerFailures = overlay.BreakerFailures
	}
	if overlay.BreakerTimeout != "" {
		c.BreakerTimeout = overlay.BreakerTimeout
	}
	if overlay.RatePerSecond != 0 {
		c.RatePerSecond = overlay.RatePerSecond
	}
	if overlay.RateBurst != 0 {
		c.RateBurst = overlay.RateBurst
	}
}

func (c *Config) loadDefaults() {
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout == "" {
		c.BreakerTimeout = "30s"
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 20
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.BreakerFailures != "" {
		if v := os.Getenv(env.BreakerFailures); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.BreakerFailures = n
			}
		}
	}
	if env.BreakerTimeout != "" {
		if v := os.Getenv(env.BreakerTimeout); v != "" {
			c.BreakerTimeout = v
		}
	}
	if env.RatePerSecond != "" {
		if v := os.Getenv(env.RatePerSecond); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.RatePerSecond = f
			}
		}
	}
	if env.RateBurst != "" {
		if v := os.Getenv(env.RateBurst); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.RateBurst = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.BreakerFailures < 1 {
		return fmt.Errorf("breaker_failures must be positive: %d", c.BreakerFailures)
	}
	if _, err := time.ParseDuration(c.BreakerTimeout); err != nil {
		return fmt.Errorf("invalid breaker_timeout: %w", err)
	}
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("rate_per_second must be positive: %g", c.RatePerSecond)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be positive: %d", c.RateBurst)
	}
	return nil
}
