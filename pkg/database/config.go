package database

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

var defaults = Config{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxLifetime: "15m",
	ConnTimeout:     "5s",
}

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Name            string `toml:"name"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	SSLMode         string `toml:"ssl_mode"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnTimeout     string `toml:"conn_timeout"`
}

// Env names the environment variable for each Config field. Empty names
// are skipped.
type Env struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    string
	MaxIdleConns    string
	ConnMaxLifetime string
	ConnTimeout     string
}

func (c *Config) ConnMaxLifetimeDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnMaxLifetime)
	return d
}

func (c *Config) ConnTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnTimeout)
	return d
}

// Dsn returns a libpq keyword/value connection string.
func (c *Config) Dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode,
	)
}

// URL returns the same parameters as a postgres:// URL for the migrator.
func (c *Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Finalize fills defaults, applies env overrides, then validates.
// A nil env skips the overrides.
func (c *Config) Finalize(env *Env) error {
	d := defaults
	d.Merge(c)
	*c = d

	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	return c.validate()
}

// Merge copies the non-zero fields of overlay onto c.
func (c *Config) Merge(overlay *Config) {
	for dst, src := range c.stringFields(overlay) {
		if src != "" {
			*dst = src
		}
	}
	for dst, src := range c.intFields(overlay) {
		if src != 0 {
			*dst = src
		}
	}
}

func (c *Config) stringFields(o *Config) map[*string]string {
	return map[*string]string{
		&c.Host:            o.Host,
		&c.Name:            o.Name,
		&c.User:            o.User,
		&c.Password:        o.Password,
		&c.SSLMode:         o.SSLMode,
		&c.ConnMaxLifetime: o.ConnMaxLifetime,
		&c.ConnTimeout:     o.ConnTimeout,
	}
}

func (c *Config) intFields(o *Config) map[*int]int {
	return map[*int]int{
		&c.Port:         o.Port,
		&c.MaxOpenConns: o.MaxOpenConns,
		&c.MaxIdleConns: o.MaxIdleConns,
	}
}

func (c *Config) loadEnv(env *Env) error {
	for dst, name := range map[*string]string{
		&c.Host:            env.Host,
		&c.Name:            env.Name,
		&c.User:            env.User,
		&c.Password:        env.Password,
		&c.SSLMode:         env.SSLMode,
		&c.ConnMaxLifetime: env.ConnMaxLifetime,
		&c.ConnTimeout:     env.ConnTimeout,
	} {
		if v := lookup(name); v != "" {
			*dst = v
		}
	}

	for dst, name := range map[*int]string{
		&c.Port:         env.Port,
		&c.MaxOpenConns: env.MaxOpenConns,
		&c.MaxIdleConns: env.MaxIdleConns,
	} {
		v := lookup(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func (c *Config) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("name required")
	case c.User == "":
		return fmt.Errorf("user required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns %d exceeds max_open_conns %d", c.MaxIdleConns, c.MaxOpenConns)
	}

	if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid conn_max_lifetime: %w", err)
	}
	if _, err := time.ParseDuration(c.ConnTimeout); err != nil {
		return fmt.Errorf("invalid conn_timeout: %w", err)
	}
	return nil
}
