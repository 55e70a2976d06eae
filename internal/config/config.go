package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/renewal/internal/collaborators"
	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/pkg/database"
	"github.com/JaimeStill/renewal/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvRenewalEnv             = "RENEWAL_ENV"
	EnvRenewalLogLevel        = "RENEWAL_LOG_LEVEL"
	EnvRenewalShutdownTimeout = "RENEWAL_SHUTDOWN_TIMEOUT"
	EnvRenewalVersion         = "RENEWAL_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "RENEWAL_DB_HOST",
	Port:            "RENEWAL_DB_PORT",
	Name:            "RENEWAL_DB_NAME",
	User:            "RENEWAL_DB_USER",
	Password:        "RENEWAL_DB_PASSWORD",
	SSLMode:         "RENEWAL_DB_SSL_MODE",
	MaxOpenConns:    "RENEWAL_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "RENEWAL_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "RENEWAL_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "RENEWAL_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "RENEWAL_STORAGE_CONTAINER_NAME",
	ConnectionString: "RENEWAL_STORAGE_CONNECTION_STRING",
}

var engineEnv = &engine.Env{
	TickInterval:  "RENEWAL_ENGINE_TICK_INTERVAL",
	Workers:       "RENEWAL_ENGINE_WORKERS",
	MaxRetries:    "RENEWAL_ENGINE_MAX_RETRIES",
	MaxDuration:   "RENEWAL_ENGINE_MAX_DURATION",
	StepTimeout:   "RENEWAL_ENGINE_STEP_TIMEOUT",
	Store:         "RENEWAL_ENGINE_STORE",
	TemplatesFile: "RENEWAL_ENGINE_TEMPLATES_FILE",
}

var resilienceEnv = &collaborators.Env{
	BreakerFailures: "RENEWAL_RESILIENCE_BREAKER_FAILURES",
	BreakerTimeout:  "RENEWAL_RESILIENCE_BREAKER_TIMEOUT",
	RatePerSecond:   "RENEWAL_RESILIENCE_RATE_PER_SECOND",
	RateBurst:       "RENEWAL_RESILIENCE_RATE_BURST",
}

// Config is the root configuration for the renewal service.
type Config struct {
	Server          ServerConfig         `toml:"server"`
	API             APIConfig            `toml:"api"`
	Engine          engine.Config        `toml:"engine"`
	Resilience      collaborators.Config `toml:"resilience"`
	Database        database.Config      `toml:"database"`
	Storage         storage.Config       `toml:"storage"`
	ShutdownTimeout string               `toml:"shutdown_timeout"`
	Version         string               `toml:"version"`
	LogLevel        string               `toml:"log_level"`
}

// Level is LogLevel as a slog.Level. Finalize has already rejected
// unknown names.
func (c *Config) Level() slog.Level {
	var l slog.Level
	l.UnmarshalText([]byte(c.LogLevel))
	return l
}

// Env returns the RENEWAL_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvRenewalEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// UsesDatabase reports whether workflows are kept in Postgres.
func (c *Config) UsesDatabase() bool {
	return c.Engine.Store == engine.StorePostgres
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	c.Server.Merge(&overlay.Server)
	c.API.Merge(&overlay.API)
	c.Engine.Merge(&overlay.Engine)
	c.Resilience.Merge(&overlay.Resilience)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
}

// Finalize applies defaults, environment overrides and validation to the
// root config and every sub-config. The database section is only finalized
// when the engine keeps workflows in Postgres.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Resilience.Finalize(resilienceEnv); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if c.UsesDatabase() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvRenewalShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvRenewalVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvRenewalLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvRenewalEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
