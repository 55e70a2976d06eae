package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/renewal/pkg/middleware"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

const (
	EnvAPIBasePath   = "RENEWAL_API_BASE_PATH"
	defaultAPIPrefix = "/api"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "RENEWAL_CORS_ENABLED",
	Origins:          "RENEWAL_CORS_ORIGINS",
	AllowedMethods:   "RENEWAL_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "RENEWAL_CORS_ALLOWED_HEADERS",
	AllowCredentials: "RENEWAL_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "RENEWAL_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "RENEWAL_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "RENEWAL_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig configures the workflow admin API mounted under BasePath.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
}

func (c *APIConfig) Finalize() error {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if c.BasePath == "" {
		c.BasePath = defaultAPIPrefix
	}
	if !strings.HasPrefix(c.BasePath, "/") || c.BasePath == "/" {
		return fmt.Errorf("base_path %q must be a non-root absolute path", c.BasePath)
	}

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}
