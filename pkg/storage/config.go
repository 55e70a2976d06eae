package storage

import (
	"fmt"
	"os"
	"regexp"
)

const defaultContainer = "workflow-history"

// Azure container names: 3-63 lowercase letters, digits or single hyphens.
var containerName = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9]|-[a-z0-9]){2,62}$`)

// Config selects the blob container that receives archived workflows.
// Without a connection string the archive is off.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
}

// Env names the override variable for each Config field.
type Env struct {
	ContainerName    string
	ConnectionString string
}

func (c *Config) Enabled() bool {
	return c.ConnectionString != ""
}

func (c *Config) Finalize(env *Env) error {
	if env != nil {
		override(&c.ContainerName, env.ContainerName)
		override(&c.ConnectionString, env.ConnectionString)
	}
	if c.ContainerName == "" {
		c.ContainerName = defaultContainer
	}

	if c.Enabled() && !containerName.MatchString(c.ContainerName) {
		return fmt.Errorf("invalid container_name %q", c.ContainerName)
	}
	return nil
}

func (c *Config) Merge(overlay *Config) {
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
}

func override(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
