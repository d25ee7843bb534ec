// Package config loads the engine's runtime parameters from an HCL file.
// Missing keys keep their defaults; CLI flags may override the result after
// loading.
package config

import (
	"os"

	"github.com/hashicorp/hcl"
	"github.com/pkg/errors"

	"corestore/pkg/dberr"
)

// Config is the full set of runtime parameters.
type Config struct {
	// Capacity is the maximum number of pages resident in the buffer pool.
	Capacity int `hcl:"capacity"`

	// PageSize is the page size in bytes. Changing it on an existing data
	// directory makes the files unreadable, so it is normally left alone.
	PageSize int `hcl:"page_size"`

	// DataDir holds the table heap files.
	DataDir string `hcl:"data_dir"`

	// LogLevel is a logrus level string.
	LogLevel string `hcl:"log_level"`

	// MetricsAddr is the listen address of the Prometheus exporter. Empty
	// disables the exporter.
	MetricsAddr string `hcl:"metrics_addr"`
}

// Default returns the configuration used when no file and no flags are
// given.
func Default() Config {
	return Config{
		Capacity:    50,
		PageSize:    4096,
		DataDir:     "data",
		LogLevel:    "info",
		MetricsAddr: ":9187",
	}
}

// Load reads path and decodes it over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "reading config %s", path)
	}
	if err := hcl.Decode(&c, string(b)); err != nil {
		return c, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, c.Validate()
}

// Validate rejects parameter values the engine cannot run with.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return dberr.BadInput("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.PageSize < 512 {
		return dberr.BadInput("page_size must be at least 512 bytes, got %d", c.PageSize)
	}
	if c.DataDir == "" {
		return dberr.BadInput("data_dir cannot be empty")
	}
	return nil
}
