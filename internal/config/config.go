// Package config reads the gpuplay command's environment configuration.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Executors that can run a replayed trace.
const (
	ExecutorSoftware = "software"
	ExecutorVulkan   = "vulkan"
)

// Config is the environment configuration of the gpuplay command. Flags
// given on the command line override it.
type Config struct {
	// Backend names the executor replayed devices are opened on.
	Backend string `env:"GPUPLAY_BACKEND" envDefault:"software"`

	// LogLevel is the minimum level written to stderr.
	LogLevel slog.Level `env:"GPUPLAY_LOG_LEVEL" envDefault:"WARN"`

	// TraceDir is the trace directory used when none is given as an
	// argument.
	TraceDir string `env:"GPUPLAY_TRACE_DIR"`

	// Format is the log format written by convert.
	Format string `env:"GPUPLAY_TRACE_FORMAT" envDefault:"binary"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check by type.
func (c Config) Validate() error {
	switch c.Backend {
	case ExecutorSoftware, ExecutorVulkan:
	default:
		return fmt.Errorf("config: GPUPLAY_BACKEND %q is not %s or %s", c.Backend, ExecutorSoftware, ExecutorVulkan)
	}
	switch c.Format {
	case "text", "binary":
	default:
		return fmt.Errorf("config: GPUPLAY_TRACE_FORMAT %q is not text or binary", c.Format)
	}
	return nil
}
