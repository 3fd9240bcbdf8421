// Package config provides configuration management for the leapetl CLI.
//
// This package extends the shared configuration types from internal/config
// and pkg/core with CLI-specific fields and functionality. The shared types
// are re-exported here via type aliases for convenience.
package config

import (
	sharedcfg "github.com/leapstack-labs/leapetl/internal/config"
	"github.com/leapstack-labs/leapetl/pkg/core"
)

// TargetConfig is an alias for the shared target configuration.
// This allows CLI code to use config.TargetConfig without importing pkg/core.
type TargetConfig = core.TargetConfig

// MetricsConfig is an alias for the shared metrics configuration.
type MetricsConfig = sharedcfg.MetricsConfig

// Config holds all CLI configuration options.
type Config struct {
	PipelinePath string        `koanf:"pipeline"`
	StatePath    string        `koanf:"state_path"`
	Environment  string        `koanf:"environment"`
	Verbose      bool          `koanf:"verbose"`
	LogLevel     string        `koanf:"log_level"`
	LogFormat    string        `koanf:"log_format"`
	OutputFormat string        `koanf:"output"`
	Target       *TargetConfig `koanf:"target"`
	// Sources maps each raw source name to its CSV file.
	Sources      map[string]string    `koanf:"sources"`
	Metrics      *MetricsConfig       `koanf:"metrics"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	StatePath string            `koanf:"state_path"`
	Target    *TargetConfig     `koanf:"target"`
	Sources   map[string]string `koanf:"sources"`
	Metrics   *MetricsConfig    `koanf:"metrics"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultPipelineFile = sharedcfg.DefaultPipelineFile
	DefaultStateFile    = sharedcfg.DefaultStateFile
	DefaultEnv          = sharedcfg.DefaultEnv
	DefaultOutput       = sharedcfg.DefaultOutput
	DefaultLogLevel     = sharedcfg.DefaultLogLevel
	DefaultLogFormat    = sharedcfg.DefaultLogFormat
)
