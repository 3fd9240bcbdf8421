package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	intconfig "github.com/leapstack-labs/leapetl/internal/config"
)

// DefaultSchemaForType returns the default schema for a database type.
// This is a convenience wrapper that delegates to the shared config function.
func DefaultSchemaForType(dbType string) string {
	return intconfig.DefaultSchemaForType(dbType)
}

// ParseLogLevel maps a log level name to its slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.PipelinePath == "" {
		errs = append(errs, fmt.Errorf("pipeline is required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q (want text or json)", c.LogFormat))
	}
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid output format %q (want auto, text, markdown or json)", c.OutputFormat))
	}
	if err := intconfig.ValidateMetrics(c.Metrics); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidatePipelineFile checks that the pipeline definition exists.
func (c *Config) ValidatePipelineFile() error {
	if _, err := os.Stat(c.PipelinePath); os.IsNotExist(err) {
		return fmt.Errorf("pipeline file does not exist: %s\nHint: Create the file or use --pipeline to specify a different path", c.PipelinePath)
	}
	return nil
}

// SourcePath returns the file configured for the named source.
func (c *Config) SourcePath(name string) (string, error) {
	p, ok := c.Sources[name]
	if !ok || p == "" {
		return "", fmt.Errorf("no file configured for source %s\nHint: Add it under sources: in leapetl.yaml", name)
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("source %s: %w", name, err)
	}
	return p, nil
}
