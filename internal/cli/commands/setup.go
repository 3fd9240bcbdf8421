package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapetl/internal/config"
	"github.com/leapstack-labs/leapetl/internal/engine"
	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/leapstack-labs/leapetl/internal/state"
	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a connected engine and
// renderer. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, closeEngine, err := createEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: newRenderer(cmd, cfg),
	}, closeEngine, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need warehouse access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: newRenderer(cmd, cfg),
	}
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) *output.Renderer {
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	target := &core.TargetConfig{
		Type:     getEnvOrDefault("LEAPETL_TARGET__TYPE", intconfig.DefaultTargetType),
		Database: os.Getenv("LEAPETL_TARGET__DATABASE"),
	}
	intconfig.ApplyTargetDefaults(target)

	return &config.Config{
		PipelinePath: getEnvOrDefault("LEAPETL_PIPELINE", config.DefaultPipelineFile),
		StatePath:    getEnvOrDefault("LEAPETL_STATE_PATH", config.DefaultStateFile),
		Environment:  getEnvOrDefault("LEAPETL_ENVIRONMENT", config.DefaultEnv),
		Verbose:      os.Getenv("LEAPETL_VERBOSE") == "true",
		OutputFormat: os.Getenv("LEAPETL_OUTPUT"),
		Target:       target,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// adapterConfig translates the user-facing target into an adapter config.
func adapterConfig(t *core.TargetConfig) core.AdapterConfig {
	return core.AdapterConfig{
		Type:     strings.ToLower(t.Type),
		Path:     t.Database,
		Database: t.Database,
		Schema:   t.Schema,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// connectTarget opens the configured warehouse.
func connectTarget(ctx context.Context, t *core.TargetConfig, logger *slog.Logger) (adapter.Adapter, error) {
	if t == nil {
		return nil, fmt.Errorf("target is required")
	}
	if err := ensureParentDir(t.Database, strings.ToLower(t.Type) == "duckdb" || strings.ToLower(t.Type) == "sqlite"); err != nil {
		return nil, err
	}
	cfg := adapterConfig(t)
	adp, err := adapter.NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := adp.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("connect to %s target: %w", cfg.Type, err)
	}
	return adp, nil
}

// openStore opens the run history database, creating its directory.
func openStore(ctx context.Context, path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if err := ensureParentDir(path, true); err != nil {
		return nil, err
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(ctx, path); err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return store, nil
}

func ensureParentDir(path string, isFile bool) error {
	if !isFile || path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0750)
}

func createEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	p, err := pipeline.Load(cfg.PipelinePath)
	if err != nil {
		return nil, nil, err
	}

	backend, err := intconfig.NewMetricsBackend(cfg.Metrics)
	if err != nil {
		return nil, nil, err
	}
	job := p.Name
	if cfg.Metrics != nil && cfg.Metrics.Job != "" {
		job = cfg.Metrics.Job
	}

	adp, err := connectTarget(ctx, cfg.Target, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg.StatePath, logger)
	if err != nil {
		_ = adp.Close()
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Pipeline:    p,
		Adapter:     adp,
		Store:       store,
		Metrics:     metrics.NewRecorder(backend, job),
		Environment: cfg.Environment,
		Logger:      logger,
	})
	if err != nil {
		_ = store.Close()
		_ = adp.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := errors.Join(eng.Close(), adp.Close()); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}
	return eng, cleanup, nil
}
