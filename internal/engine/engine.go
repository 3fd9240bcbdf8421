// Package engine runs a pipeline through the RAW, CURATED and PUBLISH layers.
//
// A run optionally lands every raw batch, then normalizes, deduplicates and
// merges it into its curated entity table, and finally recomputes every
// publish aggregate from the full curated state. Re-running the same batch
// leaves the curated and publish tables unchanged, except for columns derived
// from the run date.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapetl/internal/aggregate"
	"github.com/leapstack-labs/leapetl/internal/dedup"
	"github.com/leapstack-labs/leapetl/internal/memtable"
	"github.com/leapstack-labs/leapetl/internal/merge"
	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/leapstack-labs/leapetl/internal/normalize"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/leapstack-labs/leapetl/internal/state"
	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/warehouse"
)

// Engine executes one pipeline. It never runs two batches at once.
type Engine struct {
	mu sync.Mutex

	pipeline *pipeline.Pipeline
	store    state.Store
	metrics  *metrics.Recorder
	env      string
	now      func() time.Time
	logger   *slog.Logger

	tables      core.TableResolver
	provision   func(ctx context.Context) error
	provisioned bool
	landing     *warehouse.RawLanding

	normalizers map[string]*normalize.Normalizer
	dedupers    map[string]*dedup.Deduplicator
	merger      *merge.Engine
	aggregator  *aggregate.Aggregator
}

// Config holds engine configuration.
type Config struct {
	// Pipeline is the validated pipeline definition.
	Pipeline *pipeline.Pipeline
	// Adapter is a connected warehouse. When nil every table lives in memory
	// for the lifetime of the engine and raw landing is skipped.
	Adapter adapter.Adapter
	// Store records run history (optional).
	Store state.Store
	// Metrics receives stage and record counters (optional).
	Metrics *metrics.Recorder
	// Environment is recorded on every run (defaults to "dev").
	Environment string
	// Now is the clock for run timestamps and time-relative derivations.
	Now func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New compiles the pipeline and resolves its tables. No warehouse statement
// is issued until the first Run.
func New(cfg Config) (*Engine, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("engine: pipeline is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewRecorder(nil, cfg.Pipeline.Name)
	}

	p := cfg.Pipeline
	logger.Debug("initializing engine", "pipeline", p.Name, "environment", env)

	e := &Engine{
		pipeline:    p,
		store:       cfg.Store,
		metrics:     rec,
		env:         env,
		now:         now,
		logger:      logger,
		normalizers: make(map[string]*normalize.Normalizer, len(p.Entities)),
		dedupers:    make(map[string]*dedup.Deduplicator, len(p.Entities)),
		merger:      merge.NewEngine(logger),
	}
	e.aggregator = aggregate.New(e.merger, logger)

	for i := range p.Entities {
		ent := &p.Entities[i]
		n, err := normalize.New(normalize.Config{
			Mappings: ent.Mappings,
			Now:      now,
			Logger:   logger.With("entity", ent.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", ent.Name, err)
		}
		e.normalizers[ent.Name] = n
		e.dedupers[ent.Name] = dedup.New(ent.Key, ent.Dedup.OrderBy, logger.With("entity", ent.Name))
	}

	var err error
	if cfg.Adapter != nil {
		err = e.useWarehouse(cfg.Adapter)
	} else {
		err = e.useMemory()
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) useWarehouse(adp adapter.Adapter) error {
	p := e.pipeline
	cat := warehouse.NewCatalog(adp, e.logger)
	for i := range p.Entities {
		if _, err := cat.Register(p.Namespaces.Curated, p.Entities[i].Schema()); err != nil {
			return err
		}
	}
	for _, agg := range p.Aggregates {
		schema, err := p.AggregateSchema(agg)
		if err != nil {
			return err
		}
		if _, err := cat.Register(p.Namespaces.Publish, schema); err != nil {
			return err
		}
	}
	e.tables = cat
	if p.AutoCreate {
		e.provision = cat.EnsureAll
	}
	if p.LandRaw {
		e.landing = warehouse.NewRawLanding(adp, p.Namespaces.Raw, e.logger)
	}
	return nil
}

func (e *Engine) useMemory() error {
	p := e.pipeline
	cat := memtable.NewCatalog()
	for i := range p.Entities {
		if _, err := cat.Create(p.Entities[i].Schema()); err != nil {
			return err
		}
	}
	for _, agg := range p.Aggregates {
		schema, err := p.AggregateSchema(agg)
		if err != nil {
			return err
		}
		if _, err := cat.Create(schema); err != nil {
			return err
		}
	}
	e.tables = cat
	if p.LandRaw {
		e.logger.Warn("raw landing needs a warehouse, skipping", "pipeline", p.Name)
	}
	return nil
}

// Tables resolves the curated and publish tables of the pipeline.
func (e *Engine) Tables() core.TableResolver {
	return e.tables
}

// Pipeline returns the pipeline the engine executes.
func (e *Engine) Pipeline() *pipeline.Pipeline {
	return e.pipeline
}

// Close flushes metrics and closes the state store. The warehouse adapter
// belongs to the caller.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if err := e.metrics.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush metrics: %w", err))
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
