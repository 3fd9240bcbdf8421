package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Catalog resolves curated and publish tables by name.
type Catalog struct {
	adp    adapter.Adapter
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCatalog creates an empty catalog on adp.
func NewCatalog(adp adapter.Adapter, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{adp: adp, logger: logger, tables: make(map[string]*Table)}
}

// Register adds def in namespace ns. Table names are unique across
// namespaces.
func (c *Catalog) Register(ns string, def *core.TableSchema) (*Table, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[def.Name]; ok {
		return nil, fmt.Errorf("table %s registered twice", def.Name)
	}
	t := NewTable(c.adp, ns, def, c.logger)
	c.tables[def.Name] = t
	return t, nil
}

// Table implements core.TableResolver.
func (c *Catalog) Table(name string) (core.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s not found", name)
	}
	return t, nil
}

// Tables returns the registered tables sorted by name.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].def.Name < out[j].def.Name })
	return out
}

// EnsureSchema creates namespace ns if the dialect has schemas.
func (c *Catalog) EnsureSchema(ctx context.Context, ns string) error {
	return ensureSchema(ctx, c.adp, ns)
}

func ensureSchema(ctx context.Context, adp adapter.Adapter, ns string) error {
	if ns == "" {
		return nil
	}
	stmt := adp.Dialect().CreateSchemaSQL(ns)
	if stmt == "" {
		return nil
	}
	if err := adp.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create schema %s: %w", ns, err)
	}
	return nil
}

// EnsureAll creates every registered namespace and table that is missing.
func (c *Catalog) EnsureAll(ctx context.Context) error {
	tables := c.Tables()
	done := make(map[string]bool)
	for _, t := range tables {
		if done[t.ns] {
			continue
		}
		done[t.ns] = true
		if err := c.EnsureSchema(ctx, t.ns); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if err := t.Ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}
