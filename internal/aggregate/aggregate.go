// Package aggregate recomputes publish tables from curated tables.
//
// Every run scans the curated source in full, groups it (optionally left
// joining a related table), computes count/sum/avg metrics and bucket
// labels, and merges the result into the publish table with the replace
// policy. Groups without related rows get zero metrics, never null.
//
// The publish table holds exactly the groups of the latest computation:
// rows whose group no longer occurs in the source are deleted after the
// merge when the table supports it (core.Pruner). Source rows with a null
// group column belong to no group and are skipped.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapetl/internal/merge"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/shopspring/decimal"
)

// Aggregator computes and publishes aggregates.
type Aggregator struct {
	merger *merge.Engine
	logger *slog.Logger
}

// New creates an Aggregator that publishes through merger.
// If logger is nil, a discard logger is used.
func New(merger *merge.Engine, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if merger == nil {
		merger = merge.NewEngine(logger)
	}
	return &Aggregator{merger: merger, logger: logger}
}

// Run computes the aggregate from the tables in tables and merges the rows into the
// target table, overwriting every non-key column of existing rows. Target
// rows whose group was not computed are then pruned.
func (a *Aggregator) Run(ctx context.Context, tables core.TableResolver, def *Definition) (core.MergeResult, error) {
	start := time.Now()
	rows, err := a.Compute(ctx, tables, def)
	if err != nil {
		return core.MergeResult{}, err
	}

	target, err := tables.Table(def.Target)
	if err != nil {
		return core.MergeResult{}, fmt.Errorf("aggregate %s: %w", def.Name, err)
	}
	res, err := a.merger.Merge(ctx, target, rows, merge.Rules{Policy: merge.PolicyReplace})
	if err != nil {
		return core.MergeResult{}, fmt.Errorf("aggregate %s: %w", def.Name, err)
	}

	if pruner, ok := target.(core.Pruner); ok {
		res.Deleted, err = a.Prune(ctx, pruner, rows)
		if err != nil {
			return res, fmt.Errorf("aggregate %s: %w", def.Name, err)
		}
	} else {
		a.logger.Warn("publish table cannot delete rows, stale groups are kept",
			slog.String("aggregate", def.Name),
			slog.String("table", def.Target))
	}

	a.logger.Info("aggregate published",
		slog.String("aggregate", def.Name),
		slog.String("table", def.Target),
		slog.Int("groups", len(rows)),
		slog.Int("deleted", res.Deleted),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// Prune deletes every row of target whose key is not among the keys of
// fresh. It returns the number of rows deleted.
func (a *Aggregator) Prune(ctx context.Context, target core.Pruner, fresh []core.Record) (int, error) {
	schema := target.Schema()
	keep := make(map[string]bool, len(fresh))
	for _, r := range fresh {
		conformed, err := schema.Conform(r)
		if err != nil {
			return 0, err
		}
		key, err := schema.KeyOf(conformed)
		if err != nil {
			return 0, err
		}
		keep[key.String()] = true
	}

	var stale []core.Key
	for rec, err := range target.Scan(ctx) {
		if err != nil {
			return 0, fmt.Errorf("scan %s: %w", schema.Name, err)
		}
		key, err := schema.KeyOf(rec)
		if err != nil {
			return 0, err
		}
		if !keep[key.String()] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := target.DeleteKeys(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", schema.Name, err)
	}
	a.logger.Info("pruned stale groups",
		slog.String("table", schema.Name),
		slog.Int("rows", n))
	return n, nil
}

type groupState struct {
	out     core.Record
	related []core.Record
}

// Compute builds the aggregate rows without writing them. Rows come out in
// the order their group first appears in the source scan.
func (a *Aggregator) Compute(ctx context.Context, tables core.TableResolver, def *Definition) ([]core.Record, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	source, err := tables.Table(def.Source)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", def.Name, err)
	}

	var joined map[string][]core.Record
	if def.Join != nil {
		joined, err = a.indexRelated(ctx, tables, def)
		if err != nil {
			return nil, err
		}
	}

	groupBy := def.Groups()
	index := make(map[string]*groupState)
	var order []*groupState
	skipped := 0
	for rec, err := range source.Scan(ctx) {
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: scan %s: %w", def.Name, def.Source, err)
		}
		key, err := core.KeyOf(rec, groupBy)
		if err != nil {
			skipped++
			continue
		}
		id := key.String()

		g, ok := index[id]
		if !ok {
			g = &groupState{out: make(core.Record, len(def.OutputColumns()))}
			for i, f := range groupBy {
				g.out[f] = key[i]
			}
			for _, f := range def.Carry {
				if _, set := g.out[f]; !set {
					g.out[f] = rec[f]
				}
			}
			index[id] = g
			order = append(order, g)
		}

		if def.Join == nil {
			g.related = append(g.related, rec)
			continue
		}
		left := make(core.Key, len(def.Join.LeftKey))
		for i, f := range def.Join.LeftKey {
			left[i] = core.Canonical(rec[f])
		}
		g.related = append(g.related, joined[left.String()]...)
	}

	out := make([]core.Record, len(order))
	for i, g := range order {
		for _, m := range def.Metrics {
			v, err := compute(m, g.related)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s: metric %s: %w", def.Name, m.Name, err)
			}
			g.out[m.Name] = v
		}
		for _, b := range def.Buckets {
			g.out[b.Target] = bucket(b, g.out[b.Metric])
		}
		out[i] = g.out
	}

	if skipped > 0 {
		a.logger.Warn("skipped rows with a null group column",
			slog.String("aggregate", def.Name),
			slog.String("source", def.Source),
			slog.Int("rows", skipped))
	}
	a.logger.Debug("aggregate computed",
		slog.String("aggregate", def.Name),
		slog.Int("groups", len(out)))
	return out, nil
}

// indexRelated scans the join table once and indexes its rows by right key.
// Rows with a null key cannot match and are ignored.
func (a *Aggregator) indexRelated(ctx context.Context, tables core.TableResolver, def *Definition) (map[string][]core.Record, error) {
	related, err := tables.Table(def.Join.Table)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", def.Name, err)
	}
	index := make(map[string][]core.Record)
	for rec, err := range related.Scan(ctx) {
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: scan %s: %w", def.Name, def.Join.Table, err)
		}
		key, err := core.KeyOf(rec, def.Join.RightKey)
		if err != nil {
			continue
		}
		id := key.String()
		index[id] = append(index[id], rec)
	}
	return index, nil
}

// compute evaluates one metric. Null values are skipped, as in SQL.
func compute(m Metric, rows []core.Record) (any, error) {
	if m.Func == FuncCount {
		var n int64
		for _, r := range rows {
			if m.Field == "" || r[m.Field] != nil {
				n++
			}
		}
		return n, nil
	}

	sum := decimal.Zero
	var n int64
	for _, r := range rows {
		v := r[m.Field]
		if v == nil {
			continue
		}
		d, err := core.ToDecimal(v)
		if err != nil {
			return nil, err
		}
		sum = sum.Add(d)
		n++
	}

	switch m.Func {
	case FuncSum:
		return sum, nil
	case FuncAvg:
		if n == 0 {
			return decimal.Zero, nil
		}
		scale := DefaultAvgScale
		if m.Scale != nil {
			scale = *m.Scale
		}
		return sum.DivRound(decimal.NewFromInt(n), scale), nil
	}
	return nil, fmt.Errorf("unknown function %q", m.Func)
}

// bucket returns the label of the first rule whose minimum the value meets.
func bucket(b Buckets, v any) string {
	d, err := core.ToDecimal(v)
	if err != nil {
		return b.Default
	}
	for _, r := range b.Rules {
		threshold, err := decimal.NewFromString(r.Min)
		if err != nil {
			continue
		}
		if d.GreaterThanOrEqual(threshold) {
			return r.Label
		}
	}
	return b.Default
}
