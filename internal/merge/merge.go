// Package merge upserts batches of records into target tables.
//
// A merge updates the declared mutable columns of rows whose business key
// already exists and inserts the rest. It never deletes. The whole batch is
// applied atomically by the target table; any rejection surfaces as a
// *core.MergeConflictError with the target left unchanged.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Policy selects which columns of an existing row a merge overwrites.
type Policy string

// Merge policies.
const (
	// PolicyUpdate overwrites only the declared mutable columns.
	PolicyUpdate Policy = "update"
	// PolicyReplace overwrites every non-key column.
	PolicyReplace Policy = "replace"
)

// Rules is the merge contract for one table.
type Rules struct {
	Policy  Policy   `yaml:"policy,omitempty"`
	Mutable []string `yaml:"mutable,omitempty"`
}

// MutableColumns resolves the columns a merge into schema may overwrite.
func (s Rules) MutableColumns(schema *core.TableSchema) ([]string, error) {
	switch s.Policy {
	case "", PolicyUpdate:
	case PolicyReplace:
		if len(s.Mutable) > 0 {
			return nil, fmt.Errorf("policy %q does not take a mutable list", s.Policy)
		}
		return schema.NonKeyColumns(), nil
	default:
		return nil, fmt.Errorf("unknown merge policy %q", s.Policy)
	}

	seen := make(map[string]bool, len(s.Mutable))
	for _, col := range s.Mutable {
		if _, ok := schema.Column(col); !ok {
			return nil, fmt.Errorf("mutable column %q is not in table %s", col, schema.Name)
		}
		if schema.IsKey(col) {
			return nil, fmt.Errorf("mutable column %q is part of the business key", col)
		}
		if seen[col] {
			return nil, fmt.Errorf("mutable column %q listed twice", col)
		}
		seen[col] = true
	}
	return s.Mutable, nil
}

// Engine merges record batches into tables.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a merge engine. If logger is nil, a discard logger is used.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// Merge upserts recs into table under rules. Records are conformed to the
// table schema first; unknown columns, type mismatches, missing keys and
// duplicate keys within the batch reject the whole merge.
func (e *Engine) Merge(ctx context.Context, table core.Table, recs []core.Record, rules Rules) (core.MergeResult, error) {
	schema := table.Schema()

	mutable, err := rules.MutableColumns(schema)
	if err != nil {
		return core.MergeResult{}, &core.MergeConflictError{Table: schema.Name, Err: err}
	}
	if len(recs) == 0 {
		return core.MergeResult{}, nil
	}

	batch := make([]core.Record, len(recs))
	seen := make(map[string]bool, len(recs))
	for i, r := range recs {
		key, keyErr := schema.KeyOf(r)
		if keyErr != nil {
			return core.MergeResult{}, &core.MergeConflictError{Table: schema.Name, Err: &core.RecordError{Position: i, Err: keyErr}}
		}
		conformed, err := schema.Conform(r)
		if err != nil {
			return core.MergeResult{}, &core.MergeConflictError{Table: schema.Name, Key: key, Err: err}
		}
		id := key.String()
		if seen[id] {
			return core.MergeResult{}, &core.MergeConflictError{Table: schema.Name, Key: key, Err: fmt.Errorf("duplicate key in batch")}
		}
		seen[id] = true
		batch[i] = conformed
	}

	start := time.Now()
	res, err := table.UpsertBatch(ctx, batch, mutable)
	if err != nil {
		e.logger.Error("merge rejected",
			slog.String("table", schema.Name),
			slog.Int("records", len(batch)),
			slog.String("error", err.Error()))
		var mce *core.MergeConflictError
		if errors.As(err, &mce) {
			return core.MergeResult{}, err
		}
		return core.MergeResult{}, &core.MergeConflictError{Table: schema.Name, Err: err}
	}

	e.logger.Info("merged",
		slog.String("table", schema.Name),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}
