package engine

// run.go - Execution of one raw batch through the three layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapetl/internal/aggregate"
	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/leapstack-labs/leapetl/internal/normalize"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/leapstack-labs/leapetl/pkg/core"
)

// EntityResult summarizes what a run did to one curated entity.
type EntityResult struct {
	Entity     string
	Read       int
	Landed     int64
	Rejected   []normalize.Rejection
	Duplicates int
	Merge      core.MergeResult
}

// AggregateResult summarizes one publish aggregate.
type AggregateResult struct {
	Aggregate string
	Table     string
	Merge     core.MergeResult
}

// Result is the outcome of Run. On failure it holds the work done before
// the failing stage.
type Result struct {
	Run        *core.Run
	Entities   []EntityResult
	Aggregates []AggregateResult
	// Unchanged lists the sources whose batch fingerprint equals the one
	// recorded by the previous successful run.
	Unchanged []string
}

// Run executes the pipeline on batches, keyed by source name. Entities are
// processed in declaration order, then aggregates. The first failing stage
// stops the run and marks it failed.
func (e *Engine) Run(ctx context.Context, batches map[string]*Batch) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pipeline
	for _, src := range p.Sources() {
		if _, ok := batches[src]; !ok {
			return nil, fmt.Errorf("no batch for source %s", src)
		}
	}

	run, err := e.startRun(ctx)
	if err != nil {
		return nil, err
	}
	log := e.logger.With("run_id", run.ID)
	log.Info("starting run", "pipeline", p.Name, "environment", e.env)

	res := &Result{Run: run}
	runErr := e.execute(ctx, log, run, batches, res)
	res.Run = e.finishRun(ctx, log, run, runErr)
	return res, runErr
}

func (e *Engine) startRun(ctx context.Context) (*core.Run, error) {
	if e.store == nil {
		return &core.Run{
			ID:          uuid.New().String(),
			Pipeline:    e.pipeline.Name,
			Environment: e.env,
			Status:      core.RunStatusRunning,
			StartedAt:   e.now().UTC(),
		}, nil
	}
	run, err := e.store.CreateRun(ctx, e.pipeline.Name, e.env)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (e *Engine) finishRun(ctx context.Context, log *slog.Logger, run *core.Run, runErr error) *core.Run {
	completed := e.now().UTC()
	run.CompletedAt = &completed
	run.Status = core.RunStatusCompleted
	if runErr != nil {
		run.Status = core.RunStatusFailed
		run.Error = runErr.Error()
		log.Info("run failed", "error", runErr.Error())
	} else {
		log.Info("run completed")
	}

	if e.store == nil {
		return run
	}
	// A cancelled run is still recorded as failed.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.CompleteRun(ctx, run.ID, run.Status, run.Error); err != nil {
		log.Error("failed to record run completion", "error", err.Error())
		return run
	}
	stored, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		return run
	}
	return stored
}

func (e *Engine) execute(ctx context.Context, log *slog.Logger, run *core.Run, batches map[string]*Batch, res *Result) error {
	p := e.pipeline

	hashes, err := e.fingerprint(ctx, log, run, batches, res)
	if err != nil {
		return err
	}

	if e.provision != nil && !e.provisioned {
		if err := e.provision(ctx); err != nil {
			return fmt.Errorf("provision warehouse: %w", err)
		}
		e.provisioned = true
	}

	landed := make(map[string]bool)
	for i := range p.Entities {
		ent := &p.Entities[i]
		er, err := e.runEntity(ctx, log.With("entity", ent.Name), run.ID, ent, batches[ent.Source], landed)
		res.Entities = append(res.Entities, er)
		if err != nil {
			return fmt.Errorf("entity %s: %w", ent.Name, err)
		}
	}

	for _, agg := range p.Aggregates {
		ar, err := e.runAggregate(ctx, log.With("aggregate", agg.Name), run.ID, agg)
		res.Aggregates = append(res.Aggregates, ar)
		if err != nil {
			return err
		}
	}

	if e.store != nil {
		for src, h := range hashes {
			if err := e.store.SetBatchHash(ctx, p.Name, src, h, run.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// fingerprint hashes every source batch and compares it with the batch the
// previous run consumed. An unchanged batch is reported, not skipped.
func (e *Engine) fingerprint(ctx context.Context, log *slog.Logger, run *core.Run, batches map[string]*Batch, res *Result) (map[string]string, error) {
	p := e.pipeline
	hashes := make(map[string]string)
	for _, src := range p.Sources() {
		h := Fingerprint(batches[src].Records)
		hashes[src] = h
		if e.store == nil {
			continue
		}
		prev, err := e.store.BatchHash(ctx, p.Name, src)
		if err != nil {
			return nil, err
		}
		if prev == h {
			log.Info("batch unchanged since last run", "source", src, "hash", h)
			res.Unchanged = append(res.Unchanged, src)
		}
	}

	run.BatchHash = combineFingerprints(hashes)
	if e.store != nil {
		if err := e.store.SetRunBatchHash(ctx, run.ID, run.BatchHash); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

func (e *Engine) runEntity(ctx context.Context, log *slog.Logger, runID string, ent *pipeline.Entity, b *Batch, landed map[string]bool) (EntityResult, error) {
	res := EntityResult{Entity: ent.Name, Read: len(b.Records)}
	e.metrics.Records(ent.Name, metrics.KindRead, int64(len(b.Records)))

	if e.landing != nil && !landed[b.Source] && len(b.Records) > 0 {
		landed[b.Source] = true
		err := e.stage(ctx, log, runID, b.Source, core.StageLand, func(sr *core.StageRun) error {
			sr.RowsIn = int64(len(b.Records))
			n, err := e.landing.Land(ctx, b.Source, b.Columns, b.Records, runID, e.now())
			sr.RowsOut = n
			res.Landed = n
			return err
		})
		if err != nil {
			return res, err
		}
	}

	var normalized []core.Record
	err := e.stage(ctx, log, runID, ent.Name, core.StageNormalize, func(sr *core.StageRun) error {
		sr.RowsIn = int64(len(b.Records))
		out, err := e.normalizers[ent.Name].NormalizeBatch(b.Records, ent.ErrorPolicy)
		if err != nil {
			return err
		}
		if err := rejectKeyless(out, ent.Key, ent.ErrorPolicy); err != nil {
			return err
		}
		normalized = out.Records
		res.Rejected = out.Rejected
		sr.RowsOut = int64(len(out.Records))
		sr.Rejected = int64(len(out.Rejected))
		e.metrics.Records(ent.Name, metrics.KindRejected, sr.Rejected)
		return nil
	})
	if err != nil {
		return res, err
	}

	var survivors []core.Record
	err = e.stage(ctx, log, runID, ent.Name, core.StageDedup, func(sr *core.StageRun) error {
		sr.RowsIn = int64(len(normalized))
		out, err := e.dedupers[ent.Name].Dedup(normalized)
		if err != nil {
			return err
		}
		survivors = out
		res.Duplicates = len(normalized) - len(out)
		sr.RowsOut = int64(len(out))
		e.metrics.Records(ent.Name, metrics.KindDropped, int64(res.Duplicates))
		return nil
	})
	if err != nil {
		return res, err
	}

	err = e.stage(ctx, log, runID, ent.Name, core.StageMerge, func(sr *core.StageRun) error {
		sr.RowsIn = int64(len(survivors))
		tbl, err := e.tables.Table(ent.Name)
		if err != nil {
			return err
		}
		mr, err := e.merger.Merge(ctx, tbl, survivors, ent.Merge)
		if err != nil {
			return err
		}
		res.Merge = mr
		recordMerge(sr, mr)
		e.metrics.Records(ent.Name, metrics.KindInserted, int64(mr.Inserted))
		e.metrics.Records(ent.Name, metrics.KindUpdated, int64(mr.Updated))
		return nil
	})
	if err != nil {
		return res, err
	}

	log.Info("entity merged",
		"read", res.Read,
		"rejected", len(res.Rejected),
		"duplicates", res.Duplicates,
		"inserted", res.Merge.Inserted,
		"updated", res.Merge.Updated)
	return res, nil
}

func (e *Engine) runAggregate(ctx context.Context, log *slog.Logger, runID string, agg *aggregate.Definition) (AggregateResult, error) {
	res := AggregateResult{Aggregate: agg.Name, Table: agg.Target}
	err := e.stage(ctx, log, runID, agg.Target, core.StageAggregate, func(sr *core.StageRun) error {
		mr, err := e.aggregator.Run(ctx, e.tables, agg)
		if err != nil {
			return err
		}
		res.Merge = mr
		recordMerge(sr, mr)
		e.metrics.Records(agg.Target, metrics.KindInserted, int64(mr.Inserted))
		e.metrics.Records(agg.Target, metrics.KindUpdated, int64(mr.Updated))
		e.metrics.Records(agg.Target, metrics.KindDeleted, int64(mr.Deleted))
		return nil
	})
	if err != nil {
		return res, err
	}
	log.Info("aggregate published", "table", agg.Target,
		"inserted", res.Merge.Inserted,
		"updated", res.Merge.Updated,
		"deleted", res.Merge.Deleted)
	return res, nil
}

// stage runs fn as one recorded stage on table. fn fills in the counts.
func (e *Engine) stage(ctx context.Context, log *slog.Logger, runID, table, name string, fn func(sr *core.StageRun) error) error {
	sr := &core.StageRun{
		RunID:     runID,
		Table:     table,
		Stage:     name,
		Status:    core.StageStatusRunning,
		StartedAt: e.now().UTC(),
	}
	if e.store != nil {
		started, err := e.store.StartStage(ctx, runID, table, name)
		if err != nil {
			return err
		}
		sr = started
	}

	begin := time.Now()
	err := fn(sr)
	e.metrics.Stage(table, name, err, time.Since(begin))

	if e.store != nil {
		if ferr := e.store.FinishStage(context.WithoutCancel(ctx), sr, err); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}
	if err != nil {
		log.Error("stage failed", "table", table, "stage", name, "error", err.Error())
		return err
	}
	log.Debug("stage completed", "table", table, "stage", name, "rows_in", sr.RowsIn, "rows_out", sr.RowsOut)
	return nil
}

func recordMerge(sr *core.StageRun, mr core.MergeResult) {
	sr.Inserted = int64(mr.Inserted)
	sr.Updated = int64(mr.Updated)
	sr.RowsOut = sr.Inserted + sr.Updated
}

// rejectKeyless applies the error policy to normalized records whose
// business key is incomplete. Rejections keep raw batch positions.
func rejectKeyless(res *normalize.BatchResult, key []string, policy core.ErrorPolicy) error {
	skipped := make(map[int]bool, len(res.Rejected))
	for _, r := range res.Rejected {
		skipped[r.Position] = true
	}

	kept := res.Records[:0]
	pos := 0
	for _, rec := range res.Records {
		for skipped[pos] {
			pos++
		}
		if _, err := core.KeyOf(rec, key); err != nil {
			if policy == core.ErrorPolicyAbort {
				return &core.RecordError{Position: pos, Err: err}
			}
			res.Rejected = append(res.Rejected, normalize.Rejection{Position: pos, Err: err})
		} else {
			kept = append(kept, rec)
		}
		pos++
	}
	res.Records = kept
	slices.SortFunc(res.Rejected, func(a, b normalize.Rejection) int { return a.Position - b.Position })
	return nil
}
