package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// StartStage records that a stage began on a table.
func (s *SQLiteStore) StartStage(ctx context.Context, runID, table, stage string) (*core.StageRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	sr := &core.StageRun{
		ID:        generateID(),
		RunID:     runID,
		Table:     table,
		Stage:     stage,
		Status:    core.StageStatusRunning,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, run_id, table_name, stage, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.RunID, sr.Table, sr.Stage, string(sr.Status), sr.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start stage %s/%s: %w", table, stage, err)
	}
	return sr, nil
}

// FinishStage stores the counts on sr and marks it successful, or failed
// when stageErr is non-nil.
func (s *SQLiteStore) FinishStage(ctx context.Context, sr *core.StageRun, stageErr error) error {
	if s.db == nil {
		return errNotOpen
	}
	now := s.now()
	sr.CompletedAt = &now
	sr.Status = core.StageStatusSuccess
	if stageErr != nil {
		sr.Status = core.StageStatusFailed
		sr.Error = stageErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `UPDATE stage_runs
		SET status = ?, rows_in = ?, rows_out = ?, rejected = ?, inserted = ?, updated = ?, completed_at = ?, error = ?
		WHERE id = ?`,
		string(sr.Status), sr.RowsIn, sr.RowsOut, sr.Rejected, sr.Inserted, sr.Updated, now, nullString(sr.Error), sr.ID)
	if err != nil {
		return fmt.Errorf("failed to finish stage %s/%s: %w", sr.Table, sr.Stage, err)
	}
	return nil
}

// ListStages returns the stages of a run in the order they started.
func (s *SQLiteStore) ListStages(ctx context.Context, runID string) ([]*core.StageRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, table_name, stage, status,
			rows_in, rows_out, rejected, inserted, updated, started_at, completed_at, error
		FROM stage_runs WHERE run_id = ? ORDER BY started_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.StageRun
	for rows.Next() {
		var (
			sr          core.StageRun
			status      string
			completedAt sql.NullTime
			errMsg      sql.NullString
		)
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Table, &sr.Stage, &status,
			&sr.RowsIn, &sr.RowsOut, &sr.Rejected, &sr.Inserted, &sr.Updated,
			&sr.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		sr.Status = core.StageStatus(status)
		sr.StartedAt = sr.StartedAt.UTC()
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			sr.CompletedAt = &t
		}
		sr.Error = errMsg.String
		out = append(out, &sr)
	}
	return out, rows.Err()
}
