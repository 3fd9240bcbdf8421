// Package state records pipeline run history in SQLite.
//
// Every run gets a UUID, a status and the fingerprint of the raw batch it
// consumed. Each stage applied to a table during the run is stored as a
// stage run with its row counts, so a run can be audited after the fact.
package state

import (
	"context"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Store persists run history.
type Store interface {
	CreateRun(ctx context.Context, pipeline, env string) (*core.Run, error)
	SetRunBatchHash(ctx context.Context, runID, hash string) error
	CompleteRun(ctx context.Context, runID string, status core.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*core.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*core.Run, error)

	StartStage(ctx context.Context, runID, table, stage string) (*core.StageRun, error)
	FinishStage(ctx context.Context, sr *core.StageRun, stageErr error) error
	ListStages(ctx context.Context, runID string) ([]*core.StageRun, error)

	BatchHash(ctx context.Context, pipeline, source string) (string, error)
	SetBatchHash(ctx context.Context, pipeline, source, hash, runID string) error

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
