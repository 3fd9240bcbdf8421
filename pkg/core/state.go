package core

import "time"

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one execution of a pipeline.
type Run struct {
	ID          string
	Pipeline    string
	Environment string
	Status      RunStatus
	BatchHash   string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Stage names recorded for every entity or aggregate processed in a run.
const (
	StageLand      = "land"
	StageNormalize = "normalize"
	StageDedup     = "dedup"
	StageMerge     = "merge"
	StageAggregate = "aggregate"
)

// StageStatus represents the outcome of one stage.
type StageStatus string

// Stage status constants.
const (
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusFailed  StageStatus = "failed"
)

// StageRun records one stage applied to one table during a run.
type StageRun struct {
	ID          string
	RunID       string
	Table       string
	Stage       string
	Status      StageStatus
	RowsIn      int64
	RowsOut     int64
	Rejected    int64
	Inserted    int64
	Updated     int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration returns how long the stage took, zero while it is still running.
func (s *StageRun) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
