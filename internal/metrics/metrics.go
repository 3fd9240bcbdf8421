// Package metrics records operational metrics for pipeline runs through a
// pluggable Backend. The zero configuration uses Nop, so instrumented code
// never has to check whether metrics are enabled.
package metrics

import "time"

// Metric names emitted by Recorder.
const (
	StageTotal           = "etl_stage_total"
	StageDurationSeconds = "etl_stage_duration_seconds"
	RecordsTotal         = "etl_records_total"
)

// Record kinds counted under RecordsTotal.
const (
	KindRead     = "read"
	KindRejected = "rejected"
	KindDropped  = "duplicates"
	KindInserted = "inserted"
	KindUpdated  = "updated"
	KindDeleted  = "deleted"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

// Nop discards every metric.
type Nop struct{}

// IncCounter implements Backend.
func (Nop) IncCounter(string, float64, Labels) {}

// ObserveHistogram implements Backend.
func (Nop) ObserveHistogram(string, float64, Labels) {}

// Flush implements Backend.
func (Nop) Flush() error { return nil }

// Recorder emits the pipeline metrics for one job on a Backend.
type Recorder struct {
	backend Backend
	job     string
}

// NewRecorder returns a Recorder for job. A nil backend records nothing.
func NewRecorder(backend Backend, job string) *Recorder {
	if backend == nil {
		backend = Nop{}
	}
	return &Recorder{backend: backend, job: job}
}

// Stage counts one stage execution on table and observes its duration.
func (r *Recorder) Stage(table, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": r.job, "table": table, "stage": stage, "status": status}
	r.backend.IncCounter(StageTotal, 1, lbls)
	r.backend.ObserveHistogram(StageDurationSeconds, d.Seconds(), lbls)
}

// Records adds delta records of kind for table. Non-positive deltas are
// ignored.
func (r *Recorder) Records(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	r.backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": r.job, "table": table, "kind": kind})
}

// Flush delegates to the backend.
func (r *Recorder) Flush() error {
	return r.backend.Flush()
}
