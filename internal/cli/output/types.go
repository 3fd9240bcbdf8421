package output

import "time"

// RunOutput is the JSON shape of a pipeline run.
type RunOutput struct {
	RunID       string            `json:"run_id"`
	Pipeline    string            `json:"pipeline"`
	Environment string            `json:"environment"`
	Status      string            `json:"status"`
	BatchHash   string            `json:"batch_hash,omitempty"`
	Error       string            `json:"error,omitempty"`
	Unchanged   []string          `json:"unchanged_sources,omitempty"`
	Entities    []EntityOutput    `json:"entities"`
	Aggregates  []AggregateOutput `json:"aggregates"`
	DurationMS  int64             `json:"duration_ms"`
}

// EntityOutput summarizes one entity of a run.
type EntityOutput struct {
	Entity     string            `json:"entity"`
	Read       int               `json:"read"`
	Landed     int64             `json:"landed"`
	Rejected   []RejectionOutput `json:"rejected,omitempty"`
	Duplicates int               `json:"duplicates"`
	Inserted   int               `json:"inserted"`
	Updated    int               `json:"updated"`
}

// RejectionOutput describes one rejected raw record.
type RejectionOutput struct {
	Position int    `json:"position"`
	Error    string `json:"error"`
}

// AggregateOutput summarizes one aggregate of a run.
type AggregateOutput struct {
	Aggregate string `json:"aggregate"`
	Table     string `json:"table"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Deleted   int    `json:"deleted"`
}

// RunInfo is one row of the run history.
type RunInfo struct {
	ID          string      `json:"id"`
	Pipeline    string      `json:"pipeline"`
	Environment string      `json:"environment"`
	Status      string      `json:"status"`
	BatchHash   string      `json:"batch_hash,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	Stages      []StageInfo `json:"stages,omitempty"`
}

// StageInfo is one stage of a recorded run.
type StageInfo struct {
	Table      string `json:"table"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	RowsIn     int64  `json:"rows_in"`
	RowsOut    int64  `json:"rows_out"`
	Rejected   int64  `json:"rejected"`
	Inserted   int64  `json:"inserted"`
	Updated    int64  `json:"updated"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ValidateOutput is the JSON shape of the validate command.
type ValidateOutput struct {
	Valid    bool          `json:"valid"`
	Pipeline string        `json:"pipeline"`
	Target   string        `json:"target"`
	Checks   []CheckOutput `json:"checks"`
}

// CheckOutput is one validation check.
type CheckOutput struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// TableOutput is the JSON shape of a table dump.
type TableOutput struct {
	Table   string           `json:"table"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int              `json:"total"`
}

// DAGOutput is the JSON shape of the dag command.
type DAGOutput struct {
	Pipeline   string     `json:"pipeline"`
	Levels     []DAGLevel `json:"levels"`
	TotalNodes int        `json:"total_nodes"`
	TotalEdges int        `json:"total_edges"`
}

// DAGLevel groups the nodes built at one level.
type DAGLevel struct {
	Level int       `json:"level"`
	Nodes []DAGNode `json:"nodes"`
}

// DAGNode is one source, entity or aggregate in the graph.
type DAGNode struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}
