package config

import "github.com/leapstack-labs/leapetl/pkg/core"

// Default configuration values.
const (
	DefaultPipelineFile   = "pipeline.yaml"
	DefaultStateFile      = ".leapetl/state.db"
	DefaultEnv            = "dev"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultTargetType     = "duckdb"
	DefaultMetricsBackend = MetricsNone
	DefaultMetricsJob     = "leapetl"
)

// Default ports for network targets.
var defaultPorts = map[string]int{
	"postgres": 5432,
	"mysql":    3306,
	"mssql":    1433,
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}

	// Apply default schema based on type
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	if port, ok := defaultPorts[t.Type]; ok && t.Port == 0 && t.Host != "" {
		t.Port = port
	}
}

// ApplyMetricsDefaults fills unset metrics settings.
func ApplyMetricsDefaults(m *MetricsConfig) {
	if m == nil {
		return
	}
	if m.Backend == "" {
		m.Backend = DefaultMetricsBackend
	}
	if m.Job == "" {
		m.Job = DefaultMetricsJob
	}
}
