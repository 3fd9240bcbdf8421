package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leapetl/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapetl/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapetl/pkg/adapters/sqlite"
)

func TestApplyTargetDefaults(t *testing.T) {
	tests := []struct {
		name   string
		target core.TargetConfig
		want   core.TargetConfig
	}{
		{
			name:   "empty defaults to duckdb",
			target: core.TargetConfig{},
			want:   core.TargetConfig{Type: "duckdb", Schema: "main"},
		},
		{
			name:   "postgres gets public and port",
			target: core.TargetConfig{Type: "postgres", Host: "db"},
			want:   core.TargetConfig{Type: "postgres", Host: "db", Port: 5432, Schema: "public"},
		},
		{
			name:   "explicit values kept",
			target: core.TargetConfig{Type: "postgres", Host: "db", Port: 6543, Schema: "etl"},
			want:   core.TargetConfig{Type: "postgres", Host: "db", Port: 6543, Schema: "etl"},
		},
		{
			name:   "sqlite falls back to main",
			target: core.TargetConfig{Type: "sqlite", Database: "w.db"},
			want:   core.TargetConfig{Type: "sqlite", Database: "w.db", Schema: "main"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.target
			ApplyTargetDefaults(&got)
			assert.Equal(t, tt.want, got)
		})
	}

	ApplyTargetDefaults(nil)
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name      string
		target    *core.TargetConfig
		errSubstr string
	}{
		{name: "nil", target: nil, errSubstr: "target is required"},
		{name: "empty type", target: &core.TargetConfig{}, errSubstr: "target type is required"},
		{name: "duckdb", target: &core.TargetConfig{Type: "duckdb"}},
		{name: "uppercase", target: &core.TargetConfig{Type: "SQLite"}},
		{name: "unknown", target: &core.TargetConfig{Type: "oracle"}, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.target)
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestValidateMetrics(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *MetricsConfig
		errSubstr string
	}{
		{name: "nil", cfg: nil},
		{name: "none", cfg: &MetricsConfig{Backend: MetricsNone}},
		{name: "prometheus without url", cfg: &MetricsConfig{Backend: MetricsPrometheus}, errSubstr: "metrics.url"},
		{name: "prometheus", cfg: &MetricsConfig{Backend: MetricsPrometheus, URL: "http://gw:9091"}},
		{name: "datadog without address", cfg: &MetricsConfig{Backend: MetricsDatadog}, errSubstr: "metrics.address"},
		{name: "unknown", cfg: &MetricsConfig{Backend: "graphite"}, errSubstr: "unknown metrics backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetrics(tt.cfg)
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestNewMetricsBackend(t *testing.T) {
	b, err := NewMetricsBackend(nil)
	require.NoError(t, err)
	assert.Equal(t, metrics.Nop{}, b)

	m := &MetricsConfig{}
	ApplyMetricsDefaults(m)
	assert.Equal(t, MetricsNone, m.Backend)
	assert.Equal(t, DefaultMetricsJob, m.Job)
	b, err = NewMetricsBackend(m)
	require.NoError(t, err)
	assert.Equal(t, metrics.Nop{}, b)

	b, err = NewMetricsBackend(&MetricsConfig{Backend: MetricsPrometheus, URL: "http://127.0.0.1:9091", Job: "nightly"})
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = NewMetricsBackend(&MetricsConfig{Backend: "graphite"})
	assert.Error(t, err)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, "", FindProjectRoot(nested, 10))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("pipeline: p.yaml\n"), 0o600))
	assert.Equal(t, root, FindProjectRoot(nested, 10))
	assert.Equal(t, "", FindProjectRoot(nested, 1))
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("pipeline: p.yaml\n"), 0o600))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(root))
}
