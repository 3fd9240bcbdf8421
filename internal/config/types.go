// Package config provides shared configuration types for leapetl.
// This package is decoupled from CLI concerns: it holds the defaults and
// validation rules for warehouse targets and metrics backends.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/leapstack-labs/leapetl/internal/metrics/datadog"
	"github.com/leapstack-labs/leapetl/internal/metrics/prompush"
	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/dialect"
)

// Metrics backends.
const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsDatadog    = "datadog"
)

// MetricsConfig selects where run metrics are sent.
type MetricsConfig struct {
	Backend string `koanf:"backend"` // none, prometheus, datadog
	// URL is the Prometheus Pushgateway address.
	URL string `koanf:"url"`
	// Address is the DogStatsD agent address (host:port).
	Address   string            `koanf:"address"`
	Job       string            `koanf:"job"`
	Namespace string            `koanf:"namespace"`
	Tags      map[string]string `koanf:"tags"`
}

// DefaultSchemaForType returns the default schema for a database type.
// It looks up the dialect in the registry; if not found, returns "main" as fallback.
func DefaultSchemaForType(dbType string) string {
	if d, ok := dialect.Get(dbType); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	// Fallback for unknown types or dialects without a default schema
	return "main"
}

// ValidateTarget checks if the target configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil {
		return fmt.Errorf("target is required")
	}
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}

	// Use adapter registry as single source of truth
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ValidateMetrics checks that the backend is known and has its address.
func ValidateMetrics(m *MetricsConfig) error {
	if m == nil {
		return nil
	}
	switch m.Backend {
	case "", MetricsNone:
		return nil
	case MetricsDatadog:
		if m.Address == "" {
			return fmt.Errorf("metrics.address is required for the datadog backend")
		}
		return nil
	case MetricsPrometheus:
		if m.URL == "" {
			return fmt.Errorf("metrics.url is required for the prometheus backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown metrics backend %q (want %s, %s or %s)", m.Backend, MetricsNone, MetricsPrometheus, MetricsDatadog)
	}
}

// NewMetricsBackend builds the backend selected by m. A nil config or the
// none backend yields metrics.Nop.
func NewMetricsBackend(m *MetricsConfig) (metrics.Backend, error) {
	if m == nil {
		return metrics.Nop{}, nil
	}
	if err := ValidateMetrics(m); err != nil {
		return nil, err
	}
	switch m.Backend {
	case MetricsPrometheus:
		b, err := prompush.NewBackend(m.Job, m.URL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case MetricsDatadog:
		tags := make([]string, 0, len(m.Tags))
		for k, v := range m.Tags {
			tags = append(tags, k+":"+v)
		}
		sort.Strings(tags)
		b, err := datadog.NewBackend(datadog.Config{Addr: m.Address, Namespace: m.Namespace, GlobalTags: tags})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return metrics.Nop{}, nil
	}
}
