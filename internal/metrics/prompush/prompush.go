// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. Batch runs are short lived, so metrics are pushed once at
// the end of a run instead of being scraped.
package prompush

import (
	"fmt"

	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stageCounter  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	recordCounter *prometheus.CounterVec
}

// NewBackend constructs a backend pushing to gatewayURL under jobName
// (default "leapetl").
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "leapetl"
	}

	stageCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.StageTotal,
		Help: "Stage executions by table, stage and status.",
	}, []string{"table", "stage", "status"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.StageDurationSeconds,
		Help:    "Stage duration in seconds by table, stage and status.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"table", "stage", "status"})
	recordCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.RecordsTotal,
		Help: "Records by table and kind (read, rejected, duplicates, inserted, updated).",
	}, []string{"table", "kind"})

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{stageCounter, stageDuration, recordCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stageCounter:  stageCounter,
		stageDuration: stageDuration,
		recordCounter: recordCounter,
	}, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		b.stageCounter.WithLabelValues(labels["table"], labels["stage"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDurationSeconds {
		return
	}
	b.stageDuration.WithLabelValues(labels["table"], labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
