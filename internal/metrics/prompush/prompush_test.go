package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	_, err := NewBackend("etl", "")
	assert.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "leapetl", b.jobName)
}

func TestBackend_Counters(t *testing.T) {
	b, err := NewBackend("etl", "http://example.com")
	require.NoError(t, err)

	rec := metrics.NewRecorder(b, "etl")
	rec.Records("orders", metrics.KindInserted, 4)
	rec.Records("orders", metrics.KindInserted, 1)
	rec.Stage("orders", "merge", nil, 0)
	b.IncCounter("unknown_metric", 10, nil)

	assert.Equal(t, float64(5), testutil.ToFloat64(b.recordCounter.WithLabelValues("orders", metrics.KindInserted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.stageCounter.WithLabelValues("orders", "merge", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(b.stageDuration))
}

func TestBackend_Flush(t *testing.T) {
	var (
		method string
		path   string
		body   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() { _ = r.Body.Close() }()
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("nightly", server.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"table": "customers", "kind": metrics.KindRead})

	require.NoError(t, b.Flush())
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/nightly", path)
	assert.NotEmpty(t, body)
}
