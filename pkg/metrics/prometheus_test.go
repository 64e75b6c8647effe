package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordIngested("http")
	r.RecordIngested("http")
	r.RecordRejected("kafka", "ERR_INVALID_VALUE")
	r.RecordAlert("HIGH")
	r.RecordSinkError("webhook")
	r.RecordSeries(4)
	r.RecordLatency("scan", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ingested.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejected.WithLabelValues("kafka", "ERR_INVALID_VALUE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sinkErrors.WithLabelValues("webhook")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.series))

	n, err := testutil.GatherAndCount(reg, "kpi_operation_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
