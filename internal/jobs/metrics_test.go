package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("overdue_scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("overdue_scan").End(boom), boom)
	m.AddProcessed("overdue_scan", 4)
	m.AddProcessed("overdue_scan", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("overdue_scan", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("overdue_scan", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("overdue_scan")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.processed.WithLabelValues("overdue_scan")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddProcessed("x", 3)
}
