package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("direct", "ok", 120*time.Millisecond)
	m.HandlerFailed("threat")
	m.HandlerFailed("threat")
	m.RetentionDeleted("risk", 3)
	m.RetentionDeleted("risk", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("direct", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HandlerFailuresTotal.WithLabelValues("threat")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RetentionDeletedTotal.WithLabelValues("risk")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("clarify", "ok", time.Second)
		m.HandlerFailed("x")
		m.ClassificationFallback()
		m.SynthesisFallback()
		m.RetentionDeleted("default", 1)
		m.EmbeddingJob("indexed")
	})
}
