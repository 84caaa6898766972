package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("dmtr_x", "ns1", "p1", "200", "mainnet", "free", "true", "cache_rule", 50*time.Millisecond)

	var metric dto.Metric
	require.NoError(t, m.HTTPTotalRequest.WithLabelValues("dmtr_x", "ns1", "p1", "200", "mainnet", "free").Write(&metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestObserveCacheHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCacheHit("/epochs/latest", "mainnet", "proj1", "cache_rule")
	m.ObserveCacheMiss("/pools/x", "mainnet", "proj1", "cache_rule")

	var hit dto.Metric
	require.NoError(t, m.HTTPCacheHits.WithLabelValues("/epochs/latest", "mainnet", "proj1", "cache_rule").Write(&hit))
	require.Equal(t, float64(1), hit.GetCounter().GetValue())

	var miss dto.Metric
	require.NoError(t, m.HTTPCacheMiss.WithLabelValues("/pools/x", "mainnet", "proj1", "cache_rule").Write(&miss))
	require.Equal(t, float64(1), miss.GetCounter().GetValue())
}
