package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	queued := 7
	m.RegisterQueueSize(func() int { return queued })

	m.FeedsRefreshed.Inc()
	m.FeedsUpdated.WithLabelValues(ResultSuccess).Inc()
	m.FeedsUpdated.WithLabelValues(ResultFailure).Add(2)
	m.FetchDuration.Observe(0.2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedsRefreshed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedsUpdated.WithLabelValues(ResultFailure)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
		if family.GetName() == "feedrefresh_update_queue_size" {
			assert.Equal(t, 7.0, family.GetMetric()[0].GetGauge().GetValue())
		}
	}

	assert.True(t, names["feedrefresh_feeds_refreshed_total"])
	assert.True(t, names["feedrefresh_feeds_updated_total"])
	assert.True(t, names["feedrefresh_fetch_duration_seconds"])
	assert.True(t, names["feedrefresh_update_queue_size"])
}

func TestMetricsSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
