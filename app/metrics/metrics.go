package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the refresh engine's Prometheus collectors
type Metrics struct {
	FeedsRefreshed       prometheus.Counter
	FeedsUpdated         *prometheus.CounterVec
	EntriesCreated       prometheus.Counter
	EntriesLinked        prometheus.Counter
	EntryStatusesCreated prometheus.Counter
	FetchDuration        prometheus.Histogram
	WebSubRenewals       *prometheus.CounterVec

	reg prometheus.Registerer
}

// New registers all collectors with reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FeedsRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedrefresh_feeds_refreshed_total",
			Help: "The total number of feeds handed out for refresh",
		}),
		FeedsUpdated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrefresh_feeds_updated_total",
			Help: "The total number of feed update tasks, by result",
		}, []string{"result"}),
		EntriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedrefresh_entries_created_total",
			Help: "The total number of new entries stored",
		}),
		EntriesLinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedrefresh_entries_linked_total",
			Help: "The total number of existing entries linked to an additional feed",
		}),
		EntryStatusesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedrefresh_entry_statuses_created_total",
			Help: "The total number of per-subscription entry statuses created",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedrefresh_fetch_duration_seconds",
			Help:    "Duration of feed HTTP fetches that returned content",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms up to ~25s
		}),
		WebSubRenewals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrefresh_websub_renewals_total",
			Help: "The total number of WebSub subscription requests, by result",
		}, []string{"result"}),
		reg: reg,
	}
}

// RegisterQueueSize exposes the update pipeline's pending task count as a gauge
func (m *Metrics) RegisterQueueSize(size func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "feedrefresh_update_queue_size",
		Help: "The number of feed update tasks waiting for a worker",
	}, func() float64 {
		return float64(size())
	})
}
