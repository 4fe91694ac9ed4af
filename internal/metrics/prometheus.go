package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Cache metrics
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	StorageFaults *prometheus.CounterVec
	Evictions     *prometheus.CounterVec

	// Refresh metrics
	RefreshesTotal  *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec

	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
}

// New creates and registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_cache_hits_total",
				Help: "Reads served from a fresh cached record",
			},
			[]string{"cache"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_cache_misses_total",
				Help: "Reads that found a stale or missing record",
			},
			[]string{"cache"},
		),

		StorageFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_storage_faults_total",
				Help: "Storage operations that failed",
			},
			[]string{"cache", "op"},
		),

		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_evicted_records_total",
				Help: "Records removed by the retention horizon",
			},
			[]string{"cache"},
		),

		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_refreshes_total",
				Help: "Refresh pipeline executions by outcome",
			},
			[]string{"cache", "outcome"},
		),

		RefreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coastal_refresh_duration_seconds",
				Help:    "Duration of refresh pipeline executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cache"},
		),

		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coastal_upstream_requests_total",
				Help: "Outbound upstream requests by result",
			},
			[]string{"upstream", "result"},
		),
	}
}

// The helpers below accept a nil receiver so metrics stay optional.

func (m *Metrics) Hit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) Miss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) StorageFault(cache, op string) {
	if m == nil {
		return
	}
	m.StorageFaults.WithLabelValues(cache, op).Inc()
}

func (m *Metrics) Evicted(cache string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.WithLabelValues(cache).Add(float64(n))
}

func (m *Metrics) Refresh(cache, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(cache, outcome).Inc()
	m.RefreshDuration.WithLabelValues(cache).Observe(took.Seconds())
}

func (m *Metrics) Upstream(name, result string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(name, result).Inc()
}
