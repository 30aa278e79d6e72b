package coordinator

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricQueries        = "queries_total"
	MetricCacheHits      = "cache_hits_total"
	MetricSharedQueries  = "shared_queries_total"
	MetricInflight       = "inflight_queries"
	MetricQueryDuration  = "query_duration_seconds"
	MetricStaleDiscards  = "stale_result_discards_total"
	MetricClientsCleared = "clients_cleared_total"
)

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeCleared = "cleared"
)

type metrics struct {
	queries        *prometheus.CounterVec
	cacheHits      prometheus.Counter
	shared         prometheus.Counter
	inflight       prometheus.Gauge
	duration       prometheus.Histogram
	staleDiscards  prometheus.Counter
	clientsCleared prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {

	m := &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      MetricQueries,
			Help:      "Queries answered by the coordinator, by outcome.",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      MetricCacheHits,
			Help:      "Queries answered from the result cache.",
		}),
		shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      MetricSharedQueries,
			Help:      "Callers served by an execution shared with identical concurrent queries.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tessera",
			Name:      MetricInflight,
			Help:      "Queries currently executing on the connector.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tessera",
			Name:      MetricQueryDuration,
			Help:      "Connector execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      MetricStaleDiscards,
			Help:      "Responses dropped because a newer query superseded them.",
		}),
		clientsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      MetricClientsCleared,
			Help:      "Clients destroyed by a coordinator clear.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.queries, m.cacheHits, m.shared, m.inflight, m.duration, m.staleDiscards, m.clientsCleared)
	}

	return m
}
