package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "source_requests_total",
		Help:      "Total upstream source searches by source key and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "source_request_duration_seconds",
		Help:      "Upstream source search duration in seconds, all pages included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 10, 15},
	}, []string{"source"})

	SourceAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "source_available",
		Help:      "Whether a source is available (1) or blocked by circuit breaker (0).",
	}, []string{"source"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "cache_entries",
		Help:      "Live entries in the in-process search cache.",
	})

	SearchResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "results_per_query",
		Help:      "Number of flat results returned per uncached search.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	DetailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "detail_request_duration_seconds",
		Help:      "Upstream detail lookup duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		SourceAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEntries,
		SearchResults,
		DetailDuration,
	)
}
