package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiler_cache_hits_total",
		Help: "Total number of ensure calls served by an existing tile entry",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiler_cache_misses_total",
		Help: "Total number of ensure calls that started a fetch",
	})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiler_cache_entries",
		Help: "Number of tile entries held by the cache",
	})

	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiler_tile_fetches_total",
		Help: "Total number of tile fetches by outcome",
	}, []string{"result"})

	TileFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiler_tile_fetch_latency_seconds",
		Help:    "Latency of tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	Reconciliations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiler_reconciliations_total",
		Help: "Total number of reconciliations run",
	})

	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiler_frames_total",
		Help: "Frames produced, by whether they were published or discarded as stale",
	}, []string{"status"})
)
