package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bundlegraph_scan_seconds",
		Help:    "Time spent scanning a module for import edges.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlegraph_graph_modules",
		Help: "Number of modules currently held by the module graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlegraph_graph_edges",
		Help: "Number of import edges currently held by the module graph.",
	})

	ResolverCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlegraph_resolver_cache_hits_total",
		Help: "Resolver lookups answered from the cache.",
	})

	ResolverCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlegraph_resolver_cache_misses_total",
		Help: "Resolver lookups that probed the filesystem.",
	})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bundlegraph_phase_seconds",
		Help:    "Time spent in each build pass phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	Chunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlegraph_chunks",
		Help: "Number of chunks in the last frozen chunk set.",
	})

	RecomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlegraph_recompute_total",
		Help: "Incremental recompute passes by mode (incremental or full).",
	}, []string{"mode"})

	MemoReuseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlegraph_memo_reuse_total",
		Help: "Seed closures and rule outcomes reused from the previous pass.",
	}, []string{"kind"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlegraph_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
