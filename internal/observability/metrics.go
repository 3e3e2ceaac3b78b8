package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here so that the API binary and the
// CLI share one registry layout. The CLI simply never scrapes them.

// namespace defines the global prefix for all metrics (e.g., mimir_...).
const namespace = "mimir"

// lowLatencyBuckets defines custom buckets for the matching hot path.
// Standard buckets are too coarse (starting at 5ms), so we add sub-millisecond resolution.
// Range: 50µs to 500ms.
var lowLatencyBuckets = []float64{.00005, .0001, .00025, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

// loadBuckets covers catalog and supplementary builds, which take seconds.
var loadBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: mimir_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// APIReqTotal counts the total number of HTTP requests.
	// Metric: mimir_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// MATCHER
	// -------------------------------------------------------------------------

	// MatchDuration measures a single best-match query.
	// Metric: mimir_matcher_match_seconds
	MatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "match_seconds",
		Help:      "Time taken to compute a best match",
		Buckets:   lowLatencyBuckets,
	}, []string{"index"}) // base, extended

	// MatchTotal counts best-match queries by outcome.
	MatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "matches_total",
		Help:      "Total best-match queries",
	}, []string{"index", "outcome"}) // outcome: matched, none

	// -------------------------------------------------------------------------
	// CATALOG
	// -------------------------------------------------------------------------

	// CatalogLoadDuration measures a full base + translation load.
	CatalogLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "load_duration_seconds",
		Help:      "Time taken to load and merge the catalog",
		Buckets:   loadBuckets,
	})

	CatalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "loads_total",
		Help:      "Total catalog loads",
	}, []string{"status"}) // success, fail

	// CatalogTranslationsSkipped counts overlays that were missing or malformed.
	CatalogTranslationsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "translations_skipped_total",
		Help:      "Total translation overlays skipped during load",
	}, []string{"reason"}) // missing, malformed

	// CatalogPresets reports the size of the installed catalog.
	CatalogPresets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "presets",
		Help:      "Number of presets currently installed",
	}, []string{"origin"})

	// IndexInstallsTotal counts successful publish-by-replacement handoffs.
	IndexInstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "index_installs_total",
		Help:      "Total index installs",
	}, []string{"kind"}) // snapshot, supplementary, custom

	// StaleInstallsDiscarded counts builds superseded by a newer load.
	StaleInstallsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "stale_installs_discarded_total",
		Help:      "Total results discarded because a newer load had started",
	}, []string{"kind"})

	SupplementaryBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "supplementary_build_seconds",
		Help:      "Time taken to build the extended index",
		Buckets:   loadBuckets,
	})

	// -------------------------------------------------------------------------
	// TAGINFO (L1 otter + L2 Redis)
	// -------------------------------------------------------------------------

	TagInfoCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "cache_hits_total",
		Help:      "Total tag-statistics cache hits",
	}, []string{"tier"}) // l1, l2

	TagInfoCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "cache_misses_total",
		Help:      "Total tag-statistics cache misses",
	})

	// TagInfoStale counts lookups that returned an entry older than the staleness window.
	TagInfoStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "stale_total",
		Help:      "Total stale entries served while a refresh is scheduled",
	})

	TagInfoFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "fetches_total",
		Help:      "Total upstream taginfo requests",
	}, []string{"status"}) // success, fail

	// Note: otter tracks item counts efficiently, not byte size.
	TagInfoCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "l1_cache_items_count",
		Help:      "Current number of items in the L1 cache",
	})

	TagInfoCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "l1_cache_evictions_total",
		Help:      "Total entries evicted from the L1 cache",
	})

	// TagInfoCacheDropped counts writes otter rejected under contention.
	TagInfoCacheDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "taginfo",
		Name:      "l1_cache_dropped_total",
		Help:      "Total L1 cache writes dropped",
	})

	// -------------------------------------------------------------------------
	// DATABASE (pgx pool)
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pool occupancy by state (max, total, idle, in_use).
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Connections in the PostgreSQL pool by state",
	}, []string{"state"})

	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions",
	})

	// DBPoolWaitCount counts acquisitions that had to wait for a free connection.
	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Total acquisitions that waited on an exhausted pool",
	})

	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	// -------------------------------------------------------------------------
	// SYNCER (Workers)
	// -------------------------------------------------------------------------

	// SyncerJobDuration measures how long a background rebuild takes.
	// Metric: mimir_syncer_job_processing_duration_seconds
	SyncerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "job_processing_duration_seconds",
		Help:      "Latency of background load and rebuild jobs",
		Buckets:   loadBuckets,
	}, []string{"job"})

	SyncerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "jobs_total",
		Help:      "Total background jobs processed",
	}, []string{"job", "status"}) // success, fail

	// -------------------------------------------------------------------------
	// READINESS
	// -------------------------------------------------------------------------

	// ComponentUp mirrors the last readiness probe result per component (1 up, 0 down).
	ComponentUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "readiness",
		Name:      "component_up",
		Help:      "Result of the last readiness check per component",
	}, []string{"component"})
)
