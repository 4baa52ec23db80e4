// Package observability registers the prometheus collectors shared by the caches,
// the filter store and the route planner.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CacheLookupsTotal counts cache lookups by cache name and outcome (hit|miss).
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placemap_cache_lookups_total",
		Help: "Total cache lookups by cache and outcome",
	}, []string{"cache", "outcome"})

	// CacheEntries reports the current number of stored entries per cache.
	CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "placemap_cache_entries",
		Help: "Entries currently held per cache, expired entries included until swept",
	}, []string{"cache"})

	// SearchesTotal counts place searches by outcome (success|error|stale|cached|skipped).
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placemap_searches_total",
		Help: "Total place searches by outcome",
	}, []string{"outcome"})

	// SearchDurationMs observes place-search collaborator latency.
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "placemap_search_duration_ms",
		Help:    "Place search collaborator latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	// RouteRequestsTotal counts routing collaborator calls by mode and outcome.
	RouteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placemap_route_requests_total",
		Help: "Total routing collaborator calls by mode and outcome",
	}, []string{"mode", "outcome"})

	// PreloadsTotal counts preload attempts by outcome (fetched|skipped|error).
	PreloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placemap_preloads_total",
		Help: "Total neighbour-cell preload attempts by outcome",
	}, []string{"outcome"})

	// UpstreamRequestsTotal counts outbound provider calls by host and status code
	// ("error" when no response was received).
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placemap_upstream_requests_total",
		Help: "Total outbound provider HTTP requests by host and status",
	}, []string{"host", "code"})

	// ActiveSessions reports live search sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "placemap_active_sessions",
		Help: "Search sessions currently held in memory",
	})
)

func init() {
	prometheus.MustRegister(
		CacheLookupsTotal,
		CacheEntries,
		SearchesTotal,
		SearchDurationMs,
		RouteRequestsTotal,
		PreloadsTotal,
		UpstreamRequestsTotal,
		ActiveSessions,
	)
}

// CacheHit records a hit on the named cache.
func CacheHit(cache string) {
	CacheLookupsTotal.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a miss on the named cache.
func CacheMiss(cache string) {
	CacheLookupsTotal.WithLabelValues(cache, "miss").Inc()
}
