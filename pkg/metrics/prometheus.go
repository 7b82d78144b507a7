package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Miss reasons
const (
	MissUri   = "uri-miss"
	MissStale = "stale"
)

// Store results
const (
	StoreOK      = "ok"
	StoreSkipped = "skipped"
	StoreError   = "error"
)

var (
	// Hits counts requests answered from the cache.
	Hits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autocache_hits_total",
			Help: "Total number of responses served from cache",
		},
	)

	// Misses counts requests forwarded to the wrapped handler.
	Misses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocache_misses_total",
			Help: "Total number of requests forwarded to the handler",
		},
		[]string{"reason"}, // "uri-miss", "stale"
	)

	// Stores counts deferred stores by outcome.
	Stores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocache_stores_total",
			Help: "Total number of deferred cache stores",
		},
		[]string{"result"}, // "ok", "skipped", "error"
	)

	// StoreErrors counts failed store operations.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "open", "match", "put", "delete", "invalidate"
	)

	// Invalidations counts stored responses removed after unsafe requests.
	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocache_invalidations_total",
			Help: "Total number of request URIs invalidated after unsafe requests",
		},
		[]string{"source"}, // "target", "cache-update"
	)
)
