package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Miss reasons.
const (
	missAbsent  = "absent"
	missExpired = "expired"
	missCorrupt = "corrupt"
)

var (
	// CacheHits tracks valid snapshot reads
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetstat_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	// CacheMisses tracks misses by reason
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetstat_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
		[]string{"reason"}, // "absent", "expired", "corrupt"
	)

	// CacheErrors tracks Redis operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetstat_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "invalidate"
	)

	// CacheWrittenBytes tracks the size of written envelopes
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetstat_cache_written_bytes_total",
			Help: "Total bytes written to the snapshot cache",
		},
	)
)
