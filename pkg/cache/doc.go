// Package cache provides the TTL-gated snapshot store of the aggregation
// pipeline, backed by Redis.
//
// Every entry is stored as a JSON envelope:
//
//	{"data": <payload>, "writtenAt": "2026-10-14T10:00:00Z", "ttl": 3600000000000}
//
// An entry is valid while now - writtenAt < ttl. Validity is decided on read
// from writtenAt, not from the Redis key expiry, so a snapshot that Redis
// still holds is reported as a miss once its TTL has elapsed.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewStore(redisClient, cache.WithTTL(time.Hour))
//
//	var result model.AggregationResult
//	_, err := store.Get(ctx, cache.AnalyticsKey(groupID), &result)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// stale, absent, or corrupt: run the aggregation again
//	}
//
//	if _, err := store.Put(ctx, cache.AnalyticsKey(groupID), result); err != nil {
//		return err
//	}
//
// # Corruption
//
// A stored value that cannot be decoded is deleted and reported as
// ErrCacheMiss. It is never surfaced as an error; the caller refetches.
//
// # Metrics
//
//   - fleetstat_cache_hits_total - Cache hits
//   - fleetstat_cache_misses_total{reason} - Misses by reason (absent, expired, corrupt)
//   - fleetstat_cache_errors_total{operation} - Redis operation errors
//   - fleetstat_cache_written_bytes_total - Bytes written
package cache
