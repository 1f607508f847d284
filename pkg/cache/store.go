package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long snapshots stay valid.
const DefaultTTL = time.Hour

// ErrCacheMiss indicates the snapshot is absent, expired, or undecodable.
var ErrCacheMiss = errors.New("cache miss")

// Store is a TTL-gated snapshot store with a Redis backend.
// Writes replace entries wholesale; the last writer wins.
type Store struct {
	redis     *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the validity window of new entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithNamespace prefixes every key.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.namespace = ns
	}
}

// WithClock replaces the time source used for stamping and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a snapshot store on top of redisClient.
func NewStore(redisClient *redis.Client, opts ...Option) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	s := &Store{
		redis:  redisClient,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the validity window applied to new entries.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get reads the snapshot at key and decodes its payload into dst (unless dst
// is nil). Returns ErrCacheMiss if the entry is absent, expired, or corrupt.
// Redis failures are returned as errors.
func (s *Store) Get(ctx context.Context, key Key, dst any) (*Entry, error) {
	redisKey := key.withNamespace(s.namespace).String()

	data, err := s.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(missAbsent).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, s.corrupt(ctx, redisKey, err)
	}
	entry.Key = redisKey

	now := s.now()
	if entry.IsExpired(now) {
		s.logger.Debug().
			Str("key", redisKey).
			Dur("age", entry.Age(now)).
			Dur("ttl", entry.TTL).
			Msg("Cache entry expired")
		s.drop(ctx, redisKey)
		CacheMisses.WithLabelValues(missExpired).Inc()
		return nil, ErrCacheMiss
	}

	if dst != nil {
		if err := json.Unmarshal(entry.Data, dst); err != nil {
			return nil, s.corrupt(ctx, redisKey, err)
		}
	}

	CacheHits.Inc()
	return &entry, nil
}

// Put stores payload at key, stamped with the current time.
func (s *Store) Put(ctx context.Context, key Key, payload any) (*Entry, error) {
	redisKey := key.withNamespace(s.namespace).String()

	body, err := json.Marshal(payload)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	entry := &Entry{
		Key:       redisKey,
		Data:      body,
		WrittenAt: s.now().UTC(),
		TTL:       s.ttl,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, redisKey, data, s.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return nil, fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.Add(float64(len(data)))
	s.logger.Debug().
		Str("key", redisKey).
		Int("bytes", len(data)).
		Dur("ttl", s.ttl).
		Msg("Cache entry written")

	return entry, nil
}

// Invalidate removes the snapshot at key.
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	redisKey := key.withNamespace(s.namespace).String()

	if err := s.redis.Del(ctx, redisKey).Err(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) corrupt(ctx context.Context, redisKey string, cause error) error {
	s.logger.Warn().
		Err(cause).
		Str("key", redisKey).
		Msg("Discarding undecodable cache entry")
	s.drop(ctx, redisKey)
	CacheMisses.WithLabelValues(missCorrupt).Inc()
	return ErrCacheMiss
}

func (s *Store) drop(ctx context.Context, redisKey string) {
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		s.logger.Warn().Err(err).Str("key", redisKey).Msg("Failed to delete cache entry")
	}
}
