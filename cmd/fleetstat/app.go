package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chargee-energy/chargee-developer-playground/internal/config"
	"github.com/chargee-energy/chargee-developer-playground/pkg/api"
	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/engine"
	"github.com/chargee-energy/chargee-developer-playground/pkg/logging"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
)

// app holds the wired collaborators of one command invocation.
type app struct {
	cfg    *config.Config
	redis  *redis.Client
	client *api.Client
	store  *cache.Store
	engine *engine.Engine
	logger zerolog.Logger
}

// newApp loads configuration and connects to Redis and the remote service.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.LoggingConfig()
	if opts.quiet && logCfg.Level == logging.LevelInfo {
		logCfg.Level = logging.LevelWarn
	}
	logger := logging.Setup(logCfg)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	client, err := api.New(api.Config{
		BaseURL:   cfg.API.BaseURL,
		Token:     cfg.API.Token,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
		Redis:     redisClient,
	})
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	store := cache.NewStore(redisClient,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithNamespace(cfg.Cache.Namespace),
		cache.WithLogger(logging.NewLogger("cache")),
	)

	eng := engine.New(client, store, engine.Config{
		ReadBatchSize:  cfg.Pipeline.ReadBatchSize,
		WriteBatchSize: cfg.Pipeline.WriteBatchSize,
		SampleSize:     cfg.Pipeline.SampleSize,
		ItemTimeout:    cfg.Pipeline.ItemTimeout,
		Logger:         logging.NewLogger("engine"),
	})

	return &app{
		cfg:    cfg,
		redis:  redisClient,
		client: client,
		store:  store,
		engine: eng,
		logger: logger,
	}, nil
}

// Close releases the Redis connection.
func (a *app) Close() error {
	return a.redis.Close()
}

// progressPrinter renders progress events as one line each.
func progressPrinter(w io.Writer, quiet bool) progress.Sink {
	if quiet {
		return progress.Discard
	}
	return func(s progress.State) {
		fmt.Fprintf(w, "[%3.0f%%] %s\n", s.Percent, s.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
