package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chargee-energy/chargee-developer-playground/pkg/batch"
	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/dedup"
	"github.com/chargee-energy/chargee-developer-playground/pkg/lister"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
)

// Progress layout of an analytics run.
const (
	percentCounting = 5
	percentListing  = 10
	percentSampling = 30
	percentChildren = 50
	spanChildren    = 45
)

// DefaultSampleSize is the number of Sparkies checked for reporting.
const DefaultSampleSize = 100

// Config holds engine configuration.
type Config struct {
	// ReadBatchSize is the number of addresses fetched concurrently.
	ReadBatchSize int

	// WriteBatchSize is the number of schedules created concurrently.
	WriteBatchSize int

	// SampleSize caps the Sparkies checked for reporting.
	SampleSize int

	// ItemTimeout bounds each per-address fetch. Zero disables it.
	ItemTimeout time.Duration

	// Logger for engine operations.
	Logger zerolog.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ReadBatchSize:  batch.ReadBatchSize,
		WriteBatchSize: batch.WriteBatchSize,
		SampleSize:     DefaultSampleSize,
		ItemTimeout:    30 * time.Second,
		Logger:         log.With().Str("component", "engine").Logger(),
	}
}

// Report describes how a run ended.
type Report struct {
	// Dropped is set when another run for the same key was active.
	Dropped bool

	// Superseded is set when the generation moved on while running.
	Superseded bool

	// Generation of the run, 0 when dropped.
	Generation uint64

	// Result is the written tally of a completed run.
	Result *model.AggregationResult
}

// Engine runs aggregations against a backend.
type Engine struct {
	backend  model.Backend
	cache    *cache.Store
	lister   *lister.Lister
	registry *Registry
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source used for progress and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRegistry shares a run registry between engines.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// New creates an engine. backend and store are required.
func New(backend model.Backend, store *cache.Store, config Config, opts ...Option) *Engine {
	if backend == nil {
		panic("backend cannot be nil")
	}
	if store == nil {
		panic("cache store cannot be nil")
	}

	defaults := DefaultConfig()
	if config.ReadBatchSize <= 0 {
		config.ReadBatchSize = defaults.ReadBatchSize
	}
	if config.WriteBatchSize <= 0 {
		config.WriteBatchSize = defaults.WriteBatchSize
	}
	if config.SampleSize <= 0 {
		config.SampleSize = defaults.SampleSize
	}

	e := &Engine{
		backend:  backend,
		cache:    store,
		lister:   lister.New(backend, store, config.Logger),
		registry: NewRegistry(),
		config:   config,
		logger:   config.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lister returns the address lister the engine reads through.
func (e *Engine) Lister() *lister.Lister {
	return e.lister
}

// Registry returns the run registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// AnalyticsRunKey is the registry key of analytics runs for a group.
func AnalyticsRunKey(groupID string) string {
	return cache.AnalyticsKey(groupID).String()
}

// InvertersRunKey is the registry key of steerable inverter runs for a group.
func InvertersRunKey(groupID string) string {
	return "inverters:" + groupID
}

// CachedResult returns the stored tally of a group if it is still valid.
func (e *Engine) CachedResult(ctx context.Context, groupID string) (*model.AggregationResult, time.Time, error) {
	var result model.AggregationResult
	entry, err := e.cache.Get(ctx, cache.AnalyticsKey(groupID), &result)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &result, entry.WrittenAt, nil
}

// parentDevices is the settled outcome of every category for one address.
type parentDevices struct {
	records  map[model.Category][]model.ChildRecord
	failures map[model.Category]error
}

// run is the state owned by one analytics run.
type run struct {
	groupID string
	handle  *RunHandle
	tracker *progress.Tracker
	result  *model.AggregationResult
	seen    *dedup.Set
	logger  zerolog.Logger
}

// Run aggregates the devices of every address of groupID and stores the
// tally. Progress is reported to sink in order. A run requested while
// another one for the group is active is dropped with a nil error.
func (e *Engine) Run(ctx context.Context, groupID string, sink progress.Sink) (Report, error) {
	handle, ok := e.registry.Acquire(AnalyticsRunKey(groupID))
	if !ok {
		e.logger.Debug().Str("group_id", groupID).Msg("Run already active, dropping request")
		RunsTotal.WithLabelValues("analytics", outcomeDropped).Inc()
		return Report{Dropped: true}, nil
	}
	defer e.registry.Release(handle)

	ActiveRuns.Inc()
	defer ActiveRuns.Dec()

	start := e.now()
	defer func() {
		RunDuration.WithLabelValues("analytics").Observe(e.now().Sub(start).Seconds())
	}()

	r := &run{
		groupID: groupID,
		handle:  handle,
		tracker: progress.NewTracker(sink, progress.WithClock(e.now)),
		seen:    dedup.New(),
		logger: e.logger.With().
			Str("group_id", groupID).
			Uint64("generation", handle.Generation).
			Str("run_id", handle.ID.String()).
			Logger(),
	}

	r.logger.Info().Msg("Starting analytics run")

	_ = r.tracker.Enter(progress.StageCounting, percentCounting, "Counting addresses...")
	total, err := e.lister.Count(ctx, groupID)
	if err != nil {
		return e.fail(r, progress.StageCounting, err)
	}
	if total == 0 {
		r.result = model.NewAggregationResult(0)
		return e.finalize(ctx, r)
	}

	_ = r.tracker.EnterCounted(progress.StageListingParents, percentListing,
		fmt.Sprintf("Fetching %d addresses...", total), 0, total)
	page, err := e.lister.ListAll(ctx, groupID)
	if err != nil {
		return e.fail(r, progress.StageListingParents, err)
	}
	parents := page.Items
	r.result = model.NewAggregationResult(len(parents))
	if len(parents) == 0 {
		return e.finalize(ctx, r)
	}

	e.checkSparkies(ctx, r, parents)

	if err := e.fetchChildren(ctx, r, parents); err != nil {
		return e.fail(r, progress.StageFetchingChildren, err)
	}

	return e.finalize(ctx, r)
}

// checkSparkies counts the linked Sparkies and how many of a sample of them
// report readings.
func (e *Engine) checkSparkies(ctx context.Context, r *run, parents []model.Parent) {
	serials := make([]string, 0, len(parents))
	for _, p := range parents {
		if s := p.SerialNumber(); s != "" {
			serials = append(serials, s)
		}
	}
	r.result.DerivedCounts[model.DerivedConnectedSparkies] = len(serials)

	sample := serials[:min(len(serials), e.config.SampleSize)]
	r.result.SampledParents = len(sample)

	_ = r.tracker.EnterCounted(progress.StageSampledChecks, percentSampling,
		fmt.Sprintf("Checking reporting status of %d Sparkies...", len(sample)), 0, len(sample))

	results := batch.Settle(ctx, sample, func(ctx context.Context, serial string) (struct{}, error) {
		return struct{}{}, e.backend.CheckReporting(ctx, serial)
	})

	reporting := 0
	for _, res := range results {
		if res.OK() {
			reporting++
			continue
		}
		r.logger.Debug().Err(res.Err).Str("serial", res.Item).Msg("Sparky not reporting")
	}
	r.result.DerivedCounts[model.DerivedReportingSparkies] = reporting
}

// fetchChildren lists every category for every address in sequential
// batches and applies each settled batch to the tally.
func (e *Engine) fetchChildren(ctx context.Context, r *run, parents []model.Parent) error {
	total := len(parents)
	_ = r.tracker.EnterCounted(progress.StageFetchingChildren, percentChildren,
		fmt.Sprintf("Fetching devices for %d addresses...", total), 0, total)

	fetcher := batch.New(batch.Config{
		BatchSize: e.config.ReadBatchSize,
		Timeout:   e.config.ItemTimeout,
		Operation: "analytics",
	})

	_, err := batch.Run(ctx, fetcher, parents, e.fetchParent, func(b batch.Batch[model.Parent, parentDevices]) {
		for _, res := range b.Results {
			r.apply(res)
		}
		_, _ = r.tracker.Advance(progress.StageFetchingChildren, b.Processed, b.Total,
			percentChildren, spanChildren, func(p progress.Projection) string {
				return fmt.Sprintf("Processed %d of %d addresses (ETA %s)",
					b.Processed, b.Total, progress.FormatETA(p.ETASeconds))
			})
	})
	return err
}

// fetchParent lists all categories of one address concurrently. A failed
// category is recorded and contributes nothing.
func (e *Engine) fetchParent(ctx context.Context, p model.Parent) (parentDevices, error) {
	results := batch.Settle(ctx, model.AllCategories, func(ctx context.Context, c model.Category) ([]model.ChildRecord, error) {
		return model.ListChildren(ctx, e.backend, c, p.UUID)
	})

	out := parentDevices{
		records:  make(map[model.Category][]model.ChildRecord, len(results)),
		failures: make(map[model.Category]error),
	}
	for _, res := range results {
		if res.Err != nil {
			out.failures[res.Item] = res.Err
			continue
		}
		out.records[res.Item] = res.Value
	}
	return out, nil
}

// apply adds one settled address to the tally.
func (r *run) apply(res batch.Result[model.Parent, parentDevices]) {
	if res.Err != nil {
		r.logger.Warn().Err(res.Err).Str("parent_id", res.Item.UUID).Msg("Address fetch failed")
		for _, c := range model.AllCategories {
			ChildFetchFailures.WithLabelValues(string(c)).Inc()
		}
		return
	}

	for c, err := range res.Value.failures {
		ChildFetchFailures.WithLabelValues(string(c)).Inc()
		r.logger.Warn().
			Err(err).
			Str("parent_id", res.Item.UUID).
			Str("category", string(c)).
			Msg("Device fetch failed")
	}

	for c, records := range res.Value.records {
		r.result.PerCategoryCounts[c] += len(records)
		if c != model.CategorySolarInverter {
			continue
		}
		for _, rec := range records {
			if rec.IsSteerable() && r.seen.Add(dedup.Key(rec.ID(), res.Item.UUID)) {
				r.result.DerivedCounts[model.DerivedSteerableInverters]++
			}
		}
	}
}

// finalize discards superseded results and writes the tally otherwise.
func (e *Engine) finalize(ctx context.Context, r *run) (Report, error) {
	_ = r.tracker.Enter(progress.StageFinalizing, progress.MaxRunningPercent, "Calculating totals...")

	if e.registry.Superseded(r.handle) {
		r.logger.Info().Msg("Run superseded, discarding result")
		RunsTotal.WithLabelValues("analytics", outcomeSuperseded).Inc()
		_ = r.tracker.Fail("Superseded by a newer run")
		return Report{Superseded: true, Generation: r.handle.Generation}, nil
	}

	if err := ctx.Err(); err != nil {
		return e.fail(r, progress.StageFinalizing, err)
	}

	r.result.CompletedAt = e.now().UTC()
	if _, err := e.cache.Put(ctx, cache.AnalyticsKey(r.groupID), r.result); err != nil {
		return e.fail(r, progress.StageFinalizing, fmt.Errorf("store result: %w", err))
	}

	_ = r.tracker.Complete("Complete!")
	RunsTotal.WithLabelValues("analytics", outcomeComplete).Inc()

	r.logger.Info().
		Int("addresses", r.result.TotalParents).
		Int("steerable_inverters", r.result.Derived(model.DerivedSteerableInverters)).
		Msg("Analytics run complete")

	return Report{Generation: r.handle.Generation, Result: r.result}, nil
}

func (e *Engine) fail(r *run, stage progress.Stage, err error) (Report, error) {
	runErr := &RunError{GroupID: r.groupID, Stage: stage, Err: err}

	r.logger.Error().Err(err).Str("stage", string(stage)).Msg("Analytics run failed")
	RunsTotal.WithLabelValues("analytics", outcomeFailed).Inc()

	if !progress.CanTransition(r.tracker.State().Stage, progress.StageFailed) {
		_ = r.tracker.Enter(progress.StageFinalizing, 0, "Finalizing...")
	}
	if tErr := r.tracker.Fail(UserMessage(err, "")); tErr != nil && !errors.Is(tErr, progress.ErrTerminal) {
		r.logger.Debug().Err(tErr).Msg("Progress transition rejected")
	}

	return Report{Generation: r.handle.Generation}, runErr
}
