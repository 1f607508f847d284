package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Batch sizes used by the pipeline.
const (
	// ReadBatchSize bounds read fan-out (device listings).
	ReadBatchSize = 50

	// WriteBatchSize bounds mutating fan-out (schedule creation).
	WriteBatchSize = 10
)

// ErrInvalidBatchSize is returned by Partition for a non-positive size.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

var (
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetstat_batch_duration_seconds",
		Help:    "Time for one batch to fully settle",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	batchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstat_batch_items_total",
		Help: "Batch items by outcome",
	}, []string{"operation", "outcome"})
)

// Config holds batch fetcher configuration
type Config struct {
	// BatchSize is the number of items fetched concurrently.
	BatchSize int

	// Timeout bounds each item call. Zero means the run context applies alone.
	Timeout time.Duration

	// Operation labels logs and metrics.
	Operation string
}

// DefaultConfig returns the read fan-out configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: ReadBatchSize,
		Timeout:   30 * time.Second,
		Operation: "batch",
	}
}

// Fetcher runs batches with a fixed configuration.
type Fetcher struct {
	config Config
}

// New creates a fetcher. A non-positive BatchSize falls back to ReadBatchSize.
func New(config Config) *Fetcher {
	if config.BatchSize <= 0 {
		config.BatchSize = ReadBatchSize
	}
	if config.Operation == "" {
		config.Operation = "batch"
	}
	return &Fetcher{config: config}
}

// BatchSize returns the configured batch size.
func (f *Fetcher) BatchSize() int {
	return f.config.BatchSize
}

// Result is the settled outcome of one item.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// OK reports whether the item call succeeded.
func (r Result[T, R]) OK() bool {
	return r.Err == nil
}

// Batch is a settled batch handed to the caller.
type Batch[T, R any] struct {
	// Index is the zero-based batch number.
	Index int

	// Count is the total number of batches.
	Count int

	// Results holds one result per item, in item order.
	Results []Result[T, R]

	// Processed is the number of items settled so far, this batch included.
	Processed int

	// Total is the number of items in the run.
	Total int
}

// Failed returns the number of failed items in the batch.
func (b Batch[T, R]) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Summary describes a finished run.
type Summary struct {
	Batches   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// FetchFunc performs the remote call for one item.
type FetchFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Partition splits items into consecutive slices of at most size elements.
func Partition[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if len(items) == 0 {
		return nil, nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches, nil
}

// Run fetches every item through fetch in sequential batches and calls
// onBatch after each batch settles. Item failures never abort the run and
// in-flight calls are never cancelled by Run itself; items observe
// cancellation through the context they are given.
func Run[T, R any](ctx context.Context, f *Fetcher, items []T, fetch FetchFunc[T, R], onBatch func(Batch[T, R])) (Summary, error) {
	start := time.Now()

	batches, err := Partition(items, f.config.BatchSize)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Batches: len(batches)}
	processed := 0

	for i, chunk := range batches {
		batchStart := time.Now()
		results := settle(ctx, f.config.Timeout, chunk, fetch)
		processed += len(chunk)

		b := Batch[T, R]{
			Index:     i,
			Count:     len(batches),
			Results:   results,
			Processed: processed,
			Total:     len(items),
		}

		failed := b.Failed()
		summary.Failed += failed
		summary.Succeeded += len(chunk) - failed

		batchDuration.WithLabelValues(f.config.Operation).Observe(time.Since(batchStart).Seconds())
		batchItems.WithLabelValues(f.config.Operation, "ok").Add(float64(len(chunk) - failed))
		batchItems.WithLabelValues(f.config.Operation, "failed").Add(float64(failed))

		log.Debug().
			Str("operation", f.config.Operation).
			Int("batch", i+1).
			Int("batches", len(batches)).
			Int("size", len(chunk)).
			Int("failed", failed).
			Dur("duration", time.Since(batchStart)).
			Msg("Batch settled")

		if onBatch != nil {
			onBatch(b)
		}
	}

	summary.Duration = time.Since(start)

	log.Info().
		Str("operation", f.config.Operation).
		Int("items", len(items)).
		Int("batches", summary.Batches).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Batch run complete")

	return summary, nil
}

// settle runs fetch for every item concurrently and waits for all of them.
func settle[T, R any](ctx context.Context, timeout time.Duration, items []T, fetch FetchFunc[T, R]) []Result[T, R] {
	results := make([]Result[T, R], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			results[i] = fetchOne(ctx, timeout, item, fetch)
		}(i, item)
	}
	wg.Wait()

	return results
}

// fetchOne performs a single item call, converting a panic into an error.
func fetchOne[T, R any](ctx context.Context, timeout time.Duration, item T, fetch FetchFunc[T, R]) (res Result[T, R]) {
	res.Item = item

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("item fetch panicked: %v", r)
		}
	}()

	res.Value, res.Err = fetch(ctx, item)
	return res
}

// Settle runs fetch for every item concurrently as a single batch and waits
// for all of them. It is Run without partitioning, for fan-outs that are
// already bounded by the caller.
func Settle[T, R any](ctx context.Context, items []T, fetch FetchFunc[T, R]) []Result[T, R] {
	return settle(ctx, 0, items, fetch)
}
