package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/chargee-energy/chargee-developer-playground/pkg/batch"
	"github.com/chargee-energy/chargee-developer-playground/pkg/dedup"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
)

// Progress layout of a steerable inverter run.
const (
	percentInverterListing = 10
	percentInverters       = 20
	spanInverters          = 75
)

// ErrRunActive is returned by operations that cannot simply be dropped
// when a run for the same key is in progress.
var ErrRunActive = errors.New("run already active")

// SteerableInverters lists every solar inverter of groupID that can be
// steered and reports a production state, each once per address.
func (e *Engine) SteerableInverters(ctx context.Context, groupID string, sink progress.Sink) ([]model.LocatedDevice, error) {
	handle, ok := e.registry.Acquire(InvertersRunKey(groupID))
	if !ok {
		RunsTotal.WithLabelValues("inverters", outcomeDropped).Inc()
		return nil, ErrRunActive
	}
	defer e.registry.Release(handle)

	logger := e.logger.With().
		Str("group_id", groupID).
		Str("run_id", handle.ID.String()).
		Logger()
	tracker := progress.NewTracker(sink, progress.WithClock(e.now))

	fail := func(stage progress.Stage, err error) ([]model.LocatedDevice, error) {
		logger.Error().Err(err).Str("stage", string(stage)).Msg("Steerable inverter run failed")
		RunsTotal.WithLabelValues("inverters", outcomeFailed).Inc()
		_ = tracker.Fail(UserMessage(err, model.CategorySolarInverter))
		return nil, &RunError{GroupID: groupID, Stage: stage, Err: err}
	}

	_ = tracker.Enter(progress.StageListingParents, percentInverterListing, "Fetching addresses...")
	page, err := e.lister.ListAll(ctx, groupID)
	if err != nil {
		return fail(progress.StageListingParents, err)
	}
	parents := page.Items

	inverters := make([]model.LocatedDevice, 0)
	if len(parents) > 0 {
		_ = tracker.EnterCounted(progress.StageFetchingChildren, percentInverters,
			fmt.Sprintf("Fetching inverters for %d addresses...", len(parents)), 0, len(parents))

		seen := dedup.New()
		fetcher := batch.New(batch.Config{
			BatchSize: e.config.ReadBatchSize,
			Timeout:   e.config.ItemTimeout,
			Operation: "inverters",
		})

		fetch := func(ctx context.Context, p model.Parent) ([]model.ChildRecord, error) {
			return model.ListChildren(ctx, e.backend, model.CategorySolarInverter, p.UUID)
		}

		_, err = batch.Run(ctx, fetcher, parents, fetch, func(b batch.Batch[model.Parent, []model.ChildRecord]) {
			for _, res := range b.Results {
				if res.Err != nil {
					ChildFetchFailures.WithLabelValues(string(model.CategorySolarInverter)).Inc()
					logger.Warn().Err(res.Err).Str("parent_id", res.Item.UUID).Msg("Inverter fetch failed")
					continue
				}
				for _, rec := range res.Value {
					if rec.IsSteerable() && seen.Add(dedup.Key(rec.ID(), res.Item.UUID)) {
						inverters = append(inverters, model.LocatedDevice{ChildRecord: rec, Parent: res.Item})
					}
				}
			}
			_, _ = tracker.Advance(progress.StageFetchingChildren, b.Processed, b.Total,
				percentInverters, spanInverters, func(progress.Projection) string {
					return fmt.Sprintf("Processed %d of %d addresses, %d steerable inverters",
						b.Processed, b.Total, len(inverters))
				})
		})
		if err != nil {
			_ = tracker.Enter(progress.StageFinalizing, 0, "Finalizing...")
			return fail(progress.StageFinalizing, err)
		}
	}

	_ = tracker.Enter(progress.StageFinalizing, progress.MaxRunningPercent, "Finalizing...")
	_ = tracker.Complete(fmt.Sprintf("Found %d steerable inverters", len(inverters)))
	RunsTotal.WithLabelValues("inverters", outcomeComplete).Inc()

	logger.Info().Int("inverters", len(inverters)).Msg("Steerable inverter run complete")
	return inverters, nil
}

// ScheduleFailure is one device a schedule could not be created on.
type ScheduleFailure struct {
	ParentID string `json:"addressUuid"`
	DeviceID string `json:"deviceId"`
	Error    string `json:"error"`
}

// ScheduleReport is the outcome of a bulk schedule.
type ScheduleReport struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  []ScheduleFailure `json:"failures,omitempty"`
}

// Schedule creates spec on every inverter in write batches. Failures are
// isolated per device and reported; nothing is retried.
func (e *Engine) Schedule(ctx context.Context, inverters []model.LocatedDevice, spec model.ScheduleSpec) (ScheduleReport, error) {
	fetcher := batch.New(batch.Config{
		BatchSize: e.config.WriteBatchSize,
		Timeout:   e.config.ItemTimeout,
		Operation: "schedule",
	})

	var report ScheduleReport
	create := func(ctx context.Context, d model.LocatedDevice) (struct{}, error) {
		return struct{}{}, e.backend.CreateSchedule(ctx, parentOf(d), d.ID(), spec)
	}

	_, err := batch.Run(ctx, fetcher, inverters, create, func(b batch.Batch[model.LocatedDevice, struct{}]) {
		for _, res := range b.Results {
			if res.OK() {
				report.Succeeded++
				continue
			}
			report.Failed++
			report.Failures = append(report.Failures, ScheduleFailure{
				ParentID: parentOf(res.Item),
				DeviceID: res.Item.ID(),
				Error:    res.Err.Error(),
			})
			e.logger.Warn().
				Err(res.Err).
				Str("parent_id", parentOf(res.Item)).
				Str("device_id", res.Item.ID()).
				Msg("Schedule creation failed")
		}
	})
	if err != nil {
		return report, err
	}

	e.logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Bulk schedule complete")

	return report, nil
}

func parentOf(d model.LocatedDevice) string {
	if d.ParentID != "" {
		return d.ParentID
	}
	return d.Parent.UUID
}
