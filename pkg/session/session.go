// Package session holds the analytics view of one selected group: the last
// known tally, the progress of a running aggregation and its error.
//
// Selecting a group moves the output slot. Runs started for a group keep
// going in the background when another group is selected; their progress
// and results are only applied while their group is still selected and
// their generation is still current.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/engine"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
)

// Snapshot is the content of the output slot.
type Snapshot struct {
	GroupID   string                   `json:"groupId"`
	Result    *model.AggregationResult `json:"result,omitempty"`
	UpdatedAt time.Time                `json:"updatedAt,omitempty"`
	FromCache bool                     `json:"fromCache"`
	Running   bool                     `json:"running"`
	Progress  *progress.State          `json:"progress,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Runner is the part of the engine a session drives.
type Runner interface {
	Run(ctx context.Context, groupID string, sink progress.Sink) (engine.Report, error)
	CachedResult(ctx context.Context, groupID string) (*model.AggregationResult, time.Time, error)
	Registry() *engine.Registry
}

// Option configures a Session.
type Option func(*Session)

// WithClearDelay sets how long a COMPLETE progress stays in the slot.
func WithClearDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.clearDelay = d
		}
	}
}

// WithOnChange registers a callback invoked after every slot change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session owns the output slot.
type Session struct {
	ctx        context.Context
	runner     Runner
	clearDelay time.Duration
	onChange   func(Snapshot)
	logger     zerolog.Logger

	mu      sync.Mutex
	slot    Snapshot
	epoch   uint64
	clear   *time.Timer
	running sync.WaitGroup
}

// New creates a session. ctx bounds the runs it starts.
func New(ctx context.Context, runner Runner, opts ...Option) *Session {
	if runner == nil {
		panic("runner cannot be nil")
	}
	s := &Session{
		ctx:        ctx,
		runner:     runner,
		clearDelay: progress.ClearDelay,
		logger:     log.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select moves the slot to groupID. A valid cached tally is shown without
// running; otherwise an aggregation run is started. Selecting the group
// that is already selected returns the current snapshot, unless its tally
// has expired in the cache, in which case a new run is started.
func (s *Session) Select(groupID string) Snapshot {
	s.mu.Lock()
	if s.slot.GroupID == groupID && groupID != "" {
		snap := s.slot
		s.mu.Unlock()
		if snap.Running || snap.Result == nil || s.valid(groupID) {
			return snap
		}
		s.logger.Debug().Str("group_id", groupID).Msg("Shown analytics expired")
		return s.Refresh()
	}
	s.stopClear()
	s.epoch++
	s.slot = Snapshot{GroupID: groupID}
	s.mu.Unlock()

	if groupID == "" {
		s.changed()
		return s.Snapshot()
	}

	result, writtenAt, err := s.runner.CachedResult(s.ctx, groupID)
	switch {
	case err == nil:
		s.mu.Lock()
		if s.slot.GroupID == groupID {
			s.slot.Result = result
			s.slot.UpdatedAt = writtenAt
			s.slot.FromCache = true
		}
		s.mu.Unlock()
		s.logger.Debug().Str("group_id", groupID).Msg("Using cached analytics")
		s.changed()
		return s.Snapshot()
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Cache get error")
	}

	s.start(groupID)
	return s.Snapshot()
}

// valid reports whether the cached tally of groupID is still within its TTL.
// Redis failures keep the shown tally.
func (s *Session) valid(groupID string) bool {
	_, _, err := s.runner.CachedResult(s.ctx, groupID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, cache.ErrCacheMiss):
		return false
	default:
		s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Cache get error")
		return true
	}
}

// Refresh starts a run for the selected group regardless of the cache.
// It is a no-op while a run for the group is active.
func (s *Session) Refresh() Snapshot {
	s.mu.Lock()
	groupID := s.slot.GroupID
	s.mu.Unlock()

	if groupID != "" {
		s.start(groupID)
	}
	return s.Snapshot()
}

// Snapshot returns the current slot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.slot
	if snap.Progress != nil {
		p := *snap.Progress
		snap.Progress = &p
	}
	return snap
}

// Wait blocks until every run started by the session has returned.
func (s *Session) Wait() {
	s.running.Wait()
}

// Close stops the pending progress clear.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopClear()
}

func (s *Session) start(groupID string) {
	s.mu.Lock()
	if s.slot.GroupID == groupID {
		s.slot.Running = true
		s.slot.Error = ""
	}
	s.mu.Unlock()
	s.changed()

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		report, err := s.runner.Run(s.ctx, groupID, func(st progress.State) {
			s.applyProgress(groupID, st)
		})
		s.applyResult(groupID, report, err)
	}()
}

// current reports whether a run of groupID under generation gen may write
// to the slot. Must be called with mu held.
func (s *Session) current(groupID string, gen uint64) bool {
	if s.slot.GroupID != groupID {
		return false
	}
	return gen == 0 || s.runner.Registry().Current(engine.AnalyticsRunKey(groupID)) == gen
}

func (s *Session) applyProgress(groupID string, st progress.State) {
	s.mu.Lock()
	if !s.current(groupID, 0) {
		s.mu.Unlock()
		return
	}
	s.stopClear()
	s.slot.Progress = &st
	s.mu.Unlock()
	s.changed()
}

func (s *Session) applyResult(groupID string, report engine.Report, err error) {
	logger := s.logger.With().
		Str("group_id", groupID).
		Uint64("generation", report.Generation).
		Logger()

	if report.Dropped {
		logger.Debug().Msg("Run already active for group")
		return
	}

	s.mu.Lock()
	if !s.current(groupID, report.Generation) {
		s.mu.Unlock()
		logger.Info().Msg("Dropping late result")
		return
	}

	s.slot.Running = false
	switch {
	case err != nil:
		s.slot.Error = engine.UserMessage(err, "")
	case report.Superseded:
		// Nothing to show; the slot keeps the previous tally.
	default:
		s.slot.Result = report.Result
		s.slot.UpdatedAt = report.Result.CompletedAt
		s.slot.FromCache = false
		s.slot.Error = ""
		s.scheduleClear()
	}
	s.mu.Unlock()
	s.changed()
}

// scheduleClear removes the terminal progress after the clear delay.
// Must be called with mu held.
func (s *Session) scheduleClear() {
	s.stopClear()
	epoch := s.epoch
	s.clear = time.AfterFunc(s.clearDelay, func() {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.slot.Progress = nil
		s.clear = nil
		s.mu.Unlock()
		s.changed()
	})
}

// stopClear must be called with mu held.
func (s *Session) stopClear() {
	if s.clear != nil {
		s.clear.Stop()
		s.clear = nil
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}
