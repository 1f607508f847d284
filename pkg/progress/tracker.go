package progress

import (
	"sync"
	"time"
)

// State is one progress event of a run.
type State struct {
	Stage      Stage   `json:"stage"`
	Percent    float64 `json:"percent"`
	Message    string  `json:"message"`
	Processed  int     `json:"processed,omitempty"`
	Total      int     `json:"total,omitempty"`
	ETASeconds int     `json:"etaSeconds,omitempty"`
}

// Sink receives progress events in order.
type Sink func(State)

// Discard is a Sink that drops every event.
func Discard(State) {}

// Tracker drives the state machine of one run. It keeps percent
// non-decreasing, holds it below 100 until Complete, and forwards every
// accepted state to its sink.
type Tracker struct {
	mu    sync.Mutex
	state State
	sink  Sink
	start time.Time
	now   func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces the time source used for elapsed time.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker in the INIT stage and emits that state.
func NewTracker(sink Sink, opts ...TrackerOption) *Tracker {
	if sink == nil {
		sink = Discard
	}
	t := &Tracker{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()
	t.state = State{Stage: StageInit, Message: "Initializing..."}
	t.sink(t.state)
	return t
}

// State returns the latest state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns the time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Enter moves to stage at percent with message.
func (t *Tracker) Enter(stage Stage, percent float64, message string) error {
	return t.emit(State{Stage: stage, Percent: percent, Message: message})
}

// EnterCounted is Enter with processed/total counters attached.
func (t *Tracker) EnterCounted(stage Stage, percent float64, message string, processed, total int) error {
	return t.emit(State{Stage: stage, Percent: percent, Message: message, Processed: processed, Total: total})
}

// Advance reports processed/total within stage, spanning [base, base+span]
// of the overall percentage. message renders the projection.
func (t *Tracker) Advance(stage Stage, processed, total int, base, span float64, message func(Projection) string) (Projection, error) {
	p := Estimate(processed, total, t.Elapsed(), base, span)
	msg := ""
	if message != nil {
		msg = message(p)
	}
	return p, t.emit(State{
		Stage:      stage,
		Percent:    p.Percent,
		Message:    msg,
		Processed:  processed,
		Total:      total,
		ETASeconds: p.ETASeconds,
	})
}

// Complete emits the terminal 100% state.
func (t *Tracker) Complete(message string) error {
	return t.emit(State{Stage: StageComplete, Percent: 100, Message: message})
}

// Fail emits the terminal FAILED state. Percent keeps its last value.
func (t *Tracker) Fail(message string) error {
	return t.emit(State{Stage: StageFailed, Message: message})
}

func (t *Tracker) emit(next State) error {
	t.mu.Lock()

	if err := checkTransition(t.state.Stage, next.Stage); err != nil {
		t.mu.Unlock()
		return err
	}

	switch next.Stage {
	case StageComplete:
		next.Percent = 100
	case StageFailed:
		next.Percent = t.state.Percent
	default:
		next.Percent = clamp(next.Percent, t.state.Percent, MaxRunningPercent)
	}

	t.state = next
	sink := t.sink
	t.mu.Unlock()

	sink(next)
	return nil
}
