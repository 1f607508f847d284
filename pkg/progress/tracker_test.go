package progress

import (
	"errors"
	"testing"
	"time"
)

type recorder struct {
	states []State
}

func (r *recorder) sink(s State) { r.states = append(r.states, s) }

func TestTracker_FullRunIsMonotonic(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := NewTracker(rec.sink, WithClock(clock))

	steps := []func() error{
		func() error { return tr.Enter(StageCounting, 5, "Counting addresses...") },
		func() error { return tr.Enter(StageListingParents, 10, "Fetching addresses...") },
		func() error { return tr.Enter(StageListingParents, 30, "Fetched addresses") },
		func() error { return tr.Enter(StageSampledChecks, 35, "Checking reporting Sparky's...") },
		// lower percent than current must be clamped
		func() error { return tr.Enter(StageFetchingChildren, 20, "Fetching device data...") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	for processed := 50; processed <= 120; processed += 50 {
		now = now.Add(time.Second)
		if _, err := tr.Advance(StageFetchingChildren, min(processed, 120), 120, 50, 45, nil); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	now = now.Add(time.Second)
	if _, err := tr.Advance(StageFetchingChildren, 120, 120, 50, 45, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := tr.Enter(StageFinalizing, 95, "Calculating final results..."); err != nil {
		t.Fatalf("Enter finalizing: %v", err)
	}
	if err := tr.Complete("Analytics complete!"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	last := -1.0
	for i, s := range rec.states {
		if s.Percent < last {
			t.Errorf("state %d (%s): percent %v decreased from %v", i, s.Stage, s.Percent, last)
		}
		if s.Percent < 0 || s.Percent > 100 {
			t.Errorf("state %d: percent %v out of range", i, s.Percent)
		}
		if s.Percent == 100 && s.Stage != StageComplete {
			t.Errorf("state %d: 100%% outside COMPLETE (%s)", i, s.Stage)
		}
		last = s.Percent
	}

	final := rec.states[len(rec.states)-1]
	if final.Stage != StageComplete || final.Percent != 100 {
		t.Errorf("final state = %+v", final)
	}
	if rec.states[0].Stage != StageInit {
		t.Errorf("first state = %s, want init", rec.states[0].Stage)
	}
}

func TestTracker_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []Stage
		next  Stage
	}{
		{name: "complete from init", setup: nil, next: StageComplete},
		{name: "fail while fetching", setup: []Stage{StageCounting, StageListingParents, StageFetchingChildren}, next: StageFailed},
		{name: "back to counting", setup: []Stage{StageCounting, StageListingParents}, next: StageCounting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(nil)
			for _, s := range tt.setup {
				if err := tr.Enter(s, 0, ""); err != nil {
					t.Fatalf("setup %s: %v", s, err)
				}
			}
			err := tr.emit(State{Stage: tt.next})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTracker_FailKeepsPercent(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec.sink)
	_ = tr.Enter(StageCounting, 5, "")
	_ = tr.Enter(StageListingParents, 10, "")

	if err := tr.Fail("listing failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if s := tr.State(); s.Stage != StageFailed || s.Percent != 10 {
		t.Errorf("state = %+v", s)
	}
	if err := tr.Enter(StageFinalizing, 95, ""); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal after FAILED, got %v", err)
	}
}

func TestTracker_ZeroParentsPath(t *testing.T) {
	tr := NewTracker(nil)
	for _, s := range []Stage{StageCounting, StageFinalizing} {
		if err := tr.Enter(s, 5, ""); err != nil {
			t.Fatalf("Enter %s: %v", s, err)
		}
	}
	if err := tr.Complete("No addresses found"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestCanTransition_FailedOnlyFromAllowedStages(t *testing.T) {
	allowed := map[Stage]bool{
		StageInit:           true,
		StageCounting:       true,
		StageListingParents: true,
		StageFinalizing:     true,
	}
	for _, s := range []Stage{StageInit, StageCounting, StageListingParents, StageSampledChecks, StageFetchingChildren, StageFinalizing, StageComplete, StageFailed} {
		if got := CanTransition(s, StageFailed); got != allowed[s] {
			t.Errorf("CanTransition(%s, failed) = %v, want %v", s, got, allowed[s])
		}
	}
}
