package progress

import (
	"errors"
	"fmt"
)

// Stage is a step of the run state machine.
type Stage string

const (
	StageInit             Stage = "init"
	StageCounting         Stage = "counting"
	StageListingParents   Stage = "listing_parents"
	StageSampledChecks    Stage = "sampled_checks"
	StageFetchingChildren Stage = "fetching_children"
	StageFinalizing       Stage = "finalizing"
	StageComplete         Stage = "complete"
	StageFailed           Stage = "failed"
)

var (
	// ErrInvalidTransition is returned for a transition the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrTerminal is returned when a finished run is updated.
	ErrTerminal = errors.New("run already finished")
)

// transitions lists the allowed successors of each stage. FETCHING_CHILDREN
// repeats once per batch. Zero-parent runs go straight to FINALIZING.
var transitions = map[Stage][]Stage{
	StageInit:             {StageCounting, StageListingParents, StageFailed},
	StageCounting:         {StageListingParents, StageFinalizing, StageFailed},
	StageListingParents:   {StageSampledChecks, StageFetchingChildren, StageFinalizing, StageFailed},
	StageSampledChecks:    {StageFetchingChildren},
	StageFetchingChildren: {StageFetchingChildren, StageFinalizing},
	StageFinalizing:       {StageComplete, StageFailed},
}

// Terminal reports whether s ends a run.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Stage) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
