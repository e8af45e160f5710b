package executor

import (
	"errors"
	"fmt"
)

// State is a stage of a compile execution.
type State string

const (
	// StateBuilding indicates the plan is being prepared.
	StateBuilding State = "BUILDING"
	// StateRunningPrimary indicates the primary plan is being encoded.
	StateRunningPrimary State = "RUNNING_PRIMARY"
	// StateRunningFallback indicates the fallback plan is being encoded.
	StateRunningFallback State = "RUNNING_FALLBACK"
	// StateSuccess indicates an attempt produced a non-empty output.
	StateSuccess State = "SUCCESS"
	// StateFailed indicates no attempt produced a usable output.
	StateFailed State = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("executor: invalid state transition")

// validTransitions defines which state transitions are allowed.
// RUNNING_PRIMARY may go straight to FAILED only when no fallback can run:
// single-attempt executions and cancelled contexts.
var validTransitions = map[State][]State{
	StateBuilding:        {StateRunningPrimary, StateFailed},
	StateRunningPrimary:  {StateSuccess, StateRunningFallback, StateFailed},
	StateRunningFallback: {StateSuccess, StateFailed},
	StateSuccess:         {},
	StateFailed:          {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for SUCCESS and FAILED.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// machine tracks the state of one execution and its history.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateBuilding, history: []State{StateBuilding}}
}

func (m *machine) to(next State) error {
	if !canTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// mustTo is used for transitions the executor's control flow guarantees.
func (m *machine) mustTo(next State) {
	if err := m.to(next); err != nil {
		panic(err)
	}
}
