package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle of one phase.
type State int32

const (
	StatePending State = iota
	StateScheduling
	StateCompleted
	StateCircuitTripped
	StateInterrupted
	StateAborted
)

var stateNames = [...]string{
	StatePending:        "pending",
	StateScheduling:     "scheduling",
	StateCompleted:      "completed",
	StateCircuitTripped: "circuit_tripped",
	StateInterrupted:    "interrupted",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether the phase has finished draining.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCircuitTripped, StateInterrupted, StateAborted:
		return true
	}
	return false
}

// RunState is shared by the scheduling loop and every in-flight unit.
// The first error and the first trip win; later ones are ignored.
type RunState struct {
	tripped atomic.Bool

	mu  sync.Mutex
	err error
}

// Trip marks the circuit as tripped. Only the first caller gets true.
func (s *RunState) Trip() bool {
	return s.tripped.CompareAndSwap(false, true)
}

func (s *RunState) Tripped() bool { return s.tripped.Load() }

// SetErr records err if no error was recorded yet.
func (s *RunState) SetErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *RunState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
