package pipeline

import "fmt"

// State is a position in the release transaction.
type State string

const (
	StateIdle            State = "idle"
	StateSessionReady    State = "session-ready"
	StateUploaded        State = "uploaded"
	StateMetadataSet     State = "metadata-set"
	StateGraphicsSet     State = "graphics-set"
	StateDistributionSet State = "distribution-set"
	StateValidated       State = "validated"
	StateCommitted       State = "committed"
	StateAborted         State = "aborted"
)

// forward is the single legal successor of each non-terminal state.
var forward = map[State]State{
	StateIdle:            StateSessionReady,
	StateSessionReady:    StateUploaded,
	StateUploaded:        StateMetadataSet,
	StateMetadataSet:     StateGraphicsSet,
	StateGraphicsSet:     StateDistributionSet,
	StateDistributionSet: StateValidated,
	StateValidated:       StateCommitted,
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s State) bool {
	return s == StateCommitted || s == StateAborted
}

// Next returns the forward successor of s.
func Next(s State) (State, bool) {
	next, ok := forward[s]
	return next, ok
}

// Transition validates a move from one state to another. Any non-terminal
// state may abort.
func Transition(from, to State) error {
	if IsTerminal(from) {
		return fmt.Errorf("pipeline: %s is terminal, cannot move to %s", from, to)
	}
	if to == StateAborted {
		return nil
	}
	if next, ok := forward[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("pipeline: disallowed transition %s -> %s", from, to)
}

// machine tracks the current state of one run.
type machine struct {
	state State
	// last is the state the run was in when it aborted.
	last State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

// advance moves forward; an illegal move is a programming error.
func (m *machine) advance(to State) {
	if err := Transition(m.state, to); err != nil {
		panic(err)
	}
	m.state = to
}

func (m *machine) abort() {
	if IsTerminal(m.state) {
		return
	}
	m.last = m.state
	m.state = StateAborted
}
