// Package taskstate defines the lifecycle states of a dispatched agent task.
package taskstate

// State represents a dispatch task's current state.
type State string

const (
	// Running indicates the child process has been started and has not yet exited.
	Running State = "running"

	// Canceling indicates a cancel request has been recorded and a termination
	// signal has been, or is about to be, sent to the child process.
	Canceling State = "canceling"

	// Completed indicates the child process exited with status 0 and no
	// cancellation was requested.
	Completed State = "completed"

	// Failed indicates the child process exited non-zero, timed out, or could
	// not be started.
	Failed State = "failed"

	// Canceled indicates a cancel was requested for this task. This state
	// takes priority over the child's exit code.
	Canceled State = "canceled"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Canceled:
		return true
	}
	return false
}

// IsActive returns true if the task still occupies a subprocess slot.
func (s State) IsActive() bool {
	switch s {
	case Running, Canceling:
		return true
	}
	return false
}

// ValidTransitions defines the allowed state transitions.
var ValidTransitions = map[State][]State{
	Running:   {Canceling, Completed, Failed, Canceled},
	Canceling: {Completed, Failed, Canceled},
	Completed: {},
	Failed:    {},
	Canceled:  {},
}

// CanTransition returns true if transitioning from 'from' to 'to' is valid.
func CanTransition(from, to State) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns all defined states.
func AllStates() []State {
	return []State{Running, Canceling, Completed, Failed, Canceled}
}

// TerminalStates returns all terminal states.
func TerminalStates() []State {
	return []State{Completed, Failed, Canceled}
}

// Parse converts a string to a State, reporting whether it was recognized.
func Parse(s string) (State, bool) {
	state := State(s)
	for _, valid := range AllStates() {
		if state == valid {
			return state, true
		}
	}
	return "", false
}
