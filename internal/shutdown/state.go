// Package shutdown coordinates process termination: it collects termination
// triggers, stops admitting connections, drains in-flight requests within a
// bounded timeout and reports the process exit code.
package shutdown

// State is the process-wide shutdown state.
type State int32

const (
	Running State = iota
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is an input to the state machine.
type Event int

const (
	// EventTrigger is a termination signal, a fatal fault or context cancellation.
	EventTrigger Event = iota
	// EventDrained means the server closed and every in-flight request finished.
	EventDrained
	// EventTimeout means the drain deadline elapsed first.
	EventTimeout
	// EventListenFailed means the listen socket could not be opened.
	EventListenFailed
)

func (e Event) String() string {
	switch e {
	case EventTrigger:
		return "trigger"
	case EventDrained:
		return "drained"
	case EventTimeout:
		return "timeout"
	case EventListenFailed:
		return "listen_failed"
	default:
		return "unknown"
	}
}

// Action tells the coordinator what to do after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionBeginDrain
	ActionIgnore
	ActionExitGraceful
	ActionExitForced
	ActionExitImmediate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionBeginDrain:
		return "begin_drain"
	case ActionIgnore:
		return "ignore"
	case ActionExitGraceful:
		return "exit_graceful"
	case ActionExitForced:
		return "exit_forced"
	case ActionExitImmediate:
		return "exit_immediate"
	default:
		return "unknown"
	}
}

// Process exit codes.
const (
	ExitGraceful = 0
	ExitForced   = 1
)

// ExitCode maps a terminal action to the process exit code.
func (a Action) ExitCode() int {
	if a == ActionExitGraceful {
		return ExitGraceful
	}
	return ExitForced
}

// Transition is the pure shutdown state machine. Terminated is absorbing, and
// a trigger received while Draining is ignored.
func Transition(s State, e Event) (State, Action) {
	switch s {
	case Running:
		switch e {
		case EventTrigger:
			return Draining, ActionBeginDrain
		case EventListenFailed:
			return Terminated, ActionExitImmediate
		}
	case Draining:
		switch e {
		case EventTrigger, EventListenFailed:
			return Draining, ActionIgnore
		case EventDrained:
			return Terminated, ActionExitGraceful
		case EventTimeout:
			return Terminated, ActionExitForced
		}
	}
	return s, ActionNone
}
