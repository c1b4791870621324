package schema

import "time"

// EventType identifies a session event.
type EventType string

const (
	// EventOutput carries one captured line of target output.
	EventOutput EventType = "output"
	// EventState carries a session state transition.
	EventState EventType = "state"
	// EventExit reports that the target process exited.
	EventExit EventType = "exit"
	// EventReady reports that the target's listener announced itself.
	EventReady EventType = "ready"
)

// OutputEvent is one line read from the target's stdout or stderr.
type OutputEvent struct {
	ProjectRoot string    `json:"project_root"`
	Stream      string    `json:"stream"`
	Line        string    `json:"line"`
	At          time.Time `json:"at"`
}

// StateEvent reports a session state change.
type StateEvent struct {
	ProjectRoot string       `json:"project_root"`
	State       SessionState `json:"state"`
	PID         int          `json:"pid,omitempty"`
	At          time.Time    `json:"at"`
}

// ExitEvent reports how the target process ended.
type ExitEvent struct {
	ProjectRoot string    `json:"project_root"`
	PID         int       `json:"pid"`
	ExitCode    int       `json:"exit_code"`
	Signal      string    `json:"signal,omitempty"`
	At          time.Time `json:"at"`
}

// ReadyEvent reports the address the target's listener bound.
type ReadyEvent struct {
	ProjectRoot string    `json:"project_root"`
	Addr        string    `json:"addr"`
	At          time.Time `json:"at"`
}
