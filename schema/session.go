package schema

// SessionState is the lifecycle state of the single target-process slot.
type SessionState string

const (
	// SessionIdle means no target is tracked.
	SessionIdle SessionState = "idle"
	// SessionStarting means injection and spawn are in progress.
	SessionStarting SessionState = "starting"
	// SessionRunning means the target process is alive.
	SessionRunning SessionState = "running"
	// SessionExited means the target exited on its own; output stays inspectable until Stop.
	SessionExited SessionState = "exited"
	// SessionStopping means the target is being killed and cleaned up.
	SessionStopping SessionState = "stopping"
)

// StartRequest describes a target launch.
type StartRequest struct {
	ProjectRoot string `json:"project_root"`
	Scene       string `json:"scene,omitempty"`
}

// StartResponse reports the spawned target.
type StartResponse struct {
	ProjectRoot string `json:"project_root"`
	Scene       string `json:"scene,omitempty"`
	PID         int    `json:"pid"`
	Injected    bool   `json:"injected"`
}

// StopResponse returns the output captured for the stopped target.
type StopResponse struct {
	ProjectRoot string   `json:"project_root"`
	Stdout      []string `json:"stdout"`
	Stderr      []string `json:"stderr"`
	ExitCode    int      `json:"exit_code"`
	WasRunning  bool     `json:"was_running"`
}

// OutputSnapshot is a copy of the captured output buffers.
type OutputSnapshot struct {
	Stdout       []string `json:"stdout"`
	Stderr       []string `json:"stderr"`
	StdoutTotal  int      `json:"stdout_total"`
	StderrTotal  int      `json:"stderr_total"`
	StdoutEvicts int      `json:"stdout_evicted"`
	StderrEvicts int      `json:"stderr_evicted"`
}

// SessionStatus is a point-in-time view of the session slot.
type SessionStatus struct {
	State         SessionState `json:"state"`
	ProjectRoot   string       `json:"project_root,omitempty"`
	Scene         string       `json:"scene,omitempty"`
	PID           int          `json:"pid,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	ListenerReady bool         `json:"listener_ready"`
	Injected      bool         `json:"injected"`
	InjectedRoots []string     `json:"injected_roots,omitempty"`
	StdoutLines   int          `json:"stdout_lines"`
	StderrLines   int          `json:"stderr_lines"`
}
