package schema

import (
	"encoding/json"
	"strings"
)

const (
	// DefaultHost is the loopback address the listener binds and the bridge targets.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the well-known listener port.
	DefaultPort = 9900
	// MaxDatagramSize is the largest UDP payload a reply may occupy.
	MaxDatagramSize = 65507
	// ListenerReadyMarker is printed on the target's stdout once the listener socket is bound.
	ListenerReadyMarker = "gamebridge: listener ready"
	// ScriptEntryPoint is the function every run_script source must define.
	ScriptEntryPoint = "run"
)

// Command names one operation of the bridge protocol.
type Command string

const (
	// CommandPing checks liveness.
	CommandPing Command = "ping"
	// CommandScreenshot captures the next rendered frame to disk.
	CommandScreenshot Command = "screenshot"
	// CommandInput replays an input batch.
	CommandInput Command = "input"
	// CommandUIElements lists visible UI elements.
	CommandUIElements Command = "get_ui_elements"
	// CommandRunScript compiles and runs a script against the live tree.
	CommandRunScript Command = "run_script"
)

// Commands lists every protocol command.
var Commands = []Command{
	CommandPing,
	CommandScreenshot,
	CommandInput,
	CommandUIElements,
	CommandRunScript,
}

// ParseCommand maps a wire name onto the closed command set.
func ParseCommand(name string) (Command, bool) {
	switch Command(name) {
	case CommandPing, CommandScreenshot, CommandInput, CommandUIElements, CommandRunScript:
		return Command(name), true
	default:
		return "", false
	}
}

// LegacyCommand maps the pre-envelope plain-text commands.
func LegacyCommand(text string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "screenshot":
		return CommandScreenshot, true
	case "ping":
		return CommandPing, true
	default:
		return "", false
	}
}

// Envelope is the command discriminator shared by every request.
type Envelope struct {
	Command string `json:"command"`
}

// InputRequest carries an ordered input batch. Actions stay raw so that each one
// is validated only when execution reaches it.
type InputRequest struct {
	Actions json.RawMessage `json:"actions"`
}

// UIElementsRequest filters the UI inventory.
type UIElementsRequest struct {
	VisibleOnly *bool  `json:"visible_only,omitempty"`
	TypeFilter  string `json:"type_filter,omitempty"`
}

// RunScriptRequest carries script source.
type RunScriptRequest struct {
	Source string `json:"source"`
}

// PongReply answers ping.
type PongReply struct {
	Status string `json:"status"`
}

// ScreenshotReply reports where a captured frame was written.
type ScreenshotReply struct {
	Path string `json:"path"`
}

// InputReply reports batch progress. Exactly one of Success or Error is set.
type InputReply struct {
	Success          bool   `json:"success,omitempty"`
	Error            string `json:"error,omitempty"`
	ActionsProcessed int    `json:"actions_processed"`
}

// UIElementsReply lists UI element snapshots.
type UIElementsReply struct {
	Elements []UIElement `json:"elements"`
	Count    int         `json:"count"`
}

// ScriptReply carries the serialized script result.
type ScriptReply struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

// ErrorReply is the generic failure envelope.
type ErrorReply struct {
	Error   string  `json:"error"`
	Command Command `json:"command,omitempty"`
}
