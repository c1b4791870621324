package core

import (
	"context"
	"encoding/json"
	"time"
)

// Launcher starts engine processes for a project.
type Launcher interface {
	Start(ctx context.Context, req LaunchRequest) (ProcessHandle, error)
	RunHeadless(ctx context.Context, req HeadlessRequest) (HeadlessResult, error)
}

// LaunchRequest describes a foreground (debug) run of a project.
type LaunchRequest struct {
	ProjectRoot string
	Scene       string
}

// ProcessHandle exposes the output stream and lifecycle controls of a started target.
type ProcessHandle interface {
	PID() int
	Outputs() OutputStream
	Signal(ctx context.Context, sig ProcessSignal) error
	Wait(ctx context.Context) (RunResult, error)
	Close() error
}

// RunResult describes the process outcome.
type RunResult struct {
	ExitCode int
	Signal   string
}

// StreamKind indicates which stream produced output.
type StreamKind string

const (
	// StreamStdout indicates output captured from stdout.
	StreamStdout StreamKind = "stdout"
	// StreamStderr indicates output captured from stderr.
	StreamStderr StreamKind = "stderr"
)

// OutputLine is one line of target output.
type OutputLine struct {
	Stream StreamKind
	Text   string
}

// OutputStream yields output lines until the process closes its streams.
type OutputStream interface {
	Next(ctx context.Context) (OutputLine, error)
	Close() error
}

// HeadlessRequest describes a one-shot headless invocation.
type HeadlessRequest struct {
	ProjectRoot string
	Operation   string
	Params      json.RawMessage
	Timeout     time.Duration
}

// HeadlessResult carries the raw output of a headless invocation.
type HeadlessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ProcessSignal indicates which signal to send to the process.
type ProcessSignal string

const (
	// ProcessSignalHUP requests a hangup signal.
	ProcessSignalHUP ProcessSignal = "HUP"
	// ProcessSignalTERM requests a termination signal.
	ProcessSignalTERM ProcessSignal = "TERM"
	// ProcessSignalKILL requests an immediate kill signal.
	ProcessSignalKILL ProcessSignal = "KILL"
)
