package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidProject indicates the project root is missing, unsafe or lacks a project file.
	ErrInvalidProject = errors.New("invalid project")
	// ErrInvalidScene indicates the scene argument is not a safe project-relative path.
	ErrInvalidScene = errors.New("invalid scene")
	// ErrEngineNotFound indicates no usable engine executable was located.
	ErrEngineNotFound = errors.New("engine executable not found")
	// ErrNoSession indicates no target process is running.
	ErrNoSession = errors.New("no running target")
	// ErrSessionBusy indicates a start or stop is already in progress.
	ErrSessionBusy = errors.New("session is busy")
	// ErrListenerNotReady indicates the target has not reported a bound listener.
	ErrListenerNotReady = errors.New("listener not ready")
	// ErrBatchInProgress indicates an input batch is already executing.
	ErrBatchInProgress = errors.New("input batch already in progress")
	// ErrEmptyBatch indicates an input batch without actions.
	ErrEmptyBatch = errors.New("actions must be a non-empty array")
	// ErrUnknownCommand indicates a command name outside the protocol.
	ErrUnknownCommand = errors.New("unknown command")
)
