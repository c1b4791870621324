package core

import (
	"fmt"
	"time"

	"pkt.systems/gamebridge/schema"
)

// BridgeErrorKind classifies control-plane failures for user-facing hints.
type BridgeErrorKind string

const (
	// BridgeErrorConfig is an invalid path, missing project file or bad setting,
	// detected before any process or transport action.
	BridgeErrorConfig BridgeErrorKind = "config"
	// BridgeErrorTransport is a send or receive failure.
	BridgeErrorTransport BridgeErrorKind = "transport"
	// BridgeErrorTimeout means no reply arrived in time.
	BridgeErrorTimeout BridgeErrorKind = "timeout"
	// BridgeErrorMalformed means the reply could not be decoded.
	BridgeErrorMalformed BridgeErrorKind = "malformed"
	// BridgeErrorTarget means the target is not running or not ready.
	BridgeErrorTarget BridgeErrorKind = "target"
	// BridgeErrorLifecycle is a spawn, wait or kill failure.
	BridgeErrorLifecycle BridgeErrorKind = "lifecycle"
)

// BridgeError wraps control-plane failures with a stable classification.
type BridgeError struct {
	Kind    BridgeErrorKind
	Op      string
	Command schema.Command
	Elapsed time.Duration
	Err     error
}

// NewBridgeError constructs a classified error.
func NewBridgeError(kind BridgeErrorKind, op string, err error) *BridgeError {
	return &BridgeError{Kind: kind, Op: op, Err: err}
}

func (e *BridgeError) Error() string {
	if e == nil {
		return "bridge error"
	}
	subject := e.Op
	if e.Command != "" {
		subject = fmt.Sprintf("%s %s", e.Op, e.Command)
	}
	if subject == "" {
		subject = string(e.Kind)
	}
	msg := subject + " failed"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", subject, e.Err)
	}
	if e.Elapsed > 0 {
		msg = fmt.Sprintf("%s (after %s)", msg, e.Elapsed.Round(time.Millisecond))
	}
	return msg
}

func (e *BridgeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint returns a short remediation for the error kind.
func (e *BridgeError) Hint() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case BridgeErrorConfig:
		return "check the project path and configuration"
	case BridgeErrorTransport, BridgeErrorTimeout:
		return "make sure the project is running with the listener registered"
	case BridgeErrorMalformed:
		return "the listener replied with something other than a JSON object"
	case BridgeErrorTarget:
		return "start the project first and wait for the listener"
	case BridgeErrorLifecycle:
		return "check that the engine executable exists and can start"
	default:
		return ""
	}
}
