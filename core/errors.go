package core

import (
	"errors"
	"fmt"
)

// Capability error codes carried by CapabilityError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// BackendError reports a model transport or API failure. It is fatal to the
// agent loop that observed it.
type BackendError struct {
	Agent string
	Err   error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error in %s: %v", e.Agent, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *BackendError) Unwrap() error { return e.Err }

// CapabilityError reports a capability invocation failure. It is recovered
// inside the round: the failure is fed back into history as a failed tool
// result and the loop continues.
type CapabilityError struct {
	Tool    string
	Code    string
	Message string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Tool, e.Message)
}

// NewCapabilityError builds a CapabilityError with the given code.
func NewCapabilityError(tool, code, format string, args ...any) *CapabilityError {
	return &CapabilityError{Tool: tool, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseError reports malformed capability invocation syntax in a model turn.
// The loop retries the reasoning step once; a repeated failure is fatal.
type ParseError struct {
	Agent  string
	Detail string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("decision parse error in %s: %s", e.Agent, e.Detail)
}

// ProtocolError reports a group coordination violation (invalid wiring,
// pipeline abort, all members failing). It is fatal to the group run.
type ProtocolError struct {
	Group  string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error in group %s: %s: %v", e.Group, e.Detail, e.Err)
	}
	return fmt.Sprintf("protocol error in group %s: %s", e.Group, e.Detail)
}

// Unwrap exposes the causing error, if any.
func (e *ProtocolError) Unwrap() error { return e.Err }

// StateMismatchError reports a snapshot that does not match the group or
// agent it is being restored into. Restoration fails fast and leaves the
// target untouched.
type StateMismatchError struct {
	Field string
	Got   string
	Want  string
}

// Error implements the error interface.
func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("state mismatch on %s: snapshot has %q, target has %q", e.Field, e.Got, e.Want)
}

// ErrorKind names the taxonomy class of err for error event payloads. The
// chain is walked outermost-in so a ProtocolError wrapping a BackendError
// reports as "protocol".
func ErrorKind(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *BackendError:
			return "backend"
		case *CapabilityError:
			return "capability"
		case *ParseError:
			return "parse"
		case *ProtocolError:
			return "protocol"
		case *StateMismatchError:
			return "state_mismatch"
		}
	}
	return "internal"
}
