package mode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the engine can hand back to a
// caller. The command layer switches on the kind, never on message
// text.
type ErrorKind string

const (
	// KindDuplicateMode: a second plugin registered under an existing
	// id. Registration-time only; fatal to startup.
	KindDuplicateMode ErrorKind = "duplicate_mode"
	// KindNotFound: an unknown mode id was requested.
	KindNotFound ErrorKind = "not_found"
	// KindNoApplicableMode: no plugin cleared the confidence floor.
	KindNoApplicableMode ErrorKind = "no_applicable_mode"
	// KindCapacityExceeded: the target mode is at its concurrent
	// session limit.
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	// KindTimeout: a plugin call exceeded its configured bound.
	KindTimeout ErrorKind = "timeout"
	// KindPluginFailure: a plugin reported failure or panicked.
	KindPluginFailure ErrorKind = "plugin_failure"
)

// Message returns the short human-readable line the command layer
// shows for this kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindDuplicateMode:
		return "a mode with this identifier is already registered"
	case KindNotFound:
		return "no such mode"
	case KindNoApplicableMode:
		return "no mode was confident enough to handle this input"
	case KindCapacityExceeded:
		return "the mode is at its concurrent session limit, try again later"
	case KindTimeout:
		return "the mode took too long and was cut off; it is still active"
	case KindPluginFailure:
		return "the mode failed internally; the session is unaffected"
	default:
		return "mode dispatch failed"
	}
}

// Error is the typed error every engine operation returns on failure.
// Matching goes through errors.Is with the Err* sentinels below, or
// errors.As / KindOf for the structured fields.
type Error struct {
	Kind    ErrorKind
	Mode    string // offending mode id, when known
	Session string // session the call was for, when relevant
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Mode != "" {
		fmt.Fprintf(&b, ": mode %q", e.Mode)
	}
	if e.Session != "" {
		fmt.Fprintf(&b, " (session %s)", e.Session)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so
// errors.Is(err, mode.ErrCapacityExceeded) works without the caller
// knowing which mode or session was involved.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Mode != "" && t.Mode != e.Mode {
		return false
	}
	return true
}

// Kind sentinels for errors.Is matching.
var (
	ErrDuplicateMode    = &Error{Kind: KindDuplicateMode}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrNoApplicableMode = &Error{Kind: KindNoApplicableMode}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrPluginFailure    = &Error{Kind: KindPluginFailure}
)

// NewError builds a typed engine error.
func NewError(kind ErrorKind, modeID, sessionID string, cause error) *Error {
	return &Error{Kind: kind, Mode: modeID, Session: sessionID, Err: cause}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// ok is false for nil or untyped errors.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
