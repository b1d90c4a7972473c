// Package specerr defines the error taxonomy shared by the catalogue,
// the resolvers and the artifact manager.
//
// Structural failures (unknown IDs, queries before load, failed
// post-conditions) are returned as *Error values carrying a Kind.
// Callers branch with errors.Is against the Err* sentinels:
//
//	if errors.Is(err, specerr.ErrNotFound) { ... }
//
// Data-quality outcomes such as an unsatisfiable dependency or an
// escalated conflict are never errors; they are part of result values.
package specerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotLoaded          Kind = "not_loaded"
	KindAlreadyLoaded      Kind = "already_loaded"
	KindNotFound           Kind = "not_found"
	KindIntegrityViolation Kind = "integrity_violation"
	KindInvalid            Kind = "invalid"
	KindInternal           Kind = "internal"
)

// Sentinels for errors.Is. Each matches any *Error of the same Kind.
var (
	ErrNotLoaded          = &Error{Kind: KindNotLoaded}
	ErrAlreadyLoaded      = &Error{Kind: KindAlreadyLoaded}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrIntegrityViolation = &Error{Kind: KindIntegrityViolation}
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrInternal           = &Error{Kind: KindInternal}
)

// Error is a classified engine failure.
type Error struct {
	// Op is the operation that failed, e.g. "catalogue.node" or "artifact.resolve".
	Op string
	// Kind classifies the failure.
	Kind Kind
	// ID is the node, conflict or option identifier involved, if any.
	ID string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" %q", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. Sentinels carry
// no Op or ID, so they match every error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && (t.ID == "" || t.ID == e.ID)
}

// NotLoaded reports a query made before the catalogue was loaded.
func NotLoaded(op string) *Error {
	return &Error{Op: op, Kind: KindNotLoaded}
}

// AlreadyLoaded reports a second Load on a catalogue.
func AlreadyLoaded(op string) *Error {
	return &Error{Op: op, Kind: KindAlreadyLoaded}
}

// NotFound reports an unknown node, field, conflict or option ID.
func NotFound(op, id string) *Error {
	return &Error{Op: op, Kind: KindNotFound, ID: id}
}

// NotFoundf is NotFound with a descriptive cause.
func NotFoundf(op, id, format string, args ...any) *Error {
	return &Error{Op: op, Kind: KindNotFound, ID: id, Err: fmt.Errorf(format, args...)}
}

// Integrity reports a failed post-condition after a mutation was rolled back.
func Integrity(op, id string, cause error) *Error {
	return &Error{Op: op, Kind: KindIntegrityViolation, ID: id, Err: cause}
}

// Invalid reports malformed input: a bad value, a malformed resolution
// option or an invalid catalogue document.
func Invalid(op, id string, cause error) *Error {
	return &Error{Op: op, Kind: KindInvalid, ID: id, Err: cause}
}

// Internal reports a broken engine guarantee, such as a cascade that
// exceeded its depth cap.
func Internal(op, id string, cause error) *Error {
	return &Error{Op: op, Kind: KindInternal, ID: id, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
