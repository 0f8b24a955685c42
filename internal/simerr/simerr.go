// Package simerr classifies the failures that abort a matrix build.
//
// Every error produced while loading configuration, resolving sources or
// merging generics carries one of the Err* kinds below so callers can tell
// them apart with errors.Is.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers a missing or invalid config file, a pattern
	// that selects no target, and a top entity with no test bench.
	ErrConfiguration = errors.New("configuration error")
	// ErrManifestFormat is a source-list or test-list document that does
	// not parse or does not have the expected shape.
	ErrManifestFormat = errors.New("manifest format error")
	// ErrReference is a source-list indirection to a target that does not
	// exist.
	ErrReference = errors.New("reference error")
	// ErrCycle is a source-list indirection chain that re-enters a target.
	ErrCycle = errors.New("source list cycle")
	// ErrGenericCollision is raised in strict mode when two hierarchical
	// generic keys collapse to the same name.
	ErrGenericCollision = errors.New("generic collision")
	// ErrUsage is a command line that cannot be acted on.
	ErrUsage = errors.New("usage error")
)

// Error ties a kind to the thing that failed (a path, a target name, a
// generic) and the underlying cause, if any.
type Error struct {
	Kind    error
	Subject string
	Err     error
}

// New returns an *Error of the given kind. msg is formatted with args and
// used as the cause.
func New(kind error, subject, msg string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Err: fmt.Errorf(msg, args...)}
}

// Wrap returns an *Error of the given kind around err.
func Wrap(kind error, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Subject != "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %v", e.Subject, e.Err)
	case e.Err != nil:
		msg = e.Err.Error()
	default:
		msg = e.Subject
	}
	if e.Kind == nil {
		return msg
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ExitCode maps an error to the process exit status: 0 for nil, 2 for
// usage errors, 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}
