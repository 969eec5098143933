// Package dap4 provides format-agnostic access to hierarchical scientific
// data: a pluggable Data Source Processor (DSP) per storage format, and a
// cursor model that walks atomic arrays, structures, sequences and arrays
// of compounds without knowing how they are stored.
package dap4

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these; test with errors.Is.
var (
	ErrSchema            = errors.New("schema error")
	ErrDataAccess        = errors.New("data access error")
	ErrInvalidScheme     = errors.New("operation not legal for cursor scheme")
	ErrOutOfRange        = errors.New("index out of range")
	ErrNoMatchingBackend = errors.New("no matching backend")
	ErrLifecycle         = errors.New("session lifecycle error")
)

// ErrNoDMR is the cause reported when a location yields no schema. It is
// always wrapped in an ErrSchema error.
var ErrNoDMR = errors.New("no DMR available")

// DataError carries the kind of a failure together with the operation and
// schema node it concerns.
type DataError struct {
	Kind error  // one of the Err* kinds
	Op   string // operation, e.g. "read" or "open"
	Node string // FQN of the node, or the location for session errors
	Err  error  // underlying cause, may be nil
}

func (e *DataError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Node != "" {
		b.WriteString(" ")
		b.WriteString(e.Node)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DataError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, node string, cause error) *DataError {
	return &DataError{Kind: kind, Op: op, Node: node, Err: cause}
}

func errorf(kind error, op, node, format string, args ...interface{}) *DataError {
	return newError(kind, op, node, fmt.Errorf(format, args...))
}

// accessError wraps a backend failure. A data access error always has a
// cause.
func accessError(op, node string, cause error) error {
	if cause == nil {
		cause = errors.New("backend reported failure without a cause")
	}
	var de *DataError
	if errors.As(cause, &de) {
		return cause
	}
	return newError(ErrDataAccess, op, node, cause)
}

// IsRecoverable reports whether the caller may sensibly try something
// else after err, such as another location or another backend.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNoMatchingBackend) || errors.Is(err, ErrNoDMR)
}
