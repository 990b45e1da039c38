// Package engine is the driver that wires the Record Stream Reader, the
// Section Aggregator, the Digest & Extent Finalizer, and the Index
// Reconciler into one per-file pipeline (spec §2 data flow): open
// resources, run pipeline stages in order, clean up, log phase
// completion.
package engine

import (
	"fmt"

	"github.com/eunmann/mseedindex/pkg/reconcile"
)

// ErrorClass is the engine's error taxonomy (spec §7 "Error taxonomy").
type ErrorClass int

const (
	// ClassDecode is a record-stream decode failure: fatal for the
	// current file.
	ClassDecode ErrorClass = iota
	// ClassIntegrity covers missing time extents, source-id parse
	// failure, or a section producing more than one trace identity.
	ClassIntegrity
	// ClassResource covers memory allocation or serialization exceeding
	// the soft cap.
	ClassResource
	// ClassStore covers connect, prepare, execute, or commit failures
	// against a backend.
	ClassStore
	// ClassArgument covers unknown flags, missing required values, or
	// no inputs; fatal at startup.
	ClassArgument
)

func (c ErrorClass) String() string {
	switch c {
	case ClassDecode:
		return "decode"
	case ClassIntegrity:
		return "integrity"
	case ClassResource:
		return "resource"
	case ClassStore:
		return "store"
	case ClassArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches a taxonomy class to an underlying error (spec
// §7 "Propagation: ... diagnostics are emitted to standard error and the
// process exits non-zero"), carrying enough context for the top-level
// handler (spec §9 "a result type propagated to a single top-level
// handler that prints and exits") to report which file failed and why.
type ClassifiedError struct {
	Class ErrorClass
	File  string
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s error: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Class, e.File, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// classifyReconcileError maps a reconcile.Backend error to its taxonomy
// class (spec §7): a data problem is an integrity error, an oversized
// serialized payload is a resource error, anything else (connect,
// prepare, execute, commit) is a store error.
func classifyReconcileError(err error) ErrorClass {
	switch err.(type) {
	case *reconcile.IntegrityError:
		return ClassIntegrity
	case *reconcile.ResourceError:
		return ClassResource
	default:
		return ClassStore
	}
}

// Classify wraps err with class and file, unless err is already a
// *ClassifiedError (in which case it is returned unchanged).
func Classify(class ErrorClass, file string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ClassifiedError); ok {
		return ce
	}
	return &ClassifiedError{Class: class, File: file, Err: err}
}
