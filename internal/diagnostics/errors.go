package diagnostics

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures inside the fault capture pipeline.
type ErrorKind string

const (
	KindStorageUnavailable     ErrorKind = "storage_unavailable"      // Medium not mounted or reachable
	KindDirectoryCreateFailed  ErrorKind = "directory_create_failed"  // Crash dir could not be created
	KindWriteFailed            ErrorKind = "write_failed"             // I/O error writing the dump
	KindMetadataLookupFailed   ErrorKind = "metadata_lookup_failed"   // Environment partially degraded
	KindHandlerInternalFailure ErrorKind = "handler_internal_failure" // Unexpected failure inside the handler
)

// DumpError is a structured failure from the dump pipeline. None of them
// propagate back to the code that faulted; they are logged where they occur.
type DumpError struct {
	Kind  ErrorKind
	Op    string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *DumpError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DumpError) Unwrap() error {
	return e.Cause
}

// Is matches another DumpError of the same kind.
func (e *DumpError) Is(target error) bool {
	t, ok := target.(*DumpError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrStorageUnavailable     = &DumpError{Kind: KindStorageUnavailable, Op: "storage unavailable"}
	ErrDirectoryCreateFailed  = &DumpError{Kind: KindDirectoryCreateFailed, Op: "create directory"}
	ErrWriteFailed            = &DumpError{Kind: KindWriteFailed, Op: "write dump"}
	ErrMetadataLookupFailed   = &DumpError{Kind: KindMetadataLookupFailed, Op: "lookup metadata"}
	ErrHandlerInternalFailure = &DumpError{Kind: KindHandlerInternalFailure, Op: "handle fault"}
)

// Dispatcher and supervisor errors.
var (
	ErrDispatcherClosed  = errors.New("dispatcher closed")
	ErrQueueFull         = errors.New("dispatcher queue full")
	ErrSupervisorRunning = errors.New("supervisor already running")
)

func newDumpError(kind ErrorKind, op, path string, cause error) *DumpError {
	return &DumpError{Kind: kind, Op: op, Path: path, Cause: cause}
}

// KindOf returns the ErrorKind of err, or "" when err is not a DumpError.
func KindOf(err error) ErrorKind {
	var de *DumpError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
