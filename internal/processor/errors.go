package processor

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors returned by the processor.
var (
	// ErrClosed indicates the processor is closing or closed and cannot
	// accept commands.
	ErrClosed = errors.New("processor closed")

	// ErrClosedUnexpectedly indicates the worker exited cleanly without
	// being asked to.
	ErrClosedUnexpectedly = errors.New("processor closed unexpectedly")

	// ErrTerminated is delivered to outstanding requests when the worker
	// goes away and WithFailPendingOnExit is enabled.
	ErrTerminated = errors.New("worker terminated")

	// ErrDuplicateID indicates a request identifier is already pending.
	ErrDuplicateID = errors.New("request identifier already pending")

	// ErrWorkerClosing indicates a previous worker is still shutting down,
	// so a new one cannot be spawned yet.
	ErrWorkerClosing = errors.New("previous worker still closing")

	// ErrNoCommand indicates no worker executable was configured.
	ErrNoCommand = errors.New("no worker command configured")
)

// SpawnError reports a failure to start the worker or open its pipes.
type SpawnError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CrashError reports a worker that exited with a non-zero status or was
// killed by a signal.
type CrashError struct {
	ExitCode int
	// Signal is the name of the terminating signal, empty if none.
	Signal string
	// Diagnostics is everything the worker wrote to stderr.
	Diagnostics string
	// Err is the error returned by waiting on the process, if any.
	Err error
}

// Error implements the error interface.
func (e *CrashError) Error() string {
	var b strings.Builder
	b.WriteString("processor crashed")
	if e.Signal != "" {
		fmt.Fprintf(&b, " (signal %s)", e.Signal)
	} else {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if d := strings.TrimSpace(e.Diagnostics); d != "" {
		b.WriteString(":\n")
		b.WriteString(d)
	}
	return b.String()
}

// Unwrap returns the wait error, if any.
func (e *CrashError) Unwrap() error {
	return e.Err
}

// RenderError is a render-level failure reported by the worker in an error
// frame. It concerns one request only.
type RenderError struct {
	ID      string
	Message string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return e.Message
}
