// Command tokenflood measures how the latency of an LLM completion endpoint
// reacts to load.
//
// Usage:
//
//	tokenflood run <run_suite.yml> <endpoint_spec.yml> [flags]
//	tokenflood observe <observation_spec.yml> <endpoint_spec.yml> [flags]
//	tokenflood init [dir]
//
// Every flag can also be set through a TOKENFLOOD_ environment variable,
// e.g. TOKENFLOOD_OUTPUT_DIR or TOKENFLOOD_LOG_LEVEL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const (
	ExitSuccess = 0
	ExitAborted = 1
	ExitError   = 2
)

// abortError marks a run that started but was refused or stopped early.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func aborted(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}

// exitCode maps a command error to the process exit code. An interrupted
// run still exits successfully since its results were written.
func exitCode(err error) int {
	var abort *abortError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitSuccess
	case errors.As(err, &abort):
		return ExitAborted
	default:
		return ExitError
	}
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
