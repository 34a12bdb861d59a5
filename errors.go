package webcept

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-webcept/exitcodes"
)

// RuntimeError is an operational failure that exits with code 2: unreadable
// settings, an unknown site, a unit that cannot be found or a failed
// preflight.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports a run that finished without passing (exit code 1)
type TestFailureError struct {
	Title string
	State string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s finished %s", e.Title, e.State)
}

func NewTestFailureError(title, state string) *TestFailureError {
	return &TestFailureError{Title: title, State: state}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}
