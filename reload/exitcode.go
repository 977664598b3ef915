package reload

import (
	"errors"
	"os/exec"
)

const (
	// RestartExitCode is the exit code a worker process uses to request a
	// restart from its supervisor.
	RestartExitCode = 3

	// DefaultErrorExitCode is used when no exit code could otherwise be
	// determined for a non-nil error.
	DefaultErrorExitCode = 1
)

// ExitCoder is an optional interface that an error can implement to supply
// an associated exit code with that error.  Useful to determine the process
// exit code upon an error, particularly with fx.ExitCode.
type ExitCoder interface {
	// ExitCode returns the exit code associated with this error.
	ExitCode() int
}

type exitCodeErr struct {
	error
	exitCode int
}

func (ece exitCodeErr) ExitCode() int {
	return ece.exitCode
}

func (ece exitCodeErr) Unwrap() error {
	return ece.error
}

// UseExitCode returns a new error object that associates an existing error
// with an exit code.  The new error will implement ExitCoder and will have
// an Unwrap method as described in the errors package.
//
// If err is nil, this function immediately panics so as not to delay a panic
// until the returned error is used.
func UseExitCode(err error, exitCode int) error {
	if err == nil {
		panic("cannot associate a nil error with an exit code")
	}

	return exitCodeErr{
		error:    err,
		exitCode: exitCode,
	}
}

// ExitCodeFor provides a standard way of determining the exit code associated
// with an error.  Logic is applied in the following order:
//
//   - If err is nil, zero (0) is returned
//   - If err implements ExitCoder, that exit code is returned
//   - If err is an *exec.ExitError, the child process's exit code is returned
//   - Otherwise, DefaultErrorExitCode is returned
func ExitCodeFor(err error) int {
	var (
		ec        ExitCoder
		exitError *exec.ExitError
	)

	switch {
	case err == nil:
		return 0

	case errors.As(err, &ec):
		return ec.ExitCode()

	case errors.As(err, &exitError):
		return exitError.ExitCode()

	default:
		return DefaultErrorExitCode
	}
}
