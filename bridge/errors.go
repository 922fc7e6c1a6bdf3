package bridge

import (
	"fmt"
	"strings"
)

// ExecutionError reports a child process that could not be launched
// (ExitCode -1), was terminated by a signal or the timeout (ExitCode -1,
// Terminated set) or exited nonzero.
type ExecutionError struct {
	Operation  string
	ExitCode   int
	Terminated bool
	Stderr     string
}

func (e *ExecutionError) Error() string {
	if e.Terminated {
		return fmt.Sprintf("%s: terminated: %s", e.Operation, e.Stderr)
	}
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: failed to launch: %s", e.Operation, e.Stderr)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit code %d", e.Operation, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", e.Operation, e.ExitCode, e.Stderr)
}

// RequestError lists the problems found validating a Request.
type RequestError struct {
	Problems []string
}

func (e *RequestError) Error() string {
	return "invalid request: " + strings.Join(e.Problems, "; ")
}
