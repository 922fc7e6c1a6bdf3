// Package proc runs child processes and reports how they ended.
//
// Both the environment provisioner and the execution bridge talk to the
// isolated interpreter exclusively through a Runner: exit code, captured
// output and the filesystem are the only channels between the host process
// and its children.
package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/richinsley/matforge2go/logging"
	"go.uber.org/zap"
)

// Command describes one child process invocation.
type Command struct {
	Path string
	Args []string
	// Env is the complete environment of the child. When nil the child
	// inherits the current process environment.
	Env []string
	Dir string
}

// String renders the command for logging.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result is what a finished child process left behind.
type Result struct {
	// Ran reports if the command ran (rather than was not found or not executable).
	Ran bool
	// Terminated reports a child that started but was ended by a signal,
	// including the kill sent when the context ends.
	Terminated bool
	ExitCode   int
	Stdout   string
	Stderr   string
}

// Success reports whether the command ran and exited 0.
func (r Result) Success() bool {
	return r.Ran && r.ExitCode == 0
}

// Runner executes commands. A non-nil error is returned only when the command
// could not be started or the context ended; a nonzero exit is reported
// through Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	// Stdout and Stderr, when set, receive a live copy of the child's output
	// in addition to the capture.
	Stdout io.Writer
	Stderr io.Writer
	logger *zap.Logger
}

// NewExecRunner creates an ExecRunner. logger may be nil.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logging.OrNop(logger)}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = teeTo(&stdout, r.Stdout)
	c.Stderr = teeTo(&stderr, r.Stderr)

	r.logger.Debug("running command", zap.String("cmd", cmd.String()), zap.String("dir", cmd.Dir))
	err := c.Run()
	res := Result{
		Ran:        CmdRan(err),
		Terminated: Terminated(err),
		ExitCode:   ExitStatus(err),
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if !res.Ran {
		return res, err
	}
	return res, nil
}

func teeTo(capture *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, live)
}

// CmdRan examines the error to determine if it was generated as a result of a
// command running via os/exec.Command. If the error is nil, or the command ran
// (even if it exited with a non-zero exit code), CmdRan reports true. If the
// error is an unrecognized type, or it is an error from exec.Command that says
// the command failed to run, it reports false.
func CmdRan(err error) bool {
	if err == nil {
		return true
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.Exited()
	}
	return false
}

// Terminated reports whether err comes from a command that started but did
// not exit on its own, i.e. it was killed by a signal.
func Terminated(err error) bool {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return !ee.Exited()
	}
	return false
}

type exitStatus interface {
	ExitStatus() int
}

// ExitStatus returns the exit status of the error if it is an exec.ExitError
// or if it implements ExitStatus() int.
// 0 if it is nil or 1 if it is a different error.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(exitStatus); ok {
		return e.ExitStatus()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ex, ok := ee.Sys().(exitStatus); ok {
			return ex.ExitStatus()
		}
	}
	return 1
}

// Environ returns base with the overlay applied: keys in drop are removed,
// keys in set replace or extend. The result is sorted so that the child
// environment does not depend on map iteration order.
func Environ(base []string, set map[string]string, drop ...string) []string {
	skip := make(map[string]bool, len(set)+len(drop))
	for _, k := range drop {
		skip[k] = true
	}
	for k := range set {
		skip[k] = true
	}
	out := make([]string, 0, len(base)+len(set))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if skip[k] {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range set {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// HostEnviron is the environment a child would inherit.
func HostEnviron() []string {
	return os.Environ()
}
