// Package bridge runs the texture generator inside its isolated environment.
//
// A call is rendered as
//
//	<env python> <entry point> <operation> --key "value" ...
//
// and launched directly, without a shell, with the environment's activation
// applied to the child's variables. The same line, preceded by the
// activation as shell exports, is written to a scratch file in the
// environment root before every launch so the last call can be replayed by
// hand.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinsley/matforge2go/logging"
	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/proc"
	"go.uber.org/zap"
)

// ScratchFileName is the replay script written to the environment root.
const ScratchFileName = "matforge_invoke.sh"

// Config configures a Bridge.
type Config struct {
	// EntryPoint is the generator script run by the environment's interpreter.
	EntryPoint string
	// Timeout bounds a single call. Zero means no limit.
	Timeout time.Duration
	// GOOS overrides the platform used to derive the environment layout.
	GOOS string
}

// Bridge launches entry point calls. It holds no per-call state; calls are
// expected to run one at a time.
type Bridge struct {
	cfg    Config
	runner proc.Runner
	store  *paths.Store
	logger *zap.Logger
}

// New creates a Bridge. store supplies the model cache location and may be
// nil. A nil runner runs real processes.
func New(cfg Config, runner proc.Runner, store *paths.Store, logger *zap.Logger) *Bridge {
	logger = logging.OrNop(logger)
	if runner == nil {
		runner = proc.NewExecRunner(logger)
	}
	return &Bridge{cfg: cfg, runner: runner, store: store, logger: logger}
}

func (b *Bridge) layout(envRoot string) paths.EnvLayout {
	l := paths.LayoutFor(envRoot)
	if b.cfg.GOOS != "" {
		l.GOOS = b.cfg.GOOS
	}
	return l
}

// Activation returns the activation applied to children of envRoot.
func (b *Bridge) Activation(envRoot string) Activation {
	var cache string
	if b.store != nil {
		cache, _ = b.store.Lookup(paths.ModelCache)
	}
	return Activate(b.layout(envRoot), os.Getenv("PATH"), cache)
}

// ScratchFile is the replay script path for envRoot.
func (b *Bridge) ScratchFile(envRoot string) string {
	return filepath.Join(envRoot, ScratchFileName)
}

// CommandLine renders the call as it is written to the scratch file.
func (b *Bridge) CommandLine(envRoot, operation string, args []Arg) (string, error) {
	entry, err := filepath.Abs(b.cfg.EntryPoint)
	if err != nil {
		return "", err
	}
	return RenderCommandLine([]string{b.layout(envRoot).Interpreter(), entry}, operation, args), nil
}

// Invoke runs operation with args in the environment at envRoot and waits
// for it. A launch failure or nonzero exit is returned as *ExecutionError.
// Calls are never retried.
func (b *Bridge) Invoke(ctx context.Context, envRoot, operation string, args []Arg) error {
	envRoot, err := filepath.Abs(envRoot)
	if err != nil {
		return err
	}
	entry, err := filepath.Abs(b.cfg.EntryPoint)
	if err != nil {
		return err
	}
	act := b.Activation(envRoot)
	interp := act.Layout.Interpreter()

	line := RenderCommandLine([]string{interp, entry}, operation, args)
	if err := os.WriteFile(b.ScratchFile(envRoot), []byte(act.Script(line)), 0o755); err != nil {
		b.logger.Warn("could not write replay script", zap.String("file", b.ScratchFile(envRoot)), zap.Error(err))
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	b.logger.Info("invoking entry point", zap.String("operation", operation), zap.String("env", envRoot))
	started := time.Now()
	res, err := b.runner.Run(ctx, proc.Command{
		Path: interp,
		Args: append([]string{entry}, Argv(operation, args)...),
		Env:  act.Environ(proc.HostEnviron()),
	})
	if err != nil {
		eerr := &ExecutionError{Operation: operation, ExitCode: -1, Stderr: err.Error()}
		if res.Terminated || ctx.Err() != nil {
			eerr.Terminated = true
			if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
				eerr.Stderr = err.Error() + ": " + stderr
			}
		}
		b.logger.Error("entry point did not finish", zap.String("operation", operation), zap.Error(eerr))
		return eerr
	}
	if !res.Success() {
		eerr := &ExecutionError{Operation: operation, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
		b.logger.Error("entry point failed", zap.String("operation", operation), zap.Int("exit_code", res.ExitCode), zap.String("stderr", eerr.Stderr))
		return eerr
	}
	b.logger.Info("entry point finished", zap.String("operation", operation), zap.Duration("elapsed", time.Since(started)))
	return nil
}

// Generate validates req and runs the matching operation.
func (b *Bridge) Generate(ctx context.Context, envRoot string, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	args, err := req.Args()
	if err != nil {
		return err
	}
	return b.Invoke(ctx, envRoot, req.Operation(), args)
}

// DryRun validates req and returns the command line Generate would run,
// after checking that the line parses back to the same flags.
func (b *Bridge) DryRun(envRoot string, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	args, err := req.Args()
	if err != nil {
		return "", err
	}
	envRoot, err = filepath.Abs(envRoot)
	if err != nil {
		return "", err
	}
	line, err := b.CommandLine(envRoot, req.Operation(), args)
	if err != nil {
		return "", err
	}
	if err := VerifyCommandLine(line, req.Operation(), args); err != nil {
		return "", fmt.Errorf("rendered command line does not round-trip: %w", err)
	}
	return line, nil
}

// IsExecutionError reports whether err is an *ExecutionError and returns it.
func IsExecutionError(err error) (*ExecutionError, bool) {
	var eerr *ExecutionError
	ok := errors.As(err, &eerr)
	return eerr, ok
}
