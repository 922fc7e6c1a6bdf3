// Package venv creates, fills and inspects the isolated Python environment
// the texture generator runs in.
//
// The host interpreter is only used to bootstrap pip and to create the
// environment; everything else runs through the environment's own
// interpreter so that installs and imports resolve against the same
// site-packages.
package venv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/richinsley/matforge2go/logging"
	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/proc"
	"go.uber.org/zap"
)

const (
	GiB = 1 << 30

	// DefaultRequiredSpace covers the packages and the model weights.
	DefaultRequiredSpace = 15 * GiB
	lowSpaceWarning      = 5 * GiB
)

// Config configures a Provisioner.
type Config struct {
	// HostPython is the interpreter used to bootstrap pip and create the
	// environment. Defaults to "python3".
	HostPython string
	// Manifest is the declared dependency set used by IsReady and Provision.
	Manifest Manifest
	// GOOS overrides the platform used to derive the environment layout.
	GOOS string
}

// Provisioner manages isolated environments. It is not safe for concurrent
// use; installs are strictly sequential.
type Provisioner struct {
	hostPython string
	manifest   Manifest
	goos       string
	runner     proc.Runner
	store      *paths.Store
	logger     *zap.Logger
	states     map[string]State
}

// New creates a Provisioner. store may be nil, in which case resolved
// environment paths are not recorded. logger may be nil.
func New(cfg Config, runner proc.Runner, store *paths.Store, logger *zap.Logger) *Provisioner {
	host := cfg.HostPython
	if host == "" {
		host = "python3"
	}
	logger = logging.OrNop(logger)
	if runner == nil {
		runner = proc.NewExecRunner(logger)
	}
	return &Provisioner{
		hostPython: host,
		manifest:   cfg.Manifest,
		goos:       cfg.GOOS,
		runner:     runner,
		store:      store,
		logger:     logger,
		states:     make(map[string]State),
	}
}

// Layout returns the environment layout for root.
func (p *Provisioner) Layout(root string) paths.EnvLayout {
	l := paths.LayoutFor(root)
	if p.goos != "" {
		l.GOOS = p.goos
	}
	return l
}

// State reports the lifecycle state of the environment at root. States not
// yet observed by this provisioner are derived from the filesystem.
func (p *Provisioner) State(root string) State {
	if s, ok := p.states[root]; ok {
		return s
	}
	if fileExists(p.Layout(root).Interpreter()) {
		return StateCreatedEmpty
	}
	return StateAbsent
}

func (p *Provisioner) setState(root string, s State) {
	prev := p.State(root)
	p.states[root] = s
	if prev != s {
		p.logger.Debug("environment state", zap.String("root", root), zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// EnsureInstaller checks that pip answers a version query for the host
// interpreter and bootstraps it with ensurepip otherwise.
func (p *Provisioner) EnsureInstaller(ctx context.Context) error {
	// ensurepip leaves PIP_REQ_TRACKER pointing at a deleted directory,
	// which breaks any later pip call that inherits it.
	env := proc.Environ(proc.HostEnviron(), nil, "PIP_REQ_TRACKER")

	res, err := p.runner.Run(ctx, proc.Command{Path: p.hostPython, Args: []string{"-m", "pip", "--version"}, Env: env})
	if err == nil && res.Success() {
		p.logger.Debug("pip available", zap.String("version", res.Stdout))
		return nil
	}

	p.logger.Info("pip not available, bootstrapping", zap.String("python", p.hostPython))
	res, err = p.runner.Run(ctx, proc.Command{Path: p.hostPython, Args: []string{"-m", "ensurepip", "--upgrade"}, Env: env})
	if err != nil {
		return &ProvisionError{Op: "bootstrap pip", Remediation: "check that the host python interpreter can be executed", Err: err}
	}
	if !res.Success() {
		return &ProvisionError{
			Op:          "bootstrap pip",
			Remediation: "re-run with elevated permissions or install pip manually",
			Err:         fmt.Errorf("exit code %d: %s", res.ExitCode, res.Stderr),
		}
	}
	return nil
}

// EnsureEnvironment creates the environment at root when it does not exist
// yet and records its location in the path store.
func (p *Provisioner) EnsureEnvironment(ctx context.Context, root string) error {
	layout := p.Layout(root)
	if !fileExists(layout.Interpreter()) {
		if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
			return &ProvisionError{Op: "create environment", Remediation: "choose a writable install directory", Err: err}
		}

		p.logger.Info("creating environment", zap.String("root", root))
		res, err := p.runner.Run(ctx, proc.Command{Path: p.hostPython, Args: []string{"-m", "venv", root}})
		if err != nil {
			p.setState(root, StateFailed)
			return &EnvCreateError{Root: root, ExitCode: -1, Stderr: err.Error()}
		}
		if !res.Success() {
			p.setState(root, StateFailed)
			return &EnvCreateError{Root: root, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		if !fileExists(layout.Interpreter()) {
			p.setState(root, StateFailed)
			return &EnvCreateError{Root: root, ExitCode: 0, Stderr: "interpreter missing after creation: " + layout.Interpreter()}
		}
		p.setState(root, StateCreatedEmpty)
	} else if _, tracked := p.states[root]; !tracked {
		p.setState(root, StateCreatedEmpty)
	}

	if p.store != nil {
		if err := p.store.Update(paths.InterpreterEnv, root); err != nil {
			return err
		}
		if err := p.store.Update(paths.SitePackages, layout.SitePackages()); err != nil {
			return err
		}
	}
	return nil
}

// InstallDependencies installs specs into the environment at root, one at a
// time and in order. A failing dependency is logged and skipped; the
// returned *DependencyInstallError lists every module that failed once all
// have been attempted.
func (p *Provisioner) InstallDependencies(ctx context.Context, root string, specs Manifest, progress ProgressFunc) error {
	layout := p.Layout(root)
	if !fileExists(layout.Interpreter()) {
		return &ProvisionError{
			Op:          "install dependencies",
			Remediation: "create the environment first",
			Err:         fmt.Errorf("no interpreter at %s", layout.Interpreter()),
		}
	}
	if progress == nil {
		progress = func(int, int, string) {}
	}

	// pip would otherwise consult the user site-packages and report
	// requirements satisfied by another interpreter's packages.
	env := proc.Environ(proc.HostEnviron(), map[string]string{"PYTHONNOUSERSITE": "1"}, "PIP_REQ_TRACKER", "PYTHONPATH", "PYTHONHOME")

	p.setState(root, StateDependenciesInstalling)
	total := len(specs)
	failed := make([]string, 0)
	p.logger.Info("installing dependencies", zap.String("root", root), zap.Strings("modules", specs.Modules()))

	for i, d := range specs {
		index := i + 1
		req := d.Requirement()
		progress(index, total, fmt.Sprintf("Installing %s [%d/%d]", req, index, total))

		args := append([]string{"-m", "pip", "install", req}, d.ExtraArgs...)
		res, err := p.runner.Run(ctx, proc.Command{Path: layout.Interpreter(), Args: args, Env: env})
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.setState(root, StateFailed)
			return ctxErr
		}
		if err != nil || !res.Success() {
			p.logger.Error("dependency install failed",
				zap.String("module", d.Module),
				zap.Int("exit_code", res.ExitCode),
				zap.String("stderr", res.Stderr),
				zap.Error(err),
			)
			failed = append(failed, d.Module)
			progress(index, total, fmt.Sprintf("Error installing %s", req))
			continue
		}
		progress(index, total, fmt.Sprintf("Installed %s [%d/%d]", req, index, total))
	}

	if len(failed) > 0 {
		p.setState(root, StateFailed)
		return &DependencyInstallError{Failed: failed}
	}
	p.setState(root, StateReady)
	return nil
}

// IsReady reports whether every declared dependency imports from the
// environment at root.
func (p *Provisioner) IsReady(ctx context.Context, root string) bool {
	layout := p.Layout(root)
	if !fileExists(layout.Interpreter()) {
		return false
	}
	env := proc.Environ(proc.HostEnviron(), map[string]string{"PYTHONNOUSERSITE": "1"}, "PYTHONPATH", "PYTHONHOME")
	for _, d := range p.manifest {
		res, err := p.runner.Run(ctx, proc.Command{
			Path: layout.Interpreter(),
			Args: []string{"-c", "import " + d.ImportName()},
			Env:  env,
		})
		if err != nil || !res.Success() {
			p.logger.Debug("dependency not importable", zap.String("module", d.Module), zap.String("import", d.ImportName()))
			return false
		}
	}
	p.setState(root, StateReady)
	return true
}

// CheckDiskSpace fails when the filesystem that will hold path has less than
// required bytes free, and warns when the install would leave less than
// 5 GiB.
func (p *Provisioner) CheckDiskSpace(path string, required uint64) error {
	dir := existingAncestor(path)
	free, supported, err := freeBytes(dir)
	if err != nil {
		return &ProvisionError{Op: "check disk space", Err: err}
	}
	if !supported {
		p.logger.Debug("disk space check not supported on this platform")
		return nil
	}
	if free < required {
		return &ProvisionError{
			Op:          "check disk space",
			Remediation: "free up space or choose another install directory",
			Err:         fmt.Errorf("%d GiB required, %d GiB free on %s", required/GiB, free/GiB, dir),
		}
	}
	if free-required < lowSpaceWarning {
		p.logger.Warn("less than 5GiB will be left after installation", zap.String("dir", dir), zap.Uint64("free_bytes", free))
	}
	return nil
}

// Provision runs the full install sequence for root: disk space, pip,
// environment, the declared dependencies, and a final readiness check.
func (p *Provisioner) Provision(ctx context.Context, root string, progress ProgressFunc) error {
	if err := p.CheckDiskSpace(root, DefaultRequiredSpace); err != nil {
		return err
	}
	if err := p.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := p.EnsureEnvironment(ctx, root); err != nil {
		return err
	}
	if err := p.InstallDependencies(ctx, root, p.manifest, progress); err != nil {
		return err
	}
	if !p.IsReady(ctx, root) {
		p.setState(root, StateFailed)
		return &ProvisionError{
			Op:          "verify environment",
			Remediation: "re-run the installation",
			Err:         errors.New("installed dependencies cannot be imported"),
		}
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func existingAncestor(path string) string {
	dir := filepath.Clean(path)
	for {
		if _, err := os.Stat(dir); err == nil || !errors.Is(err, fs.ErrNotExist) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
