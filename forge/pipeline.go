// Package forge runs a texture generation end to end: it checks the target
// object, applies the name collision policy, runs the generator through the
// bridge, verifies the texture set and attaches the built material.
package forge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/matforge2go/bridge"
	"github.com/richinsley/matforge2go/logging"
	"github.com/richinsley/matforge2go/material"
	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/venv"
	"go.uber.org/zap"
)

// Publisher receives job status. *statusfeed.Hub implements it.
type Publisher interface {
	Status(environment string, queueLength int) error
	Started(jobID, name, operation string) error
	Progress(jobID string, value, max int, label string) error
	Stopped(jobID, material string, err error) error
}

// Pipeline wires the components of a generation together. Store, Bridge and
// Builder are required; the rest may be nil.
type Pipeline struct {
	Store       *paths.Store
	Provisioner *venv.Provisioner
	Bridge      *bridge.Bridge
	Builder     *material.Builder
	Publisher   Publisher
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Result describes a finished generation.
type Result struct {
	JobID       string
	ArtifactDir string
	Material    *material.Material
	Elapsed     time.Duration
}

func (p *Pipeline) logger() *zap.Logger {
	return logging.OrNop(p.Logger)
}

func (p *Pipeline) publish(fn func(Publisher) error) {
	if p.Publisher == nil {
		return
	}
	if err := fn(p.Publisher); err != nil {
		p.logger().Debug("status publish failed", zap.Error(err))
	}
}

// EnvironmentRoot is the environment generations run in.
func (p *Pipeline) EnvironmentRoot() (string, error) {
	return p.Store.Lookup(paths.InterpreterEnv)
}

// Run generates the texture set for req and attaches its material to the
// active object. When the set's directory already exists Run fails with a
// *NameCollisionError unless overwrite is set, in which case the old set is
// removed first.
func (p *Pipeline) Run(ctx context.Context, req bridge.Request, overwrite bool) (*Result, error) {
	jobID := uuid.NewString()
	op := req.Operation()
	log := p.logger().With(zap.String("job_id", jobID), zap.String("name", req.Name))
	started := time.Now()

	mat, err := p.run(ctx, jobID, req, overwrite, log)

	elapsed := time.Since(started)
	if p.Metrics != nil {
		p.Metrics.Generations.WithLabelValues(op, result(err)).Inc()
		if err == nil {
			p.Metrics.GenerationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
		}
	}
	var matName string
	if mat != nil {
		matName = mat.Name
	}
	p.publish(func(pub Publisher) error { return pub.Stopped(jobID, matName, err) })
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		return nil, err
	}
	log.Info("generation finished", zap.String("material", mat.Name), zap.Duration("elapsed", elapsed))
	return &Result{JobID: jobID, ArtifactDir: req.ArtifactDir(), Material: mat, Elapsed: elapsed}, nil
}

func (p *Pipeline) run(ctx context.Context, jobID string, req bridge.Request, overwrite bool, log *zap.Logger) (*material.Material, error) {
	if _, err := p.Builder.CheckTarget(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	envRoot, err := p.EnvironmentRoot()
	if err != nil {
		return nil, err
	}
	if p.Provisioner != nil && p.Provisioner.State(envRoot) == venv.StateAbsent {
		return nil, fmt.Errorf("%w: no environment at %s", ErrNotInstalled, envRoot)
	}
	if err := claimArtifactDir(req, overwrite, log); err != nil {
		return nil, err
	}

	p.publish(func(pub Publisher) error { return pub.Started(jobID, req.Name, req.Operation()) })
	if err := p.Bridge.Generate(ctx, envRoot, req); err != nil {
		return nil, err
	}
	return p.Builder.Build(req.SaveRoot, req.Name)
}

func claimArtifactDir(req bridge.Request, overwrite bool, log *zap.Logger) error {
	dir := req.ArtifactDir()
	_, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !overwrite {
		return &NameCollisionError{Name: req.Name, Dir: dir}
	}
	log.Info("overwriting texture set", zap.String("dir", dir))
	return os.RemoveAll(dir)
}

// Install provisions the environment recorded in the path store. progress
// may be nil.
func (p *Pipeline) Install(ctx context.Context, progress venv.ProgressFunc) error {
	if p.Provisioner == nil {
		return errors.New("no provisioner configured")
	}
	root, err := p.EnvironmentRoot()
	if err != nil {
		return err
	}
	jobID := uuid.NewString()
	started := time.Now()

	p.publish(func(pub Publisher) error { return pub.Started(jobID, root, "install") })
	err = p.Provisioner.Provision(ctx, root, func(index, total int, label string) {
		p.publish(func(pub Publisher) error { return pub.Progress(jobID, index, total, label) })
		if progress != nil {
			progress(index, total, label)
		}
	})

	if p.Metrics != nil {
		p.Metrics.Installs.WithLabelValues(result(err)).Inc()
		p.Metrics.InstallDuration.Observe(time.Since(started).Seconds())
	}
	p.publish(func(pub Publisher) error { return pub.Stopped(jobID, "", err) })
	p.publish(func(pub Publisher) error { return pub.Status(p.Provisioner.State(root).String(), 0) })
	return err
}

// Ready reports whether the environment can run generations.
func (p *Pipeline) Ready(ctx context.Context) (bool, error) {
	if p.Provisioner == nil {
		return false, errors.New("no provisioner configured")
	}
	root, err := p.EnvironmentRoot()
	if err != nil {
		return false, err
	}
	ready := p.Provisioner.IsReady(ctx, root)
	p.publish(func(pub Publisher) error { return pub.Status(p.Provisioner.State(root).String(), 0) })
	return ready, nil
}
