package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/richinsley/matforge2go/bridge"
	"github.com/richinsley/matforge2go/forge"
	"github.com/richinsley/matforge2go/material"
	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/statusfeed"
	"github.com/richinsley/matforge2go/venv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s %s:\n", os.Args[0], name)
		fmt.Printf("  %s %s [OPTIONS] %s", os.Args[0], name, args)
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	return fs
}

func runPaths(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("paths", "[list | set NAME PATH]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case fs.NArg() == 0 || fs.Arg(0) == "list":
		fmt.Printf("# %s\n", a.store.File())
		for _, name := range a.store.Names() {
			p, _ := a.store.Lookup(name)
			fmt.Printf("%s=%s\n", name, p)
		}
		return nil
	case fs.Arg(0) == "set" && fs.NArg() == 3:
		return a.store.Update(fs.Arg(1), fs.Arg(2))
	}
	fs.Usage()
	return flag.ErrHelp
}

// pipelineOptions are the flags shared by commands that build a pipeline.
type pipelineOptions struct {
	hostPython string
	manifest   string
	entryPoint string
	timeout    time.Duration
	serve      string
}

func (o *pipelineOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.hostPython, "python", getenv(envHostPython, "python3"), "Host interpreter used to create the environment")
	fs.StringVar(&o.manifest, "manifest", os.Getenv(envManifest), "Dependency manifest (defaults to the built-in one)")
	fs.StringVar(&o.entryPoint, "entrypoint", getenv(envEntryPoint, "sd_functions.py"), "Generator entry point script")
	fs.DurationVar(&o.timeout, "timeout", 0, "Abort a generation after this long (0 waits forever)")
	fs.StringVar(&o.serve, "serve", "", "Serve the status feed and metrics on this address, e.g. :8189")
}

func (o *pipelineOptions) pipeline(a *app, host material.Host) (*forge.Pipeline, error) {
	var manifest venv.Manifest
	var err error
	if o.manifest != "" {
		manifest, err = venv.LoadManifest(o.manifest)
	} else {
		manifest, err = venv.DefaultManifest()
	}
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	p := &forge.Pipeline{
		Store:       a.store,
		Provisioner: venv.New(venv.Config{HostPython: o.hostPython, Manifest: manifest}, nil, a.store, a.logger),
		Bridge:      bridge.New(bridge.Config{EntryPoint: o.entryPoint, Timeout: o.timeout}, nil, a.store, a.logger),
		Logger:      a.logger,
	}
	if host != nil {
		p.Builder = material.NewBuilder(host, a.logger)
	}
	return p, nil
}

// serveFeed starts the status feed when an address was given. The returned
// func shuts it down.
func (o *pipelineOptions) serveFeed(a *app, p *forge.Pipeline) func() {
	if o.serve == "" {
		return func() {}
	}
	reg := prometheus.NewRegistry()
	p.Metrics = forge.NewMetrics(reg)
	hub := statusfeed.NewHub(a.logger)
	p.Publisher = hub

	srv := &http.Server{Addr: o.serve, Handler: hub.Handler(reg)}
	go func() {
		a.logger.Info("serving status feed", zap.String("addr", o.serve))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status feed stopped", zap.Error(err))
		}
	}()
	return func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runInstall(ctx context.Context, a *app, args []string) error {
	var opts pipelineOptions
	fs := newFlagSet("install", "[DIR]")
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 1 {
		// DIR replaces the environment root; the environment lives below it
		root := filepath.Join(fs.Arg(0), paths.EnvironmentDirName)
		if err := a.store.Update(paths.EnvironmentRoot, root); err != nil {
			return err
		}
		if err := a.store.Update(paths.InterpreterEnv, filepath.Join(root, "venv")); err != nil {
			return err
		}
	}

	p, err := opts.pipeline(a, nil)
	if err != nil {
		return err
	}
	defer opts.serveFeed(a, p)()

	// we'll provide a progress bar
	var bar *progressbar.ProgressBar
	err = p.Install(ctx, func(index, total int, label string) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "installing")
		}
		bar.Describe(label)
		bar.Set(index)
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}
	root, _ := p.EnvironmentRoot()
	fmt.Printf("environment ready at %s\n", root)
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	var opts pipelineOptions
	fs := newFlagSet("status", "")
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := opts.pipeline(a, nil)
	if err != nil {
		return err
	}
	root, err := p.EnvironmentRoot()
	if err != nil {
		return err
	}
	ready, err := p.Ready(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("environment: %s\nstate: %s\nready: %t\n", root, p.Provisioner.State(root), ready)
	if !ready {
		return forge.ErrNotInstalled
	}
	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	var opts pipelineOptions
	fs := newFlagSet("generate", "NAME PROMPT")
	opts.register(fs)

	defaultRoot, _ := a.store.Lookup(paths.OutputDir)
	req := bridge.NewRequest("", "", "")
	var precision, device, scheduler string
	fs.StringVar(&req.SaveRoot, "out", defaultRoot, "Directory the texture set is written below")
	fs.StringVar(&req.PromptImage, "image", "", "Reference image; switches to img2img")
	fs.StringVar(&req.ModelID, "model", req.ModelID, "Model id or local path")
	fs.StringVar(&precision, "precision", string(req.Precision), "fp16 or fp32")
	fs.StringVar(&device, "device", string(req.Device), "cpu or cuda")
	fs.Float64Var(&req.GuidanceScale, "guidance", req.GuidanceScale, "Guidance scale")
	fs.IntVar(&req.Width, "width", req.Width, "Width, a multiple of 8")
	fs.IntVar(&req.Height, "height", req.Height, "Height, a multiple of 8")
	fs.IntVar(&req.Steps, "steps", req.Steps, "Inference steps")
	fs.StringVar(&scheduler, "scheduler", string(req.Scheduler), "ddim or euler")
	fs.BoolVar(&req.Tileable, "tileable", req.Tileable, "Generate seamless textures")
	fs.BoolVar(&req.Patched, "patched", req.Patched, "Use the patched pipeline")
	fs.BoolVar(&req.FreeU, "freeu", req.FreeU, "Enable FreeU")
	object := fs.String("object", "Cube", "Object the material is attached to")
	overwrite := fs.Bool("overwrite", false, "Replace an existing texture set with the same name")
	dryRun := fs.Bool("dry-run", false, "Print the generator command line and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || (fs.NArg() < 2 && req.PromptImage == "") {
		fs.Usage()
		return flag.ErrHelp
	}
	req.Name = fs.Arg(0)
	req.Prompt = strings.Join(fs.Args()[1:], " ")
	req.Precision = bridge.Precision(precision)
	req.Device = bridge.Device(device)
	req.Scheduler = bridge.Scheduler(scheduler)

	scene := material.NewScene()
	scene.AddObject(*object, true)
	if err := scene.Select(*object); err != nil {
		return err
	}
	p, err := opts.pipeline(a, scene)
	if err != nil {
		return err
	}

	if *dryRun {
		return printCommandLine(p, req)
	}

	defer opts.serveFeed(a, p)()
	res, err := p.Run(ctx, req, *overwrite)
	if err != nil {
		var cerr *forge.NameCollisionError
		if errors.As(err, &cerr) {
			fmt.Fprintln(os.Stderr, cerr.Error())
		}
		return err
	}

	graphFile := filepath.Join(res.ArtifactDir, res.Material.Name+".json")
	if err := res.Material.Graph.SaveGraphToFile(graphFile); err != nil {
		return err
	}
	fmt.Printf("%s attached to %s (%d nodes, %d links) in %s\n",
		res.Material.Name, *object, len(res.Material.Graph.Nodes), len(res.Material.Graph.Links), res.Elapsed.Round(time.Millisecond))
	fmt.Printf("shader graph written to %s\n", graphFile)
	return nil
}

// printCommandLine prints the line the generator would be started with once
// it has been checked to read back to the request's flags.
func printCommandLine(p *forge.Pipeline, req bridge.Request) error {
	line, err := checkedCommandLine(p, req)
	if err != nil {
		return err
	}
	fmt.Println(line)
	return nil
}

func checkedCommandLine(p *forge.Pipeline, req bridge.Request) (string, error) {
	root, err := p.EnvironmentRoot()
	if err != nil {
		return "", err
	}
	return p.Bridge.DryRun(root, req)
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch", "")
	url := fs.String("url", "ws://localhost:8189/ws", "Status feed address")
	once := fs.Bool("once", false, "Exit after the first job stops")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bar *progressbar.ProgressBar
	var jobErr error
	handlers := statusfeed.DefaultMessageHandlers(a.logger).
		WithProgressHandler(func(jobID string, msg *statusfeed.DataProgress) {
			if bar == nil {
				bar = progressbar.Default(int64(msg.Max), msg.Label)
			}
			bar.Describe(msg.Label)
			bar.Set(msg.Value)
		})

	l := statusfeed.NewListener(*url, func(msg *statusfeed.Message) {
		err := handlers.Dispatch(msg)
		if msg.Type != statusfeed.TypeStopped {
			return
		}
		if bar != nil {
			bar.Finish()
			bar = nil
		}
		if *once {
			jobErr = err
			cancel()
		}
	}, a.logger)

	err := l.Listen(ctx)
	if jobErr != nil {
		return jobErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
