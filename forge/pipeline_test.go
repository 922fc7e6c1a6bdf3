package forge

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/richinsley/matforge2go/bridge"
	"github.com/richinsley/matforge2go/material"
	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/venv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// When FORGE_HELPER_MODE is set the test binary stands in for the texture
// generator.
func TestMain(m *testing.M) {
	if mode := os.Getenv("FORGE_HELPER_MODE"); mode != "" {
		os.Exit(generatorMain(mode))
	}
	os.Exit(m.Run())
}

func generatorMain(mode string) int {
	if mode == "fail" {
		fmt.Fprintln(os.Stderr, "CUDA not found")
		return 1
	}
	inv, err := bridge.ParseArgv(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	name, _ := inv.Get("name")
	savePath, _ := inv.Get("save_path")
	width, _ := inv.Get("width")
	height, _ := inv.Get("height")
	w, _ := strconv.Atoi(width)
	h, _ := strconv.Atoi(height)

	dir := filepath.Join(savePath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	for _, m := range material.Maps {
		if mode == "partial" && m.Key == "metallic" {
			continue
		}
		f, err := os.Create(filepath.Join(dir, m.File()))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		png.Encode(f, image.NewGray(image.Rect(0, 0, w, h)))
		f.Close()
	}
	return 0
}

type event struct {
	kind, jobID, detail string
	err                 error
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingPublisher) add(e event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Status(environment string, queueLength int) error {
	return r.add(event{kind: "status", detail: environment})
}

func (r *recordingPublisher) Started(jobID, name, operation string) error {
	return r.add(event{kind: "started", jobID: jobID, detail: operation})
}

func (r *recordingPublisher) Progress(jobID string, value, max int, label string) error {
	return r.add(event{kind: "progress", jobID: jobID, detail: label})
}

func (r *recordingPublisher) Stopped(jobID, material string, err error) error {
	return r.add(event{kind: "stopped", jobID: jobID, detail: material, err: err})
}

type fixture struct {
	pipeline  *Pipeline
	scene     *material.Scene
	cube      *material.SceneObject
	publisher *recordingPublisher
	registry  *prometheus.Registry
	saveRoot  string
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("interpreter symlink not supported")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	envRoot := filepath.Join(dir, "venv")
	interp := paths.LayoutFor(envRoot).Interpreter()
	require.NoError(t, os.MkdirAll(filepath.Dir(interp), 0o755))
	require.NoError(t, os.Symlink(exe, interp))
	t.Setenv("FORGE_HELPER_MODE", mode)

	store := paths.NewStore(filepath.Join(dir, paths.DefaultFileName), paths.DefaultsFor(dir), nil)
	require.NoError(t, store.Update(paths.InterpreterEnv, envRoot))

	scene := material.NewScene()
	cube := scene.AddObject("Cube", true)
	require.NoError(t, scene.Select("Cube"))

	reg := prometheus.NewRegistry()
	pub := &recordingPublisher{}
	return &fixture{
		pipeline: &Pipeline{
			Store:     store,
			Bridge:    bridge.New(bridge.Config{EntryPoint: filepath.Join(dir, "sd_functions.py")}, nil, store, nil),
			Builder:   material.NewBuilder(scene, nil),
			Publisher: pub,
			Metrics:   NewMetrics(reg),
		},
		scene:     scene,
		cube:      cube,
		publisher: pub,
		registry:  reg,
		saveRoot:  filepath.Join(dir, "textures"),
	}
}

func (f *fixture) request() bridge.Request {
	req := bridge.NewRequest("rust1", "weathered rusted steel", f.saveRoot)
	req.Width, req.Height, req.Steps = 512, 512, 25
	req.Device = bridge.CPU
	return req
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRunGeneratesAndAttachesMaterial(t *testing.T) {
	f := newFixture(t, "ok")

	res, err := f.pipeline.Run(context.Background(), f.request(), false)
	require.NoError(t, err)

	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, filepath.Join(f.saveRoot, "rust1"), res.ArtifactDir)
	assert.Equal(t, "M_MF_rust1", res.Material.Name)
	assert.Equal(t, 7, res.Material.CreatedNodes)
	assert.Equal(t, 7, res.Material.CreatedLinks)
	assert.Same(t, res.Material, f.cube.Material(0))
	for _, img := range res.Material.Images {
		assert.Equal(t, 512, img.Width)
		assert.Equal(t, 512, img.Height)
	}

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, "started", f.publisher.events[0].kind)
	assert.Equal(t, bridge.OpText2Img, f.publisher.events[0].detail)
	assert.Equal(t, event{kind: "stopped", jobID: res.JobID, detail: "M_MF_rust1"}, f.publisher.events[1])

	assert.Equal(t, 1.0, counterValue(t, f.registry, "matforge_generations_total", map[string]string{"operation": "text2img", "result": "success"}))
}

func TestRunNameCollision(t *testing.T) {
	f := newFixture(t, "ok")
	_, err := f.pipeline.Run(context.Background(), f.request(), false)
	require.NoError(t, err)

	_, err = f.pipeline.Run(context.Background(), f.request(), false)
	assert.ErrorIs(t, err, ErrNameCollision)
	var cerr *NameCollisionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, filepath.Join(f.saveRoot, "rust1"), cerr.Dir)

	res, err := f.pipeline.Run(context.Background(), f.request(), true)
	require.NoError(t, err)
	assert.Same(t, res.Material, f.cube.Material(0))
}

func TestRunOverwriteRemovesStaleMaps(t *testing.T) {
	f := newFixture(t, "partial")
	stale := filepath.Join(f.saveRoot, "rust1")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "metallic.png"), []byte("old"), 0o644))

	// the generator leaves metallic out; the stale file must not stand in for it
	_, err := f.pipeline.Run(context.Background(), f.request(), true)
	var merr *material.MissingArtifactError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "metallic", merr.Map)
	assert.Nil(t, f.cube.Material(0))
}

func TestRunGeneratorFailure(t *testing.T) {
	f := newFixture(t, "fail")

	_, err := f.pipeline.Run(context.Background(), f.request(), false)
	eerr, ok := bridge.IsExecutionError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 1, eerr.ExitCode)
	assert.Equal(t, "CUDA not found", eerr.Stderr)

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, "stopped", last.kind)
	assert.Equal(t, err, last.err)
	assert.Equal(t, 1.0, counterValue(t, f.registry, "matforge_generations_total", map[string]string{"operation": "text2img", "result": "error"}))
}

func TestRunChecksHostBeforeGenerating(t *testing.T) {
	f := newFixture(t, "ok")
	require.NoError(t, f.scene.Select(""))

	_, err := f.pipeline.Run(context.Background(), f.request(), false)
	var herr *material.HostGraphError
	require.ErrorAs(t, err, &herr)
	assert.NoDirExists(t, filepath.Join(f.saveRoot, "rust1"))
	// only the stop event: the job never started
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "stopped", f.publisher.events[0].kind)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, "ok")
	req := f.request()
	req.Name = "../escape"

	_, err := f.pipeline.Run(context.Background(), req, false)
	var rerr *bridge.RequestError
	assert.ErrorAs(t, err, &rerr)
}

func TestRunRequiresInstalledEnvironment(t *testing.T) {
	f := newFixture(t, "ok")
	missing := filepath.Join(t.TempDir(), "venv")
	require.NoError(t, f.pipeline.Store.Update(paths.InterpreterEnv, missing))
	f.pipeline.Provisioner = venv.New(venv.Config{GOOS: runtime.GOOS}, nil, f.pipeline.Store, nil)

	_, err := f.pipeline.Run(context.Background(), f.request(), false)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.NoDirExists(t, filepath.Join(f.saveRoot, "rust1"))
}

func TestInstallWithoutProvisioner(t *testing.T) {
	p := &Pipeline{}
	assert.Error(t, p.Install(context.Background(), nil))
	_, err := p.Ready(context.Background())
	assert.Error(t, err)
}
