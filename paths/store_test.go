package paths

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() map[string]string {
	return DefaultsFor("/home/tester")
}

func TestLookupUnknown(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), DefaultFileName), testDefaults(), nil)

	_, err := s.Lookup("nope")
	var uerr *UnknownPathError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "nope", uerr.Name)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestUpdatePersistsImmediately(t *testing.T) {
	file := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewStore(file, testDefaults(), nil)

	require.NoError(t, s.Update(OutputDir, "/data/textures"))

	got, err := s.Lookup(OutputDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/data/textures"), got)

	reloaded := NewStore(file, nil, nil)
	require.NoError(t, reloaded.LoadOrDefault())
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
}

func TestUpdateSameValueIsByteIdentical(t *testing.T) {
	file := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewStore(file, testDefaults(), nil)

	require.NoError(t, s.Update(ModelCache, "/models"))
	first, err := os.ReadFile(file)
	require.NoError(t, err)

	require.NoError(t, s.Update(ModelCache, "/models"))
	second, err := os.ReadFile(file)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), DefaultFileName), testDefaults(), nil)
	require.NoError(t, s.LoadOrDefault())
	assert.Equal(t, testDefaults(), s.Snapshot())
}

func TestLoadDeletedFileFallsBackToDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewStore(file, testDefaults(), nil)
	require.NoError(t, s.Update(OutputDir, "/elsewhere"))
	require.NoError(t, os.Remove(file))

	fresh := NewStore(file, testDefaults(), nil)
	require.NoError(t, fresh.LoadOrDefault())
	assert.Equal(t, testDefaults(), fresh.Snapshot())
}

func TestLoadCorruptFileFallsBackToDefaults(t *testing.T) {
	for name, content := range map[string]string{
		"truncated":     `{"output_dir": 12`,
		"null":          `null`,
		"empty path":    `{"output_dir": ""}`,
		"relative path": `{"output_dir": "textures"}`,
	} {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

			s := NewStore(file, testDefaults(), nil)
			err := s.LoadOrDefault()

			var cerr *CorruptConfigError
			require.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, ErrConfig)
			assert.Equal(t, testDefaults(), s.Snapshot())

			// the store stays usable
			p, err := s.Lookup(InterpreterEnv)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("/home/tester", EnvironmentDirName, "venv"), p)
		})
	}
}

func TestLoadReplacesDefaultsEntirely(t *testing.T) {
	file := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(file, []byte(`{"output_dir": "/only/this"}`), 0o644))

	s := NewStore(file, testDefaults(), nil)
	require.NoError(t, s.LoadOrDefault())
	assert.Equal(t, []string{OutputDir}, s.Names())
	_, err := s.Lookup(InterpreterEnv)
	assert.Error(t, err)
}

func TestUpdatePersistError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// the parent of the backing file is a regular file, so nothing can be written
	s := NewStore(filepath.Join(blocker, DefaultFileName), testDefaults(), nil)
	err := s.Update(OutputDir, "/x")

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.True(t, errors.Is(err, ErrConfig))

	// failed writes leave the in-memory mapping untouched
	p, _ := s.Lookup(OutputDir)
	assert.Equal(t, testDefaults()[OutputDir], p)
}

func TestLayoutForWindowsAndUnix(t *testing.T) {
	win := EnvLayout{Root: `C:\env`, GOOS: "windows"}
	assert.Equal(t, filepath.Join(`C:\env`, "Scripts", "python.exe"), win.Interpreter())
	assert.Equal(t, filepath.Join(`C:\env`, "Lib", "site-packages"), win.SitePackages())

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib", "python3.11", "site-packages"), 0o755))
	unix := EnvLayout{Root: root, GOOS: "linux"}
	assert.Equal(t, filepath.Join(root, "bin", "python"), unix.Interpreter())
	assert.Equal(t, filepath.Join(root, "lib", "python3.11", "site-packages"), unix.SitePackages())
}
