package paths

import (
	"path/filepath"
	"runtime"
	"sort"
)

// EnvLayout knows where things live inside an isolated interpreter
// environment created by `python -m venv`.
type EnvLayout struct {
	Root string
	GOOS string
}

// LayoutFor returns the layout of the environment rooted at root for the
// running platform.
func LayoutFor(root string) EnvLayout {
	return EnvLayout{Root: root, GOOS: runtime.GOOS}
}

func (l EnvLayout) windows() bool {
	return l.GOOS == "windows"
}

// ScriptsDir is the directory holding the interpreter and console scripts.
func (l EnvLayout) ScriptsDir() string {
	if l.windows() {
		return filepath.Join(l.Root, "Scripts")
	}
	return filepath.Join(l.Root, "bin")
}

// Interpreter is the environment's own python executable.
func (l EnvLayout) Interpreter() string {
	if l.windows() {
		return filepath.Join(l.ScriptsDir(), "python.exe")
	}
	return filepath.Join(l.ScriptsDir(), "python")
}

// Config is the pyvenv.cfg written by the venv module.
func (l EnvLayout) Config() string {
	return filepath.Join(l.Root, "pyvenv.cfg")
}

// SitePackages is the environment's package directory. On unix the directory
// carries the interpreter version, so an existing lib/python3.*/site-packages
// wins over the unversioned fallback.
func (l EnvLayout) SitePackages() string {
	if l.windows() {
		return filepath.Join(l.Root, "Lib", "site-packages")
	}
	matches, _ := filepath.Glob(filepath.Join(l.Root, "lib", "python3*", "site-packages"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[len(matches)-1]
	}
	return filepath.Join(l.Root, "lib", "python3", "site-packages")
}
