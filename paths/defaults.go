package paths

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// EnvironmentDirName is the directory created under the chosen install root.
const EnvironmentDirName = "MatForger-Add-on"

// Defaults returns the built-in mapping, derived from the user's home
// directory and the platform's cache conventions.
func Defaults() (map[string]string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return DefaultsFor(home), nil
}

// DefaultsFor returns the built-in mapping for the given home directory.
func DefaultsFor(home string) map[string]string {
	root := filepath.Join(home, EnvironmentDirName)
	env := filepath.Join(root, "venv")
	return map[string]string{
		EnvironmentRoot: root,
		InterpreterEnv:  env,
		SitePackages:    LayoutFor(env).SitePackages(),
		ModelCache:      modelCache(home),
		OutputDir:       filepath.Join(os.TempDir(), "matforge"),
	}
}

// modelCache follows the huggingface conventions: $HF_HOME, then the user
// cache directory, then ~/.cache.
func modelCache(home string) string {
	if hf := os.Getenv("HF_HOME"); hf != "" {
		return hf
	}
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "huggingface")
	}
	return filepath.Join(home, ".cache", "huggingface")
}
