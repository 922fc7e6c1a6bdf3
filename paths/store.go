// Package paths persists the named filesystem locations matforge2go needs
// across sessions: where the isolated environment lives, where models are
// cached and where generated textures are written.
package paths

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/richinsley/matforge2go/logging"
	"go.uber.org/zap"
)

// Well known path names.
const (
	EnvironmentRoot = "environment_root"
	InterpreterEnv  = "interpreter_env"
	ModelCache      = "model_cache"
	OutputDir       = "output_dir"
	SitePackages    = "site_packages"
)

// DefaultFileName is the name of the path file next to the install directory.
const DefaultFileName = "paths.json"

// Store maps logical names to absolute filesystem paths and mirrors the
// mapping to a JSON file. Every Update rewrites the whole file, so the file
// always holds the state after the last successful update.
//
// A Store is not safe for concurrent use; one instance is created at startup
// and handed to every component that needs it.
type Store struct {
	file   string
	paths  map[string]string
	logger *zap.Logger
}

// NewStore creates a store backed by file, populated with defaults. Call
// LoadOrDefault to pick up persisted state.
func NewStore(file string, defaults map[string]string, logger *zap.Logger) *Store {
	s := &Store{
		file:   file,
		paths:  make(map[string]string, len(defaults)),
		logger: logging.OrNop(logger),
	}
	for k, v := range defaults {
		s.paths[k] = v
	}
	return s
}

// Open creates a store backed by file with the built-in defaults and loads
// it. The returned error is informational only (a *CorruptConfigError); the
// store is always usable.
func Open(file string, logger *zap.Logger) (*Store, error) {
	defaults, err := Defaults()
	if err != nil {
		return nil, err
	}
	s := NewStore(file, defaults, logger)
	return s, s.LoadOrDefault()
}

// File is the path of the backing file.
func (s *Store) File() string {
	return s.file
}

// LoadOrDefault replaces the in-memory mapping with the file's content when
// the file exists and parses. A missing file keeps the defaults silently. A
// file that exists but does not parse keeps the defaults, is logged, and is
// reported as a *CorruptConfigError.
func (s *Store) LoadOrDefault() error {
	data, err := os.ReadFile(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no named path file, using defaults", zap.String("file", s.file))
		return nil
	}
	if err != nil {
		cerr := &CorruptConfigError{File: s.file, Err: err}
		s.logger.Warn("cannot read named path file, using defaults", zap.Error(cerr))
		return cerr
	}

	var loaded map[string]string
	err = json.Unmarshal(data, &loaded)
	if err == nil {
		err = checkLoaded(loaded)
	}
	if err != nil {
		cerr := &CorruptConfigError{File: s.file, Err: err}
		s.logger.Warn("corrupt named path file, using defaults", zap.Error(cerr))
		return cerr
	}
	s.paths = loaded
	s.logger.Debug("loaded named paths", zap.String("file", s.file), zap.Int("count", len(loaded)))
	return nil
}

// checkLoaded rejects a decoded file that is null or maps a name to
// something other than an absolute path.
func checkLoaded(m map[string]string) error {
	if m == nil {
		return errors.New("file holds null, not an object")
	}
	for _, name := range sortedKeys(m) {
		if p := m[name]; p == "" || !filepath.IsAbs(p) {
			return fmt.Errorf("path for %q is not absolute: %q", name, p)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the path registered under name.
func (s *Store) Lookup(name string) (string, error) {
	p, ok := s.paths[name]
	if !ok {
		return "", &UnknownPathError{Name: name}
	}
	return p, nil
}

// Update registers path under name and persists the full mapping. Relative
// paths are made absolute first. The in-memory mapping is only changed when
// the write succeeds.
func (s *Store) Update(name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &PersistError{File: s.file, Err: fmt.Errorf("resolving %q: %w", path, err)}
	}

	next := s.Snapshot()
	next[name] = abs
	if err := writeFile(s.file, next); err != nil {
		perr := &PersistError{File: s.file, Err: err}
		s.logger.Error("persisting named paths", zap.Error(perr))
		return perr
	}
	s.paths = next
	s.logger.Info("named path updated", zap.String("name", name), zap.String("path", abs))
	return nil
}

// Names returns the registered names in sorted order.
func (s *Store) Names() []string {
	return sortedKeys(s.paths)
}

// Snapshot returns a copy of the mapping.
func (s *Store) Snapshot() map[string]string {
	cp := make(map[string]string, len(s.paths))
	for k, v := range s.paths {
		cp[k] = v
	}
	return cp
}

// writeFile writes the mapping next to file and renames it into place, so a
// crash mid-write leaves the previous file intact. encoding/json sorts map
// keys, which keeps repeated writes of the same mapping byte-identical.
func writeFile(file string, m map[string]string) error {
	data, err := json.MarshalIndent(m, "", " ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(file)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
