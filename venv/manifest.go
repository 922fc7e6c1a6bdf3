package venv

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Dependency is one entry of the dependency manifest.
type Dependency struct {
	Module    string   `json:"-"`
	Version   string   `json:"version,omitempty"`
	ExtraArgs []string `json:"extra_params"`
	// Import is the importable name when it differs from the package name
	// (Pillow is imported as PIL).
	Import string `json:"import,omitempty"`
}

// Requirement is the pip requirement string, module==version when pinned.
func (d Dependency) Requirement() string {
	if d.Version == "" {
		return d.Module
	}
	return d.Module + "==" + d.Version
}

// ImportName is the name passed to `import` when checking readiness.
func (d Dependency) ImportName() string {
	if d.Import != "" {
		return d.Import
	}
	return d.Module
}

// Manifest is the ordered dependency list. Order is install order.
type Manifest []Dependency

//go:embed requirements.json
var defaultManifest []byte

// DefaultManifest returns the manifest shipped with the module.
func DefaultManifest() (Manifest, error) {
	return ParseManifest(strings.NewReader(string(defaultManifest)))
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest decodes a JSON object of module name to
// {version?, extra_params, import?}. The object is walked token by token so
// that the declared key order survives; a plain map would lose it.
func ParseManifest(r io.Reader) (Manifest, error) {
	dec := json.NewDecoder(r)

	if _, err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	m := make(Manifest, 0)
	seen := make(map[string]bool)
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		module, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("manifest: expected module name, got %v", t)
		}
		if seen[module] {
			return nil, fmt.Errorf("manifest: duplicate module %q", module)
		}
		seen[module] = true

		var d Dependency
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("manifest: module %q: %w", module, err)
		}
		d.Module = module
		m = append(m, d)
	}

	if _, err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return m, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) (json.Token, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != want {
		return nil, fmt.Errorf("manifest: expected %q, got %v", want, t)
	}
	return t, nil
}

// Modules lists the module names in manifest order.
func (m Manifest) Modules() []string {
	names := make([]string, len(m))
	for i, d := range m {
		names[i] = d.Module
	}
	return names
}
