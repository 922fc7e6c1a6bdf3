package bridge

import (
	"os"
	"sort"
	"strings"

	"github.com/richinsley/matforge2go/paths"
	"github.com/richinsley/matforge2go/proc"
)

// Activation is what activating an environment amounts to: variables set on
// top of the host environment and variables removed from it.
type Activation struct {
	Layout paths.EnvLayout
	Set    map[string]string
	Drop   []string
}

// Activate computes the activation for the environment described by layout.
// hostPath is appended after the scripts directory. modelCache may be empty.
func Activate(layout paths.EnvLayout, hostPath, modelCache string) Activation {
	scripts := layout.ScriptsDir()
	path := scripts
	if hostPath != "" {
		path += string(os.PathListSeparator) + hostPath
	}
	set := map[string]string{
		"VIRTUAL_ENV":      layout.Root,
		"PATH":             path,
		"PYTHONNOUSERSITE": "1",
	}
	if modelCache != "" {
		set["HF_HOME"] = modelCache
	}
	return Activation{
		Layout: layout,
		Set:    set,
		Drop:   []string{"PYTHONHOME", "PYTHONPATH", "__PYVENV_LAUNCHER__"},
	}
}

// Environ applies the activation to base.
func (a Activation) Environ(base []string) []string {
	return proc.Environ(base, a.Set, a.Drop...)
}

// Script renders the activation followed by line as a POSIX shell script.
func (a Activation) Script(line string) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	for _, k := range a.Drop {
		sb.WriteString("unset " + k + "\n")
	}
	keys := make([]string, 0, len(a.Set))
	for k := range a.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("export " + k + "=" + Quote(a.Set[k]) + "\n")
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
	return sb.String()
}
