package material

import "fmt"

// MissingArtifactError reports a texture map the generator did not produce.
type MissingArtifactError struct {
	Map  string
	File string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing %s map: %s", e.Map, e.File)
}

// InvalidArtifactError reports a texture map that exists but cannot be read
// as an image.
type InvalidArtifactError struct {
	File string
	Err  error
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("unreadable texture %s: %v", e.File, e.Err)
}

func (e *InvalidArtifactError) Unwrap() error { return e.Err }

// HostGraphError reports that the target object cannot receive a material.
type HostGraphError struct {
	Object string
	Reason string
}

func (e *HostGraphError) Error() string {
	if e.Object == "" {
		return "cannot attach material: " + e.Reason
	}
	return fmt.Sprintf("cannot attach material to %q: %s", e.Object, e.Reason)
}
