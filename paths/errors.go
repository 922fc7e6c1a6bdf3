package paths

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every error about missing or unusable persisted
// path state.
var ErrConfig = errors.New("path configuration error")

// UnknownPathError is returned by Lookup for a name that was never registered.
type UnknownPathError struct {
	Name string
}

func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("unknown named path %q", e.Name)
}

func (e *UnknownPathError) Is(target error) bool { return target == ErrConfig }

// PersistError is returned when the path file cannot be written.
type PersistError struct {
	File string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("saving named paths to %s: %v", e.File, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrConfig }

// CorruptConfigError reports a path file that exists but does not parse as
// a flat name to path object. The store falls back to its defaults.
type CorruptConfigError struct {
	File string
	Err  error
}

func (e *CorruptConfigError) Error() string {
	return fmt.Sprintf("corrupt named path file %s: %v", e.File, e.Err)
}

func (e *CorruptConfigError) Unwrap() error { return e.Err }

func (e *CorruptConfigError) Is(target error) bool { return target == ErrConfig }
