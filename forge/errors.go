package forge

import (
	"errors"
	"fmt"
)

var (
	// ErrNameCollision is matched by a *NameCollisionError.
	ErrNameCollision = errors.New("name collision")
	// ErrNotInstalled is returned when the environment does not exist yet.
	ErrNotInstalled = errors.New("environment not installed")
)

// NameCollisionError reports an artifact directory left by an earlier
// generation with the same name.
type NameCollisionError struct {
	Name string
	Dir  string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("a texture set named %q already exists at %s; choose another name or overwrite", e.Name, e.Dir)
}

func (e *NameCollisionError) Is(target error) bool {
	return target == ErrNameCollision
}
