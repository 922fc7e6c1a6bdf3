package venv

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProvision is matched by installer bootstrap and environment creation
// failures. These are fatal to the current operation and never retried.
var ErrProvision = errors.New("provisioning failed")

// ProvisionError is a provisioning failure with remediation text for the user.
type ProvisionError struct {
	Op          string
	Remediation string
	Err         error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Remediation != "" {
		msg += " (" + e.Remediation + ")"
	}
	return msg
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func (e *ProvisionError) Is(target error) bool { return target == ErrProvision }

// EnvCreateError is returned when the host interpreter fails to create the
// isolated environment.
type EnvCreateError struct {
	Root     string
	ExitCode int
	Stderr   string
}

func (e *EnvCreateError) Error() string {
	return fmt.Sprintf("creating environment at %s: exit code %d: %s", e.Root, e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *EnvCreateError) Is(target error) bool { return target == ErrProvision }

// DependencyInstallError lists the modules that failed to install. Every
// module was attempted; the ones not listed are installed.
type DependencyInstallError struct {
	Failed []string
}

func (e *DependencyInstallError) Error() string {
	return fmt.Sprintf("failed to install %d dependencies: %s", len(e.Failed), strings.Join(e.Failed, ", "))
}
