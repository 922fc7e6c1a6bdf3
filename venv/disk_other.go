//go:build !linux && !darwin && !freebsd

package venv

// freeBytes is only implemented where statfs reports Bavail; elsewhere the check is skipped.
func freeBytes(path string) (uint64, bool, error) {
	return 0, false, nil
}
