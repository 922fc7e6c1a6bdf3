//go:build linux || darwin || freebsd

package venv

import (
	"golang.org/x/sys/unix"
)

// freeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func freeBytes(path string) (uint64, bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true, nil
}
