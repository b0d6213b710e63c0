package webserver

import (
	"golang.org/x/sys/unix"
)

// fdLimit returns the soft limit on open file descriptors for the
// process, or zero when it cannot be read.
func fdLimit() uint64 {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0
	}

	return lim.Cur
}

// enabledOrDisabled returns string "Enabled" or "Disabled" based on a boolean.
func enabledOrDisabled(v bool) string {
	if v {
		return "Enabled"
	}

	return "Disabled"
}
