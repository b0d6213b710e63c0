package main

const (
	helpTextLong = `%s (%s) - FUSE mount helper

This program is a helper for the mount/fstab mechanism.
It is normally located in /sbin or another directory
searched by mount(8) for filesystem helpers, and is
not intended to be invoked directly by the end users.

Usage:
  %s source mountpoint [-o key[=value],key[=value],...]

For running the filesystem as another (e.g. unprivileged) user:
  %s source mountpoint -o setuid=USER[,key[=value],...]

Example (fstab entry):
  proc   /mnt/procfuse   procfuse   allow_other,webaddr=:8000   0  0

The source argument is nominal; the filesystem generates its whole
tree from kernel state and reads nothing from the source.

Filesystem-specific options need to be adapted into this format:
  --webaddr :8000 --trace => webaddr=:8000,trace

Note that FUSE mount helper events are printed to standard error (stderr).`
)
