package main

const (
	helpTextUse = "procfuse <mount-dir>"

	helpTextShort = "a process filesystem served over FUSE from a simulated kernel"

	helpTextLong = `procfuse mounts a process filesystem over FUSE, generating every file's
content on demand from a simulated kernel: per-process memory maps, open
descriptors, saved registers, symbolicated stacks, kernel memory counters,
mount and inode tables, the boot log and writable kernel variables under
/sys. It includes a HTTP webserver for a responsive diagnostics dashboard
and runtime configurables.

When mounted, the following OS signals are observed at runtime:
- SIGTERM/SIGINT for gracefully unmounting the FS
- SIGUSR1 for forcing a garbage collection run within Go
- SIGUSR2 for printing a stack trace to standard error (stderr)

When enabled, the diagnostics dashboard exposes the following routes:
- "/" for filesystem dashboard and event ring-buffer
- "/gc" for forcing of a garbage collection (within Go)
- "/reset" for resetting the filesystem metrics at runtime
- "/set/trace-reads/<bool>" for adapting read call tracing
- "/sys/<name>/<bool>" for writing a registered kernel variable`

	helpTextDumpUse = "dump <output-file>"

	helpTextDumpShort = "write a gzipped tar snapshot of the filesystem tree"
)
