package main

import (
	"sync/atomic"

	"github.com/Abraao-Filho/serenity/internal/fusefs"
	"github.com/Abraao-Filho/serenity/internal/kernel"
	"github.com/Abraao-Filho/serenity/internal/ksim"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

// capsLockToCtrl backs the /sys/caps_lock_to_ctrl kernel variable.
var capsLockToCtrl atomic.Bool

// seedKernel populates the simulated kernel with a believable boot
// state: a handful of processes with memory maps, open descriptors,
// saved registers and a walkable kernel stack, plus mount and vfs
// inode tables and a kernel symbol map.
func seedKernel(kern *ksim.Kernel) {
	kern.Spawn(kernel.ProcessInfo{
		PID:   1,
		Name:  "init",
		State: "Runnable",
		UID:   0, GID: 0,
		PGID: 1, SID: 1,
		ExecutablePath:   "/bin/init",
		WorkingDirectory: "/",
		AmountVirtual:    0x200000,
		AmountResident:   0x80000,
		AmountShared:     0x10000,
	})
	kern.Spawn(kernel.ProcessInfo{
		PID:   2,
		PPID:  1,
		Name:  "Shell",
		State: "BlockedRead",
		UID:   100, GID: 100,
		PGID: 2, SID: 1,
		TTYName:          "/dev/tty0",
		TTYPGID:          2,
		ExecutablePath:   "/bin/Shell",
		WorkingDirectory: "/home/anon",
		AmountVirtual:    0x400000,
		AmountResident:   0x100000,
		AmountShared:     0x20000,
	})

	kern.OpenDescriptor(2, 0, "/dev/tty0")
	kern.OpenDescriptor(2, 1, "/dev/tty0")
	kern.OpenDescriptor(2, 2, "/dev/tty0")
	kern.OpenDescriptor(2, 5, "/home/anon/.history")

	vmo := kern.MapRegion(2, 0x08000000, 0x20000, "/bin/Shell", 32)
	kern.FaultInPage(vmo, 0, 0x00400000)
	kern.FaultInPage(vmo, 1, 0x00401000)
	kern.MarkCOW(2, 0, 1)
	kern.MapRegion(2, 0xbff00000, 0x10000, "Stack (Main thread)", 16)

	kern.SetRegisters(2, kernel.RegisterSet{
		EAX: 0x1, EBX: 0x2, ECX: 0x3, EDX: 0x4,
		ESI: 0x5, EDI: 0x6,
		EBP: 0xbff0ff00, ESP: 0xbff0fef0,
		EIP: 0xc0102340,
		CR3: 0x00100000,
		CS:  0x08, SS: 0x10,
		EFlags: 0x202,
	})

	// A two-frame kernel stack for the frame pointer walk.
	kern.MapWord(0xbff0ff00, 0xbff0ff20)
	kern.MapWord(0xbff0ff04, 0xc0104567)
	kern.MapWord(0xbff0ff20, 0)
	kern.MapWord(0xbff0ff24, 0xc0108890)

	kern.AddSymbol(0xc0102000, "syscall_entry")
	kern.AddSymbol(0xc0104000, "sys$read")
	kern.AddSymbol(0xc0108000, "schedule")

	kern.AddMount(kernel.Mount{FSClass: "ext2fs", HostValid: true, HostFSID: 0, HostIndex: 2, HostPath: "/dev/hda"})
	kern.AddMount(kernel.Mount{FSClass: "procfs"})

	kern.AddVFSInode(kernel.InodeInfo{Handle: 0x1000, FSID: 0, Index: 2, RefCount: 1, Path: "/"})
	kern.AddVFSInode(kernel.InodeInfo{Handle: 0x1040, FSID: 0, Index: 12, RefCount: 2, Path: "/bin/Shell"})
}

// registerSysVariables registers the writable boolean variables served
// under /sys, including the filesystem's own read tracing toggle.
func registerSysVariables(core *procfs.FS, fsys *fusefs.FS, rbuf *logging.RingBuffer) {
	core.AddBoolean("caps_lock_to_ctrl", &capsLockToCtrl, func() {
		rbuf.Printf("caps_lock_to_ctrl is now %t\n", capsLockToCtrl.Load())
	})
	core.AddBoolean("trace_reads", &fsys.Options.TraceReads, func() {
		rbuf.Printf("read tracing is now %t\n", fsys.Options.TraceReads.Load())
	})
}
