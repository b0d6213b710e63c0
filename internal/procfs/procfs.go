// Package procfs implements the process filesystem core: a synthetic,
// on-demand directory tree over live kernel state. Every node is
// addressed by a packed integer [Key]; file contents are generated at
// read time by per-tag generator functions querying the kernel
// collaborators. The only writable nodes are runtime-registered boolean
// sys variables.
package procfs

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abraao-Filho/serenity/internal/kernel"
)

var (
	// ErrNotDirectory is returned for directory operations against a
	// non-directory key.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFound is returned when a process, descriptor or entry no
	// longer exists. Absence is normal here, never fatal.
	ErrNotFound = errors.New("not found")

	// ErrNotPermitted is returned for writes to non-writable entries
	// and for all child mutation attempts.
	ErrNotPermitted = errors.New("operation not permitted")

	// ErrReadOnly is returned for node creation attempts.
	ErrReadOnly = errors.New("read-only filesystem")

	// ErrUnsupported marks the documented reverse-lookup gap for
	// non-root directories.
	ErrUnsupported = errors.New("unsupported operation")
)

// ProcessTable enumerates and inspects live processes. Inspect returns
// a snapshot taken under the table's own lock; the snapshot stays valid
// after the process exits.
type ProcessTable interface {
	PIDs() []int
	Inspect(pid int) (*kernel.ProcessInfo, bool)
	Colonel() *kernel.ProcessInfo
	CurrentPID() int
}

// MemoryManager exposes the memory manager's global object list and
// free-page pools as a consistent snapshot.
type MemoryManager interface {
	VMObjects() []kernel.VMObject
	FreePageCount() int
	FreeSupervisorPageCount() int
}

// MountTable lists the current virtual filesystem mounts.
type MountTable interface {
	Mounts() []kernel.Mount
}

// InodeTable lists the live vfs inode table.
type InodeTable interface {
	Inodes() []kernel.InodeInfo
}

// HeapAllocator reports the kernel heap counters.
type HeapAllocator interface {
	HeapStats() kernel.HeapStats
}

// CPUIdentifier reports the processor identification data.
type CPUIdentifier interface {
	Identify() kernel.CPUInfo
}

// Console exposes the kernel log ring buffer contents.
type Console interface {
	LogBytes() []byte
}

// SymbolTable resolves kernel addresses to symbols.
type SymbolTable interface {
	Symbolicate(addr uint32) (kernel.Symbol, bool)
}

// KernelMemory validates and reads kernel address space, used by the
// stack walker to follow saved frame pointers safely.
type KernelMemory interface {
	ValidateRead(addr uint32) bool
	Word(addr uint32) uint32
}

// Collaborators bundles the kernel services this filesystem consumes.
// All fields are required.
type Collaborators struct {
	Processes ProcessTable
	Memory    MemoryManager
	Mounts    MountTable
	Inodes    InodeTable
	Heap      HeapAllocator
	CPU       CPUIdentifier
	Console   Console
	Symbols   SymbolTable
	Kmem      KernelMemory
}

// generatorFunc produces the full content snapshot for one key. A nil
// result means the referenced object no longer exists.
type generatorFunc func(fsys *FS, id Key) []byte

// writerFunc applies a write payload to one key, returning the number
// of bytes consumed.
type writerFunc func(fsys *FS, id Key, data []byte) int

// dirEntry is one slot of the static entry table. Entries without a
// read function are directories.
type dirEntry struct {
	name  string
	tag   FileTag
	read  generatorFunc
	write writerFunc
}

// sysEntry is one runtime-registered sys variable. The inode is owned
// here and never passes through the ephemeral cache.
type sysEntry struct {
	name  string
	read  generatorFunc
	write writerFunc
	inode *Inode
}

// FS is the process filesystem instance. It owns the static entry
// table, the sys variable registry and the ephemeral inode directory.
type FS struct {
	kern       Collaborators
	mountEpoch time.Time

	entries [tagMaxStatic]dirEntry

	sysMu sync.RWMutex
	sys   []sysEntry

	root *Inode

	mu     sync.Mutex
	inodes map[Key]*Inode
}

// New builds a filesystem over the given collaborators, populating the
// static entry table. The table is immutable afterwards.
func New(kern Collaborators) *FS {
	fsys := &FS{
		kern:       kern,
		mountEpoch: time.Now(),
		inodes:     make(map[Key]*Inode),
	}
	fsys.root = &Inode{fsys: fsys, id: RootKey}

	fsys.entries[TagRootMM] = dirEntry{name: "mm", tag: TagRootMM, read: genMM}
	fsys.entries[TagRootMounts] = dirEntry{name: "mounts", tag: TagRootMounts, read: genMounts}
	fsys.entries[TagRootKmalloc] = dirEntry{name: "kmalloc", tag: TagRootKmalloc, read: genKmalloc}
	fsys.entries[TagRootAll] = dirEntry{name: "all", tag: TagRootAll, read: genAll}
	fsys.entries[TagRootSummary] = dirEntry{name: "summary", tag: TagRootSummary, read: genSummary}
	fsys.entries[TagRootCPUInfo] = dirEntry{name: "cpuinfo", tag: TagRootCPUInfo, read: genCPUInfo}
	fsys.entries[TagRootInodes] = dirEntry{name: "inodes", tag: TagRootInodes, read: genInodes}
	fsys.entries[TagRootDmesg] = dirEntry{name: "dmesg", tag: TagRootDmesg, read: genDmesg}
	fsys.entries[TagRootSelf] = dirEntry{name: "self", tag: TagRootSelf, read: genSelf}
	fsys.entries[TagRootSys] = dirEntry{name: "sys", tag: TagRootSys}

	fsys.entries[TagPIDVM] = dirEntry{name: "vm", tag: TagPIDVM, read: genPIDVM}
	fsys.entries[TagPIDVMO] = dirEntry{name: "vmo", tag: TagPIDVMO, read: genPIDVMO}
	fsys.entries[TagPIDStack] = dirEntry{name: "stack", tag: TagPIDStack, read: genPIDStack}
	fsys.entries[TagPIDRegs] = dirEntry{name: "regs", tag: TagPIDRegs, read: genPIDRegs}
	fsys.entries[TagPIDFDs] = dirEntry{name: "fds", tag: TagPIDFDs, read: genPIDFDs}
	fsys.entries[TagPIDExe] = dirEntry{name: "exe", tag: TagPIDExe, read: genPIDExe}
	fsys.entries[TagPIDCwd] = dirEntry{name: "cwd", tag: TagPIDCwd, read: genPIDCwd}
	fsys.entries[TagPIDFD] = dirEntry{name: "fd", tag: TagPIDFD}

	return fsys
}

var theFS atomic.Pointer[FS]

// Init constructs the process-wide filesystem instance. It must be
// called exactly once, before any path resolution occurs.
func Init(kern Collaborators) *FS {
	fsys := New(kern)
	if !theFS.CompareAndSwap(nil, fsys) {
		panic("procfs: already initialized")
	}

	return fsys
}

// The returns the process-wide filesystem instance.
func The() *FS {
	fsys := theFS.Load()
	if fsys == nil {
		panic("procfs: not initialized")
	}

	return fsys
}

// RootID returns the identifier of the filesystem root.
func (fsys *FS) RootID() Key {
	return RootKey
}

// MountEpoch returns the construction time, which all node timestamps
// are fixed to.
func (fsys *FS) MountEpoch() time.Time {
	return fsys.mountEpoch
}

// directoryEntry resolves a key to its static or sys registry slot, or
// nil for keys without one (per-descriptor entries, process dirs).
func (fsys *FS) directoryEntry(id Key) *dirEntry {
	if id.Dir() == parentRootSys {
		fsys.sysMu.RLock()
		defer fsys.sysMu.RUnlock()

		index := id.SysIndex()
		if index >= len(fsys.sys) {
			return nil
		}
		entry := fsys.sys[index]

		return &dirEntry{name: entry.name, read: entry.read, write: entry.write}
	}

	tag := id.Tag()
	if tag == tagInvalid || tag >= tagMaxStatic {
		return nil
	}

	return &fsys.entries[tag]
}

// CreateFile rejects file creation: the filesystem is read-only.
func (fsys *FS) CreateFile(_ Key, _ string) error {
	return ErrReadOnly
}

// CreateDirectory rejects directory creation: the filesystem is
// read-only.
func (fsys *FS) CreateDirectory(_ Key, _ string) error {
	return ErrReadOnly
}

// AddChild rejects child insertion.
func (fsys *FS) AddChild(_ Key, _ Key, _ string) error {
	return ErrNotPermitted
}

// RemoveChild rejects child removal.
func (fsys *FS) RemoveChild(_ Key, _ string) error {
	return ErrNotPermitted
}

// Chmod rejects mode changes: all modes are fixed constants.
func (fsys *FS) Chmod(_ Key, _ uint32) error {
	return ErrNotPermitted
}
