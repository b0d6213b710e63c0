// Package kernel defines the data types exchanged between the kernel
// collaborators (process table, memory manager, mount table, console,
// CPU identification, symbol table) and their consumers. The types are
// plain snapshots: whoever produces them is responsible for taking them
// at a consistent instant; whoever consumes them may hold them freely.
package kernel

// RegisterSet is the saved register state of a process, as captured by
// the scheduler on the last context switch away from it.
type RegisterSet struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	ESP uint32
	EIP uint32

	CR3    uint32
	EFlags uint32

	SS uint16
	CS uint16
}

// PhysicalPage is one page of physical memory backing a [VMObject].
type PhysicalPage struct {
	PAddr    uint32
	RefCount int
}

// VMObject is a contiguous run of virtual memory content, either
// anonymous or file-backed, shared between regions by reference.
type VMObject struct {
	// ID is a stable numeric handle standing in for the object's
	// kernel address. Unique for the lifetime of the object.
	ID uint32

	Name      string
	Anonymous bool
	RefCount  int

	// Pages has one slot per page; a nil slot is a page that has
	// not been faulted in (not resident).
	Pages []*PhysicalPage
}

// PageCount returns the number of page slots in the object.
func (v *VMObject) PageCount() int {
	return len(v.Pages)
}

// Region is one mapped range of a process's address space.
type Region struct {
	Base uint32
	Size uint32
	Name string

	// AmountResident is the byte count of resident pages.
	AmountResident uint32

	VMO *VMObject

	// COW has one entry per page of the VMO; true marks a page that
	// is copy-on-write shared and not yet broken.
	COW []bool
}

// End returns the address of the last byte of the region.
func (r *Region) End() uint32 {
	return r.Base + r.Size - 1
}

// Descriptor is one open file descriptor slot of a process.
type Descriptor struct {
	Path string
}

// ProcessInfo is a point-in-time snapshot of one process, taken by the
// process table under its own lock. A snapshot remains valid after the
// process it describes has exited.
type ProcessInfo struct {
	PID  int
	PPID int
	PGID int
	SID  int
	UID  int
	GID  int

	Name  string
	State string

	// TTYName is empty for processes with no controlling terminal.
	TTYName string
	TTYPGID int

	TimesScheduled uint64

	Regions []Region

	// Descriptors is sparse: the slice index is the descriptor
	// number and nil slots are closed descriptors.
	Descriptors []*Descriptor

	// ExecutablePath and WorkingDirectory are empty while the
	// process has no executable image or working directory bound.
	ExecutablePath   string
	WorkingDirectory string

	Registers RegisterSet

	AmountVirtual  uint32
	AmountResident uint32
	AmountShared   uint32
}

// Descriptor returns the descriptor at the given number, or false when
// the slot is out of range or closed.
func (p *ProcessInfo) Descriptor(fd int) (*Descriptor, bool) {
	if fd < 0 || fd >= len(p.Descriptors) || p.Descriptors[fd] == nil {
		return nil, false
	}

	return p.Descriptors[fd], true
}

// MaxDescriptors returns the size of the descriptor table.
func (p *ProcessInfo) MaxDescriptors() int {
	return len(p.Descriptors)
}

// OpenDescriptorCount returns the number of open descriptor slots.
func (p *ProcessInfo) OpenDescriptorCount() int {
	n := 0
	for _, d := range p.Descriptors {
		if d != nil {
			n++
		}
	}

	return n
}

// Mount is one entry of the virtual filesystem mount table.
type Mount struct {
	FSClass string

	// HostValid is false for the root mount, which has no host inode.
	HostValid bool
	HostFSID  uint32
	HostIndex uint32
	HostPath  string
}

// InodeInfo is one row of the live vfs inode table.
type InodeInfo struct {
	// Handle is a stable numeric stand-in for the inode's kernel
	// address.
	Handle   uint32
	FSID     uint32
	Index    uint32
	RefCount int
	Path     string
}

// HeapStats are the kernel heap allocator counters.
type HeapStats struct {
	EternalBytes   uint64
	AllocatedBytes uint64
	FreeBytes      uint64
}

// CPUInfo is the raw CPU identification data, fields exactly as the
// identification instructions report them (no display folding applied).
type CPUInfo struct {
	VendorID string
	Brand    string

	Stepping       uint32
	Model          uint32
	Family         uint32
	Type           uint32
	ExtendedModel  uint32
	ExtendedFamily uint32
}

// Symbol is one entry of the kernel symbol table.
type Symbol struct {
	Address uint32
	Name    string
}
