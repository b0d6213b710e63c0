// Package ksim implements an in-memory simulated kernel: a mutable
// process table, memory manager, mount table, vfs inode table, heap
// counters, CPU identity, symbol table and word-addressable kernel
// memory. It satisfies the collaborator interfaces the process
// filesystem consumes and backs the demo binary and the tests.
package ksim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abraao-Filho/serenity/internal/kernel"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultDescriptorSlots = 32
	symbolCacheTTL         = time.Minute
	symbolCacheSize        = 4096

	// symbolSpan bounds how far past the last symbol an address may
	// still symbolicate.
	symbolSpan = 0x1000
)

// Kernel is the simulated kernel instance. All table reads take the
// kernel lock for the duration of one snapshot, the moral equivalent of
// the short interrupt-disabled sections a real kernel would use.
type Kernel struct {
	// BootID identifies one simulated boot.
	BootID uuid.UUID

	console *logging.RingBuffer

	mu       sync.Mutex
	colonel  kernel.ProcessInfo
	procs    map[int]*kernel.ProcessInfo
	order    []int
	current  int
	nextVMO  uint32
	vmos     []*kernel.VMObject
	freeP    int
	freeSupP int
	mounts   []kernel.Mount
	vnodes   []kernel.InodeInfo
	heap     kernel.HeapStats
	cpu      kernel.CPUInfo
	mem      map[uint32]uint32
	symbols  []kernel.Symbol

	symCache *ttlcache.Cache[uint32, kernel.Symbol]
}

// NewKernel boots a simulated kernel logging to the given console ring
// buffer. The colonel (idle) process exists from boot onward.
func NewKernel(console *logging.RingBuffer) *Kernel {
	k := &Kernel{
		BootID:  uuid.New(),
		console: console,
		procs:   make(map[int]*kernel.ProcessInfo),
		mem:     make(map[uint32]uint32),
		colonel: kernel.ProcessInfo{
			Name:  "colonel",
			State: "Runnable",
		},
		cpu: kernel.CPUInfo{
			VendorID: "GenuineIntel",
			Brand:    "Simulated 80486DX2-66",
			Family:   6,
			Model:    7,
			Stepping: 1,
		},
		heap: kernel.HeapStats{
			EternalBytes:   1 << 20,
			AllocatedBytes: 3 << 20,
			FreeBytes:      5 << 20,
		},
		freeP:    4096,
		freeSupP: 64,
	}
	k.symCache = ttlcache.New(
		ttlcache.WithTTL[uint32, kernel.Symbol](symbolCacheTTL),
		ttlcache.WithCapacity[uint32, kernel.Symbol](symbolCacheSize),
	)

	console.Printf("ksim: boot %s\n", k.BootID)

	return k
}

// Console returns the kernel console ring buffer.
func (k *Kernel) Console() *logging.RingBuffer {
	return k.console
}

// Spawn adds a process to the table. Zero-value descriptor tables get
// the default slot count. The first spawned process becomes current.
func (k *Kernel) Spawn(proc kernel.ProcessInfo) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if proc.Descriptors == nil {
		proc.Descriptors = make([]*kernel.Descriptor, defaultDescriptorSlots)
	}
	if proc.State == "" {
		proc.State = "Runnable"
	}

	k.procs[proc.PID] = &proc
	k.order = append(k.order, proc.PID)
	if k.current == 0 {
		k.current = proc.PID
	}

	k.console.Printf("ksim: spawned pid %d (%s)\n", proc.PID, proc.Name)
}

// Exit removes a process from the table. Snapshots taken earlier stay
// valid; new inspections report absence.
func (k *Kernel) Exit(pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok {
		return
	}
	delete(k.procs, pid)
	for i, p := range k.order {
		if p == pid {
			k.order = append(k.order[:i], k.order[i+1:]...)

			break
		}
	}
	if k.current == pid {
		k.current = 0
		if len(k.order) > 0 {
			k.current = k.order[0]
		}
	}

	k.console.Printf("ksim: pid %d (%s) exited\n", pid, proc.Name)
}

// SetCurrent marks the process the filesystem's "self" entry points at.
func (k *Kernel) SetCurrent(pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.current = pid
}

// Tick advances the scheduler simulation one round: every process gets
// scheduled once and the current process rotates.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.colonel.TimesScheduled++
	for _, proc := range k.procs {
		proc.TimesScheduled++
	}
	if len(k.order) > 1 {
		for i, pid := range k.order {
			if pid == k.current {
				k.current = k.order[(i+1)%len(k.order)]

				break
			}
		}
	}
}

// PIDs lists live process ids in spawn order.
func (k *Kernel) PIDs() []int {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]int, len(k.order))
	copy(out, k.order)

	return out
}

// Inspect snapshots one process under the kernel lock.
func (k *Kernel) Inspect(pid int) (*kernel.ProcessInfo, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok {
		return nil, false
	}

	return snapshotProcess(proc), true
}

// Colonel snapshots the idle process.
func (k *Kernel) Colonel() *kernel.ProcessInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	return snapshotProcess(&k.colonel)
}

// CurrentPID returns the pid of the currently running process.
func (k *Kernel) CurrentPID() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.current
}

func snapshotProcess(proc *kernel.ProcessInfo) *kernel.ProcessInfo {
	out := *proc
	out.Regions = make([]kernel.Region, len(proc.Regions))
	for i, region := range proc.Regions {
		out.Regions[i] = snapshotRegion(region)
	}
	out.Descriptors = make([]*kernel.Descriptor, len(proc.Descriptors))
	copy(out.Descriptors, proc.Descriptors)

	return &out
}

// snapshotRegion copies the region's COW bits and its backing object's
// page table; MarkCOW and FaultInPage mutate both in place, so sharing
// them would let later faults show through an earlier snapshot.
func snapshotRegion(region kernel.Region) kernel.Region {
	cow := make([]bool, len(region.COW))
	copy(cow, region.COW)
	region.COW = cow

	if region.VMO != nil {
		region.VMO = snapshotVMO(region.VMO)
	}

	return region
}

// snapshotVMO copies the object with its page slot table. The page
// structs themselves are immutable once faulted in and may be shared.
func snapshotVMO(vmo *kernel.VMObject) *kernel.VMObject {
	out := *vmo
	out.Pages = make([]*kernel.PhysicalPage, len(vmo.Pages))
	copy(out.Pages, vmo.Pages)

	return &out
}

// OpenDescriptor opens a descriptor slot of a process at the given
// number, growing the table as needed.
func (k *Kernel) OpenDescriptor(pid, fd int, path string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok || fd < 0 {
		return
	}
	for fd >= len(proc.Descriptors) {
		proc.Descriptors = append(proc.Descriptors, nil)
	}
	proc.Descriptors[fd] = &kernel.Descriptor{Path: path}
}

// CloseDescriptor closes a descriptor slot of a process.
func (k *Kernel) CloseDescriptor(pid, fd int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok || fd < 0 || fd >= len(proc.Descriptors) {
		return
	}
	proc.Descriptors[fd] = nil
}

// BindExecutable binds a process's executable image path.
func (k *Kernel) BindExecutable(pid int, path string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if proc, ok := k.procs[pid]; ok {
		proc.ExecutablePath = path
	}
}

// BindWorkingDirectory binds a process's working directory path.
func (k *Kernel) BindWorkingDirectory(pid int, path string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if proc, ok := k.procs[pid]; ok {
		proc.WorkingDirectory = path
	}
}

// SetRegisters replaces a process's saved register state.
func (k *Kernel) SetRegisters(pid int, regs kernel.RegisterSet) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if proc, ok := k.procs[pid]; ok {
		proc.Registers = regs
	}
}

// MapRegion maps a region into a process's address space, creating a
// backing VM object with the given page count. Returns the object so
// callers can fault pages in.
func (k *Kernel) MapRegion(pid int, base, size uint32, name string, pages int) *kernel.VMObject {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok {
		return nil
	}

	k.nextVMO++
	vmo := &kernel.VMObject{
		ID:        k.nextVMO,
		Name:      name,
		Anonymous: true,
		RefCount:  1,
		Pages:     make([]*kernel.PhysicalPage, pages),
	}
	k.vmos = append(k.vmos, vmo)

	proc.Regions = append(proc.Regions, kernel.Region{
		Base: base,
		Size: size,
		Name: name,
		VMO:  vmo,
		COW:  make([]bool, pages),
	})
	proc.AmountVirtual += size

	return vmo
}

// FaultInPage makes one page of a VM object resident at the given
// physical address.
func (k *Kernel) FaultInPage(vmo *kernel.VMObject, page int, paddr uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if vmo == nil || page < 0 || page >= len(vmo.Pages) {
		return
	}
	vmo.Pages[page] = &kernel.PhysicalPage{PAddr: paddr, RefCount: 1}
	if k.freeP > 0 {
		k.freeP--
	}
}

// MarkCOW flags one page of a process region as copy-on-write shared.
func (k *Kernel) MarkCOW(pid, region, page int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	proc, ok := k.procs[pid]
	if !ok || region < 0 || region >= len(proc.Regions) {
		return
	}
	cow := proc.Regions[region].COW
	if page >= 0 && page < len(cow) {
		cow[page] = true
	}
}

// VMObjects snapshots the memory manager's object list.
func (k *Kernel) VMObjects() []kernel.VMObject {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]kernel.VMObject, len(k.vmos))
	for i, vmo := range k.vmos {
		out[i] = *snapshotVMO(vmo)
	}

	return out
}

// FreePageCount returns the free physical page pool size.
func (k *Kernel) FreePageCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.freeP
}

// FreeSupervisorPageCount returns the free supervisor page pool size.
func (k *Kernel) FreeSupervisorPageCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.freeSupP
}

// AddMount adds a mount table entry.
func (k *Kernel) AddMount(mount kernel.Mount) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.mounts = append(k.mounts, mount)
}

// Mounts snapshots the mount table.
func (k *Kernel) Mounts() []kernel.Mount {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]kernel.Mount, len(k.mounts))
	copy(out, k.mounts)

	return out
}

// AddVFSInode adds a live vfs inode table row.
func (k *Kernel) AddVFSInode(info kernel.InodeInfo) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.vnodes = append(k.vnodes, info)
}

// Inodes snapshots the vfs inode table.
func (k *Kernel) Inodes() []kernel.InodeInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]kernel.InodeInfo, len(k.vnodes))
	copy(out, k.vnodes)

	return out
}

// SetHeapStats replaces the heap allocator counters.
func (k *Kernel) SetHeapStats(stats kernel.HeapStats) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.heap = stats
}

// HeapStats returns the heap allocator counters.
func (k *Kernel) HeapStats() kernel.HeapStats {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.heap
}

// SetCPU replaces the CPU identification data.
func (k *Kernel) SetCPU(info kernel.CPUInfo) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cpu = info
}

// Identify returns the CPU identification data.
func (k *Kernel) Identify() kernel.CPUInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.cpu
}

// LogBytes returns the console ring buffer contents.
func (k *Kernel) LogBytes() []byte {
	return k.console.LogBytes()
}

// MapWord places one word into simulated kernel memory.
func (k *Kernel) MapWord(addr, value uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.mem[addr] = value
}

// ValidateRead reports whether an address lies in readable kernel
// memory.
func (k *Kernel) ValidateRead(addr uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, ok := k.mem[addr]

	return ok
}

// Word reads one word of kernel memory; unmapped addresses read zero.
func (k *Kernel) Word(addr uint32) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.mem[addr]
}

// AddSymbol adds one kernel symbol, keeping the table address-sorted.
func (k *Kernel) AddSymbol(addr uint32, name string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.symbols = append(k.symbols, kernel.Symbol{Address: addr, Name: name})
	sort.Slice(k.symbols, func(i, j int) bool {
		return k.symbols[i].Address < k.symbols[j].Address
	})
}

// Symbolicate resolves an address to the nearest preceding symbol.
// Results are cached with a TTL: the stack generator resolves the same
// handful of return addresses on every read.
func (k *Kernel) Symbolicate(addr uint32) (kernel.Symbol, bool) {
	if item := k.symCache.Get(addr); item != nil {
		return item.Value(), true
	}

	k.mu.Lock()
	symbols := k.symbols
	idx := sort.Search(len(symbols), func(i int) bool {
		return symbols[i].Address > addr
	})
	var sym kernel.Symbol
	found := false
	if idx > 0 {
		candidate := symbols[idx-1]
		if addr-candidate.Address < symbolSpan {
			sym = candidate
			found = true
		}
	}
	k.mu.Unlock()

	if !found {
		return kernel.Symbol{}, false
	}
	k.symCache.Set(addr, sym, ttlcache.DefaultTTL)

	return sym, true
}

// Collaborators bundles the kernel as every service the process
// filesystem consumes.
func (k *Kernel) Collaborators() procfs.Collaborators {
	return procfs.Collaborators{
		Processes: k,
		Memory:    k,
		Mounts:    k,
		Inodes:    k,
		Heap:      k,
		CPU:       k,
		Console:   k,
		Symbols:   k,
		Kmem:      k,
	}
}

// String identifies the kernel for logs.
func (k *Kernel) String() string {
	return fmt.Sprintf("ksim(%s)", k.BootID)
}
