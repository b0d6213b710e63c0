package procfs

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/Abraao-Filho/serenity/internal/kernel"
)

// Generators produce point-in-time byte snapshots for one key. They are
// write-once-per-call: unchanged kernel state yields byte-identical
// output. A vanished process or descriptor yields nil, never an error.

func genPIDFDs(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}
	if proc.OpenDescriptorCount() == 0 {
		return nil
	}

	var b strings.Builder
	for fd := 0; fd < proc.MaxDescriptors(); fd++ {
		desc, ok := proc.Descriptor(fd)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%3d %s\n", fd, desc.Path)
	}

	return []byte(b.String())
}

func genPIDFDEntry(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}

	desc, ok := proc.Descriptor(id.FD())
	if !ok {
		return nil
	}

	return []byte(desc.Path)
}

func genPIDVM(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}

	var b strings.Builder
	b.WriteString("BEGIN       END         SIZE      COMMIT     NAME\n")
	for i := range proc.Regions {
		region := &proc.Regions[i]
		fmt.Fprintf(&b, "%x -- %x    %x  %x   %s\n",
			region.Base,
			region.End(),
			region.Size,
			region.AmountResident,
			region.Name)
	}

	return []byte(b.String())
}

func genPIDVMO(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}

	var b strings.Builder
	b.WriteString("BEGIN       END         SIZE        NAME\n")
	for i := range proc.Regions {
		region := &proc.Regions[i]
		fmt.Fprintf(&b, "%x -- %x    %x    %s\n",
			region.Base,
			region.End(),
			region.Size,
			region.Name)

		vmo := region.VMO
		if vmo == nil {
			continue
		}
		fmt.Fprintf(&b, "VMO: %s \"%s\" @ %x(%d)\n",
			vmoKindString(vmo),
			vmo.Name,
			vmo.ID,
			vmo.RefCount)
		for page := 0; page < vmo.PageCount(); page++ {
			var paddr uint32
			var refs int
			if pp := vmo.Pages[page]; pp != nil {
				paddr = pp.PAddr
				refs = pp.RefCount
			}
			cow := ""
			if page < len(region.COW) && region.COW[page] {
				cow = "!"
			}
			fmt.Fprintf(&b, "P%x%s(%d) ", paddr, cow, refs)
		}
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

func vmoKindString(vmo *kernel.VMObject) string {
	if vmo.Anonymous {
		return "anonymous"
	}

	return "file-backed"
}

func genPIDStack(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}

	type recognized struct {
		address uint32
		symbol  kernel.Symbol
	}

	var symbols []recognized
	if sym, ok := fsys.kern.Symbols.Symbolicate(proc.Registers.EIP); ok {
		symbols = append(symbols, recognized{proc.Registers.EIP, sym})
	}

	// Walk the saved frame pointer chain; each candidate frame must
	// lie in readable kernel memory or the walk stops there.
	const wordSize = 4
	for frame := proc.Registers.EBP; fsys.kern.Kmem.ValidateRead(frame); frame = fsys.kern.Kmem.Word(frame) {
		retaddr := fsys.kern.Kmem.Word(frame + wordSize)
		if sym, ok := fsys.kern.Symbols.Symbolicate(retaddr); ok {
			symbols = append(symbols, recognized{retaddr, sym})
		}
	}

	var b strings.Builder
	for _, entry := range symbols {
		offset := entry.address - entry.symbol.Address
		fmt.Fprintf(&b, "%08x  %s +%d\n", entry.address, entry.symbol.Name, offset)
	}

	return []byte(b.String())
}

func genPIDRegs(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok {
		return nil
	}

	regs := proc.Registers

	var b strings.Builder
	fmt.Fprintf(&b, "eax: %x\n", regs.EAX)
	fmt.Fprintf(&b, "ebx: %x\n", regs.EBX)
	fmt.Fprintf(&b, "ecx: %x\n", regs.ECX)
	fmt.Fprintf(&b, "edx: %x\n", regs.EDX)
	fmt.Fprintf(&b, "esi: %x\n", regs.ESI)
	fmt.Fprintf(&b, "edi: %x\n", regs.EDI)
	fmt.Fprintf(&b, "ebp: %x\n", regs.EBP)
	fmt.Fprintf(&b, "cr3: %x\n", regs.CR3)
	fmt.Fprintf(&b, "flg: %x\n", regs.EFlags)
	fmt.Fprintf(&b, "sp:  %04x:%x\n", regs.SS, regs.ESP)
	fmt.Fprintf(&b, "pc:  %04x:%x\n", regs.CS, regs.EIP)

	return []byte(b.String())
}

func genPIDExe(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok || proc.ExecutablePath == "" {
		return nil
	}

	return []byte(proc.ExecutablePath)
}

func genPIDCwd(fsys *FS, id Key) []byte {
	proc, ok := fsys.kern.Processes.Inspect(id.PID())
	if !ok || proc.WorkingDirectory == "" {
		return nil
	}

	return []byte(proc.WorkingDirectory)
}

func genSelf(fsys *FS, _ Key) []byte {
	return []byte(strconv.Itoa(fsys.kern.Processes.CurrentPID()))
}

func genMM(fsys *FS, _ Key) []byte {
	vmos := fsys.kern.Memory.VMObjects()

	var b strings.Builder
	for i := range vmos {
		vmo := &vmos[i]
		kind := "file"
		if vmo.Anonymous {
			kind = "anon"
		}
		fmt.Fprintf(&b, "VMO: %x %s(%d): p:%4d %s\n",
			vmo.ID,
			kind,
			vmo.RefCount,
			vmo.PageCount(),
			vmo.Name)
	}
	fmt.Fprintf(&b, "VMO count: %d\n", len(vmos))
	fmt.Fprintf(&b, "Free physical pages: %d\n", fsys.kern.Memory.FreePageCount())
	fmt.Fprintf(&b, "Free supervisor physical pages: %d\n", fsys.kern.Memory.FreeSupervisorPageCount())

	return []byte(b.String())
}

func genDmesg(fsys *FS, _ Key) []byte {
	return fsys.kern.Console.LogBytes()
}

func genMounts(fsys *FS, _ Key) []byte {
	var b strings.Builder
	for _, mount := range fsys.kern.Mounts.Mounts() {
		fmt.Fprintf(&b, "%s @ ", mount.FSClass)
		if !mount.HostValid {
			b.WriteString("/")
		} else {
			fmt.Fprintf(&b, "%d:%d %s", mount.HostFSID, mount.HostIndex, mount.HostPath)
		}
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

func genCPUInfo(fsys *FS, _ Key) []byte {
	info := fsys.kern.CPU.Identify()

	// Displayed family and model fold in the extended fields the way
	// the identification manuals prescribe for families 6 and 15.
	displayFamily := info.Family
	displayModel := info.Model
	switch info.Family {
	case 15:
		displayFamily = info.Family + info.ExtendedFamily
		displayModel = info.Model + (info.ExtendedModel << 4)
	case 6:
		displayModel = info.Model + (info.ExtendedModel << 4)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "cpuid:     %s\n", info.VendorID)
	fmt.Fprintf(&b, "family:    %d\n", displayFamily)
	fmt.Fprintf(&b, "model:     %d\n", displayModel)
	fmt.Fprintf(&b, "stepping:  %d\n", info.Stepping)
	fmt.Fprintf(&b, "type:      %d\n", info.Type)
	fmt.Fprintf(&b, "brandstr:  \"%s\"\n", info.Brand)

	return []byte(b.String())
}

func genKmalloc(fsys *FS, _ Key) []byte {
	stats := fsys.kern.Heap.HeapStats()

	var b strings.Builder
	fmt.Fprintf(&b, "eternal:      %d\n", stats.EternalBytes)
	fmt.Fprintf(&b, "allocated:    %d\n", stats.AllocatedBytes)
	fmt.Fprintf(&b, "free:         %d\n", stats.FreeBytes)

	return []byte(b.String())
}

func genSummary(fsys *FS, _ Key) []byte {
	var b strings.Builder
	b.WriteString("PID TPG PGP SID  OWNER  STATE      PPID NSCHED     FDS  TTY  NAME\n")

	line := func(proc *kernel.ProcessInfo) {
		tty := "n/a"
		if proc.TTYName != "" {
			tty = path.Base(proc.TTYName)
		}
		fmt.Fprintf(&b, "%3d %3d %3d %3d  %4d   %8s   %3d  %9d  %3d  %4s  %s\n",
			proc.PID,
			proc.TTYPGID,
			proc.PGID,
			proc.SID,
			proc.UID,
			proc.State,
			proc.PPID,
			proc.TimesScheduled,
			proc.OpenDescriptorCount(),
			tty,
			proc.Name)
	}

	line(fsys.kern.Processes.Colonel())
	for _, pid := range fsys.kern.Processes.PIDs() {
		if proc, ok := fsys.kern.Processes.Inspect(pid); ok {
			line(proc)
		}
	}

	return []byte(b.String())
}

func genAll(fsys *FS, _ Key) []byte {
	var b strings.Builder

	line := func(proc *kernel.ProcessInfo) {
		tty := "notty"
		if proc.TTYName != "" {
			tty = proc.TTYName
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%d,%s,%d,%d,%s,%s,%d,%d,%d\n",
			proc.PID,
			proc.TimesScheduled,
			proc.TTYPGID,
			proc.PGID,
			proc.SID,
			proc.UID,
			proc.GID,
			proc.State,
			proc.PPID,
			proc.OpenDescriptorCount(),
			tty,
			proc.Name,
			proc.AmountVirtual,
			proc.AmountResident,
			proc.AmountShared)
	}

	line(fsys.kern.Processes.Colonel())
	for _, pid := range fsys.kern.Processes.PIDs() {
		if proc, ok := fsys.kern.Processes.Inspect(pid); ok {
			line(proc)
		}
	}

	return []byte(b.String())
}

func genInodes(fsys *FS, _ Key) []byte {
	var b strings.Builder
	for _, inode := range fsys.kern.Inodes.Inodes() {
		fmt.Fprintf(&b, "Inode{K%x} %02d:%08d (%d) %s\n",
			inode.Handle,
			inode.FSID,
			inode.Index,
			inode.RefCount,
			inode.Path)
	}

	return []byte(b.String())
}
