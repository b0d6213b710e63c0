package procfs

// ParentDir classifies which enumeration space the rest of a [Key]
// belongs to. It occupies four bits of the packed key.
type ParentDir uint8

const (
	parentAbstractRoot ParentDir = iota
	parentRoot
	parentRootSys
	parentPID
	parentPIDFD
)

// FileTag identifies one well-known file type within a directory kind.
// For sys-variable keys the tag field holds the slot index instead, and
// for per-descriptor keys it holds tagMaxStatic + the descriptor number.
type FileTag uint8

const (
	tagInvalid FileTag = iota

	// TagRoot is the filesystem root directory.
	TagRoot

	tagRootStart
	TagRootMM
	TagRootMounts
	TagRootKmalloc
	TagRootAll
	TagRootSummary
	TagRootCPUInfo
	TagRootInodes
	TagRootDmesg
	TagRootSelf // symlink
	TagRootSys  // directory
	tagRootEnd

	// TagPID is a per-process directory under the root.
	TagPID

	tagPIDStart
	TagPIDVM
	TagPIDVMO
	TagPIDStack
	TagPIDRegs
	TagPIDFDs
	TagPIDExe // symlink
	TagPIDCwd // symlink
	TagPIDFD  // directory
	tagPIDEnd

	tagMaxStatic
)

// MaxDescriptors is the highest addressable descriptor count. The tag
// field is eight bits wide and per-descriptor keys encode the tag as
// tagMaxStatic plus the descriptor number, so the codec can address
// descriptors 0 through MaxDescriptors-1.
const MaxDescriptors = 256 - int(tagMaxStatic)

const (
	dirShift = 12
	pidShift = 16

	dirFieldMask = 0xf
	tagFieldMask = 0xff
)

// Key packs the full identity of one filesystem node into a fixed-width
// integer: the parent directory kind in bits 12-15, the owning process
// id in bits 16-31 and the tag in bits 0-7. Keys are produced only by
// this package; decoding a key from any other source is a contract
// violation.
type Key uint32

// RootKey is the identifier of the filesystem root directory.
const RootKey = Key(TagRoot)

func makeKey(dir ParentDir, pid int, tag FileTag) Key {
	return Key(uint32(dir)<<dirShift | uint32(uint16(pid))<<pidShift | uint32(tag))
}

func fdKey(pid, fd int) Key {
	return Key(uint32(parentPIDFD)<<dirShift | uint32(uint16(pid))<<pidShift | uint32(tagMaxStatic)+uint32(fd))
}

func sysKey(index int) Key {
	if index < 0 || index > int(tagFieldMask) {
		panic("procfs: sys variable slot out of key range")
	}

	return Key(uint32(parentRootSys)<<dirShift | uint32(index))
}

// Dir returns the parent directory kind field of the key.
func (k Key) Dir() ParentDir {
	return ParentDir((k >> dirShift) & dirFieldMask)
}

// PID returns the owning process id field of the key; zero for
// root-level entries.
func (k Key) PID() int {
	return int(k >> pidShift)
}

// Tag returns the tag field of the key.
func (k Key) Tag() FileTag {
	return FileTag(k & tagFieldMask)
}

// FD returns the descriptor number of a per-descriptor key.
func (k Key) FD() int {
	if k.Dir() != parentPIDFD {
		panic("procfs: FD called on a non-descriptor key")
	}

	return int(k&tagFieldMask) - int(tagMaxStatic)
}

// SysIndex returns the sys-variable slot index of a sys key.
func (k Key) SysIndex() int {
	if k.Dir() != parentRootSys {
		panic("procfs: SysIndex called on a non-sys key")
	}

	return int(k & tagFieldMask)
}

// Parent derives the identifier of the directory containing this key.
// The derivation is structural: it follows from the key's own kind and
// needs no lookup.
func (k Key) Parent() Key {
	switch k.Dir() {
	case parentAbstractRoot, parentRoot:
		return RootKey
	case parentRootSys:
		return Key(TagRootSys)
	case parentPID:
		return makeKey(parentRoot, k.PID(), TagPID)
	case parentPIDFD:
		return makeKey(parentPID, k.PID(), TagPIDFD)
	}

	panic("procfs: key with out-of-domain parent directory kind")
}

// IsDirectory reports whether the key addresses a directory.
func (k Key) IsDirectory() bool {
	if k.Dir() == parentRootSys {
		// Sys-variable slots share the tag field value range with
		// static tags but are always regular files.
		return false
	}

	switch k.Tag() {
	case TagRoot, TagRootSys, TagPID, TagPIDFD:
		return true
	default:
		return false
	}
}

// IsPersistent reports whether the key addresses a persistent inode,
// which is true only for sys-variable entries.
func (k Key) IsPersistent() bool {
	return k.Dir() == parentRootSys
}

// isProcessRelated reports whether the key belongs to some process's
// subtree (including the process directory itself).
func (k Key) isProcessRelated() bool {
	if k.Dir() == parentRootSys {
		return false
	}
	if k.Tag() == TagPID {
		return true
	}

	switch k.Dir() {
	case parentPID, parentPIDFD:
		return true
	default:
		return false
	}
}

func isRootRange(tag FileTag) bool {
	return tag > tagRootStart && tag < tagRootEnd
}

func isPIDRange(tag FileTag) bool {
	return tag > tagPIDStart && tag < tagPIDEnd
}
