package procfs

import (
	"os"
	"sync/atomic"
	"time"
)

const (
	fileMode   = os.FileMode(0o644)
	dirMode    = os.ModeDir | 0o555
	linkMode   = os.ModeSymlink | 0o777
	fdLinkMode = os.ModeSymlink | 0o700
)

// payloadKind discriminates the custom inode payload variants. Only
// boolean sys variables exist today; the enumeration leaves room for
// further variants without open-ended dispatch.
type payloadKind uint8

const (
	payloadNone payloadKind = iota
	payloadBoolVariable
)

// payload is the custom data attached to persistent inodes.
type payload struct {
	kind     payloadKind
	boolVal  *atomic.Bool
	onChange func()
}

// Inode is one addressable node of the filesystem. Ephemeral inodes are
// reference counted and evicted from the directory cache by their final
// Release; persistent inodes (sys variables, the root) are owned
// elsewhere and never evicted.
type Inode struct {
	fsys *FS
	id   Key

	// refs is guarded by fsys.mu for ephemeral inodes.
	refs int

	custom *payload
}

// ID returns the inode's identifier.
func (in *Inode) ID() Key {
	return in.id
}

// GetInode resolves a key to its live inode. The root and sys-variable
// keys return their pre-existing owned inodes; all other keys go
// through the ephemeral directory cache, allocating on first reference.
// The returned inode carries a reference the caller must Release. A nil
// result means a sys key addressing an unregistered slot.
func (fsys *FS) GetInode(id Key) *Inode {
	if id == RootKey {
		return fsys.root
	}

	if id.IsPersistent() {
		fsys.sysMu.RLock()
		defer fsys.sysMu.RUnlock()

		index := id.SysIndex()
		if index >= len(fsys.sys) {
			return nil
		}

		return fsys.sys[index].inode
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if in, ok := fsys.inodes[id]; ok {
		in.refs++

		return in
	}

	in := &Inode{fsys: fsys, id: id, refs: 1}
	fsys.inodes[id] = in

	return in
}

// Retain adds a reference to an ephemeral inode. Persistent inodes and
// the root ignore reference counting.
func (in *Inode) Retain() {
	if in.id.IsPersistent() || in.id == RootKey {
		return
	}

	in.fsys.mu.Lock()
	defer in.fsys.mu.Unlock()

	in.refs++
}

// Release drops one reference; the final release removes the inode
// from the directory cache under the same lock.
func (in *Inode) Release() {
	if in.id.IsPersistent() || in.id == RootKey {
		return
	}

	in.fsys.mu.Lock()
	defer in.fsys.mu.Unlock()

	in.refs--
	if in.refs <= 0 {
		delete(in.fsys.inodes, in.id)
	}
}

// CachedInodeCount reports the ephemeral inode cache population.
func (fsys *FS) CachedInodeCount() int {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	return len(fsys.inodes)
}

// Metadata is the derived node metadata. Timestamps are fixed to the
// filesystem mount epoch; no mode is derived from content.
type Metadata struct {
	ID   Key
	Mode os.FileMode
	UID  int
	GID  int

	ATime time.Time
	CTime time.Time
	MTime time.Time
}

// IsDir reports whether the metadata describes a directory.
func (m Metadata) IsDir() bool {
	return m.Mode.IsDir()
}

// IsSymlink reports whether the metadata describes a symlink.
func (m Metadata) IsSymlink() bool {
	return m.Mode&os.ModeSymlink != 0
}

// Metadata derives the metadata for a key. Process-related keys carry
// the owning process's uid/gid; a vanished process leaves them zero.
func (fsys *FS) Metadata(id Key) Metadata {
	md := Metadata{
		ID:    id,
		ATime: fsys.mountEpoch,
		CTime: fsys.mountEpoch,
		MTime: fsys.mountEpoch,
	}

	if id.isProcessRelated() {
		if proc, ok := fsys.kern.Processes.Inspect(id.PID()); ok {
			md.UID = proc.UID
			md.GID = proc.GID
		}
	}

	if id.Dir() == parentPIDFD {
		md.Mode = fdLinkMode

		return md
	}
	if id.Dir() == parentRootSys {
		md.Mode = fileMode

		return md
	}

	switch id.Tag() {
	case TagRootSelf, TagPIDCwd, TagPIDExe:
		md.Mode = linkMode
	case TagRoot, TagRootSys, TagPID, TagPIDFD:
		md.Mode = dirMode
	default:
		md.Mode = fileMode
	}

	return md
}
