package fusefs

import (
	"errors"
	"syscall"

	"bazil.org/fuse"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

// toFuseErr maps core filesystem errors onto FUSE errnos.
func toFuseErr(err error) error {
	switch {
	case errors.Is(err, procfs.ErrNotFound):
		return fuse.ToErrno(syscall.ENOENT)

	case errors.Is(err, procfs.ErrNotDirectory):
		return fuse.ToErrno(syscall.ENOTDIR)

	case errors.Is(err, procfs.ErrNotPermitted):
		return fuse.ToErrno(syscall.EPERM)

	case errors.Is(err, procfs.ErrReadOnly):
		return fuse.ToErrno(syscall.EROFS)

	case errors.Is(err, procfs.ErrUnsupported):
		return fuse.ToErrno(syscall.ENOSYS)

	default:
		return fuse.ToErrno(syscall.EIO)
	}
}

// direntType maps a core dirent classification to the FUSE one.
func direntType(t procfs.DirentType) fuse.DirentType {
	switch t {
	case procfs.DirentDir:
		return fuse.DT_Dir
	case procfs.DirentLink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// fillAttr translates core metadata into a [fuse.Attr]. The FUSE inode
// number is the packed key itself.
func fillAttr(md procfs.Metadata, a *fuse.Attr) {
	a.Inode = uint64(md.ID)
	a.Mode = md.Mode
	a.Uid = uint32(md.UID)
	a.Gid = uint32(md.GID)

	a.Atime = md.ATime
	a.Ctime = md.CTime
	a.Mtime = md.MTime
}
