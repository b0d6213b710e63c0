package fusefs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

var (
	_ fs.Node           = (*linkNode)(nil)
	_ fs.NodeReadlinker = (*linkNode)(nil)
	_ fs.NodeForgetter  = (*linkNode)(nil)
)

// linkNode is a symlink of the process filesystem: the root self link,
// a process's exe/cwd link, or a per-descriptor link. The target is
// generated at readlink time from live kernel state.
type linkNode struct {
	fsys  *FS
	id    procfs.Key
	inode *procfs.Inode
}

func (l *linkNode) Attr(_ context.Context, a *fuse.Attr) error {
	fillAttr(l.fsys.Core.Metadata(l.id), a)

	return nil
}

func (l *linkNode) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	target, err := l.fsys.Core.ReadLink(l.id)
	if err != nil {
		return "", l.fsys.countError(toFuseErr(err))
	}

	return target, nil
}

func (l *linkNode) Forget() {
	if l.inode != nil {
		l.inode.Release()
	}
}
