package fusefs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

var (
	_ fs.Node               = (*dirNode)(nil)
	_ fs.NodeOpener         = (*dirNode)(nil)
	_ fs.HandleReadDirAller = (*dirNode)(nil)
	_ fs.NodeStringLookuper = (*dirNode)(nil)
	_ fs.NodeForgetter      = (*dirNode)(nil)
)

// dirNode is a directory of the process filesystem: the root, the sys
// directory, a per-process directory or a descriptor directory. Which
// one is entirely encoded in the key.
type dirNode struct {
	fsys  *FS
	id    procfs.Key
	inode *procfs.Inode
}

func (d *dirNode) Attr(_ context.Context, a *fuse.Attr) error {
	fillAttr(d.fsys.Core.Metadata(d.id), a)

	return nil
}

func (d *dirNode) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if !d.fsys.Options.StrictCache {
		resp.Flags |= fuse.OpenKeepCache | fuse.OpenCacheDir
	}

	return d, nil
}

func (d *dirNode) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	d.fsys.Metrics.TotalReaddirs.Add(1)

	resp := make([]fuse.Dirent, 0)
	err := d.fsys.Core.Traverse(d.id, func(de procfs.Dirent) bool {
		if de.Name == "." || de.Name == ".." {
			return true
		}
		resp = append(resp, fuse.Dirent{
			Name:  de.Name,
			Type:  direntType(de.Type),
			Inode: uint64(de.ID),
		})

		return true
	})
	if err != nil {
		return nil, d.fsys.countError(toFuseErr(err))
	}

	return resp, nil
}

func (d *dirNode) Lookup(_ context.Context, name string) (fs.Node, error) {
	d.fsys.Metrics.TotalLookups.Add(1)

	id, ok := d.fsys.Core.Lookup(d.id, name)
	if !ok {
		return nil, toFuseErr(procfs.ErrNotFound)
	}

	return d.fsys.nodeFor(id), nil
}

func (d *dirNode) Forget() {
	if d.inode != nil {
		d.inode.Release()
	}
}

// Directory mutation is rejected wholesale: the tree is synthesized,
// not stored.

var (
	_ fs.NodeMkdirer   = (*dirNode)(nil)
	_ fs.NodeCreater   = (*dirNode)(nil)
	_ fs.NodeRemover   = (*dirNode)(nil)
	_ fs.NodeRenamer   = (*dirNode)(nil)
	_ fs.NodeLinker    = (*dirNode)(nil)
	_ fs.NodeSymlinker = (*dirNode)(nil)
)

func (d *dirNode) Mkdir(_ context.Context, _ *fuse.MkdirRequest) (fs.Node, error) {
	return nil, d.fsys.countError(toFuseErr(procfs.ErrReadOnly))
}

func (d *dirNode) Create(_ context.Context, _ *fuse.CreateRequest, _ *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	return nil, nil, d.fsys.countError(toFuseErr(procfs.ErrReadOnly))
}

func (d *dirNode) Remove(_ context.Context, _ *fuse.RemoveRequest) error {
	return d.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
}

func (d *dirNode) Rename(_ context.Context, _ *fuse.RenameRequest, _ fs.Node) error {
	return d.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
}

func (d *dirNode) Link(_ context.Context, _ *fuse.LinkRequest, _ fs.Node) (fs.Node, error) {
	return nil, d.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
}

func (d *dirNode) Symlink(_ context.Context, _ *fuse.SymlinkRequest) (fs.Node, error) {
	return nil, d.fsys.countError(toFuseErr(procfs.ErrReadOnly))
}
