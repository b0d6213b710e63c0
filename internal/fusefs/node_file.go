package fusefs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

var (
	_ fs.Node          = (*fileNode)(nil)
	_ fs.NodeOpener    = (*fileNode)(nil)
	_ fs.NodeSetattrer = (*fileNode)(nil)
	_ fs.NodeForgetter = (*fileNode)(nil)
)

// fileNode is a generated file of the process filesystem. Content does
// not exist until a handle reads it, so every open runs in direct-IO
// mode: the kernel must not clamp reads to a stored size (there is
// none).
type fileNode struct {
	fsys  *FS
	id    procfs.Key
	inode *procfs.Inode

	// writable is true only for registered sys variables.
	writable bool
}

func (f *fileNode) Attr(_ context.Context, a *fuse.Attr) error {
	fillAttr(f.fsys.Core.Metadata(f.id), a)

	return nil
}

func (f *fileNode) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if req.Flags.IsWriteOnly() || req.Flags.IsReadWrite() {
		if !f.writable {
			return nil, f.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
		}
	}

	resp.Flags |= fuse.OpenDirectIO

	return &fileHandle{node: f, session: &procfs.Handle{}}, nil
}

// Setattr accepts size updates only, as a no-op: truncation is how
// shells open the sys variables for writing, and there is nothing to
// truncate. Everything else (mode, owner, times) is rejected.
func (f *fileNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid&^(fuse.SetattrSize|fuse.SetattrHandle|fuse.SetattrLockOwner) != 0 {
		return f.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
	}
	if req.Valid.Size() && !f.writable {
		return f.fsys.countError(toFuseErr(procfs.ErrNotPermitted))
	}

	return f.Attr(ctx, &resp.Attr)
}

func (f *fileNode) Forget() {
	if f.inode != nil {
		f.inode.Release()
	}
}

var (
	_ fs.HandleReader   = (*fileHandle)(nil)
	_ fs.HandleWriter   = (*fileHandle)(nil)
	_ fs.HandleReleaser = (*fileHandle)(nil)
)

// fileHandle is one open session on a generated file. The session
// caches the generated snapshot between partial reads so a reader
// never sees two snapshots interleaved.
type fileHandle struct {
	node    *fileNode
	session *procfs.Handle
}

func (h *fileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fsys := h.node.fsys
	fsys.Metrics.TotalReads.Add(1)

	buf := make([]byte, req.Size)
	n, err := fsys.Core.ReadAt(h.node.id, buf, req.Offset, h.session)
	if err != nil {
		return fsys.countError(toFuseErr(err))
	}

	resp.Data = buf[:n]
	fsys.Metrics.TotalReadBytes.Add(int64(n))

	if fsys.Options.TraceReads.Load() {
		fsys.rbuf.Printf("read %d bytes at %d from key %#x\n", n, req.Offset, uint32(h.node.id))
	}

	return nil
}

func (h *fileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fsys := h.node.fsys
	fsys.Metrics.TotalWrites.Add(1)

	n, err := fsys.Core.WriteAt(h.node.id, req.Data, req.Offset)
	if err != nil {
		return fsys.countError(toFuseErr(err))
	}

	resp.Size = n

	return nil
}

func (h *fileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	h.session.Close()

	return nil
}
