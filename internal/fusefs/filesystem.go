// Package fusefs bridges the process filesystem core to FUSE. It plays
// the role of the generic virtual-filesystem dispatch layer: one node
// type per node kind, all state addressed through packed keys, reads
// served through per-handle generated snapshots.
package fusefs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
)

var (
	_ fs.FS               = (*FS)(nil)
	_ fs.FSInodeGenerator = (*FS)(nil)

	errMissingArgument = errors.New("missing argument")
)

// Options contains all settings for the operation of the filesystem.
// Atomic fields may be toggled at runtime (the demo binary exposes
// TraceReads as a writable sys variable).
type Options struct {
	// StrictCache disables kernel-side caching of directory reads.
	// Generated content changes between opens, so strict is default.
	StrictCache bool

	// TraceReads logs every file read to the ring buffer.
	TraceReads atomic.Bool
}

// DefaultOptions returns a pointer to [Options] with the default values.
func DefaultOptions() *Options {
	return &Options{
		StrictCache: true,
	}
}

// Metrics contains all metrics which are collected within the filesystem.
type Metrics struct {
	// TotalLookups is the amount of name resolutions served.
	TotalLookups atomic.Int64

	// TotalReaddirs is the amount of directory enumerations served.
	TotalReaddirs atomic.Int64

	// TotalReads is the amount of file reads served.
	TotalReads atomic.Int64

	// TotalReadBytes is the amount of generated bytes handed out.
	TotalReadBytes atomic.Int64

	// TotalWrites is the amount of sys variable writes served.
	TotalWrites atomic.Int64

	// TotalErrors is the amount of failed operations.
	TotalErrors atomic.Int64
}

// FS is the FUSE-facing filesystem over one process filesystem core.
type FS struct {
	Core *procfs.FS

	Options *Options
	Metrics *Metrics

	rbuf *logging.RingBuffer
}

// NewFS returns a pointer to a new [FS] over the given core.
func NewFS(core *procfs.FS, opts *Options, rbuf *logging.RingBuffer) (*FS, error) {
	if core == nil {
		return nil, fmt.Errorf("%w: need a procfs core", errMissingArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	return &FS{
		Core:    core,
		Options: opts,
		Metrics: &Metrics{},
		rbuf:    rbuf,
	}, nil
}

// Root returns the entry-point [fs.Node] of the filesystem.
func (fsys *FS) Root() (fs.Node, error) {
	return &dirNode{fsys: fsys, id: fsys.Core.RootID(), inode: fsys.Core.GetInode(fsys.Core.RootID())}, nil
}

// GenerateInode implements [fs.FSInodeGenerator] to prevent dynamic
// inode generation by the fallback method inside of the FUSE library.
//
// Every node's FUSE inode number is its packed key, which is never
// zero; a zero inode reaching the library means key handling broke.
func (fsys *FS) GenerateInode(_ uint64, _ string) uint64 {
	panic("unhandled zero inode triggered an illegal dynamic generation")
}

// countError passes through an error while counting it.
func (fsys *FS) countError(err error) error {
	fsys.Metrics.TotalErrors.Add(1)

	return err
}

// nodeFor wraps a resolved key in the node type its metadata dictates.
// The returned node owns one reference on the key's inode.
func (fsys *FS) nodeFor(id procfs.Key) fs.Node {
	inode := fsys.Core.GetInode(id)

	md := fsys.Core.Metadata(id)
	switch {
	case md.IsDir():
		return &dirNode{fsys: fsys, id: id, inode: inode}
	case md.IsSymlink():
		return &linkNode{fsys: fsys, id: id, inode: inode}
	default:
		return &fileNode{fsys: fsys, id: id, inode: inode, writable: id.IsPersistent()}
	}
}

// WalkFunc gets called on each visited [fs.Node] as part of a [FS.Walk].
// All paths provided to the callback are relative to the filesystem root.
type WalkFunc func(path string, id procfs.Key, node fs.Node, attr fuse.Attr) error

// Walk constructs and walks the [FS] in-memory, calling walkFn on each
// visited [fs.Node]. Symlinked subtrees are not followed.
func (fsys *FS) Walk(ctx context.Context, walkFn WalkFunc) error {
	root, err := fsys.Root()
	if err != nil {
		return fmt.Errorf("failed to get fs root: %w", err)
	}

	return fsys.walkNode(ctx, "/", fsys.Core.RootID(), root, walkFn)
}

func (fsys *FS) walkNode(ctx context.Context, path string, id procfs.Key, node fs.Node, walkFn WalkFunc) error {
	var attr fuse.Attr

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := node.Attr(ctx, &attr); err != nil {
		return fmt.Errorf("attr error at %q: %w", path, err)
	}

	if err := walkFn(path, id, node, attr); err != nil {
		return fmt.Errorf("walkfn error at %q: %w", path, err)
	}

	dir, ok := node.(*dirNode)
	if !ok {
		return nil
	}

	dirents, err := dir.ReadDirAll(ctx)
	if err != nil {
		return fmt.Errorf("readdirall error at %q: %w", path, err)
	}

	for _, de := range dirents {
		childPath := path
		if path != "/" {
			childPath += "/"
		}
		childPath += de.Name

		childNode, err := dir.Lookup(ctx, de.Name)
		if err != nil {
			return fmt.Errorf("lookup error for %q at %q: %w", de.Name, path, err)
		}

		childID, _ := fsys.Core.Lookup(id, de.Name)
		if err := fsys.walkNode(ctx, childPath, childID, childNode, walkFn); err != nil {
			return err
		}
	}

	return nil
}
