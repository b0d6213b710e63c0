package fusefs

import (
	"context"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"
)

// Expectation: Attr should fill in the [fuse.Attr] with symlink mode
// and the packed key as inode.
func Test_linkNode_Attr_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	link, ok := lookupNode(t, fsys, "self").(*linkNode)
	require.True(t, ok)

	attr := fuse.Attr{}
	err := link.Attr(context.Background(), &attr)
	require.NoError(t, err)

	require.Equal(t, uint64(link.id), attr.Inode)
	require.Equal(t, os.ModeSymlink|0o777, attr.Mode)
}

// Expectation: Readlink should generate the target from live kernel
// state: self points at the current pid, descriptor links at their
// open paths.
func Test_linkNode_Readlink_Success(t *testing.T) {
	t.Parallel()
	fsys, kern := testFS(t)

	link, ok := lookupNode(t, fsys, "self").(*linkNode)
	require.True(t, ok)

	target, err := link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.NoError(t, err)
	require.Equal(t, "2", target)

	kern.SetCurrent(1)
	target, err = link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.NoError(t, err)
	require.Equal(t, "1", target)

	link, ok = lookupNode(t, fsys, "2", "fd", "0").(*linkNode)
	require.True(t, ok)
	target, err = link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.NoError(t, err)
	require.Equal(t, "/dev/tty0", target)

	link, ok = lookupNode(t, fsys, "2", "exe").(*linkNode)
	require.True(t, ok)
	target, err = link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.NoError(t, err)
	require.Equal(t, "/bin/Shell", target)
}

// Expectation: Readlink on a descriptor closed after lookup should
// report ENOENT and count the failure.
func Test_linkNode_Readlink_Closed_Error(t *testing.T) {
	t.Parallel()
	fsys, kern := testFS(t)

	link, ok := lookupNode(t, fsys, "2", "fd", "0").(*linkNode)
	require.True(t, ok)

	kern.CloseDescriptor(2, 0)

	_, err := link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.Equal(t, fuse.ToErrno(syscall.ENOENT), err)
	require.Equal(t, int64(1), fsys.Metrics.TotalErrors.Load())
}

// Expectation: Forget should release the node's cache reference.
func Test_linkNode_Forget_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	link, ok := lookupNode(t, fsys, "self").(*linkNode)
	require.True(t, ok)
	require.Equal(t, 1, fsys.Core.CachedInodeCount())

	link.Forget()
	require.Zero(t, fsys.Core.CachedInodeCount())
}
