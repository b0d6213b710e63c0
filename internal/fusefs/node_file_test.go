package fusefs

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"
)

// openFile opens a node resolved by path as a file handle.
func openFile(t *testing.T, fsys *FS, flags fuse.OpenFlags, names ...string) *fileHandle {
	t.Helper()

	file, ok := lookupNode(t, fsys, names...).(*fileNode)
	require.True(t, ok)

	resp := &fuse.OpenResponse{}
	handle, err := file.Open(context.Background(), &fuse.OpenRequest{Flags: flags}, resp)
	require.NoError(t, err)
	require.NotZero(t, resp.Flags&fuse.OpenDirectIO)

	fh, ok := handle.(*fileHandle)
	require.True(t, ok)

	return fh
}

// Expectation: Attr should fill in the [fuse.Attr] with the key-derived
// metadata of a generated file.
func Test_fileNode_Attr_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	file, ok := lookupNode(t, fsys, "2", "vm").(*fileNode)
	require.True(t, ok)

	attr := fuse.Attr{}
	err := file.Attr(context.Background(), &attr)
	require.NoError(t, err)

	require.Equal(t, uint64(file.id), attr.Inode)
	require.Equal(t, os.FileMode(0o644), attr.Mode)
	require.Equal(t, uint32(100), attr.Uid)
}

// Expectation: Open should reject write access to generated files and
// grant it to sys variables.
func Test_fileNode_Open_WriteAccess(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	var flag atomic.Bool
	fsys.Core.AddBoolean("flag", &flag, nil)

	file, ok := lookupNode(t, fsys, "summary").(*fileNode)
	require.True(t, ok)

	_, err := file.Open(context.Background(), &fuse.OpenRequest{Flags: fuse.OpenWriteOnly}, &fuse.OpenResponse{})
	require.Equal(t, fuse.ToErrno(syscall.EPERM), err)
	require.Equal(t, int64(1), fsys.Metrics.TotalErrors.Load())

	openFile(t, fsys, fuse.OpenReadWrite, "sys", "flag")
}

// Expectation: Read should hand out generated content and account the
// bytes served.
func Test_fileHandle_Read_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	fh := openFile(t, fsys, fuse.OpenReadOnly, "2", "fds")

	resp := &fuse.ReadResponse{}
	err := fh.Read(context.Background(), &fuse.ReadRequest{Size: 4096}, resp)
	require.NoError(t, err)
	require.Equal(t, "  0 /dev/tty0\n  2 /home/anon/.history\n", string(resp.Data))

	require.Equal(t, int64(1), fsys.Metrics.TotalReads.Load())
	require.Equal(t, int64(len(resp.Data)), fsys.Metrics.TotalReadBytes.Load())
}

// Expectation: A handle should pin one content snapshot across partial
// reads, so a reader never sees two generations spliced together.
func Test_fileHandle_Read_SnapshotPinned_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	var flag atomic.Bool
	fsys.Core.AddBoolean("flag", &flag, nil)

	fh := openFile(t, fsys, fuse.OpenReadOnly, "sys", "flag")

	resp := &fuse.ReadResponse{}
	err := fh.Read(context.Background(), &fuse.ReadRequest{Size: 1}, resp)
	require.NoError(t, err)
	require.Equal(t, "0", string(resp.Data))

	// The value flips mid-session; the open handle keeps serving the
	// snapshot it started with.
	flag.Store(true)

	resp = &fuse.ReadResponse{}
	err = fh.Read(context.Background(), &fuse.ReadRequest{Size: 8, Offset: 1}, resp)
	require.NoError(t, err)
	require.Equal(t, "\n", string(resp.Data))

	fh = openFile(t, fsys, fuse.OpenReadOnly, "sys", "flag")
	resp = &fuse.ReadResponse{}
	err = fh.Read(context.Background(), &fuse.ReadRequest{Size: 8}, resp)
	require.NoError(t, err)
	require.Equal(t, "1\n", string(resp.Data))
}

// Expectation: Reading past the end of the snapshot should return no
// bytes and no error.
func Test_fileHandle_Read_PastEnd_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	fh := openFile(t, fsys, fuse.OpenReadOnly, "cpuinfo")

	resp := &fuse.ReadResponse{}
	err := fh.Read(context.Background(), &fuse.ReadRequest{Size: 4096, Offset: 1 << 20}, resp)
	require.NoError(t, err)
	require.Empty(t, resp.Data)
}

// Expectation: Read tracing should log each served read to the ring
// buffer once enabled.
func Test_fileHandle_Read_Trace_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)
	fsys.Options.TraceReads.Store(true)

	fh := openFile(t, fsys, fuse.OpenReadOnly, "summary")

	resp := &fuse.ReadResponse{}
	err := fh.Read(context.Background(), &fuse.ReadRequest{Size: 4096}, resp)
	require.NoError(t, err)

	found := false
	for _, line := range fsys.rbuf.Lines() {
		if strings.Contains(line, "read ") && strings.Contains(line, "bytes") {
			found = true
		}
	}
	require.True(t, found)
}

// Expectation: Write should update a sys variable through its handle
// and reject writes everywhere else.
func Test_fileHandle_Write(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	var flag atomic.Bool
	fsys.Core.AddBoolean("flag", &flag, nil)

	fh := openFile(t, fsys, fuse.OpenReadWrite, "sys", "flag")

	resp := &fuse.WriteResponse{}
	err := fh.Write(context.Background(), &fuse.WriteRequest{Data: []byte("1\n")}, resp)
	require.NoError(t, err)
	require.Equal(t, 2, resp.Size)
	require.True(t, flag.Load())
	require.Equal(t, int64(1), fsys.Metrics.TotalWrites.Load())

	fh = openFile(t, fsys, fuse.OpenReadOnly, "dmesg")
	err = fh.Write(context.Background(), &fuse.WriteRequest{Data: []byte("1")}, &fuse.WriteResponse{})
	require.Equal(t, fuse.ToErrno(syscall.EPERM), err)
	require.Equal(t, int64(1), fsys.Metrics.TotalErrors.Load())
}

// Expectation: Setattr should accept a size-only truncation of a sys
// variable as a no-op and reject every other attribute change.
func Test_fileNode_Setattr(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	var flag atomic.Bool
	fsys.Core.AddBoolean("flag", &flag, nil)

	file, ok := lookupNode(t, fsys, "sys", "flag").(*fileNode)
	require.True(t, ok)

	resp := &fuse.SetattrResponse{}
	err := file.Setattr(context.Background(), &fuse.SetattrRequest{Valid: fuse.SetattrSize}, resp)
	require.NoError(t, err)
	require.Equal(t, uint64(file.id), resp.Attr.Inode)

	err = file.Setattr(context.Background(), &fuse.SetattrRequest{Valid: fuse.SetattrMode}, &fuse.SetattrResponse{})
	require.Equal(t, fuse.ToErrno(syscall.EPERM), err)

	plain, ok := lookupNode(t, fsys, "summary").(*fileNode)
	require.True(t, ok)
	err = plain.Setattr(context.Background(), &fuse.SetattrRequest{Valid: fuse.SetattrSize}, &fuse.SetattrResponse{})
	require.Equal(t, fuse.ToErrno(syscall.EPERM), err)
}

// Expectation: Release should close the read session so a reused handle
// would regenerate.
func Test_fileHandle_Release_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	fh := openFile(t, fsys, fuse.OpenReadOnly, "summary")

	resp := &fuse.ReadResponse{}
	err := fh.Read(context.Background(), &fuse.ReadRequest{Size: 1}, resp)
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)

	err = fh.Release(context.Background(), &fuse.ReleaseRequest{})
	require.NoError(t, err)
}

// Expectation: Forget should release the node's cache reference.
func Test_fileNode_Forget_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	file, ok := lookupNode(t, fsys, "dmesg").(*fileNode)
	require.True(t, ok)
	require.Equal(t, 1, fsys.Core.CachedInodeCount())

	file.Forget()
	require.Zero(t, fsys.Core.CachedInodeCount())
}
