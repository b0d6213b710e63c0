package fusefs

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/kernel"
	"github.com/Abraao-Filho/serenity/internal/ksim"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
	"github.com/stretchr/testify/require"
)

// testFS builds a filesystem over a small simulated kernel: an init
// process without bound paths and a shell with two open descriptors.
func testFS(t *testing.T) (*FS, *ksim.Kernel) {
	t.Helper()

	rbuf := logging.NewRingBuffer(64, io.Discard)
	kern := ksim.NewKernel(rbuf)

	kern.Spawn(kernel.ProcessInfo{PID: 1, Name: "init"})
	kern.Spawn(kernel.ProcessInfo{PID: 2, Name: "Shell", UID: 100, GID: 100})
	kern.OpenDescriptor(2, 0, "/dev/tty0")
	kern.OpenDescriptor(2, 2, "/home/anon/.history")
	kern.BindExecutable(2, "/bin/Shell")
	kern.BindWorkingDirectory(2, "/home/anon")
	kern.SetCurrent(2)

	fsys, err := NewFS(procfs.New(kern.Collaborators()), nil, rbuf)
	require.NoError(t, err)

	return fsys, kern
}

// lookupNode resolves a path, one name at a time, from the root.
func lookupNode(t *testing.T, fsys *FS, names ...string) fs.Node {
	t.Helper()

	node, err := fsys.Root()
	require.NoError(t, err)
	for _, name := range names {
		dir, ok := node.(*dirNode)
		require.True(t, ok)
		node, err = dir.Lookup(context.Background(), name)
		require.NoError(t, err)
	}

	return node
}

// Expectation: NewFS should require a core and a ring buffer and fall
// back to default options when given none.
func Test_NewFS_Success(t *testing.T) {
	t.Parallel()
	rbuf := logging.NewRingBuffer(8, io.Discard)
	core := procfs.New(ksim.NewKernel(rbuf).Collaborators())

	fsys, err := NewFS(core, nil, rbuf)
	require.NoError(t, err)
	require.True(t, fsys.Options.StrictCache)
	require.NotNil(t, fsys.Metrics)

	_, err = NewFS(nil, nil, rbuf)
	require.ErrorIs(t, err, errMissingArgument)

	_, err = NewFS(core, nil, nil)
	require.ErrorIs(t, err, errMissingArgument)
}

// Expectation: Root should return a directory node addressing the root
// key.
func Test_FS_Root_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	node, err := fsys.Root()
	require.NoError(t, err)

	dir, ok := node.(*dirNode)
	require.True(t, ok)
	require.Equal(t, fsys.Core.RootID(), dir.id)
}

// Expectation: nodeFor should dispatch on the key's metadata: dirs,
// symlinks and files each get their own node type, and only sys
// variables come out writable.
func Test_FS_nodeFor_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	var flag atomic.Bool
	fsys.Core.AddBoolean("flag", &flag, nil)

	node := lookupNode(t, fsys, "2")
	_, ok := node.(*dirNode)
	require.True(t, ok)

	node = lookupNode(t, fsys, "self")
	_, ok = node.(*linkNode)
	require.True(t, ok)

	node = lookupNode(t, fsys, "summary")
	file, ok := node.(*fileNode)
	require.True(t, ok)
	require.False(t, file.writable)

	node = lookupNode(t, fsys, "sys", "flag")
	file, ok = node.(*fileNode)
	require.True(t, ok)
	require.True(t, file.writable)
}

// Expectation: GenerateInode should never be reached; a zero inode means
// key handling broke upstream.
func Test_FS_GenerateInode_Panics(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	require.Panics(t, func() {
		fsys.GenerateInode(1, "name")
	})
}

// Expectation: Walk should visit the whole tree depth-first with
// root-relative paths and never descend through symlinks.
func Test_FS_Walk_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := testFS(t)

	visited := make(map[string]fuse.Attr)
	err := fsys.Walk(context.Background(), func(path string, _ procfs.Key, _ fs.Node, attr fuse.Attr) error {
		visited[path] = attr

		return nil
	})
	require.NoError(t, err)

	require.Contains(t, visited, "/")
	require.Contains(t, visited, "/summary")
	require.Contains(t, visited, "/sys")
	require.Contains(t, visited, "/self")
	require.Contains(t, visited, "/1")
	require.Contains(t, visited, "/2/vm")
	require.Contains(t, visited, "/2/fd/0")
	require.Contains(t, visited, "/2/fd/2")
	require.NotContains(t, visited, "/2/fd/1")
	require.NotContains(t, visited, "/1/exe")

	require.True(t, visited["/"].Mode.IsDir())
	require.Equal(t, uint32(100), visited["/2/vm"].Uid)
}
