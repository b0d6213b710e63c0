package procfs

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: The same key should resolve to the same cached inode
// until its final release evicts it.
func Test_FS_GetInode_CacheIdentity_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	id := makeKey(parentPID, 2, TagPIDVM)

	first := fsys.GetInode(id)
	second := fsys.GetInode(id)
	require.Same(t, first, second)
	require.Equal(t, 1, fsys.CachedInodeCount())

	second.Release()
	require.Equal(t, 1, fsys.CachedInodeCount())

	first.Release()
	require.Equal(t, 0, fsys.CachedInodeCount())

	third := fsys.GetInode(id)
	require.NotSame(t, first, third)
	third.Release()
}

// Expectation: Retain should keep an inode alive across a release.
func Test_Inode_Retain_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	in := fsys.GetInode(fdKey(2, 0))
	in.Retain()

	in.Release()
	require.Equal(t, 1, fsys.CachedInodeCount())

	in.Release()
	require.Equal(t, 0, fsys.CachedInodeCount())
}

// Expectation: The root and sys inodes should bypass the cache.
func Test_FS_GetInode_PersistentBypass_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	root := fsys.GetInode(RootKey)
	require.Same(t, root, fsys.GetInode(RootKey))
	root.Release()
	root.Release()

	var v atomic.Bool
	fsys.AddBoolean("caps_lock_to_ctrl", &v, nil)

	sys := fsys.GetInode(sysKey(0))
	require.NotNil(t, sys)
	require.Same(t, sys, fsys.GetInode(sysKey(0)))
	sys.Release()

	require.Equal(t, 0, fsys.CachedInodeCount())
}

// Expectation: An unregistered sys slot should resolve to no inode.
func Test_FS_GetInode_UnregisteredSysSlot_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	require.Nil(t, fsys.GetInode(sysKey(0)))
}

// Expectation: Metadata should derive the mode from the key kind.
func Test_FS_Metadata_Modes_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	require.Equal(t, os.ModeDir|0o555, fsys.Metadata(RootKey).Mode)
	require.Equal(t, os.ModeDir|0o555, fsys.Metadata(makeKey(parentRoot, 2, TagPID)).Mode)
	require.Equal(t, os.FileMode(0o644), fsys.Metadata(makeKey(parentRoot, 0, TagRootSummary)).Mode)
	require.Equal(t, os.FileMode(0o644), fsys.Metadata(sysKey(0)).Mode)
	require.Equal(t, os.ModeSymlink|0o777, fsys.Metadata(makeKey(parentRoot, 0, TagRootSelf)).Mode)
	require.Equal(t, os.ModeSymlink|0o777, fsys.Metadata(makeKey(parentPID, 2, TagPIDExe)).Mode)
	require.Equal(t, os.ModeSymlink|0o700, fsys.Metadata(fdKey(2, 0)).Mode)
}

// Expectation: Process-related keys should carry the owner's uid/gid.
func Test_FS_Metadata_Ownership_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	md := fsys.Metadata(makeKey(parentPID, 2, TagPIDVM))
	require.Equal(t, 100, md.UID)
	require.Equal(t, 100, md.GID)

	// Vanished process leaves ownership at zero.
	md = fsys.Metadata(makeKey(parentPID, 99, TagPIDVM))
	require.Zero(t, md.UID)
	require.Zero(t, md.GID)

	// Non-process keys are owned by root.
	md = fsys.Metadata(makeKey(parentRoot, 0, TagRootSummary))
	require.Zero(t, md.UID)
	require.Zero(t, md.GID)
}

// Expectation: Timestamps should be pinned to the mount epoch.
func Test_FS_Metadata_Timestamps_Success(t *testing.T) {
	t.Parallel()
	fsys, _ := newTestFS(t)

	md := fsys.Metadata(makeKey(parentRoot, 0, TagRootSummary))
	require.Equal(t, fsys.MountEpoch(), md.ATime)
	require.Equal(t, fsys.MountEpoch(), md.CTime)
	require.Equal(t, fsys.MountEpoch(), md.MTime)
}
