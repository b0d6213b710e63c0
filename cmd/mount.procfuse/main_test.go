package main

import (
	"slices"
	"testing"
)

// Expectation: The expected command should be built from the given arguments.
func Test_MountHelper_CommandLine_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "basic mount no options",
			args: []string{"mount.procfuse", "proc", "/mnt/b"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "bare flag option",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "trace"},
			want: []string{"procfuse", "/mnt/b", "--trace"},
		},
		{
			name: "key=value option",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "webaddr=:8000"},
			want: []string{"procfuse", "/mnt/b", "--webaddr", ":8000"},
		},
		{
			name: "mixed bare flag and key=value",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "trace,webaddr=:8000"},
			want: []string{"procfuse", "/mnt/b", "--trace", "--webaddr", ":8000"},
		},
		{
			name: "options with prefix and dashes",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "--trace,--relaxed-cache"},
			want: []string{"procfuse", "/mnt/b", "--relaxed-cache", "--trace"},
		},
		{
			name: "from basename mount.fuse.procfuse",
			args: []string{"mount.fuse.procfuse", "proc", "/mnt/b"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "from basename mount.fuseblk.ntfs",
			args: []string{"mount.fuseblk.ntfs", "proc", "/mnt/b"},
			want: []string{"ntfs", "/mnt/b"},
		},
		{
			name: "derived from source# syntax",
			args: []string{"mount.fuseblk.", "procfuse#proc", "/mnt/b"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "explicit -t fuse.procfuse",
			args: []string{"mount", "proc", "/mnt/b", "-t", "fuse.procfuse"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "explicit -t without fuse prefix",
			args: []string{"mount", "proc", "/mnt/b", "-t", "procfuse"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "options passed with -o",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "-o", "trace,webaddr=:8080"},
			want: []string{"procfuse", "/mnt/b", "--trace", "--webaddr", ":8080"},
		},
		{
			name: "multiple -o flags merged",
			args: []string{
				"mount.procfuse", "proc", "/mnt/b",
				"-o", "trace", "-o", "webaddr=:7000",
			},
			want: []string{"procfuse", "/mnt/b", "--trace", "--webaddr", ":7000"},
		},
		{
			name: "ignore -v flag",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "-v", "trace"},
			want: []string{"procfuse", "/mnt/b", "--trace"},
		},
		{
			name: "underscore converted to dash in bare option",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "relaxed_cache"},
			want: []string{"procfuse", "/mnt/b", "--relaxed-cache"},
		},
		{
			name: "underscore converted to dash in key=value",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "webaddr=:8000,relaxed_cache"},
			want: []string{"procfuse", "/mnt/b", "--relaxed-cache", "--webaddr", ":8000"},
		},
		{
			name: "mountpoint with space",
			args: []string{"mount.procfuse", "proc", "/mnt/with space"},
			want: []string{"procfuse", "/mnt/with space"},
		},
		{
			name: "empty option string ignored",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "trace,,relaxed-cache"},
			want: []string{"procfuse", "/mnt/b", "--relaxed-cache", "--trace"},
		},
		{
			name: "empty -o argument ignored",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "-o"},
			want: []string{"procfuse", "/mnt/b"},
		},
		{
			name: "unknown option ignored",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "unknown-option,trace"},
			want: []string{"procfuse", "/mnt/b", "--trace"},
		},
		{
			name: "setuid captured not forwarded",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "setuid=anon,trace"},
			want: []string{"procfuse", "/mnt/b", "--trace"},
		},
		{
			name: "explicit -t overrides basename",
			args: []string{"mount.fuse.procfuse", "proc", "/mnt/b", "-t", "ntfs"},
			want: []string{"ntfs", "/mnt/b"},
		},
		{
			name: "empty value in key= option",
			args: []string{"mount.procfuse", "proc", "/mnt/b", "webaddr="},
			want: []string{"procfuse", "/mnt/b", "--webaddr"},
		},
		{
			name:    "explicit -t fuse. with empty suffix errors",
			args:    []string{"mount", "proc", "/mnt/b", "-t", "fuse."},
			wantErr: true,
		},
		{
			name:    "source with only # gives empty type error",
			args:    []string{"mount.fuseblk.", "#proc", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "source with only # gives empty source error",
			args:    []string{"mount.fuseblk.", "procfuse#", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "empty source argument",
			args:    []string{"mount.procfuse", "", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "empty mountpoint argument",
			args:    []string{"mount.procfuse", "proc", ""},
			wantErr: true,
		},
		{
			name:    "source without # in generic mount helper",
			args:    []string{"mount.fuseblk.", "nosource", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "missing -t value",
			args:    []string{"mount", "proc", "/mnt/b", "-t"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mh, err := NewMountHelper(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMountHelper() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got := mh.CommandLine()
			if !slices.Equal(got, tt.want) {
				t.Errorf("CommandLine() = %v\nwant %v", got, tt.want)
			}
		})
	}
}

// Expectation: Numeric setuid specs should resolve to a credential
// without touching the user database.
func Test_credentialFor_Numeric_Success(t *testing.T) {
	t.Parallel()

	cred, err := credentialFor("1000")
	if err != nil {
		t.Fatalf("credentialFor() error = %v", err)
	}
	if cred.Uid != 1000 || cred.Gid != 1000 {
		t.Errorf("credentialFor() = %d/%d, want 1000/1000", cred.Uid, cred.Gid)
	}
}

// Expectation: The root mount is always present in the mount table;
// an unmounted path is not.
func Test_MountHelper_mountpointPresent_Success(t *testing.T) {
	t.Parallel()

	mh := &MountHelper{Mountpoint: "/"}
	if !mh.mountpointPresent() {
		t.Error("mountpointPresent() = false for /, want true")
	}

	mh.Mountpoint = "/definitely/not/mounted"
	if mh.mountpointPresent() {
		t.Error("mountpointPresent() = true for unmounted path, want false")
	}
}

// Expectation: A readiness signal should complete the wait without
// touching the mount table.
func Test_MountHelper_awaitMount_Ready_Success(t *testing.T) {
	t.Parallel()

	mh := &MountHelper{Mountpoint: "/definitely/not/mounted"}
	ready := make(chan struct{})
	close(ready)

	if err := mh.awaitMount(ready); err != nil {
		t.Errorf("awaitMount() error = %v", err)
	}
}
