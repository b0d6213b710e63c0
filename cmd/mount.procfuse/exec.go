//nolint:mnd,err113,noctx
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
)

const (
	pollInterval = 200 * time.Millisecond
	helperPath   = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// CommandLine assembles the filesystem invocation: binary, mountpoint,
// then the translated options in stable order. The mount source is
// deliberately absent from it; the tree is generated from kernel state,
// so only mount(8) ever sees the nominal source argument.
func (mh *MountHelper) CommandLine() []string {
	line := []string{mh.Type, mh.Mountpoint}

	keys := make([]string, 0, len(mh.Options))
	for key := range mh.Options {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		line = append(line, "--"+key)
		if val := mh.Options[key]; val != "" {
			line = append(line, val)
		}
	}

	return line
}

// Execute launches the filesystem binary detached from the helper and
// waits until it either signals readiness over the inherited pipe or
// the mountpoint shows up in the mount table.
func (mh *MountHelper) Execute() error {
	mh.ensureEnvironment()

	line := mh.CommandLine()
	cmd := exec.Command(line[0], line[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if mh.Setuid != "" {
		if cred, err := credentialFor(mh.Setuid); err == nil {
			cmd.SysProcAttr.Credential = cred
		} else {
			// Specs the user database cannot resolve may still be
			// reachable through su(1).
			cmd = suCommand(mh.Setuid, line)
			cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		}
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer null.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = null, null, null

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("pipe error: %w", err)
	}
	defer r.Close()
	cmd.Env = append(os.Environ(), "PROCFUSE_HELPER_FD=3")
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process error: %w", err)
	}
	_ = cmd.Process.Release()
	w.Close()

	ready := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		if _, err := r.Read(buf); err == nil {
			close(ready)
		}
	}()

	if err := mh.awaitMount(ready); err != nil {
		return fmt.Errorf("mount error: %w", err)
	}

	return nil
}

// suCommand wraps the invocation in su(1), quoting every argument for
// the intermediate shell.
func suCommand(spec string, line []string) *exec.Cmd {
	quoted := make([]string, len(line))
	for i, arg := range line {
		quoted[i] = shellescape.Quote(arg)
	}
	outer := fmt.Sprintf("su - %s -c %s",
		shellescape.Quote(spec), shellescape.Quote(strings.Join(quoted, " ")))

	return exec.Command("/bin/sh", "-c", outer)
}

// credentialFor resolves a setuid spec to process credentials: a bare
// number is taken as both uid and gid, anything else goes through the
// user database.
func credentialFor(spec string) (*syscall.Credential, error) {
	if id, err := strconv.ParseUint(spec, 10, 32); err == nil {
		return &syscall.Credential{Uid: uint32(id), Gid: uint32(id)}, nil
	}

	u, err := user.Lookup(spec)
	if err != nil {
		return nil, fmt.Errorf("cannot look up user %q: %w", spec, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid gid %q: %w", u.Gid, err)
	}

	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

func (mh *MountHelper) ensureEnvironment() {
	if mh.Setuid == "" && os.Getenv("HOME") == "" {
		os.Setenv("HOME", "/root")
	}

	if path := os.Getenv("PATH"); path == "" {
		os.Setenv("PATH", helperPath)
	} else {
		os.Setenv("PATH", path+":"+helperPath)
	}
}

func (mh *MountHelper) awaitMount(ready <-chan struct{}) error {
	deadline := time.After(mountTimeout)
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ready:
			return nil

		case <-poll.C:
			if mh.mountpointPresent() {
				return nil
			}

		case <-deadline:
			if mh.mountpointPresent() {
				return nil
			}

			return errors.New("timed out: mountpoint not found")
		}
	}
}

// mountpointPresent reports whether the mountpoint appears in the
// process's mount table. Field five of a mountinfo row is the mount
// point, with spaces octal-escaped.
func (mh *MountHelper) mountpointPresent() bool {
	data, err := os.ReadFile("/proc/self/mountinfo")
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if strings.ReplaceAll(fields[4], `\040`, " ") == mh.Mountpoint {
			return true
		}
	}

	return false
}
