package procfs

import "strconv"

// DirentType classifies a directory entry for emission.
type DirentType uint8

const (
	DirentFile DirentType = iota
	DirentDir
	DirentLink
)

// Dirent is one emitted child of a directory.
type Dirent struct {
	Name string
	ID   Key
	Type DirentType
}

// direntTypeFor classifies a static entry by its tag.
func direntTypeFor(tag FileTag) DirentType {
	switch tag {
	case TagRoot, TagRootSys, TagPID, TagPIDFD:
		return DirentDir
	case TagRootSelf, TagPIDExe, TagPIDCwd:
		return DirentLink
	default:
		return DirentFile
	}
}

// Traverse enumerates the children of a directory key, calling fn for
// each entry until it returns false. Every directory yields "." and
// ".." first, then its kind-specific children. A process directory
// whose process has exited reports ErrNotFound; a non-directory key
// reports ErrNotDirectory.
func (fsys *FS) Traverse(id Key, fn func(Dirent) bool) error {
	if !id.IsDirectory() {
		return ErrNotDirectory
	}

	if !fn(Dirent{Name: ".", ID: id, Type: DirentDir}) {
		return nil
	}
	if !fn(Dirent{Name: "..", ID: id.Parent(), Type: DirentDir}) {
		return nil
	}

	switch id.Tag() {
	case TagRoot:
		return fsys.traverseRoot(fn)
	case TagRootSys:
		return fsys.traverseSys(fn)
	case TagPID:
		return fsys.traversePID(id.PID(), fn)
	case TagPIDFD:
		return fsys.traversePIDFD(id.PID(), fn)
	default:
		return nil
	}
}

func (fsys *FS) traverseRoot(fn func(Dirent) bool) error {
	for tag := FileTag(0); tag < FileTag(tagMaxStatic); tag++ {
		entry := &fsys.entries[tag]
		if entry.name == "" || !isRootRange(entry.tag) {
			continue
		}
		child := Dirent{
			Name: entry.name,
			ID:   makeKey(parentRoot, 0, entry.tag),
			Type: direntTypeFor(entry.tag),
		}
		if !fn(child) {
			return nil
		}
	}

	for _, pid := range fsys.kern.Processes.PIDs() {
		child := Dirent{
			Name: strconv.Itoa(pid),
			ID:   makeKey(parentRoot, pid, TagPID),
			Type: DirentDir,
		}
		if !fn(child) {
			return nil
		}
	}

	return nil
}

func (fsys *FS) traverseSys(fn func(Dirent) bool) error {
	fsys.sysMu.RLock()
	defer fsys.sysMu.RUnlock()

	for index, entry := range fsys.sys {
		child := Dirent{
			Name: entry.name,
			ID:   sysKey(index),
			Type: DirentFile,
		}
		if !fn(child) {
			return nil
		}
	}

	return nil
}

func (fsys *FS) traversePID(pid int, fn func(Dirent) bool) error {
	proc, ok := fsys.kern.Processes.Inspect(pid)
	if !ok {
		return ErrNotFound
	}

	for tag := FileTag(0); tag < FileTag(tagMaxStatic); tag++ {
		entry := &fsys.entries[tag]
		if entry.name == "" || !isPIDRange(entry.tag) {
			continue
		}
		// Symlinks to an unbound executable or working directory
		// are suppressed entirely, never emitted broken.
		if entry.tag == TagPIDExe && proc.ExecutablePath == "" {
			continue
		}
		if entry.tag == TagPIDCwd && proc.WorkingDirectory == "" {
			continue
		}
		child := Dirent{
			Name: entry.name,
			ID:   makeKey(parentPID, pid, entry.tag),
			Type: direntTypeFor(entry.tag),
		}
		if !fn(child) {
			return nil
		}
	}

	return nil
}

func (fsys *FS) traversePIDFD(pid int, fn func(Dirent) bool) error {
	proc, ok := fsys.kern.Processes.Inspect(pid)
	if !ok {
		return ErrNotFound
	}

	maxFDs := min(proc.MaxDescriptors(), MaxDescriptors)
	for fd := 0; fd < maxFDs; fd++ {
		if _, ok := proc.Descriptor(fd); !ok {
			continue
		}
		child := Dirent{
			Name: strconv.Itoa(fd),
			ID:   fdKey(pid, fd),
			Type: DirentLink,
		}
		if !fn(child) {
			return nil
		}
	}

	return nil
}

// Lookup resolves a child name within a directory key, mirroring
// Traverse but short-circuiting on the first match. Absence of any
// kind (unknown name, vanished process, closed descriptor) reports
// false.
func (fsys *FS) Lookup(dir Key, name string) (Key, bool) {
	if !dir.IsDirectory() {
		return 0, false
	}

	if name == "." {
		return dir, true
	}
	if name == ".." {
		return dir.Parent(), true
	}

	switch dir.Tag() {
	case TagRoot:
		return fsys.lookupRoot(name)
	case TagRootSys:
		return fsys.lookupSys(name)
	case TagPID:
		return fsys.lookupPID(dir.PID(), name)
	case TagPIDFD:
		return fsys.lookupPIDFD(dir.PID(), name)
	default:
		return 0, false
	}
}

func (fsys *FS) lookupRoot(name string) (Key, bool) {
	for tag := FileTag(0); tag < FileTag(tagMaxStatic); tag++ {
		entry := &fsys.entries[tag]
		if entry.name == name && isRootRange(entry.tag) {
			return makeKey(parentRoot, 0, entry.tag), true
		}
	}

	// A name failing the static scan may be a numeric process id,
	// accepted only while that process exists.
	pid, err := strconv.Atoi(name)
	if err != nil || pid <= 0 {
		return 0, false
	}
	if _, ok := fsys.kern.Processes.Inspect(pid); !ok {
		return 0, false
	}

	return makeKey(parentRoot, pid, TagPID), true
}

func (fsys *FS) lookupSys(name string) (Key, bool) {
	fsys.sysMu.RLock()
	defer fsys.sysMu.RUnlock()

	for index, entry := range fsys.sys {
		if entry.name == name {
			return sysKey(index), true
		}
	}

	return 0, false
}

func (fsys *FS) lookupPID(pid int, name string) (Key, bool) {
	proc, ok := fsys.kern.Processes.Inspect(pid)
	if !ok {
		return 0, false
	}

	for tag := FileTag(0); tag < FileTag(tagMaxStatic); tag++ {
		entry := &fsys.entries[tag]
		if entry.name != name || !isPIDRange(entry.tag) {
			continue
		}
		if entry.tag == TagPIDExe && proc.ExecutablePath == "" {
			return 0, false
		}
		if entry.tag == TagPIDCwd && proc.WorkingDirectory == "" {
			return 0, false
		}

		return makeKey(parentPID, pid, entry.tag), true
	}

	return 0, false
}

func (fsys *FS) lookupPIDFD(pid int, name string) (Key, bool) {
	fd, err := strconv.Atoi(name)
	if err != nil || fd < 0 || fd >= MaxDescriptors {
		return 0, false
	}

	proc, ok := fsys.kern.Processes.Inspect(pid)
	if !ok {
		return 0, false
	}
	if _, ok := proc.Descriptor(fd); !ok {
		return 0, false
	}

	return fdKey(pid, fd), true
}

// ReverseLookup resolves a child key back to its name within a
// directory. It is implemented for the root directory only; all other
// directory kinds report ErrUnsupported, a documented gap rather than
// a fatal assertion.
func (fsys *FS) ReverseLookup(dir, child Key) (string, error) {
	if !dir.IsDirectory() {
		return "", ErrNotDirectory
	}

	if dir.Tag() != TagRoot {
		return "", ErrUnsupported
	}

	for tag := FileTag(0); tag < FileTag(tagMaxStatic); tag++ {
		entry := &fsys.entries[tag]
		if entry.name == "" || !isRootRange(entry.tag) {
			continue
		}
		if child == makeKey(parentRoot, 0, entry.tag) {
			return entry.name, nil
		}
	}

	if child.Tag() == TagPID {
		return strconv.Itoa(child.PID()), nil
	}

	return "", ErrNotFound
}

// DirentCount returns the number of entries a directory yields,
// including "." and "..".
func (fsys *FS) DirentCount(id Key) (int, error) {
	count := 0
	err := fsys.Traverse(id, func(Dirent) bool {
		count++

		return true
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
