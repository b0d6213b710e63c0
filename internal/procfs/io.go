package procfs

// Handle is one open read session on a generated file. The first read
// through a handle generates the full content snapshot; partial reads
// against the same handle consume that same buffer, so a reader never
// observes two different snapshots mid-file. The buffer is dropped once
// a read returns zero bytes or the handle closes.
type Handle struct {
	buf   []byte
	valid bool
}

// Close drops the cached snapshot, if any.
func (h *Handle) Close() {
	h.buf = nil
	h.valid = false
}

// generatorFor resolves the read function for a key: the static or sys
// registry slot, or the per-descriptor symlink generator for keys under
// a process's fd directory. Nil means the key has no readable content
// (it is a directory).
func (fsys *FS) generatorFor(id Key) generatorFunc {
	if entry := fsys.directoryEntry(id); entry != nil {
		return entry.read
	}
	if id.Dir() == parentPIDFD {
		return genPIDFDEntry
	}

	return nil
}

// ReadAt reads generated content for a key into p at the given offset.
// A nil handle regenerates the snapshot on every call; a non-nil handle
// caches it between partial reads. Reading past the end returns zero
// bytes and no error. Reading a directory is not permitted.
func (fsys *FS) ReadAt(id Key, p []byte, off int64, h *Handle) (int, error) {
	if off < 0 {
		return 0, ErrNotPermitted
	}

	gen := fsys.generatorFor(id)
	if gen == nil {
		return 0, ErrNotPermitted
	}

	var data []byte
	if h == nil {
		data = gen(fsys, id)
	} else {
		if !h.valid {
			h.buf = gen(fsys, id)
			h.valid = true
		}
		data = h.buf
	}

	if off >= int64(len(data)) {
		if h != nil {
			h.Close()
		}

		return 0, nil
	}

	n := copy(p, data[off:])
	if n == 0 && h != nil {
		h.Close()
	}

	return n, nil
}

// ReadAll returns the full generated content for a key in one call.
func (fsys *FS) ReadAll(id Key) ([]byte, error) {
	gen := fsys.generatorFor(id)
	if gen == nil {
		return nil, ErrNotPermitted
	}

	return gen(fsys, id), nil
}

// ReadLink resolves a symlink key to its target path. An empty
// generation (vanished process, unbound path) reports ErrNotFound.
func (fsys *FS) ReadLink(id Key) (string, error) {
	if !fsys.Metadata(id).IsSymlink() {
		return "", ErrNotPermitted
	}

	target, err := fsys.ReadAll(id)
	if err != nil {
		return "", err
	}
	if len(target) == 0 {
		return "", ErrNotFound
	}

	return string(target), nil
}

// WriteAt applies a write to a writable key. Only registered sys
// variables accept writes, and only at offset zero. The reported count
// always covers the full payload: malformed payloads are consumed
// silently by the variable's writer.
func (fsys *FS) WriteAt(id Key, p []byte, off int64) (int, error) {
	entry := fsys.directoryEntry(id)
	if entry == nil || entry.write == nil {
		return 0, ErrNotPermitted
	}
	if off != 0 {
		return 0, ErrNotPermitted
	}

	return entry.write(fsys, id, p), nil
}
